// diffbot-sim runs the controller against a simulated robot. The operator
// console runs in-process, or the simulated link is bridged to a serial
// device so diffbot-remote can drive it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/golang/glog"

	"diffbot/config"
	"diffbot/core"
	"diffbot/host/console"
	"diffbot/host/mcu"
	"diffbot/host/serial"
	"diffbot/sim"
)

var (
	configPath = flag.String("config", "", "JSON configuration file (defaults when empty)")
	speedup    = flag.Float64("speedup", 1, "Simulated time per wall-clock time")
	device     = flag.String("device", "", "Bridge the operator link to this serial device instead of running a console")
	baud       = flag.Int("baud", 9600, "Baud rate of the bridged device")
	script     = flag.String("script", "", "Run console commands from a file")
	debug      = flag.Bool("debug", false, "Route controller debug output to the log")
	leftCM     = flag.Uint("obstacle-left", 0, "Distance in cm of an obstacle in front of the left sonar (0 for none)")
	rightCM    = flag.Uint("obstacle-right", 0, "Distance in cm of an obstacle in front of the right sonar (0 for none)")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := run(); err != nil {
		glog.Error(err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	data, err := os.ReadFile(*configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", *configPath, err)
	}
	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	core.SetDebugWriter(func(s string) { glog.Info(s) })
	core.SetDebugEnabled(*debug)

	rc := cfg.RobotConfig()
	s := sim.New(rc, sim.DefaultPlantConfig())
	s.Speedup = *speedup
	s.Bus.SetDistance(rc.Ranger.Left, uint16(*leftCM))
	s.Bus.SetDistance(rc.Ranger.Right, uint16(*rightCM))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	glog.Infof("simulating at %.1fx, tick %v", s.Speedup, rc.TickPeriod)

	if *device != "" {
		err = bridge(ctx, s.Serial.Host())
	} else {
		err = operate(s, rc)
	}
	cancel()
	if simErr := <-done; simErr != nil && err == nil {
		err = simErr
	}
	if *debug {
		core.DumpEvents()
	}
	return err
}

// operate waits for calibration, then hands the robot to the console.
func operate(s *sim.Sim, rc core.RobotConfig) error {
	glog.Info("calibrating")
	tl, ok := s.WaitFor(5*time.Minute, func(t sim.Telemetry) bool { return t.Armed || t.Faults > 0 })
	if !ok || !tl.Armed {
		return fmt.Errorf("robot did not arm: %v", tl.LastFault)
	}
	glog.Infof("armed after %d ticks", tl.Tick)

	con := console.New(mcu.New(s.Serial.Host()))
	con.Status = func() string { return formatTelemetry(s.Telemetry()) }
	addSimCmds(con, s, rc.Ranger.Left, rc.Ranger.Right)
	if *script != "" {
		f, err := os.Open(*script)
		if err != nil {
			return err
		}
		defer f.Close()
		return con.RunScript(f)
	}
	return con.Run(flag.Args()...)
}

func formatTelemetry(t sim.Telemetry) string {
	return fmt.Sprintf("tick=%d armed=%v stopped=%v duty=%.2f/%.2f measured=%.2f/%.2f actual=%.2f/%.2f sonar=%d/%d obstacle=%v faults=%d bus=%+v",
		t.Tick, t.Armed, t.Stopped,
		t.Duty.Left, t.Duty.Right,
		t.Measured[0], t.Measured[1],
		t.Actual[0], t.Actual[1],
		t.Distance[0], t.Distance[1],
		t.Obstacles, t.Faults, t.Bus)
}

// bridge copies the simulated link to and from a serial device until ctx is
// done.
func bridge(ctx context.Context, host io.ReadWriter) error {
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	port, err := serial.Open(cfg)
	if err != nil {
		return err
	}
	defer port.Close()
	glog.Infof("operator link bridged to %s", cfg.Device)

	errc := make(chan error, 2)
	pipe := func(dst io.Writer, src io.Reader) {
		buf := make([]byte, 64)
		for ctx.Err() == nil {
			n, err := src.Read(buf)
			if err != nil && err != io.EOF {
				errc <- err
				return
			}
			if n == 0 {
				continue
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	}
	go pipe(host, port)
	go pipe(port, host)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}
