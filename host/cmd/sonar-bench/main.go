// sonar-bench drives a pair of SRF10 sonars from a Linux host through the
// same asynchronous bus engine and ranging driver the robot runs.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"diffbot/core"
)

var (
	busName  = flag.String("bus", "", "I²C bus name or number (first available when empty)")
	freq     = flag.Int("khz", 100, "Bus clock in kHz")
	left     = flag.Uint("left", uint(core.SRF10LeftAddr), "Left sonar 7-bit address")
	right    = flag.Uint("right", uint(core.SRF10RightAddr), "Right sonar 7-bit address")
	gain     = flag.Uint("gain", 10, "Analogue gain register")
	speed    = flag.Float64("speed", 0, "Normalized speed used to size the range window")
	interval = flag.Duration("interval", 70*time.Millisecond, "Time between firings")
	count    = flag.Int("count", 0, "Number of firings (0 until interrupted)")
)

// registerBus adds the register helpers of drivers.I2C to a periph bus.
type registerBus struct {
	i2c.Bus
}

func (b registerBus) ReadRegister(addr uint8, r uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{r}, buf)
}

func (b registerBus) WriteRegister(addr uint8, r uint8, buf []byte) error {
	w := make([]byte, 0, len(buf)+1)
	w = append(w, r)
	w = append(w, buf...)
	return b.Tx(uint16(addr), w, nil)
}

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

func run() error {
	if *left > 0x7F || *right > 0x7F || *left == *right {
		return fmt.Errorf("need two distinct 7-bit addresses, got %#x and %#x", *left, *right)
	}
	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open(*busName)
	if err != nil {
		return fmt.Errorf("failed to open I²C: %w", err)
	}
	defer bus.Close()
	if err := bus.SetSpeed(physic.Frequency(*freq) * physic.KiloHertz); err != nil {
		glog.Warningf("bus speed not set: %v", err)
	}

	core.SetDebugWriter(func(s string) { glog.V(1).Info(s) })
	core.SetDebugEnabled(bool(glog.V(1)))

	tx := core.NewTxPeripheral(registerBus{bus})
	engine := core.NewI2CBus(tx, 0)

	cfg := core.DefaultRangerConfig()
	cfg.Left, cfg.Right = core.I2CAddress(*left), core.I2CAddress(*right)
	cfg.Gain = uint8(*gain)
	cfg.Cadence = 1
	ranger := core.NewRanger(engine, nil, cfg)
	ranger.Idle = func() { tx.Service(engine) }

	for _, addr := range []core.I2CAddress{cfg.Left, cfg.Right} {
		rev, err := ranger.Revision(addr)
		if err != nil {
			return fmt.Errorf("sonar %#x: %w", addr, err)
		}
		glog.Infof("sonar %#x revision %d", addr, rev)
	}
	if err := ranger.Init(); err != nil {
		return err
	}
	tx.Service(engine)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	reg := core.RangeRegister(cfg.MinRange, cfg.MaxRange, float32(*speed))
	glog.Infof("range register %d (%d cm window), threshold %.0f",
		reg, (int(reg)+1)*43/10, core.Threshold(cfg.ThresholdBase, cfg.ThresholdScale, float32(*speed)))

	for n := 0; *count == 0 || n < *count; n++ {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
		}
		obs, err := ranger.Tick(float32(*speed))
		l, r := ranger.Distances()
		if err != nil {
			glog.Warningf("firing %d: %v", n, err)
			if ranger.Unrecovered() {
				return fmt.Errorf("ranging unrecovered: %w", err)
			}
		}
		fmt.Printf("%6d left=%s right=%s obstacle=%s\n", n, cm(l), cm(r), obs)
	}
	st := engine.Stats()
	glog.Infof("bus completed=%d aborted=%d timed-out=%d rejected=%d tx-errors=%d",
		st.Completed, st.Aborted, st.TimedOut, st.Rejected, tx.Errors())
	return nil
}

func cm(d uint16) string {
	if d == core.NoEcho {
		return "  --"
	}
	return fmt.Sprintf("%4d", d)
}
