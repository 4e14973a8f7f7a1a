// Package console is the operator's interactive shell for driving the robot.
package console

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"
	"github.com/google/shlex"

	"diffbot/host/mcu"
)

// Link is the operator link the console drives. *mcu.MCU satisfies it.
type Link interface {
	Drive(speed float64, degrees int) error
	Stop() error
	Setpoint() (speed float64, degrees int)
	Stats() mcu.Stats
}

// Console provides an ishell backed interactive shell.
type Console struct {
	Shell *ishell.Shell
	Link  Link

	// Status, when set, adds a line to the status command.
	Status func() string

	// Sleep pauses a script; time.Sleep when nil.
	Sleep func(time.Duration)
}

const consoleKey = "$console"

// New creates a console around a link.
func New(link Link) *Console {
	c := &Console{
		Shell: ishell.New(),
		Link:  link,
	}
	c.Shell.Set(consoleKey, c)
	c.Shell.SetPrompt("diffbot > ")
	for _, cmd := range commands {
		c.Shell.AddCmd(cmd)
	}
	return c
}

// From gets the Console from an ishell context.
func From(c *ishell.Context) *Console {
	return c.Get(consoleKey).(*Console)
}

// Run runs one command given as arguments, or the interactive shell when
// there are none.
func (c *Console) Run(args ...string) error {
	if len(args) > 0 {
		return c.Shell.Process(args...)
	}
	c.Shell.Run()
	return nil
}

// RunScript executes one command per line. Blank lines and lines starting
// with # are skipped. Lines are split with shell quoting rules.
func (c *Console) RunScript(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		args, err := shlex.Split(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		glog.V(1).Infof("script: %q", args)
		if err := c.Shell.Process(args...); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}

func (c *Console) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}

func parseSpeed(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("speed %q: %w", s, err)
	}
	if v < -1 || v > 1 {
		return 0, fmt.Errorf("speed %v outside [-1,1]", v)
	}
	return v, nil
}

func parseAngle(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("angle %q: %w", s, err)
	}
	if v < 0 || v > 180 {
		return 0, fmt.Errorf("angle %d outside [0,180]", v)
	}
	return v, nil
}

func drive(c *ishell.Context, speed float64, angle int) {
	if err := From(c).Link.Drive(speed, angle); err != nil {
		glog.Errorf("drive: %v", err)
		c.Err(err)
		return
	}
	c.Println("OK")
}

var (
	// DriveCmd sets speed and heading.
	DriveCmd = ishell.Cmd{
		Name:    "drive",
		Aliases: []string{"d"},
		Help:    "SPEED ANGLE  speed in [-1,1], angle in degrees, 90 straight",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("usage: drive SPEED ANGLE"))
				return
			}
			speed, err := parseSpeed(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			angle, err := parseAngle(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			drive(c, speed, angle)
		},
	}

	// SpeedCmd changes speed, keeping the heading.
	SpeedCmd = ishell.Cmd{
		Name:    "speed",
		Aliases: []string{"s"},
		Help:    "SPEED",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: speed SPEED"))
				return
			}
			speed, err := parseSpeed(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			_, angle := From(c).Link.Setpoint()
			drive(c, speed, angle)
		},
	}

	// TurnCmd changes heading, keeping the speed.
	TurnCmd = ishell.Cmd{
		Name:    "turn",
		Aliases: []string{"t"},
		Help:    "ANGLE",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: turn ANGLE"))
				return
			}
			angle, err := parseAngle(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			speed, _ := From(c).Link.Setpoint()
			drive(c, speed, angle)
		},
	}

	// HaltCmd brings the robot to rest without tripping the stop latch.
	HaltCmd = ishell.Cmd{
		Name: "halt",
		Help: "",
		Func: func(c *ishell.Context) {
			_, angle := From(c).Link.Setpoint()
			drive(c, 0, angle)
		},
	}

	// StopCmd trips the emergency stop.
	StopCmd = ishell.Cmd{
		Name:    "stop",
		Aliases: []string{"estop", "x"},
		Help:    "emergency stop; clear with the start button",
		Func: func(c *ishell.Context) {
			if err := From(c).Link.Stop(); err != nil {
				glog.Errorf("stop: %v", err)
				c.Err(err)
				return
			}
			glog.Warning("emergency stop sent")
			c.Println("STOPPED")
		},
	}

	// WaitCmd pauses a script.
	WaitCmd = ishell.Cmd{
		Name:    "wait",
		Aliases: []string{"sleep"},
		Help:    "DURATION  e.g. 500ms",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: wait DURATION"))
				return
			}
			d, err := time.ParseDuration(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			From(c).sleep(d)
		},
	}

	// StatusCmd prints the setpoint and link counters.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: func(c *ishell.Context) {
			con := From(c)
			speed, angle := con.Link.Setpoint()
			st := con.Link.Stats()
			c.Printf("setpoint speed=%.2f angle=%d\n", speed, angle)
			c.Printf("link sent=%d echoed=%d mismatched=%d timeouts=%d\n",
				st.Sent, st.Echoed, st.Mismatched, st.TimedOut)
			if con.Status != nil {
				c.Println(con.Status())
			}
		},
	}

	commands = []*ishell.Cmd{
		&DriveCmd,
		&SpeedCmd,
		&TurnCmd,
		&HaltCmd,
		&StopCmd,
		&WaitCmd,
		&StatusCmd,
	}
)
