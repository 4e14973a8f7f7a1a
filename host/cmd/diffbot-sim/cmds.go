package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"diffbot/core"
	"diffbot/host/console"
	"diffbot/sim"
)

// addSimCmds adds commands that act on the simulated hardware.
func addSimCmds(con *console.Console, s *sim.Sim, left, right core.I2CAddress) {
	con.Shell.AddCmd(&ishell.Cmd{
		Name: "press",
		Help: "start|stop  press and release a button",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: press start|stop"))
				return
			}
			var press func(bool)
			switch c.Args[0] {
			case "start":
				press = s.PressStart
			case "stop":
				press = s.PressStop
			default:
				c.Err(fmt.Errorf("unknown button %q", c.Args[0]))
				return
			}
			// hold it for a few control ticks
			from := s.Telemetry().Tick
			press(true)
			s.WaitFor(time.Second, func(t sim.Telemetry) bool { return t.Tick >= from+3 })
			press(false)
		},
	})
	con.Shell.AddCmd(&ishell.Cmd{
		Name: "obstacle",
		Help: "left|right CM  place an obstacle, 0 removes it",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("usage: obstacle left|right CM"))
				return
			}
			cm, err := strconv.ParseUint(c.Args[1], 10, 16)
			if err != nil {
				c.Err(err)
				return
			}
			switch c.Args[0] {
			case "left":
				s.Bus.SetDistance(left, uint16(cm))
			case "right":
				s.Bus.SetDistance(right, uint16(cm))
			default:
				c.Err(fmt.Errorf("unknown side %q", c.Args[0]))
			}
		},
	})
}
