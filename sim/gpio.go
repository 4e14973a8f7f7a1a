// Package sim is a host-side plant for the controller: every hardware
// interface the firmware core needs, backed by a simple model of two DC
// motors, two SRF10 sonars and a serial operator link.
//
// Interrupt sources run on their own goroutines and enter the core through
// core.EnterInterrupt, so they never overlap code running with interrupts
// masked.
package sim

import (
	"fmt"
	"sync"

	"diffbot/core"
)

type pinMode uint8

const (
	pinUnused pinMode = iota
	pinOutput
	pinInput
)

// GPIO is a bank of simulated pins.
type GPIO struct {
	mu     sync.Mutex
	modes  map[core.GPIOPin]pinMode
	levels map[core.GPIOPin]bool
}

// NewGPIO creates an empty pin bank.
func NewGPIO() *GPIO {
	return &GPIO{
		modes:  make(map[core.GPIOPin]pinMode),
		levels: make(map[core.GPIOPin]bool),
	}
}

func (g *GPIO) configure(pin core.GPIOPin, mode pinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m := g.modes[pin]; m != pinUnused && m != mode {
		return fmt.Errorf("gpio%d already configured", pin)
	}
	g.modes[pin] = mode
	return nil
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	return g.configure(pin, pinOutput)
}

func (g *GPIO) ConfigureInputPullDown(pin core.GPIOPin) error {
	if err := g.configure(pin, pinInput); err != nil {
		return err
	}
	g.Drive(pin, false)
	return nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, value bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.modes[pin] == pinOutput {
		g.levels[pin] = value
	}
}

func (g *GPIO) ReadPin(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels[pin]
}

// Drive sets the level of an input pin from outside the firmware.
func (g *GPIO) Drive(pin core.GPIOPin, value bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels[pin] = value
}

// Level returns a pin's current level.
func (g *GPIO) Level(pin core.GPIOPin) bool {
	return g.ReadPin(pin)
}
