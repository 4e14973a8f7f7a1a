// Package serial opens the operator link on the host.
//
// The robot's UART runs 8 data bits, no parity, one stop bit, with no flow
// control. Every byte the robot receives is echoed back, so a host reads
// after each write to stay in step.
package serial

import (
	"errors"
	"fmt"
	"io"
)

// Port is one end of the operator link. Implemented by NativePort and by the
// simulator's in-process link.
type Port interface {
	io.ReadWriteCloser

	// Flush discards received bytes not yet read, such as echoes of a
	// previous session.
	Flush() error
}

// Config describes how to reach the robot.
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud must match the firmware's UART setting
	Baud int

	// ReadTimeout in milliseconds. A read returns 0 bytes once it expires,
	// which is how a missing echo is detected. 0 blocks.
	ReadTimeout int
}

// DefaultConfig returns the firmware's default link settings.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        9600,
		ReadTimeout: 100,
	}
}

// Validate reports settings that cannot open a link.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}
	if c.Device == "" {
		return errors.New("no serial device given")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid read timeout %dms", c.ReadTimeout)
	}
	return nil
}
