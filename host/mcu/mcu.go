// Package mcu is the host side of the operator link: it sends drive packets
// to the robot controller and checks that each byte is echoed back.
package mcu

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"diffbot/host/serial"
	"diffbot/protocol"
)

// ErrEchoMismatch is returned when the controller echoed something other
// than what was sent.
var ErrEchoMismatch = errors.New("mcu: echo mismatch")

// ErrEchoTimeout is returned when the echo did not arrive in time.
var ErrEchoTimeout = errors.New("mcu: echo timeout")

// Stats counts link outcomes.
type Stats struct {
	Sent       uint32
	Echoed     uint32
	Mismatched uint32
	TimedOut   uint32
}

// MCU is a connection to the robot controller.
type MCU struct {
	port serial.Port

	// EchoTimeout bounds the wait for a packet's echo.
	EchoTimeout time.Duration

	mu    sync.Mutex
	stats Stats
	last  [protocol.PacketSize]byte
	speed float64
	angle int
}

// New wraps an open port.
func New(port serial.Port) *MCU {
	return &MCU{
		port:        port,
		EchoTimeout: time.Second,
		angle:       protocol.AngleMax / 2,
	}
}

// Connect opens the robot's serial link.
func Connect(device string) (*MCU, error) {
	return ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens the link with a custom serial config.
func ConnectWithConfig(cfg *serial.Config) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	// drop whatever the controller printed before we attached
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", cfg.Device, err)
	}
	return New(port), nil
}

// Close closes the link.
func (m *MCU) Close() error {
	return m.port.Close()
}

// Drive commands a normalized speed in [-1,1] and a heading in degrees,
// 90 being straight ahead.
func (m *MCU) Drive(speed float64, degrees int) error {
	if err := m.Send(protocol.EncodePacket(protocol.CmdRun, speed, degrees)); err != nil {
		return err
	}
	m.mu.Lock()
	m.speed, m.angle = speed, degrees
	m.mu.Unlock()
	return nil
}

// Stop trips the controller's emergency stop. Only the physical start input
// clears it.
func (m *MCU) Stop() error {
	return m.Send(protocol.EncodePacket(protocol.CmdEmergencyStop, 0, protocol.AngleMax/2))
}

// Setpoint returns the last speed and heading acknowledged by the robot.
func (m *MCU) Setpoint() (speed float64, degrees int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed, m.angle
}

// Send writes one packet and waits for its echo.
func (m *MCU) Send(pkt [protocol.PacketSize]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.port.Write(pkt[:]); err != nil {
		return fmt.Errorf("failed to send packet % x: %w", pkt, err)
	}
	m.stats.Sent++
	m.last = pkt

	echo, err := m.readEcho(len(pkt))
	if err != nil {
		m.stats.TimedOut++
		return fmt.Errorf("packet % x: %w", pkt, err)
	}
	if !bytes.Equal(echo, pkt[:]) {
		m.stats.Mismatched++
		return fmt.Errorf("%w: sent % x, got % x", ErrEchoMismatch, pkt, echo)
	}
	m.stats.Echoed++
	return nil
}

func (m *MCU) readEcho(n int) ([]byte, error) {
	echo := make([]byte, 0, n)
	buf := make([]byte, n)
	deadline := time.Now().Add(m.EchoTimeout)
	for len(echo) < n {
		k, err := m.port.Read(buf[:n-len(echo)])
		echo = append(echo, buf[:k]...)
		if err != nil && err != io.EOF {
			return echo, err
		}
		if len(echo) < n && time.Now().After(deadline) {
			return echo, ErrEchoTimeout
		}
		if k == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	return echo, nil
}

// Stats returns a snapshot of the link counters.
func (m *MCU) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// LastPacket returns the last packet sent.
func (m *MCU) LastPacket() [protocol.PacketSize]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
