package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"diffbot/core"
)

// SRF10 register map as seen from the bus.
const (
	srf10Revision = 6
	srf10Unused   = 0x80
	srf10Ping     = 0x51

	// mmPerRangeStep is the range window per range register step.
	mmPerRangeStep = 43
)

// Sonar is the simulated state of one SRF10.
type Sonar struct {
	Present  bool
	Distance uint16 // cm to the nearest echo; 0 means nothing in front
	Gain     byte
	Range    byte
	Pings    int

	reading uint16
}

func (s *Sonar) ping() {
	s.Pings++
	window := (uint32(s.Range) + 1) * mmPerRangeStep / 10
	if s.Distance > 0 && uint32(s.Distance) <= window {
		s.reading = s.Distance
	} else {
		s.reading = 0
	}
}

func (s *Sonar) read(reg byte) byte {
	switch reg {
	case 0:
		return srf10Revision
	case 1:
		return srf10Unused
	case 2:
		return byte(s.reading >> 8)
	case 3:
		return byte(s.reading)
	}
	return 0
}

func (s *Sonar) write(reg, val byte) {
	switch reg {
	case 0:
		if val == srf10Ping {
			s.ping()
		}
	case 1:
		s.Gain = val
	case 2:
		s.Range = val
	}
}

// SonarBus is a simulated interrupt-driven bus peripheral with SRF10 sensors
// attached. Run delivers its interrupts.
type SonarBus struct {
	status atomic.Uint32
	kick   chan struct{}

	mu      sync.Mutex
	devices map[core.I2CAddress]*Sonar
	ctrl    core.I2CControl
	active  *Sonar
	reg     byte
	count   uint8
	wrote   bool // register pointer written in this write transfer
	rx      byte
}

// NewSonarBus creates a bus with a sensor at each address.
func NewSonarBus(addrs ...core.I2CAddress) *SonarBus {
	b := &SonarBus{
		kick:    make(chan struct{}, 1),
		devices: make(map[core.I2CAddress]*Sonar),
	}
	for _, a := range addrs {
		b.devices[a] = &Sonar{Present: true}
	}
	return b
}

// Sensor returns the model at addr, creating an absent one if needed.
func (b *SonarBus) Sensor(addr core.I2CAddress) *Sonar {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sensor(addr)
}

func (b *SonarBus) sensor(addr core.I2CAddress) *Sonar {
	s, ok := b.devices[addr]
	if !ok {
		s = &Sonar{}
		b.devices[addr] = s
	}
	return s
}

// SetDistance places an obstacle in front of the sensor at addr.
func (b *SonarBus) SetDistance(addr core.I2CAddress, cm uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sensor(addr).Distance = cm
}

// SetPresent attaches or detaches the sensor at addr.
func (b *SonarBus) SetPresent(addr core.I2CAddress, present bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sensor(addr).Present = present
}

// Pings returns how many ranging commands the sensor at addr latched.
func (b *SonarBus) Pings(addr core.I2CAddress) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sensor(addr).Pings
}

func (b *SonarBus) raise(s core.I2CStatus) {
	b.status.Store(uint32(s))
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

func (b *SonarBus) Status() core.I2CStatus {
	return core.I2CStatus(b.status.Load())
}

func (b *SonarBus) Begin(ctrl core.I2CControl) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctrl = ctrl
	b.count = 0
	b.wrote = false
	s, ok := b.devices[ctrl.Addr]
	if !ok || !s.Present {
		b.active = nil
		b.raise(core.I2CStatusNACK)
		return
	}
	b.active = s
	switch {
	case ctrl.NBytes == 0:
		b.raise(core.I2CStatusTC)
	case ctrl.Read:
		b.rx = s.read(b.reg)
		b.reg++
		b.raise(core.I2CStatusRXNE)
	default:
		b.raise(core.I2CStatusTXIS)
	}
}

func (b *SonarBus) Transmit(v byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil || b.ctrl.Read {
		b.raise(core.I2CStatusBusError)
		return
	}
	if !b.wrote {
		b.reg = v
		b.wrote = true
	} else {
		b.active.write(b.reg, v)
		b.reg++
	}
	b.advance(core.I2CStatusTXIS)
}

func (b *SonarBus) Receive() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.rx
	if b.active == nil || !b.ctrl.Read {
		b.raise(core.I2CStatusBusError)
		return v
	}
	if b.count+1 < b.ctrl.NBytes {
		b.rx = b.active.read(b.reg)
		b.reg++
	}
	b.advance(core.I2CStatusRXNE)
	return v
}

func (b *SonarBus) advance(next core.I2CStatus) {
	b.count++
	if b.count >= b.ctrl.NBytes {
		b.raise(core.I2CStatusTC)
		return
	}
	b.raise(next)
}

func (b *SonarBus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = nil
	b.status.Store(0)
}

func (b *SonarBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = nil
	b.count = 0
	b.status.Store(0)
}

// Run delivers the peripheral's interrupts to handler until ctx is done.
func (b *SonarBus) Run(ctx context.Context, handler func()) {
	poll := time.NewTicker(time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.kick:
		case <-poll.C:
		}
		if b.status.Load() != 0 {
			core.EnterInterrupt(handler)
		}
	}
}
