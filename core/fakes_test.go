package core

import (
	"fmt"
	"strings"
	"sync"
)

type fakeGPIO struct {
	mu      sync.Mutex
	outputs map[GPIOPin]bool
	inputs  map[GPIOPin]bool
	levels  map[GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{
		outputs: make(map[GPIOPin]bool),
		inputs:  make(map[GPIOPin]bool),
		levels:  make(map[GPIOPin]bool),
	}
}

func (g *fakeGPIO) ConfigureOutput(pin GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inputs[pin] {
		return fmt.Errorf("pin %d already an input", pin)
	}
	g.outputs[pin] = true
	return nil
}

func (g *fakeGPIO) ConfigureInputPullDown(pin GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outputs[pin] {
		return fmt.Errorf("pin %d already an output", pin)
	}
	g.inputs[pin] = true
	return nil
}

func (g *fakeGPIO) SetPin(pin GPIOPin, value bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels[pin] = value
}

func (g *fakeGPIO) ReadPin(pin GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels[pin]
}

// drive sets an input level as the outside world would.
func (g *fakeGPIO) drive(pin GPIOPin, value bool) {
	g.SetPin(pin, value)
}

type fakePWM struct {
	period  uint32
	compare [2]uint32
	cleared int
}

func (p *fakePWM) Configure(period uint32) error {
	if period == 0 {
		return fmt.Errorf("zero period")
	}
	p.period = period
	p.compare = [2]uint32{}
	return nil
}

func (p *fakePWM) Period() uint32                      { return p.period }
func (p *fakePWM) SetCompare(ch PWMChannel, v uint32) { p.compare[ch] = v }
func (p *fakePWM) ClearUpdate()                       { p.cleared++ }

type fakeADC struct {
	channels []ADCChannelID
	started  bool
}

func (a *fakeADC) ConfigureChannels(chs ...ADCChannelID) error {
	a.channels = append([]ADCChannelID(nil), chs...)
	return nil
}

func (a *fakeADC) Start() error {
	a.started = true
	return nil
}

// fakeI2C models a register-file device set behind an interrupt-driven
// controller. The first byte written after a write START selects the
// register; further bytes are stored with auto-increment. Every call is
// logged:
//
//	S70w2  START to 0x70, write, 2 bytes (R for a repeated START)
//	T03    byte transmitted
//	V1e    byte received
//	P      STOP
type fakeI2C struct {
	status  I2CStatus
	ctrl    I2CControl
	left    uint8
	held    bool
	pointer byte
	first   bool

	regs  map[I2CAddress]*[256]byte
	nack  map[I2CAddress]bool
	stall map[I2CAddress]bool

	// combine reports the last received byte together with transfer
	// complete in the same event.
	combine bool

	log    []string
	resets int
}

func newFakeI2C() *fakeI2C {
	return &fakeI2C{
		regs:  make(map[I2CAddress]*[256]byte),
		nack:  make(map[I2CAddress]bool),
		stall: make(map[I2CAddress]bool),
	}
}

func (f *fakeI2C) device(addr I2CAddress) *[256]byte {
	r, ok := f.regs[addr]
	if !ok {
		r = new([256]byte)
		f.regs[addr] = r
	}
	return r
}

func (f *fakeI2C) Status() I2CStatus { return f.status }

func (f *fakeI2C) Begin(ctrl I2CControl) {
	dir := "w"
	if ctrl.Read {
		dir = "r"
	}
	start := "S"
	if f.held {
		start = "R"
	}
	f.log = append(f.log, fmt.Sprintf("%s%02x%s%d", start, uint8(ctrl.Addr), dir, ctrl.NBytes))
	f.held = true
	f.ctrl = ctrl
	f.left = ctrl.NBytes

	switch {
	case f.stall[ctrl.Addr]:
		f.status = 0
	case f.nack[ctrl.Addr]:
		f.status = I2CStatusNACK
	case ctrl.Read && f.combine && f.left == 1:
		f.status = I2CStatusRXNE | I2CStatusTC
	case ctrl.Read:
		f.status = I2CStatusRXNE
	case f.left == 0:
		f.status = I2CStatusTC
	default:
		f.first = true
		f.status = I2CStatusTXIS
	}
}

func (f *fakeI2C) Transmit(b byte) {
	f.log = append(f.log, fmt.Sprintf("T%02x", b))
	if f.first {
		f.pointer = b
		f.first = false
	} else {
		f.device(f.ctrl.Addr)[f.pointer] = b
		f.pointer++
	}
	f.left--
	if f.left == 0 {
		f.status = I2CStatusTC
	} else {
		f.status = I2CStatusTXIS
	}
}

func (f *fakeI2C) Receive() byte {
	b := f.device(f.ctrl.Addr)[f.pointer]
	f.pointer++
	f.log = append(f.log, fmt.Sprintf("V%02x", b))
	f.left--
	switch {
	case f.left > 0:
		f.status = I2CStatusRXNE
	case f.status.Has(I2CStatusTC):
		f.status &^= I2CStatusRXNE
	default:
		f.status = I2CStatusTC
	}
	return b
}

func (f *fakeI2C) Stop() {
	f.log = append(f.log, "P")
	f.held = false
	f.status = 0
}

func (f *fakeI2C) Reset() {
	f.resets++
	f.held = false
	f.status = 0
}

func (f *fakeI2C) trace() string {
	return strings.Join(f.log, " ")
}

// pump delivers bus interrupts until the controller goes quiet.
func pump(bus *I2CBus, hw *fakeI2C) {
	for i := 0; i < 1000 && hw.Status() != 0; i++ {
		EnterInterrupt(bus.HandleInterrupt)
	}
}

// fakeTx is a drivers.I2C recording every transfer.
type fakeTx struct {
	regs  map[uint16]*[256]byte
	fail  map[uint16]bool
	calls []string
}

func newFakeTx() *fakeTx {
	return &fakeTx{regs: make(map[uint16]*[256]byte), fail: make(map[uint16]bool)}
}

func (f *fakeTx) device(addr uint16) *[256]byte {
	r, ok := f.regs[addr]
	if !ok {
		r = new([256]byte)
		f.regs[addr] = r
	}
	return r
}

func (f *fakeTx) Tx(addr uint16, w, r []byte) error {
	f.calls = append(f.calls, fmt.Sprintf("%02x w%x r%d", addr, w, len(r)))
	if f.fail[addr] {
		return fmt.Errorf("no ack from 0x%02x", addr)
	}
	dev := f.device(addr)
	if len(w) == 0 {
		return nil
	}
	ptr := w[0]
	for _, b := range w[1:] {
		dev[ptr] = b
		ptr++
	}
	for i := range r {
		r[i] = dev[ptr]
		ptr++
	}
	return nil
}

func (f *fakeTx) ReadRegister(addr uint8, r uint8, buf []byte) error {
	return f.Tx(uint16(addr), []byte{r}, buf)
}

func (f *fakeTx) WriteRegister(addr uint8, r uint8, buf []byte) error {
	return f.Tx(uint16(addr), append([]byte{r}, buf...), nil)
}
