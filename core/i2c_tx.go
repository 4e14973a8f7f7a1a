package core

import "tinygo.org/x/drivers"

// TxPeripheral presents a blocking transactional bus (anything implementing
// drivers.I2C, such as machine.I2C or a periph.io bus) as an interrupt-style
// I2CPeripheral. Writes are buffered until STOP or until a repeated START
// turns them into the write half of a combined write-then-read.
//
// There is no hardware interrupt behind it: Service must be called to
// deliver the pending status flags to the engine.
type TxPeripheral struct {
	bus drivers.I2C

	status    I2CStatus
	ctrl      I2CControl
	remaining uint8

	held  I2CAddress // address the buffered write belongs to
	wbuf  [8]byte
	wlen  int
	rbuf  [8]byte
	rpos  int
	txErr uint32
}

// NewTxPeripheral wraps bus.
func NewTxPeripheral(bus drivers.I2C) *TxPeripheral {
	return &TxPeripheral{bus: bus}
}

func (p *TxPeripheral) Status() I2CStatus {
	return p.status
}

func (p *TxPeripheral) Begin(ctrl I2CControl) {
	if p.wlen > 0 && (!ctrl.Read || ctrl.Addr != p.held) {
		p.flush()
	}
	p.ctrl = ctrl
	p.remaining = ctrl.NBytes
	if int(ctrl.NBytes) > len(p.rbuf) {
		p.status = I2CStatusBusError
		return
	}

	if !ctrl.Read {
		p.held = ctrl.Addr
		if p.remaining == 0 {
			p.status = I2CStatusTC
		} else {
			p.status = I2CStatusTXIS
		}
		return
	}

	err := p.bus.Tx(uint16(ctrl.Addr), p.wbuf[:p.wlen], p.rbuf[:ctrl.NBytes])
	p.wlen = 0
	if err != nil {
		p.txErr++
		p.status = I2CStatusNACK
		return
	}
	p.rpos = 0
	if p.remaining == 0 {
		p.status = I2CStatusTC
	} else {
		p.status = I2CStatusRXNE
	}
}

func (p *TxPeripheral) Transmit(b byte) {
	if p.wlen == len(p.wbuf) {
		p.status = I2CStatusBusError
		return
	}
	p.wbuf[p.wlen] = b
	p.wlen++
	p.remaining--
	if p.remaining == 0 {
		p.status = I2CStatusTC
	} else {
		p.status = I2CStatusTXIS
	}
}

func (p *TxPeripheral) Receive() byte {
	b := p.rbuf[p.rpos]
	p.rpos++
	p.remaining--
	if p.remaining == 0 {
		p.status = I2CStatusTC
	} else {
		p.status = I2CStatusRXNE
	}
	return b
}

func (p *TxPeripheral) Stop() {
	p.flush()
	p.status = 0
}

func (p *TxPeripheral) Reset() {
	p.wlen = 0
	p.remaining = 0
	p.status = 0
}

// flush sends a buffered write on its own. A failure here can no longer be
// attributed to a transaction in flight; it is only counted.
func (p *TxPeripheral) flush() {
	if p.wlen == 0 {
		return
	}
	if err := p.bus.Tx(uint16(p.held), p.wbuf[:p.wlen], nil); err != nil {
		p.txErr++
	}
	p.wlen = 0
}

// Errors returns the number of failed bus transfers.
func (p *TxPeripheral) Errors() uint32 {
	return p.txErr
}

// Pending reports whether status flags are waiting to be serviced.
func (p *TxPeripheral) Pending() bool {
	return p.status != 0
}

// Service delivers pending status flags to the engine until the peripheral
// goes quiet. Suitable as the ranging driver's idle hook.
func (p *TxPeripheral) Service(bus *I2CBus) {
	for i := 0; i < 4*BusQueueCapacity && p.status != 0; i++ {
		EnterInterrupt(bus.HandleInterrupt)
	}
}
