// Asynchronous I2C transaction engine.
//
// Callers enqueue register writes and reads; the bus interrupt drains the
// queue, chaining transfers with repeated STARTs until it is empty. At most
// one chain is in flight and transactions complete strictly in the order
// they were issued.
package core

import "sync/atomic"

const (
	rxDone   = 1 << 8
	rxFailed = 1 << 9
	rxNack   = 1 << 10
)

// RxCell receives one byte from a bus read. It is written from the bus
// interrupt and polled from main context.
type RxCell struct {
	v atomic.Uint32
}

// Reset clears the cell before it is handed to a new read.
func (c *RxCell) Reset() {
	c.v.Store(0)
}

func (c *RxCell) store(b byte) {
	c.v.Store(rxDone | uint32(b))
}

func (c *RxCell) fail(err error) {
	v := uint32(rxDone | rxFailed)
	if err == ErrBusNack {
		v |= rxNack
	}
	c.v.Store(v)
}

// Load returns the received byte, whether the read finished and, for an
// aborted read, the reason.
func (c *RxCell) Load() (b byte, done bool, err error) {
	v := c.v.Load()
	if v&rxDone == 0 {
		return 0, false, nil
	}
	if v&rxFailed != 0 {
		if v&rxNack != 0 {
			return 0, true, ErrBusNack
		}
		return 0, true, ErrBusTimeout
	}
	return byte(v), true, nil
}

// BusStats counts transaction outcomes.
type BusStats struct {
	Completed uint32
	Aborted   uint32 // NACK, bus error or malformed queue
	TimedOut  uint32 // aborted by the watchdog
	Rejected  uint32 // did not fit in the queue
}

// I2CBus is the transaction engine for one bus.
type I2CBus struct {
	hw I2CPeripheral
	q  busQueue

	inFlight     bool
	current      I2CControl
	tick         uint32
	lastProgress uint32
	timeoutTicks uint32

	stats BusStats
}

// NewI2CBus creates an engine. A chain that makes no progress for
// timeoutTicks watchdog checks is aborted; zero disables the watchdog.
func NewI2CBus(hw I2CPeripheral, timeoutTicks uint32) *I2CBus {
	return &I2CBus{hw: hw, timeoutTicks: timeoutTicks}
}

// Write queues a single register write: header, register, value.
func (b *I2CBus) Write(addr I2CAddress, reg, val byte) error {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	return b.issue(addr,
		busWord{kind: wordHeader, ctrl: I2CControl{Addr: addr, NBytes: 2}},
		busWord{kind: wordData, data: reg},
		busWord{kind: wordData, data: val},
	)
}

// Read queues a register read: a one byte write of the register number
// followed, after a repeated START, by a one byte read into dest.
func (b *I2CBus) Read(addr I2CAddress, reg byte, dest *RxCell) error {
	dest.Reset()

	state := disableInterrupts()
	defer restoreInterrupts(state)

	return b.issue(addr,
		busWord{kind: wordHeader, ctrl: I2CControl{Addr: addr, NBytes: 1}},
		busWord{kind: wordData, data: reg},
		busWord{kind: wordHeader, continuation: true, ctrl: I2CControl{Addr: addr, NBytes: 1, Read: true}},
		busWord{kind: wordDest, dest: dest},
	)
}

// issue runs with interrupts masked.
func (b *I2CBus) issue(addr I2CAddress, words ...busWord) error {
	if !b.q.push(words...) {
		b.stats.Rejected++
		recordEvent(EvtBusRejected, uint8(addr), b.tick, uint32(len(words)), uint32(b.q.free()))
		return ErrBusQueueFull
	}
	if !b.inFlight {
		b.startNext()
	}
	return nil
}

// startNext begins the transaction at the head of the queue.
func (b *I2CBus) startNext() {
	for {
		w, ok := b.q.pop()
		if !ok {
			b.inFlight = false
			return
		}
		if w.kind == wordHeader && !w.continuation {
			b.begin(w.ctrl)
			return
		}
		// A stray word can only be left behind by an abort; skip the rest
		// of its transaction.
		if w.kind == wordDest && w.dest != nil {
			w.dest.fail(ErrBusNack)
		}
		b.q.dropTransaction(ErrBusNack)
	}
}

func (b *I2CBus) begin(ctrl I2CControl) {
	b.inFlight = true
	b.current = ctrl
	b.lastProgress = b.tick
	b.hw.Begin(ctrl)
}

// HandleInterrupt is the bus event interrupt handler.
//
// A receive-not-empty and a transfer-complete can be reported by the same
// event when the last byte of a read lands late; both are serviced in one
// invocation, the received byte first, since it belongs to the transfer
// that just completed.
func (b *I2CBus) HandleInterrupt() {
	st := b.hw.Status()
	if !b.inFlight {
		if st != 0 {
			b.hw.Reset()
		}
		return
	}
	if st&(I2CStatusNACK|I2CStatusBusError) != 0 {
		b.stats.Aborted++
		b.abort(ErrBusNack, EvtBusAbort)
		return
	}

	if st.Has(I2CStatusRXNE) {
		v := b.hw.Receive()
		w, ok := b.q.pop()
		if !ok || w.kind != wordDest {
			b.stats.Aborted++
			b.abort(ErrBusNack, EvtBusAbort)
			return
		}
		if w.dest != nil {
			w.dest.store(v)
		}
	}

	if st.Has(I2CStatusTXIS) {
		w, ok := b.q.pop()
		if !ok || w.kind != wordData {
			b.stats.Aborted++
			b.abort(ErrBusNack, EvtBusAbort)
			return
		}
		b.hw.Transmit(w.data)
	}

	if st.Has(I2CStatusTC) {
		next, ok := b.q.peek()
		switch {
		case !ok:
			b.stats.Completed++
			b.inFlight = false
			b.hw.Stop()
		case next.kind == wordHeader:
			if !next.continuation {
				b.stats.Completed++
			}
			b.q.pop()
			b.begin(next.ctrl)
		default:
			b.stats.Aborted++
			b.abort(ErrBusNack, EvtBusAbort)
			return
		}
	}
	b.lastProgress = b.tick
}

// abort drops the transaction in flight and restarts the chain from the
// next queued transaction. Runs with interrupts masked or in the handler.
func (b *I2CBus) abort(err error, evt uint8) {
	b.hw.Reset()
	dropped := b.q.dropTransaction(err)
	recordEvent(evt, uint8(b.current.Addr), b.tick, uint32(dropped), uint32(b.q.count))
	b.inFlight = false
	if !b.q.empty() {
		b.startNext()
	}
}

// CheckWatchdog advances the engine's notion of time and aborts a chain that
// has not progressed for the configured number of ticks. Main context.
func (b *I2CBus) CheckWatchdog(tick uint32) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	b.tick = tick
	if b.timeoutTicks == 0 || !b.inFlight {
		return
	}
	if tick-b.lastProgress >= b.timeoutTicks {
		b.stats.TimedOut++
		b.abort(ErrBusTimeout, EvtBusTimeout)
	}
}

// Reset aborts everything: the peripheral is reset and every queued read
// fails. Main context.
func (b *I2CBus) Reset() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	b.hw.Reset()
	for {
		w, ok := b.q.pop()
		if !ok {
			break
		}
		if w.kind == wordDest && w.dest != nil {
			w.dest.fail(ErrBusTimeout)
		}
	}
	b.inFlight = false
}

// Idle reports whether nothing is queued or in flight.
func (b *I2CBus) Idle() bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return !b.inFlight && b.q.empty()
}

// Stats returns a snapshot of the outcome counters.
func (b *I2CBus) Stats() BusStats {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return b.stats
}
