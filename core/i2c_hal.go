package core

// I2CAddress is a 7-bit I2C device address.
type I2CAddress uint8

// I2CStatus is a snapshot of the bus peripheral's interrupt status flags.
type I2CStatus uint8

const (
	// I2CStatusTXIS: transmit data register empty, next byte wanted
	I2CStatusTXIS I2CStatus = 1 << iota
	// I2CStatusRXNE: receive data register holds a byte
	I2CStatusRXNE
	// I2CStatusTC: programmed byte count transferred, bus held for
	// a repeated START or a STOP
	I2CStatusTC
	// I2CStatusNACK: the addressed device did not acknowledge
	I2CStatusNACK
	// I2CStatusBusError: misplaced START/STOP or arbitration loss
	I2CStatusBusError
)

// Has reports whether all flags in f are set.
func (s I2CStatus) Has(f I2CStatus) bool {
	return s&f == f
}

// I2CControl is the transfer descriptor loaded before each (repeated) START:
// target device, number of bytes and direction.
type I2CControl struct {
	Addr   I2CAddress
	NBytes uint8
	Read   bool
}

// I2CPeripheral is a typed view of a master-mode two-wire controller that
// raises an interrupt on each status flag. Its interrupt must be routed to
// I2CBus.HandleInterrupt.
type I2CPeripheral interface {
	// Status returns the pending interrupt flags.
	Status() I2CStatus

	// Begin loads a transfer descriptor and issues START, or a repeated
	// START when the bus is held after a completed transfer.
	Begin(ctrl I2CControl)

	// Transmit loads the next byte to send and clears TXIS.
	Transmit(b byte)

	// Receive returns the received byte and clears RXNE.
	Receive() byte

	// Stop issues STOP and releases the bus; clears TC.
	Stop()

	// Reset aborts whatever the peripheral is doing and clears all flags.
	Reset()
}

// PolledPeripheral is an I2CPeripheral with no interrupt line behind it.
// Service delivers its pending flags to the engine and must be called from
// the main loop.
type PolledPeripheral interface {
	I2CPeripheral
	Service(bus *I2CBus)
}
