package core

import "errors"

var (
	// ErrBusQueueFull is returned when a transaction does not fit in the bus queue.
	// The transaction is rejected whole; queued transactions are untouched.
	ErrBusQueueFull = errors.New("i2c: transaction queue full")
	// ErrBusTimeout marks a transaction aborted by the bus watchdog.
	ErrBusTimeout = errors.New("i2c: bus stalled")
	// ErrBusNack marks a transaction aborted on NACK or bus error.
	ErrBusNack = errors.New("i2c: nack")
	// ErrRangingTimeout is returned when a sonar reading did not arrive in time.
	ErrRangingTimeout = errors.New("sonar: ranging timed out")
	// ErrTickTimeout is returned when the master tick stopped advancing.
	ErrTickTimeout = errors.New("tick: timer stalled")
	// ErrInvalidCalibration is returned when a motor produced a zero slope.
	ErrInvalidCalibration = errors.New("calibration: zero slope")
	// ErrNotCalibrated is returned when speeds are mapped before calibration.
	ErrNotCalibrated = errors.New("calibration: not calibrated")
)
