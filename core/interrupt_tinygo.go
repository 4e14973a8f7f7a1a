//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts disables interrupts and returns the previous state
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}

// EnterInterrupt runs a handler that is dispatched from main context (a
// polled peripheral) with interrupts masked, the way the NVIC would run it.
func EnterInterrupt(handler func()) {
	state := interrupt.Disable()
	handler()
	interrupt.Restore(state)
}
