//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// interruptMu stands in for the interrupt mask on regular Go. Simulated
// interrupt sources enter through EnterInterrupt, so a handler can never run
// while main-context code holds the mask.
var interruptMu sync.Mutex

// disableInterrupts masks simulated interrupts
func disableInterrupts() State {
	interruptMu.Lock()
	return 0
}

// restoreInterrupts unmasks simulated interrupts
func restoreInterrupts(state State) {
	interruptMu.Unlock()
}

// EnterInterrupt runs an interrupt handler from a simulated interrupt source.
// Handlers must not call disableInterrupts themselves.
func EnterInterrupt(handler func()) {
	interruptMu.Lock()
	defer interruptMu.Unlock()
	handler()
}
