package core

import (
	"runtime"
	"sync/atomic"
	"time"
)

// TickTimer turns the PWM timer's period-elapsed interrupt into the system
// tick. Two independent signals are raised per tick: one consumed by the
// control loop cadence and one by the ADC averaging window.
type TickTimer struct {
	hw PWMTimer

	control atomic.Bool
	window  atomic.Bool
	ticks   atomic.Uint32

	// Idle runs while waiting for a tick. Defaults to runtime.Gosched.
	Idle func()
}

// NewTickTimer wraps a PWM timer.
func NewTickTimer(hw PWMTimer) *TickTimer {
	return &TickTimer{hw: hw, Idle: runtime.Gosched}
}

// HandleInterrupt is the period-elapsed interrupt handler.
func (t *TickTimer) HandleInterrupt() {
	t.hw.ClearUpdate()
	t.control.Store(true)
	t.window.Store(true)
	t.ticks.Add(1)
}

// Ticks returns the free-running tick counter.
func (t *TickTimer) Ticks() uint32 {
	return t.ticks.Load()
}

// TakeControl consumes the control cadence signal, reporting whether a tick
// elapsed since the last call.
func (t *TickTimer) TakeControl() bool {
	return t.control.Swap(false)
}

// TakeWindow consumes the ADC window signal.
func (t *TickTimer) TakeWindow() bool {
	return t.window.Swap(false)
}

// WaitControl blocks until the next control tick or the timeout elapses.
func (t *TickTimer) WaitControl(timeout time.Duration) error {
	return t.wait(&t.control, timeout)
}

// WaitWindow blocks until the next ADC window boundary or the timeout elapses.
func (t *TickTimer) WaitWindow(timeout time.Duration) error {
	return t.wait(&t.window, timeout)
}

// Delay consumes n ADC window signals. perTick bounds each individual wait so
// a stalled timer is detected within one tick rather than at the end.
func (t *TickTimer) Delay(n uint32, perTick time.Duration) error {
	for i := uint32(0); i < n; i++ {
		if err := t.WaitWindow(perTick); err != nil {
			return err
		}
	}
	return nil
}

func (t *TickTimer) wait(flag *atomic.Bool, timeout time.Duration) error {
	if flag.Swap(false) {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for !flag.Swap(false) {
		if time.Now().After(deadline) {
			return ErrTickTimeout
		}
		if t.Idle != nil {
			t.Idle()
		}
	}
	return nil
}
