package sim

import (
	"fmt"
	"sync/atomic"

	"diffbot/core"
)

// Timer is a simulated PWM timer with two compare channels.
type Timer struct {
	period  atomic.Uint32
	compare [2]atomic.Uint32
	pending atomic.Bool
	updates atomic.Uint32
}

func (t *Timer) Configure(period uint32) error {
	if period == 0 || period > 0xFFFF {
		return fmt.Errorf("sim: pwm period %d out of range", period)
	}
	t.period.Store(period)
	t.compare[0].Store(0)
	t.compare[1].Store(0)
	return nil
}

func (t *Timer) Period() uint32 {
	return t.period.Load()
}

func (t *Timer) SetCompare(ch core.PWMChannel, value uint32) {
	if int(ch) < len(t.compare) {
		t.compare[ch].Store(value)
	}
}

func (t *Timer) ClearUpdate() {
	t.pending.Store(false)
}

// Elapse marks the end of a PWM period.
func (t *Timer) Elapse() {
	t.pending.Store(true)
	t.updates.Add(1)
}

// Pending reports whether the period-elapsed flag is still set.
func (t *Timer) Pending() bool {
	return t.pending.Load()
}

// Duty returns a channel's duty fraction.
func (t *Timer) Duty(ch core.PWMChannel) float64 {
	p := t.period.Load()
	if p == 0 {
		return 0
	}
	return float64(t.compare[ch].Load()) / float64(p)
}
