package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickTimerInterrupt(t *testing.T) {
	pwm := &fakePWM{}
	timer := NewTickTimer(pwm)

	timer.HandleInterrupt()
	timer.HandleInterrupt()
	assert.Equal(t, uint32(2), timer.Ticks())
	assert.Equal(t, 2, pwm.cleared)

	assert.True(t, timer.TakeControl())
	assert.False(t, timer.TakeControl(), "signals are consumed")
	assert.True(t, timer.TakeWindow(), "window signal is independent of control")
}

func TestTickTimerDelay(t *testing.T) {
	timer := NewTickTimer(&fakePWM{})
	timer.Idle = timer.HandleInterrupt

	require.NoError(t, timer.Delay(5, 10*time.Millisecond))
	assert.Equal(t, uint32(5), timer.Ticks())
}

func TestTickTimerWaitTimeout(t *testing.T) {
	timer := NewTickTimer(&fakePWM{})
	assert.ErrorIs(t, timer.WaitControl(time.Millisecond), ErrTickTimeout)
	assert.ErrorIs(t, timer.Delay(1, time.Millisecond), ErrTickTimeout)
}
