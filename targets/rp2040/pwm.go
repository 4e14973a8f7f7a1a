//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"
	"runtime/interrupt"
	"time"

	"diffbot/core"
)

// pwmPeripheral is an interface for PWM hardware peripherals
// This abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// RP2040MotorPWM implements core.PWMTimer on one PWM slice: both motor pins
// must be the A and B outputs of the same slice. The slice's wrap interrupt
// is the master tick.
type RP2040MotorPWM struct {
	slice    uint8
	pwm      pwmPeripheral
	pins     [2]machine.Pin
	channels [2]uint8
	tick     time.Duration
	period   uint32
	top      uint32
}

var errSplitSlice = errors.New("rp2040: motor PWM pins are not on one slice")

// NewRP2040MotorPWM creates the timer for the two duty pins. Each PWM cycle
// lasts one tick.
func NewRP2040MotorPWM(left, right core.GPIOPin, tick time.Duration) (*RP2040MotorPWM, error) {
	slice := sliceOf(left)
	if sliceOf(right) != slice || left == right {
		return nil, errSplitSlice
	}
	return &RP2040MotorPWM{
		slice: slice,
		pwm:   getPWMPeripheral(slice),
		pins:  [2]machine.Pin{machine.Pin(left), machine.Pin(right)},
		tick:  tick,
	}, nil
}

// RP2040: GPIO pin N maps to slice (N >> 1) & 0x7, channel N & 1.
func sliceOf(pin core.GPIOPin) uint8 {
	return uint8((uint32(pin) >> 1) & 0x7)
}

func (d *RP2040MotorPWM) Configure(period uint32) error {
	if period == 0 {
		return errors.New("rp2040: zero PWM period")
	}
	if err := d.pwm.Configure(machine.PWMConfig{Period: uint64(d.tick.Nanoseconds())}); err != nil {
		return err
	}
	for i, pin := range d.pins {
		ch, err := d.pwm.Channel(pin)
		if err != nil {
			return err
		}
		d.channels[i] = ch
		d.pwm.Set(ch, 0)
	}
	d.period = period
	d.top = d.pwm.Top()

	mask := uint32(1) << d.slice
	rp.PWM.INTR.Set(mask)
	rp.PWM.INTE.SetBits(mask)
	return nil
}

func (d *RP2040MotorPWM) Period() uint32 {
	return d.period
}

// SetCompare scales the logical compare value to the slice's TOP.
func (d *RP2040MotorPWM) SetCompare(ch core.PWMChannel, value uint32) {
	if d.period == 0 || int(ch) >= len(d.channels) {
		return
	}
	if value > d.period {
		value = d.period
	}
	d.pwm.Set(d.channels[ch], uint32(uint64(value)*uint64(d.top+1)/uint64(d.period)))
}

func (d *RP2040MotorPWM) ClearUpdate() {
	rp.PWM.INTR.Set(uint32(1) << d.slice)
}

// pwmTick receives the wrap interrupt.
var pwmTick *core.TickTimer

func enableTickInterrupt(t *core.TickTimer) {
	pwmTick = t
	intr := interrupt.New(rp.IRQ_PWM_IRQ_WRAP, func(interrupt.Interrupt) {
		if pwmTick != nil {
			pwmTick.HandleInterrupt()
		}
	})
	intr.SetPriority(0x40)
	intr.Enable()
}

// getPWMPeripheral returns the PWM peripheral for a given slice number
// RP2040 has 8 PWM slices: PWM0-PWM7
func getPWMPeripheral(sliceNum uint8) pwmPeripheral {
	switch sliceNum {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}
