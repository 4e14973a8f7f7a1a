// Motor actuation. One PWM timer drives both motors' duty channels; each
// motor has two direction outputs encoding forward, reverse, coast and brake.
package core

import (
	"math"
)

// Direction is the state of a motor's two direction outputs
type Direction uint8

const (
	DirectionCoast   Direction = iota // A=0 B=0
	DirectionForward                  // A=1 B=0
	DirectionReverse                  // A=0 B=1
	DirectionBrake                    // A=1 B=1
)

func (d Direction) outputs() (a, b bool) {
	switch d {
	case DirectionForward:
		return true, false
	case DirectionReverse:
		return false, true
	case DirectionBrake:
		return true, true
	default:
		return false, false
	}
}

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionReverse:
		return "reverse"
	case DirectionBrake:
		return "brake"
	default:
		return "coast"
	}
}

// MotorPins are the two direction outputs of one motor bridge
type MotorPins struct {
	A GPIOPin
	B GPIOPin
}

// DutyCommand is a pair of duty fractions in [-1,1]. The sign selects the
// direction and the magnitude the fraction of the PWM period.
type DutyCommand struct {
	Left  float32
	Right float32
}

// MotorDriver programs direction outputs and duty registers.
type MotorDriver struct {
	timer PWMTimer
	gpio  GPIODriver
	pins  [motorCount]MotorPins

	period  uint32
	dir     [motorCount]Direction
	compare [motorCount]uint32
}

// NewMotorDriver creates a driver for the left and right bridges.
func NewMotorDriver(timer PWMTimer, gpio GPIODriver, left, right MotorPins) *MotorDriver {
	return &MotorDriver{
		timer: timer,
		gpio:  gpio,
		pins:  [motorCount]MotorPins{left, right},
	}
}

// Init configures the PWM timer with the given period and the direction
// outputs, leaving both motors coasting at zero duty.
func (d *MotorDriver) Init(period uint32) error {
	if err := d.timer.Configure(period); err != nil {
		return err
	}
	d.period = d.timer.Period()
	for _, p := range d.pins {
		if err := d.gpio.ConfigureOutput(p.A); err != nil {
			return err
		}
		if err := d.gpio.ConfigureOutput(p.B); err != nil {
			return err
		}
	}
	d.set(MotorLeft, DirectionCoast, 0)
	d.set(MotorRight, DirectionCoast, 0)
	return nil
}

// Update applies a duty command. With emergencyStop set both motors brake at
// zero duty regardless of cmd.
func (d *MotorDriver) Update(cmd DutyCommand, emergencyStop bool) {
	if emergencyStop {
		d.Brake()
		return
	}
	d.apply(MotorLeft, cmd.Left)
	d.apply(MotorRight, cmd.Right)
}

// Brake forces both motors into the braking pattern with zero duty.
func (d *MotorDriver) Brake() {
	d.set(MotorLeft, DirectionBrake, 0)
	d.set(MotorRight, DirectionBrake, 0)
}

// Direction returns the last programmed direction of a motor.
func (d *MotorDriver) Direction(m Motor) Direction {
	return d.dir[m]
}

// Compare returns the last programmed duty register of a motor.
func (d *MotorDriver) Compare(m Motor) uint32 {
	return d.compare[m]
}

// Period returns the PWM period in timer counts.
func (d *MotorDriver) Period() uint32 {
	return d.period
}

func (d *MotorDriver) apply(m Motor, duty float32) {
	// A NaN or infinite duty can only come from a fault upstream.
	if math.IsNaN(float64(duty)) || math.IsInf(float64(duty), 0) {
		d.set(m, DirectionBrake, 0)
		return
	}
	dir := DirectionCoast
	switch {
	case duty > 0:
		dir = DirectionForward
	case duty < 0:
		dir = DirectionReverse
	}
	mag := clamp(float32(math.Abs(float64(duty))), 0, 1)
	d.set(m, dir, uint32(float32(d.period)*mag))
}

func (d *MotorDriver) set(m Motor, dir Direction, compare uint32) {
	a, b := dir.outputs()
	d.gpio.SetPin(d.pins[m].A, a)
	d.gpio.SetPin(d.pins[m].B, b)
	ch := PWMChannelLeft
	if m == MotorRight {
		ch = PWMChannelRight
	}
	d.timer.SetCompare(ch, compare)
	d.dir[m] = dir
	d.compare[m] = compare
}
