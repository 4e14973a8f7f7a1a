package sim

import (
	"math"
	"sync"
	"time"

	"diffbot/core"
)

// MotorModel is a first-order model of one motor and its current sense.
type MotorModel struct {
	Tau      time.Duration // time constant while driven or coasting
	BrakeTau time.Duration // time constant while braking
	Gain     float64       // ADC counts at full speed
	Offset   float64       // ADC counts at standstill
}

// PlantConfig describes both motors and how fast the ADC converts.
type PlantConfig struct {
	Left, Right MotorModel

	// ConversionsPerTick is the number of conversions per channel per tick.
	ConversionsPerTick int
}

// DefaultPlantConfig returns a plant that settles well within the default
// calibration phases.
func DefaultPlantConfig() PlantConfig {
	m := MotorModel{
		Tau:      200 * time.Millisecond,
		BrakeTau: 20 * time.Millisecond,
		Gain:     3000,
		Offset:   40,
	}
	return PlantConfig{Left: m, Right: m, ConversionsPerTick: 4}
}

// Plant integrates both motors from the programmed direction pins and duty
// registers and reports the feedback the firmware would see.
type Plant struct {
	cfg   PlantConfig
	gpio  *GPIO
	timer *Timer
	pins  [2]core.MotorPins
	fb    [2]core.GPIOPin

	mu    sync.Mutex
	speed [2]float64
}

// NewPlant wires the plant to the simulated pins and timer.
func NewPlant(cfg PlantConfig, gpio *GPIO, timer *Timer, pins core.Pins) *Plant {
	return &Plant{
		cfg:   cfg,
		gpio:  gpio,
		timer: timer,
		pins:  [2]core.MotorPins{pins.LeftMotor, pins.RightMotor},
		fb:    [2]core.GPIOPin{pins.LeftFeedback, pins.RightFeedback},
	}
}

func (p *Plant) model(m core.Motor) MotorModel {
	if m == core.MotorLeft {
		return p.cfg.Left
	}
	return p.cfg.Right
}

// target returns the steady-state speed for the bridge's current outputs and
// the time constant to approach it with.
func (p *Plant) target(m core.Motor) (float64, time.Duration) {
	model := p.model(m)
	a := p.gpio.Level(p.pins[m].A)
	b := p.gpio.Level(p.pins[m].B)
	duty := p.timer.Duty(core.PWMChannel(m))
	switch {
	case a && b:
		return 0, model.BrakeTau
	case a:
		return duty, model.Tau
	case b:
		return -duty, model.Tau
	default:
		return 0, model.Tau
	}
}

// Step advances the motors by dt and updates the direction feedback inputs.
func (p *Plant) Step(dt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for m := core.MotorLeft; m <= core.MotorRight; m++ {
		target, tau := p.target(m)
		if tau <= 0 {
			p.speed[m] = target
		} else {
			p.speed[m] += (target - p.speed[m]) * (1 - math.Exp(-dt.Seconds()/tau.Seconds()))
		}
		p.gpio.Drive(p.fb[m], p.speed[m] < 0)
	}
}

// Speed returns a motor's normalized speed.
func (p *Plant) Speed(m core.Motor) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed[m]
}

// Sample returns the unsigned current-sense reading of a motor.
func (p *Plant) Sample(m core.Motor) core.ADCValue {
	model := p.model(m)
	v := model.Offset + model.Gain*math.Abs(p.Speed(m))
	return core.ADCValue(math.Min(math.Max(v, 0), 4095))
}
