// Startup motor calibration. Each motor is driven full forward, stopped,
// driven full reverse and stopped again; the averaged feedback at each phase
// gives the thresholds of a piecewise linear map from raw counts to
// normalized speed.
package core

import "time"

// MotorCalibration maps one motor's raw averaged feedback to [-1,1].
type MotorCalibration struct {
	MaxForward int32
	MinForward int32
	MaxReverse int32
	MinReverse int32

	ForwardSlope int32 // MaxForward - MinForward
	ReverseSlope int32 // MinReverse - MaxReverse
}

// NewMotorCalibration derives slopes from the four captured thresholds.
// A stopped-reverse threshold above the stopped-forward one would open a gap
// in the dead-band, so it is pulled down to MinForward first. Non-positive
// slopes are rejected with ErrInvalidCalibration.
func NewMotorCalibration(maxForward, minForward, maxReverse, minReverse int32) (MotorCalibration, error) {
	if minReverse > minForward {
		minReverse = minForward
	}
	c := MotorCalibration{
		MaxForward:   maxForward,
		MinForward:   minForward,
		MaxReverse:   maxReverse,
		MinReverse:   minReverse,
		ForwardSlope: maxForward - minForward,
		ReverseSlope: minReverse - maxReverse,
	}
	if c.ForwardSlope <= 0 || c.ReverseSlope <= 0 {
		return c, ErrInvalidCalibration
	}
	return c, nil
}

// Normalize maps a raw mean to a normalized speed. Raw values between the
// two stopped thresholds fall in the dead-band and map to 0.
func (c MotorCalibration) Normalize(raw int32) float32 {
	var v float32
	switch {
	case raw >= c.MinForward:
		if c.ForwardSlope <= 0 {
			return 0
		}
		v = float32(raw-c.MinForward) / float32(c.ForwardSlope)
	case raw > c.MinReverse:
		return 0
	default:
		if c.ReverseSlope <= 0 {
			return 0
		}
		v = float32(raw-c.MinReverse) / float32(c.ReverseSlope)
	}
	return clamp(v, -1, 1)
}

// Calibration holds both motors' maps. The zero value is not calibrated.
type Calibration struct {
	Motors [motorCount]MotorCalibration
	valid  bool
}

// NewCalibration validates and combines two motor calibrations.
func NewCalibration(left, right MotorCalibration) (*Calibration, error) {
	for _, m := range []MotorCalibration{left, right} {
		if m.ForwardSlope <= 0 || m.ReverseSlope <= 0 {
			return nil, ErrInvalidCalibration
		}
	}
	return &Calibration{Motors: [motorCount]MotorCalibration{left, right}, valid: true}, nil
}

// Valid reports whether the calibration can be used for mapping.
func (c *Calibration) Valid() bool {
	return c != nil && c.valid
}

// CalibrationTiming holds the durations of the calibration procedure, in ticks.
type CalibrationTiming struct {
	LeadInTicks uint32        // before the first phase
	SettleTicks uint32        // per phase, before the capture
	TickTimeout time.Duration // bound on each individual tick wait
}

// Calibrator runs the startup calibration. It owns the motors and the
// processor for its whole duration.
type Calibrator struct {
	sampler    *ADCSampler
	timer      *TickTimer
	motors     *MotorDriver
	indicators *Indicators
	timing     CalibrationTiming
}

// NewCalibrator creates a calibrator. indicators may be nil.
func NewCalibrator(sampler *ADCSampler, timer *TickTimer, motors *MotorDriver, indicators *Indicators, timing CalibrationTiming) *Calibrator {
	return &Calibrator{
		sampler:    sampler,
		timer:      timer,
		motors:     motors,
		indicators: indicators,
		timing:     timing,
	}
}

type calibrationPhase struct {
	name string
	duty float32
}

var calibrationPhases = [4]calibrationPhase{
	{"max forward", 1},
	{"min forward", 0},
	{"max reverse", -1},
	{"min reverse", 0},
}

// Run executes the four phases and returns the derived calibration. The
// motors are left stopped on success and braked on failure.
func (c *Calibrator) Run() (*Calibration, error) {
	c.indicators.Set(IndicatorCalibrating, true)
	defer c.indicators.Set(IndicatorCalibrating, false)

	if err := c.timer.Delay(c.timing.LeadInTicks, c.timing.TickTimeout); err != nil {
		c.motors.Brake()
		return nil, err
	}

	var captured [4][motorCount]int32
	for i, phase := range calibrationPhases {
		c.motors.Update(DutyCommand{Left: phase.duty, Right: phase.duty}, false)
		if err := c.timer.Delay(c.timing.SettleTicks, c.timing.TickTimeout); err != nil {
			c.motors.Brake()
			return nil, err
		}
		left, right, err := c.sampler.Capture(c.timer, c.timing.TickTimeout)
		if err != nil {
			c.motors.Brake()
			return nil, err
		}
		captured[i] = [motorCount]int32{left, right}
		DebugPrintln("[CAL] " + phase.name + " left=" + itoa(int(left)) + " right=" + itoa(int(right)))
	}
	c.motors.Update(DutyCommand{}, false)

	var motors [motorCount]MotorCalibration
	for m := range motors {
		mc, err := NewMotorCalibration(captured[0][m], captured[1][m], captured[2][m], captured[3][m])
		if err != nil {
			RecordEvent(EvtCalibrationRejected, uint8(m), c.timer.Ticks(), uint32(mc.ForwardSlope), uint32(mc.ReverseSlope))
			c.motors.Brake()
			return nil, err
		}
		motors[m] = mc
	}
	return NewCalibration(motors[MotorLeft], motors[MotorRight])
}
