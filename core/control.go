package core

import "math"

// obstacleBias is the heading correction applied away from a flagged side.
const obstacleBias = math.Pi / 4

// ControlState is the operator-commanded state of the robot plus the latest
// measured wheel speeds. Each component receives it explicitly.
type ControlState struct {
	Command      byte
	PrevCommand  byte
	SpeedRaw     byte
	PrevSpeedRaw byte
	AngleRaw     byte
	PrevAngleRaw byte

	Speed   float32 // normalized, [-1,1]
	Heading float32 // radians; pi/2 is straight ahead

	MeasuredLeft  float32
	MeasuredRight float32
}

// SetCommand records a command byte.
func (s *ControlState) SetCommand(b byte) {
	s.PrevCommand = s.Command
	s.Command = b
}

// SetSpeed records a raw speed byte (0-200, 100 is stopped).
func (s *ControlState) SetSpeed(b byte) {
	s.PrevSpeedRaw = s.SpeedRaw
	s.SpeedRaw = b
	s.Speed = clamp((float32(b)-100)/100, -1, 1)
}

// SetAngle records a raw angle byte (0-180 degrees).
func (s *ControlState) SetAngle(b byte) {
	s.PrevAngleRaw = s.AngleRaw
	s.AngleRaw = b
	s.Heading = float32(float64(clamp(b, 0, 180)) * math.Pi / 180)
}

// Mixer turns a commanded speed and heading into wheel duties, trimming
// toward the command using the measured wheel speeds.
type Mixer interface {
	Mix(speed, heading, measuredLeft, measuredRight float32) DutyCommand
}

// DifferentialMixer steers by adding cos(heading)*TurnGain to the left wheel
// and subtracting it from the right, then adds FeedbackGain times each
// wheel's tracking error.
type DifferentialMixer struct {
	TurnGain     float32
	FeedbackGain float32
}

// DefaultMixer is the stock tuning.
var DefaultMixer = DifferentialMixer{TurnGain: 0.5, FeedbackGain: 0.2}

func (m DifferentialMixer) Mix(speed, heading, measuredLeft, measuredRight float32) DutyCommand {
	turn := float64(m.TurnGain) * math.Cos(float64(heading))
	targetLeft := float64(speed) + turn
	targetRight := float64(speed) - turn

	left := targetLeft + float64(m.FeedbackGain)*(targetLeft-float64(measuredLeft))
	right := targetRight + float64(m.FeedbackGain)*(targetRight-float64(measuredRight))
	return DutyCommand{
		Left:  float32(clamp(left, -1, 1)),
		Right: float32(clamp(right, -1, 1)),
	}
}

// Controller is the per-tick control algorithm.
type Controller struct {
	mixer Mixer
}

// NewController creates a controller around a mixer.
func NewController(mixer Mixer) *Controller {
	return &Controller{mixer: mixer}
}

// Step computes the duty command for one tick. An obstacle overrides the
// commanded heading with one biased away from it.
func (c *Controller) Step(s *ControlState, obstacles Obstacles) DutyCommand {
	heading := s.Heading
	switch {
	case obstacles.Left:
		heading -= obstacleBias
	case obstacles.Right:
		heading += obstacleBias
	}
	d := c.mixer.Mix(s.Speed, heading, s.MeasuredLeft, s.MeasuredRight)
	return DutyCommand{Left: clamp(d.Left, -1, 1), Right: clamp(d.Right, -1, 1)}
}

// EStop is the emergency stop latch. Anything can trip it; only the
// physical start input clears it.
type EStop struct {
	tripped bool
}

// Trip latches the emergency stop.
func (e *EStop) Trip() {
	if !e.tripped {
		RecordEvent(EvtEmergencyStop, 0, 0, 0, 0)
	}
	e.tripped = true
}

// Inputs applies the physical inputs. Stop wins over start.
func (e *EStop) Inputs(start, stop bool) {
	switch {
	case stop:
		e.Trip()
	case start:
		e.tripped = false
	}
}

// Tripped reports whether the latch is set.
func (e *EStop) Tripped() bool {
	return e.tripped
}
