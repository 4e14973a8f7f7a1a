// Robot composition: wires the samplers, drivers and control algorithm
// together and runs the per-tick main loop.
package core

import (
	"context"
	"time"

	"diffbot/protocol"
)

// OperatorPort is the serial link to the operator. machine.UART satisfies it.
type OperatorPort interface {
	Buffered() int
	ReadByte() (byte, error)
	WriteByte(b byte) error
}

// Hardware bundles the platform drivers.
type Hardware struct {
	GPIO   GPIODriver
	Timer  PWMTimer
	ADC    ADCDriver
	I2C    I2CPeripheral
	Serial OperatorPort // may be nil
}

// Pins are the robot's digital I/O assignments.
type Pins struct {
	LeftMotor     MotorPins
	RightMotor    MotorPins
	LeftFeedback  GPIOPin
	RightFeedback GPIOPin
	Start         GPIOPin
	Stop          GPIOPin
	Indicators    map[Indicator]GPIOPin
}

// RobotConfig is everything needed to build a Robot.
type RobotConfig struct {
	Pins        Pins
	ADCChannels [motorCount]ADCChannelID

	PWMPeriod  uint32
	TickPeriod time.Duration

	// TickTimeout bounds the main loop's wait for a tick; 4 periods when zero.
	TickTimeout time.Duration

	Calibration     CalibrationTiming
	Ranger          RangerConfig
	BusTimeoutTicks uint32
	HeartbeatTicks  uint32
	Mixer           Mixer
}

// Robot is the assembled controller.
type Robot struct {
	hw  Hardware
	cfg RobotConfig

	Timer      *TickTimer
	Sampler    *ADCSampler
	Motors     *MotorDriver
	Bus        *I2CBus
	Ranger     *Ranger
	Indicators *Indicators
	Controller *Controller
	EStop      EStop
	State      ControlState

	// AfterStep, when set, runs in the main loop after every tick.
	AfterStep func()

	decoder    *protocol.Decoder
	cal        *Calibration
	lastBeat   uint32
	lastDuty   DutyCommand
	faults     uint32
	lastFault  error
	echoErrors uint32
}

// NewRobot assembles a robot. Nothing touches the hardware until Init.
func NewRobot(hw Hardware, cfg RobotConfig) *Robot {
	if cfg.Mixer == nil {
		cfg.Mixer = DefaultMixer
	}
	r := &Robot{hw: hw, cfg: cfg}
	r.Timer = NewTickTimer(hw.Timer)
	r.Sampler = NewADCSampler(hw.GPIO, cfg.Pins.LeftFeedback, cfg.Pins.RightFeedback)
	r.Motors = NewMotorDriver(hw.Timer, hw.GPIO, cfg.Pins.LeftMotor, cfg.Pins.RightMotor)
	r.Bus = NewI2CBus(hw.I2C, cfg.BusTimeoutTicks)
	r.Indicators = NewIndicators(hw.GPIO)
	r.Ranger = NewRanger(r.Bus, r.Indicators, cfg.Ranger)
	if _, ok := hw.I2C.(PolledPeripheral); ok {
		r.Ranger.Idle = r.ServiceBus
	}
	r.Controller = NewController(cfg.Mixer)
	r.decoder = protocol.NewDecoder(&operatorSink{robot: r})
	// stopped and straight ahead until the first packet
	r.State.SetSpeed(protocol.SpeedZero)
	r.State.SetAngle(protocol.AngleMax / 2)
	return r
}

// operatorSink forwards decoded fields to the control state and trips the
// latch as soon as a stop command byte arrives.
type operatorSink struct {
	robot *Robot
}

func (s *operatorSink) SetCommand(b byte) {
	s.robot.State.SetCommand(b)
	if b == protocol.CmdEmergencyStop {
		s.robot.EStop.Trip()
	}
}

func (s *operatorSink) SetSpeed(b byte) { s.robot.State.SetSpeed(b) }
func (s *operatorSink) SetAngle(b byte) { s.robot.State.SetAngle(b) }

// Init configures every peripheral. The motors are left coasting and the
// conversions running; interrupts may fire from here on.
func (r *Robot) Init() error {
	for ind, pin := range r.cfg.Pins.Indicators {
		if err := r.Indicators.Assign(ind, pin); err != nil {
			return err
		}
	}
	if err := r.hw.GPIO.ConfigureInputPullDown(r.cfg.Pins.Start); err != nil {
		return err
	}
	if err := r.hw.GPIO.ConfigureInputPullDown(r.cfg.Pins.Stop); err != nil {
		return err
	}
	if err := r.Motors.Init(r.cfg.PWMPeriod); err != nil {
		return err
	}
	if err := r.Sampler.Init(); err != nil {
		return err
	}
	if err := r.hw.ADC.ConfigureChannels(r.cfg.ADCChannels[:]...); err != nil {
		return err
	}
	if err := r.hw.ADC.Start(); err != nil {
		return err
	}
	DebugPrintln("[ROBOT] init done, period=" + utoa(r.Motors.Period()))
	if err := r.Ranger.Init(); err != nil {
		return err
	}
	r.ServiceBus()
	return nil
}

// ServiceBus runs pending transfers on a polled bus peripheral. It does
// nothing for an interrupt-driven one.
func (r *Robot) ServiceBus() {
	if p, ok := r.hw.I2C.(PolledPeripheral); ok {
		p.Service(r.Bus)
	}
}

// Calibrate runs the startup calibration. On failure the robot stays
// disarmed for good: Step keeps the motors braked.
func (r *Robot) Calibrate() error {
	cal, err := NewCalibrator(r.Sampler, r.Timer, r.Motors, r.Indicators, r.cfg.Calibration).Run()
	if err != nil {
		r.cal = nil
		r.fault(err)
		return err
	}
	r.cal = cal
	return nil
}

// SetCalibration installs a calibration captured elsewhere.
func (r *Robot) SetCalibration(cal *Calibration) {
	r.cal = cal
}

// Calibration returns the active calibration, nil before Calibrate.
func (r *Robot) Calibration() *Calibration {
	return r.cal
}

// PollOperator decodes every byte waiting on the operator link, echoing
// each one back.
func (r *Robot) PollOperator() {
	if r.hw.Serial == nil {
		return
	}
	for r.hw.Serial.Buffered() > 0 {
		b, err := r.hw.Serial.ReadByte()
		if err != nil {
			return
		}
		r.decoder.Feed(b)
		if err := r.hw.Serial.WriteByte(b); err != nil {
			r.echoErrors++
		}
	}
}

// EchoErrors returns the number of operator bytes that could not be echoed.
func (r *Robot) EchoErrors() uint32 {
	return r.echoErrors
}

// Armed reports whether the robot drives its motors.
func (r *Robot) Armed() bool {
	return r.cal.Valid() && !r.EStop.Tripped()
}

// Step runs one control tick.
func (r *Robot) Step() error {
	tick := r.Timer.Ticks()
	if r.cfg.HeartbeatTicks > 0 && tick-r.lastBeat >= r.cfg.HeartbeatTicks {
		r.Indicators.Toggle(IndicatorHeartbeat)
		r.lastBeat = tick
	}
	r.ServiceBus()
	r.Bus.CheckWatchdog(tick)

	r.EStop.Inputs(r.hw.GPIO.ReadPin(r.cfg.Pins.Start), r.hw.GPIO.ReadPin(r.cfg.Pins.Stop))
	// a stop packet holds the latch until a run command replaces it
	if r.State.Command == protocol.CmdEmergencyStop {
		r.EStop.Trip()
	}
	if !r.Armed() {
		// keep draining so the sums cannot wrap while disarmed
		r.Sampler.Average()
		r.Motors.Update(DutyCommand{}, true)
		r.lastDuty = DutyCommand{}
		r.Indicators.Set(IndicatorArmed, false)
		r.Indicators.Set(IndicatorStopped, true)
		return nil
	}
	r.Indicators.Set(IndicatorArmed, true)
	r.Indicators.Set(IndicatorStopped, false)

	r.Sampler.Average()
	left, right, err := r.Sampler.Speeds(r.cal)
	if err != nil {
		return r.fault(err)
	}
	r.State.MeasuredLeft, r.State.MeasuredRight = left, right

	obstacles, err := r.Ranger.Tick(r.State.Speed)
	if err != nil {
		if r.Ranger.Unrecovered() {
			return r.fault(err)
		}
		DebugPrintln("[SONAR] " + err.Error())
	}

	duty := r.Controller.Step(&r.State, obstacles)
	r.Motors.Update(duty, false)
	r.lastDuty = duty
	return nil
}

// fault brakes the motors and trips the latch.
func (r *Robot) fault(err error) error {
	r.Motors.Brake()
	r.EStop.Trip()
	r.faults++
	r.lastFault = err
	RecordEvent(EvtFault, 0, r.Timer.Ticks(), r.faults, 0)
	DebugPrintln("[ROBOT] fault: " + err.Error())
	return err
}

// LastDuty returns the duty command applied on the latest tick.
func (r *Robot) LastDuty() DutyCommand {
	return r.lastDuty
}

// Faults returns the number of faults and the latest one.
func (r *Robot) Faults() (uint32, error) {
	return r.faults, r.lastFault
}

// Run paces Step on the control tick until ctx is done. A timer that stops
// ticking is unrecoverable.
func (r *Robot) Run(ctx context.Context) error {
	timeout := r.cfg.TickTimeout
	if timeout <= 0 {
		timeout = 4 * r.cfg.TickPeriod
	}
	if timeout <= 0 {
		timeout = 20 * time.Millisecond
	}
	for {
		select {
		case <-ctx.Done():
			r.Motors.Brake()
			return ctx.Err()
		default:
		}
		if err := r.Timer.WaitControl(timeout); err != nil {
			if ctx.Err() != nil {
				r.Motors.Brake()
				return ctx.Err()
			}
			return r.fault(err)
		}
		r.PollOperator()
		r.Step()
		if r.AfterStep != nil {
			r.AfterStep()
		}
	}
}
