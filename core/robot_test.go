package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pinStart GPIOPin = 40
	pinStop  GPIOPin = 41
)

type fakeSerial struct {
	in         []byte
	out        []byte
	failWrites bool
}

func (s *fakeSerial) Buffered() int { return len(s.in) }

func (s *fakeSerial) ReadByte() (byte, error) {
	if len(s.in) == 0 {
		return 0, errors.New("empty")
	}
	b := s.in[0]
	s.in = s.in[1:]
	return b, nil
}

func (s *fakeSerial) WriteByte(b byte) error {
	if s.failWrites {
		return errors.New("tx full")
	}
	s.out = append(s.out, b)
	return nil
}

type robotRig struct {
	robot  *Robot
	gpio   *fakeGPIO
	pwm    *fakePWM
	adc    *fakeADC
	i2c    *fakeI2C
	serial *fakeSerial
}

func testRobotConfig() RobotConfig {
	ranger := DefaultRangerConfig()
	ranger.ReadTimeout = time.Millisecond
	return RobotConfig{
		Pins: Pins{
			LeftMotor:     testLeftPins,
			RightMotor:    testRightPins,
			LeftFeedback:  pinLeftFeedback,
			RightFeedback: pinRightFeedback,
			Start:         pinStart,
			Stop:          pinStop,
			Indicators: map[Indicator]GPIOPin{
				IndicatorArmed:     50,
				IndicatorStopped:   51,
				IndicatorHeartbeat: 52,
			},
		},
		ADCChannels:     [motorCount]ADCChannelID{0, 1},
		PWMPeriod:       60000,
		TickPeriod:      time.Millisecond,
		Ranger:          ranger,
		BusTimeoutTicks: 4,
		HeartbeatTicks:  10,
	}
}

func newRobotRig(t *testing.T) *robotRig {
	rig := &robotRig{
		gpio:   newFakeGPIO(),
		pwm:    &fakePWM{},
		adc:    &fakeADC{},
		i2c:    newFakeI2C(),
		serial: &fakeSerial{},
	}
	rig.robot = NewRobot(Hardware{
		GPIO:   rig.gpio,
		Timer:  rig.pwm,
		ADC:    rig.adc,
		I2C:    rig.i2c,
		Serial: rig.serial,
	}, testRobotConfig())
	rig.robot.Ranger.Idle = func() { pump(rig.robot.Bus, rig.i2c) }
	require.NoError(t, rig.robot.Init())
	pump(rig.robot.Bus, rig.i2c)

	// far away echoes on both sides
	rig.i2c.device(SRF10LeftAddr)[srf10RegRangeLow] = 250
	rig.i2c.device(SRF10RightAddr)[srf10RegRangeLow] = 250

	cal, err := NewCalibration(testMotorCalibration(t), testMotorCalibration(t))
	require.NoError(t, err)
	rig.robot.SetCalibration(cal)
	return rig
}

// feedback injects one averaging window of raw samples per motor.
func (rig *robotRig) feedback(left, right int32) {
	rig.gpio.drive(pinLeftFeedback, left < 0)
	rig.gpio.drive(pinRightFeedback, right < 0)
	rig.robot.Sampler.HandleConversion(ADCValue(abs32(left)))
	rig.robot.Sampler.HandleConversion(ADCValue(abs32(right)))
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func TestRobotInit(t *testing.T) {
	rig := newRobotRig(t)
	assert.True(t, rig.adc.started)
	assert.Equal(t, []ADCChannelID{0, 1}, rig.adc.channels)
	assert.Equal(t, uint32(60000), rig.pwm.period)
	assert.Equal(t, byte(10), rig.i2c.device(SRF10RightAddr)[srf10RegGain])
}

func TestRobotOperatorEndToEnd(t *testing.T) {
	rig := newRobotRig(t)
	rig.serial.in = []byte{0xF1, 0x96, 0x5A}
	rig.robot.PollOperator()
	assert.Equal(t, []byte{0xF1, 0x96, 0x5A}, rig.serial.out, "every byte echoed")

	// measured speed equals the commanded 0.5
	rig.feedback(550, 550)
	require.NoError(t, rig.robot.Step())

	duty := rig.robot.LastDuty()
	assert.Greater(t, duty.Left, float32(0))
	assert.InDelta(t, duty.Left, duty.Right, 1e-6)
	assert.LessOrEqual(t, duty.Left, float32(1))
	assert.Equal(t, DirectionForward, rig.robot.Motors.Direction(MotorLeft))
	assert.Equal(t, DirectionForward, rig.robot.Motors.Direction(MotorRight))
	assert.Equal(t, rig.pwm.compare[0], rig.pwm.compare[1])
	assert.True(t, rig.gpio.ReadPin(50), "armed indicator")
	assert.False(t, rig.gpio.ReadPin(51))
}

func TestRobotEmergencyStop(t *testing.T) {
	rig := newRobotRig(t)
	rig.serial.in = []byte{0xF1, 200, 90}
	rig.robot.PollOperator()
	rig.feedback(1050, 1050)
	require.NoError(t, rig.robot.Step())
	require.NotZero(t, rig.pwm.compare[0])

	// remote stop: the latch trips on the command byte alone
	rig.serial.in = []byte{0xF0}
	rig.robot.PollOperator()
	require.NoError(t, rig.robot.Step())
	assert.Equal(t, DirectionBrake, rig.robot.Motors.Direction(MotorLeft))
	assert.Equal(t, DirectionBrake, rig.robot.Motors.Direction(MotorRight))
	assert.Equal(t, [2]uint32{0, 0}, rig.pwm.compare)
	assert.True(t, rig.gpio.ReadPin(51), "stopped indicator")

	// a run command does not clear it
	rig.serial.in = []byte{100, 90, 0xF1, 200, 90}
	rig.robot.PollOperator()
	require.NoError(t, rig.robot.Step())
	assert.False(t, rig.robot.Armed())
	assert.Equal(t, [2]uint32{0, 0}, rig.pwm.compare)

	// the physical start input does
	rig.gpio.drive(pinStart, true)
	require.NoError(t, rig.robot.Step())
	rig.gpio.drive(pinStart, false)
	assert.True(t, rig.robot.Armed())
	assert.NotZero(t, rig.pwm.compare[0])

	// physical stop
	rig.gpio.drive(pinStop, true)
	require.NoError(t, rig.robot.Step())
	assert.Equal(t, DirectionBrake, rig.robot.Motors.Direction(MotorLeft))
	assert.False(t, rig.robot.Armed())
}

func TestRobotStopPacketHoldsLatch(t *testing.T) {
	rig := newRobotRig(t)
	rig.serial.in = []byte{0xF0, 180, 90}
	rig.robot.PollOperator()
	require.NoError(t, rig.robot.Step())
	require.True(t, rig.robot.EStop.Tripped())

	// start alone does not re-arm while the stop packet is the latest command
	rig.gpio.drive(pinStart, true)
	for i := 0; i < 3; i++ {
		rig.feedback(1050, 1050)
		require.NoError(t, rig.robot.Step())
		assert.False(t, rig.robot.Armed())
		assert.Equal(t, [2]uint32{0, 0}, rig.pwm.compare)
	}
	rig.gpio.drive(pinStart, false)

	// a run packet plus start does
	rig.serial.in = []byte{0xF1, 100, 90}
	rig.robot.PollOperator()
	require.NoError(t, rig.robot.Step())
	assert.False(t, rig.robot.Armed(), "run packet alone leaves the latch set")
	rig.gpio.drive(pinStart, true)
	require.NoError(t, rig.robot.Step())
	assert.True(t, rig.robot.Armed())
}

func TestRobotTruncatedPacketKeepsSpeed(t *testing.T) {
	rig := newRobotRig(t)
	rig.serial.in = []byte{0xF1, 190, 0xFF}
	rig.robot.PollOperator()
	assert.Equal(t, float32(0), rig.robot.State.Speed)
	assert.InDelta(t, math.Pi/2, rig.robot.State.Heading, 1e-6)
	assert.Equal(t, []byte{0xF1, 190, 0xFF}, rig.serial.out, "malformed bytes are echoed too")
}

func TestRobotDrainsSamplesWhileDisarmed(t *testing.T) {
	rig := newRobotRig(t)
	rig.robot.EStop.Trip()

	for tick := 0; tick < 50; tick++ {
		for i := 0; i < 200; i++ {
			rig.feedback(4000, 4000)
		}
		require.NoError(t, rig.robot.Step())
		require.False(t, rig.robot.Armed())
		_, count := rig.robot.Sampler.acc[MotorLeft].Drain()
		require.Zero(t, count, "tick %d", tick)
	}
	assert.Equal(t, int32(4000), rig.robot.Sampler.Raw(MotorLeft))
	assert.Equal(t, int32(4000), rig.robot.Sampler.Raw(MotorRight))
}

func TestRobotCountsEchoFailures(t *testing.T) {
	rig := newRobotRig(t)
	rig.serial.failWrites = true
	rig.serial.in = []byte{0xF1, 150, 90}
	rig.robot.PollOperator()
	assert.Equal(t, uint32(3), rig.robot.EchoErrors())
	assert.Equal(t, byte(150), rig.robot.State.SpeedRaw, "decoding is unaffected")
}

func TestRobotServicesPolledBus(t *testing.T) {
	tx := newFakeTx()
	robot := NewRobot(Hardware{
		GPIO:  newFakeGPIO(),
		Timer: &fakePWM{},
		ADC:   &fakeADC{},
		I2C:   NewTxPeripheral(tx),
	}, testRobotConfig())
	require.NoError(t, robot.Init())

	// gain writes reach the sensors without anyone pumping the bus
	assert.Equal(t, byte(10), tx.device(uint16(SRF10LeftAddr))[srf10RegGain])
	assert.Equal(t, byte(10), tx.device(uint16(SRF10RightAddr))[srf10RegGain])
	assert.True(t, robot.Bus.Idle())

	// later transfers go out on the next tick, ahead of the watchdog
	require.NoError(t, robot.Bus.Write(SRF10RightAddr, srf10RegRange, 7))
	for i := 0; i < 10; i++ {
		robot.Timer.HandleInterrupt()
		require.NoError(t, robot.Step())
	}
	assert.Equal(t, byte(7), tx.device(uint16(SRF10RightAddr))[srf10RegRange])
	stats := robot.Bus.Stats()
	assert.Zero(t, stats.Aborted)
	assert.Zero(t, stats.TimedOut)
}

func TestRobotRefusesToArmUncalibrated(t *testing.T) {
	rig := newRobotRig(t)
	rig.robot.SetCalibration(nil)
	rig.gpio.drive(pinStart, true)

	rig.serial.in = []byte{0xF1, 200, 90}
	rig.robot.PollOperator()
	require.NoError(t, rig.robot.Step())
	assert.False(t, rig.robot.Armed())
	assert.Equal(t, DirectionBrake, rig.robot.Motors.Direction(MotorLeft))
}

func TestRobotRangingFault(t *testing.T) {
	rig := newRobotRig(t)
	rig.i2c.stall[SRF10LeftAddr] = true
	rig.i2c.stall[SRF10RightAddr] = true
	rig.serial.in = []byte{0xF1, 150, 90}
	rig.robot.PollOperator()

	var err error
	for i := 0; i < 40 && err == nil; i++ {
		rig.feedback(550, 550)
		err = rig.robot.Step()
	}
	require.ErrorIs(t, err, ErrRangingTimeout)
	assert.True(t, rig.robot.EStop.Tripped())
	assert.Equal(t, DirectionBrake, rig.robot.Motors.Direction(MotorLeft))
	n, last := rig.robot.Faults()
	assert.Equal(t, uint32(1), n)
	assert.ErrorIs(t, last, ErrRangingTimeout)
}

func TestRobotHeartbeat(t *testing.T) {
	rig := newRobotRig(t)
	for i := 0; i < 10; i++ {
		rig.robot.Timer.HandleInterrupt()
	}
	require.NoError(t, rig.robot.Step())
	assert.True(t, rig.gpio.ReadPin(52))

	rig.robot.Timer.HandleInterrupt()
	require.NoError(t, rig.robot.Step())
	assert.True(t, rig.gpio.ReadPin(52), "toggles only every 10 ticks")

	for i := 0; i < 9; i++ {
		rig.robot.Timer.HandleInterrupt()
	}
	require.NoError(t, rig.robot.Step())
	assert.False(t, rig.gpio.ReadPin(52))
}

func TestRobotRun(t *testing.T) {
	rig := newRobotRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	steps := 0
	rig.robot.Timer.Idle = func() {
		steps++
		if steps > 20 {
			cancel()
		}
		rig.robot.Timer.HandleInterrupt()
	}

	err := rig.robot.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, DirectionBrake, rig.robot.Motors.Direction(MotorLeft))
}

func TestRobotRunStalledTimer(t *testing.T) {
	rig := newRobotRig(t)
	rig.robot.Timer.Idle = nil

	err := rig.robot.Run(context.Background())
	assert.ErrorIs(t, err, ErrTickTimeout)
	assert.True(t, rig.robot.EStop.Tripped())
}
