package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pinLeftFeedback  GPIOPin = 10
	pinRightFeedback GPIOPin = 11
)

func TestSampleAccumulatorDrain(t *testing.T) {
	testCases := []struct {
		name    string
		samples []int32
		sum     int32
		count   uint32
	}{
		{"empty", nil, 0, 0},
		{"positive", []int32{100, 200, 300}, 600, 3},
		{"negative", []int32{-4095, -1}, -4096, 2},
		{"mixed", []int32{50, -20, -40}, -10, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var acc SampleAccumulator
			for _, s := range tc.samples {
				acc.Add(s)
			}
			sum, count := acc.Drain()
			assert.Equal(t, tc.sum, sum)
			assert.Equal(t, tc.count, count)

			sum, count = acc.Drain()
			assert.Zero(t, sum, "sum must reset with the drain")
			assert.Zero(t, count, "count must reset with the drain")
		})
	}
}

func TestMean(t *testing.T) {
	m, ok := Mean(601, 3)
	require.True(t, ok)
	assert.Equal(t, int32(200), m)

	m, ok = Mean(-601, 3)
	require.True(t, ok)
	assert.Equal(t, int32(-200), m, "integer division truncates toward zero")

	_, ok = Mean(10, 0)
	assert.False(t, ok)
}

func TestADCSamplerAlternatesAndSigns(t *testing.T) {
	gpio := newFakeGPIO()
	s := NewADCSampler(gpio, pinLeftFeedback, pinRightFeedback)
	require.NoError(t, s.Init())

	gpio.drive(pinRightFeedback, true)
	for _, v := range []ADCValue{1000, 400, 1200, 600} {
		s.HandleConversion(v)
	}
	s.Average()
	assert.Equal(t, int32(1100), s.Raw(MotorLeft))
	assert.Equal(t, int32(-500), s.Raw(MotorRight))
}

func TestADCSamplerKeepsPreviousWhenEmpty(t *testing.T) {
	s := NewADCSampler(newFakeGPIO(), pinLeftFeedback, pinRightFeedback)
	s.HandleConversion(300)
	s.HandleConversion(700)
	s.Average()

	// only the left motor gets a sample this window
	s.HandleConversion(500)
	s.Average()
	assert.Equal(t, int32(500), s.Raw(MotorLeft))
	assert.Equal(t, int32(700), s.Raw(MotorRight))

	s.Average()
	assert.Equal(t, int32(500), s.Raw(MotorLeft))
	assert.Equal(t, int32(700), s.Raw(MotorRight))
}

func TestADCSamplerCaptureDiscardsStaleWindow(t *testing.T) {
	s := NewADCSampler(newFakeGPIO(), pinLeftFeedback, pinRightFeedback)
	timer := NewTickTimer(&fakePWM{})

	// stale samples from before the capture
	for i := 0; i < 10; i++ {
		s.HandleConversion(4000)
	}
	timer.Idle = func() {
		s.HandleConversion(800)
		s.HandleConversion(200)
		timer.HandleInterrupt()
	}

	left, right, err := s.Capture(timer, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(800), left)
	assert.Equal(t, int32(200), right)
}

func TestADCSamplerCaptureTimeout(t *testing.T) {
	s := NewADCSampler(newFakeGPIO(), pinLeftFeedback, pinRightFeedback)
	timer := NewTickTimer(&fakePWM{})
	timer.Idle = nil

	_, _, err := s.Capture(timer, time.Millisecond)
	assert.ErrorIs(t, err, ErrTickTimeout)
}

func TestADCSamplerSpeedsRequireCalibration(t *testing.T) {
	s := NewADCSampler(newFakeGPIO(), pinLeftFeedback, pinRightFeedback)
	_, _, err := s.Speeds(nil)
	assert.ErrorIs(t, err, ErrNotCalibrated)
	_, _, err = s.Speeds(&Calibration{})
	assert.ErrorIs(t, err, ErrNotCalibrated)
}
