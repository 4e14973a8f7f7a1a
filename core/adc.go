// Motor speed sampling. Each motor's current-sense channel is converted
// continuously; the interrupt signs each sample from the motor's direction
// feedback input and accumulates it until the control loop averages it.
package core

import (
	"sync/atomic"
	"time"
)

// Motor selects one side of the drive.
type Motor uint8

const (
	MotorLeft  Motor = 0
	MotorRight Motor = 1
	motorCount       = 2
)

func (m Motor) String() string {
	if m == MotorLeft {
		return "left"
	}
	return "right"
}

// SampleAccumulator is a signed running sum and sample count kept in one
// atomic word: sum in the high 32 bits, count in the low 32 bits. Adding a
// sample is a single atomic add and draining is a single atomic swap, so sum
// and count are always observed and reset together.
type SampleAccumulator struct {
	packed atomic.Uint64
}

// Add accumulates one signed sample. Interrupt context.
func (a *SampleAccumulator) Add(sample int32) {
	a.packed.Add(uint64(int64(sample))<<32 + 1)
}

// Drain returns the accumulated sum and count and resets both.
func (a *SampleAccumulator) Drain() (sum int32, count uint32) {
	v := a.packed.Swap(0)
	return int32(v >> 32), uint32(v)
}

// Mean returns sum/count (integer division) and false when count is zero.
func Mean(sum int32, count uint32) (int32, bool) {
	if count == 0 {
		return 0, false
	}
	return sum / int32(count), true
}

// ADCSampler owns the per-motor accumulators and the last averaged raw
// values.
type ADCSampler struct {
	gpio     GPIODriver
	feedback [motorCount]GPIOPin

	// next is only touched by HandleConversion
	next Motor
	acc  [motorCount]SampleAccumulator

	raw [motorCount]int32
}

// NewADCSampler creates a sampler reading direction feedback from the given
// input pins (high means the motor runs in reverse).
func NewADCSampler(gpio GPIODriver, leftFeedback, rightFeedback GPIOPin) *ADCSampler {
	return &ADCSampler{
		gpio:     gpio,
		feedback: [motorCount]GPIOPin{leftFeedback, rightFeedback},
	}
}

// Init configures the feedback inputs.
func (s *ADCSampler) Init() error {
	for _, pin := range s.feedback {
		if err := s.gpio.ConfigureInputPullDown(pin); err != nil {
			return err
		}
	}
	return nil
}

// HandleConversion is the end-of-conversion interrupt handler. Conversions
// alternate left, right, left, ...
func (s *ADCSampler) HandleConversion(value ADCValue) {
	m := s.next
	s.next ^= 1

	sample := int32(value)
	if s.gpio.ReadPin(s.feedback[m]) {
		sample = -sample
	}
	s.acc[m].Add(sample)
}

// Average drains both accumulators. A motor whose accumulator is empty keeps
// its previous raw mean.
func (s *ADCSampler) Average() {
	for m := range s.acc {
		if mean, ok := Mean(s.acc[m].Drain()); ok {
			s.raw[m] = mean
		}
	}
}

// Raw returns the last averaged raw value of a motor.
func (s *ADCSampler) Raw(m Motor) int32 {
	return s.raw[m]
}

// Capture is the blocking average used by calibration: it aligns on a window
// boundary, discards whatever accumulated before it, then averages exactly
// one full window. Motors without samples in that window keep their
// previous raw mean.
func (s *ADCSampler) Capture(timer *TickTimer, timeout time.Duration) (left, right int32, err error) {
	timer.TakeWindow()
	if err := timer.WaitWindow(timeout); err != nil {
		return 0, 0, err
	}
	for m := range s.acc {
		s.acc[m].Drain()
	}
	if err := timer.WaitWindow(timeout); err != nil {
		return 0, 0, err
	}
	s.Average()
	return s.raw[MotorLeft], s.raw[MotorRight], nil
}

// Speeds maps the current raw means into normalized speeds.
func (s *ADCSampler) Speeds(cal *Calibration) (left, right float32, err error) {
	if cal == nil || !cal.Valid() {
		return 0, 0, ErrNotCalibrated
	}
	return cal.Motors[MotorLeft].Normalize(s.raw[MotorLeft]),
		cal.Motors[MotorRight].Normalize(s.raw[MotorRight]), nil
}
