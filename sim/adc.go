package sim

import (
	"errors"
	"sync/atomic"

	"diffbot/core"
)

// ADC is a simulated continuous-scan converter. Conversions are produced by
// Convert and delivered to Handler in interrupt context.
type ADC struct {
	Handler func(core.ADCValue)

	channels []core.ADCChannelID
	running  atomic.Bool
}

func (a *ADC) ConfigureChannels(chs ...core.ADCChannelID) error {
	if len(chs) == 0 {
		return errors.New("sim: no adc channels")
	}
	a.channels = append(a.channels[:0], chs...)
	return nil
}

func (a *ADC) Start() error {
	if a.Handler == nil {
		return errors.New("sim: adc has no conversion handler")
	}
	if len(a.channels) == 0 {
		return errors.New("sim: adc channels not configured")
	}
	a.running.Store(true)
	return nil
}

// Running reports whether Start was called.
func (a *ADC) Running() bool {
	return a.running.Load()
}

// Convert delivers one scan: one conversion per configured channel, in order.
func (a *ADC) Convert(sample func(i int) core.ADCValue) {
	if !a.running.Load() {
		return
	}
	for i := range a.channels {
		v := sample(i)
		core.EnterInterrupt(func() { a.Handler(v) })
	}
}
