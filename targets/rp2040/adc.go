//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"
	"runtime/interrupt"

	"diffbot/core"
)

// adcClock is the ADC's fixed 48 MHz clock; one conversion takes 96 cycles.
const adcClock = 48000000

// RpAdcDriver implements core.ADCDriver with the RP2040 ADC in round-robin
// mode, converting into the FIFO and interrupting at each result.
type RpAdcDriver struct {
	rate     uint32 // conversions per second, all channels together
	channels []core.ADCChannelID

	// HandleConversion receives each result in interrupt context.
	HandleConversion func(core.ADCValue)
}

// NewRPAdcDriver constructs the driver but does not start it.
func NewRPAdcDriver(rate uint32) *RpAdcDriver {
	return &RpAdcDriver{rate: rate}
}

// ConfigureChannels sets up the pin mux. Round-robin visits enabled channels
// in ascending order, so channels must be given that way.
func (d *RpAdcDriver) ConfigureChannels(chs ...core.ADCChannelID) error {
	machine.InitADC()
	for i, ch := range chs {
		if i > 0 && ch <= chs[i-1] {
			return errors.New("rp2040: adc channels must be ascending")
		}
		var pin machine.Pin
		switch ch {
		case 0:
			pin = machine.ADC0
		case 1:
			pin = machine.ADC1
		case 2:
			pin = machine.ADC2
		case 3:
			pin = machine.ADC3
		default:
			return errors.New("unsupported ADC channel")
		}
		adc := machine.ADC{Pin: pin}
		if err := adc.Configure(machine.ADCConfig{}); err != nil {
			return err
		}
	}
	d.channels = append(d.channels[:0], chs...)
	return nil
}

func (d *RpAdcDriver) Start() error {
	if len(d.channels) == 0 || d.HandleConversion == nil {
		return errors.New("rp2040: adc not configured")
	}
	var rrobin uint32
	for _, ch := range d.channels {
		rrobin |= 1 << ch
	}

	div := uint32(adcClock/d.rate) - 1
	rp.ADC.DIV.Set(div << rp.ADC_DIV_INT_Pos)
	rp.ADC.FCS.Set(rp.ADC_FCS_EN | 1<<rp.ADC_FCS_THRESH_Pos)
	rp.ADC.INTE.Set(rp.ADC_INTE_FIFO)

	adcDriver = d
	intr := interrupt.New(rp.IRQ_ADC_IRQ_FIFO, adcInterrupt)
	intr.SetPriority(0x80)
	intr.Enable()

	rp.ADC.CS.ReplaceBits(
		uint32(d.channels[0])<<rp.ADC_CS_AINSEL_Pos|rrobin<<rp.ADC_CS_RROBIN_Pos,
		rp.ADC_CS_AINSEL_Msk|rp.ADC_CS_RROBIN_Msk,
		0,
	)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_MANY)
	return nil
}

var adcDriver *RpAdcDriver

// adcInterrupt drains the FIFO; results arrive in round-robin order.
func adcInterrupt(interrupt.Interrupt) {
	for rp.ADC.FCS.Get()&rp.ADC_FCS_LEVEL_Msk != 0 {
		v := rp.ADC.FIFO.Get() & 0xFFF
		adcDriver.HandleConversion(core.ADCValue(v))
	}
}
