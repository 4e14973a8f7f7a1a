package core

// ADCChannelID identifies a logical ADC channel.
type ADCChannelID uint8

// ADCValue is the raw ADC reading as seen by the rest of the firmware
// (12-bit right-aligned on the supported targets).
type ADCValue uint16

// ADCDriver is the abstract ADC interface that core code uses. The driver
// converts the configured channels back to back in continuous mode and
// delivers each end-of-conversion to ADCSampler.HandleConversion in channel
// order.
type ADCDriver interface {
	// ConfigureChannels prepares the channels for continuous scanning.
	ConfigureChannels(chs ...ADCChannelID) error

	// Start begins continuous conversion with end-of-conversion interrupts.
	Start() error
}
