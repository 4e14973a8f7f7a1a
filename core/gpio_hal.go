package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullDown configures a pin as a digital input with pull-down resistor
	ConfigureInputPullDown(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool)

	// ReadPin reads the current pin state. Must be safe from interrupt context.
	ReadPin(pin GPIOPin) bool
}

// Indicator is a status output on the robot.
type Indicator uint8

const (
	IndicatorArmed Indicator = iota
	IndicatorStopped
	IndicatorObstacleLeft
	IndicatorObstacleRight
	IndicatorPingLeft
	IndicatorPingRight
	IndicatorHeartbeat
	IndicatorCalibrating
	indicatorCount
)

// Indicators drives the status outputs. Unassigned indicators are ignored.
type Indicators struct {
	gpio GPIODriver
	pins [indicatorCount]GPIOPin
	used [indicatorCount]bool
	on   [indicatorCount]bool
}

// NewIndicators creates an indicator bank; assign pins with Assign.
func NewIndicators(gpio GPIODriver) *Indicators {
	return &Indicators{gpio: gpio}
}

// Assign binds an indicator to an output pin and configures it.
func (in *Indicators) Assign(ind Indicator, pin GPIOPin) error {
	if err := in.gpio.ConfigureOutput(pin); err != nil {
		return err
	}
	in.pins[ind] = pin
	in.used[ind] = true
	in.gpio.SetPin(pin, false)
	return nil
}

// Set drives an indicator.
func (in *Indicators) Set(ind Indicator, on bool) {
	if in == nil || !in.used[ind] {
		return
	}
	in.on[ind] = on
	in.gpio.SetPin(in.pins[ind], on)
}

// Toggle flips an indicator.
func (in *Indicators) Toggle(ind Indicator) {
	if in == nil {
		return
	}
	in.Set(ind, !in.on[ind])
}

// IsOn reports the last driven state of an indicator.
func (in *Indicators) IsOn(ind Indicator) bool {
	if in == nil {
		return false
	}
	return in.on[ind]
}
