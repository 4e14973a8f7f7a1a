// Package config loads the robot's JSON configuration: pin assignments,
// sensor addresses and every timing constant of the control loop.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"diffbot/core"
)

// MotorConfig is one motor's wiring.
type MotorConfig struct {
	PinA        string `json:"pin_a"`
	PinB        string `json:"pin_b"`
	PWMPin      string `json:"pwm_pin"`
	FeedbackPin string `json:"feedback_pin"`
	ADCChannel  uint8  `json:"adc_channel"`
}

// SonarConfig configures the ranging driver.
type SonarConfig struct {
	LeftAddr       uint8   `json:"left_addr"`
	RightAddr      uint8   `json:"right_addr"`
	Gain           uint8   `json:"gain"`
	MinRange       uint8   `json:"min_range"`
	MaxRange       uint8   `json:"max_range"`
	ThresholdBase  float32 `json:"threshold_base"`
	ThresholdScale float32 `json:"threshold_scale"`
	CadenceTicks   uint32  `json:"cadence_ticks"`
	ReadTimeoutMS  uint32  `json:"read_timeout_ms"`
	MaxTimeouts    int     `json:"max_timeouts"`
}

// BusConfig is the sensor bus wiring.
type BusConfig struct {
	SDAPin       string `json:"sda_pin"`
	SCLPin       string `json:"scl_pin"`
	FrequencyHz  uint32 `json:"frequency_hz"`
	TimeoutTicks uint32 `json:"timeout_ticks"`
}

// SerialConfig is the operator link.
type SerialConfig struct {
	TxPin string `json:"tx_pin"`
	RxPin string `json:"rx_pin"`
	Baud  uint32 `json:"baud"`
}

// CalibrationConfig times the startup calibration.
type CalibrationConfig struct {
	LeadInTicks uint32 `json:"lead_in_ticks"`
	SettleTicks uint32 `json:"settle_ticks"`
}

// MixerConfig tunes the differential mixer.
type MixerConfig struct {
	TurnGain     float32 `json:"turn_gain"`
	FeedbackGain float32 `json:"feedback_gain"`
}

// Config is the complete robot configuration.
type Config struct {
	Left  MotorConfig `json:"left_motor"`
	Right MotorConfig `json:"right_motor"`

	StartPin   string            `json:"start_pin"`
	StopPin    string            `json:"stop_pin"`
	Indicators map[string]string `json:"indicators"`

	PWMPeriod      uint32 `json:"pwm_period"`
	TickPeriodUS   uint32 `json:"tick_period_us"`
	HeartbeatTicks uint32 `json:"heartbeat_ticks"`

	Calibration CalibrationConfig `json:"calibration"`
	Sonar       SonarConfig       `json:"sonar"`
	Bus         BusConfig         `json:"bus"`
	Serial      SerialConfig      `json:"serial"`
	Mixer       MixerConfig       `json:"mixer"`
}

// indicatorNames maps configuration keys to indicators.
var indicatorNames = map[string]core.Indicator{
	"armed":          core.IndicatorArmed,
	"stopped":        core.IndicatorStopped,
	"obstacle_left":  core.IndicatorObstacleLeft,
	"obstacle_right": core.IndicatorObstacleRight,
	"ping_left":      core.IndicatorPingLeft,
	"ping_right":     core.IndicatorPingRight,
	"heartbeat":      core.IndicatorHeartbeat,
	"calibrating":    core.IndicatorCalibrating,
}

// LoadConfig parses a JSON configuration and fills in defaults
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config

	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills in missing configuration values from Default
func applyDefaults(config *Config) {
	def := Default()

	defaultMotor(&config.Left, def.Left)
	defaultMotor(&config.Right, def.Right)
	if config.StartPin == "" {
		config.StartPin = def.StartPin
	}
	if config.StopPin == "" {
		config.StopPin = def.StopPin
	}
	if config.Indicators == nil {
		config.Indicators = def.Indicators
	}

	if config.PWMPeriod == 0 {
		config.PWMPeriod = def.PWMPeriod
	}
	if config.TickPeriodUS == 0 {
		config.TickPeriodUS = def.TickPeriodUS
	}
	if config.HeartbeatTicks == 0 {
		config.HeartbeatTicks = def.HeartbeatTicks
	}

	if config.Calibration.LeadInTicks == 0 {
		config.Calibration.LeadInTicks = def.Calibration.LeadInTicks
	}
	if config.Calibration.SettleTicks == 0 {
		config.Calibration.SettleTicks = def.Calibration.SettleTicks
	}

	s := &config.Sonar
	if s.LeftAddr == 0 {
		s.LeftAddr = def.Sonar.LeftAddr
	}
	if s.RightAddr == 0 {
		s.RightAddr = def.Sonar.RightAddr
	}
	if s.Gain == 0 {
		s.Gain = def.Sonar.Gain
	}
	if s.MinRange == 0 {
		s.MinRange = def.Sonar.MinRange
	}
	if s.MaxRange == 0 {
		s.MaxRange = def.Sonar.MaxRange
	}
	if s.ThresholdBase == 0 {
		s.ThresholdBase = def.Sonar.ThresholdBase
	}
	if s.ThresholdScale == 0 {
		s.ThresholdScale = def.Sonar.ThresholdScale
	}
	if s.CadenceTicks == 0 {
		s.CadenceTicks = def.Sonar.CadenceTicks
	}
	if s.ReadTimeoutMS == 0 {
		s.ReadTimeoutMS = def.Sonar.ReadTimeoutMS
	}
	if s.MaxTimeouts == 0 {
		s.MaxTimeouts = def.Sonar.MaxTimeouts
	}

	if config.Bus.SDAPin == "" {
		config.Bus.SDAPin = def.Bus.SDAPin
	}
	if config.Bus.SCLPin == "" {
		config.Bus.SCLPin = def.Bus.SCLPin
	}
	if config.Bus.FrequencyHz == 0 {
		config.Bus.FrequencyHz = def.Bus.FrequencyHz
	}
	if config.Bus.TimeoutTicks == 0 {
		config.Bus.TimeoutTicks = def.Bus.TimeoutTicks
	}

	if config.Serial.TxPin == "" {
		config.Serial.TxPin = def.Serial.TxPin
	}
	if config.Serial.RxPin == "" {
		config.Serial.RxPin = def.Serial.RxPin
	}
	if config.Serial.Baud == 0 {
		config.Serial.Baud = def.Serial.Baud
	}

	if config.Mixer.TurnGain == 0 {
		config.Mixer.TurnGain = def.Mixer.TurnGain
	}
	if config.Mixer.FeedbackGain == 0 {
		config.Mixer.FeedbackGain = def.Mixer.FeedbackGain
	}
}

func defaultMotor(m *MotorConfig, def MotorConfig) {
	if m.PinA == "" {
		m.PinA = def.PinA
	}
	if m.PinB == "" {
		m.PinB = def.PinB
	}
	if m.PWMPin == "" {
		m.PWMPin = def.PWMPin
	}
	if m.FeedbackPin == "" {
		m.FeedbackPin = def.FeedbackPin
	}
	if m.ADCChannel == 0 {
		m.ADCChannel = def.ADCChannel
	}
}

// Default returns the stock configuration for an RP2040 board
func Default() *Config {
	return &Config{
		Left: MotorConfig{
			PinA:        "gpio2",
			PinB:        "gpio3",
			PWMPin:      "gpio4",
			FeedbackPin: "gpio8",
			ADCChannel:  0,
		},
		Right: MotorConfig{
			PinA:        "gpio6",
			PinB:        "gpio7",
			PWMPin:      "gpio5",
			FeedbackPin: "gpio9",
			ADCChannel:  1,
		},
		StartPin: "gpio14",
		StopPin:  "gpio15",
		Indicators: map[string]string{
			"armed":          "gpio18",
			"stopped":        "gpio19",
			"obstacle_left":  "gpio20",
			"obstacle_right": "gpio21",
			"ping_left":      "gpio10",
			"ping_right":     "gpio11",
			"heartbeat":      "gpio25",
			"calibrating":    "gpio22",
		},
		PWMPeriod:      60000,
		TickPeriodUS:   5000,
		HeartbeatTicks: 10,
		Calibration: CalibrationConfig{
			LeadInTicks: 200,  // 1 s
			SettleTicks: 1600, // 8 s
		},
		Sonar: SonarConfig{
			LeftAddr:       uint8(core.SRF10LeftAddr),
			RightAddr:      uint8(core.SRF10RightAddr),
			Gain:           10,
			MinRange:       20,
			MaxRange:       45,
			ThresholdBase:  100,
			ThresholdScale: 100,
			CadenceTicks:   10,
			ReadTimeoutMS:  20,
			MaxTimeouts:    3,
		},
		Bus: BusConfig{
			SDAPin:       "gpio16",
			SCLPin:       "gpio17",
			FrequencyHz:  100000,
			TimeoutTicks: 4,
		},
		Serial: SerialConfig{
			TxPin: "gpio0",
			RxPin: "gpio1",
			Baud:  9600,
		},
		Mixer: MixerConfig{
			TurnGain:     0.5,
			FeedbackGain: 0.2,
		},
	}
}

// Validate rejects configurations the controller cannot run with
func (c *Config) Validate() error {
	if c.Sonar.MaxRange < c.Sonar.MinRange {
		return fmt.Errorf("config: sonar range window %d..%d is inverted", c.Sonar.MinRange, c.Sonar.MaxRange)
	}
	if c.Sonar.MaxRange > core.MaxRangeRegister {
		return fmt.Errorf("config: sonar max range %d exceeds %d", c.Sonar.MaxRange, core.MaxRangeRegister)
	}
	if c.Sonar.LeftAddr == c.Sonar.RightAddr {
		return fmt.Errorf("config: both sonars at address 0x%02x", c.Sonar.LeftAddr)
	}
	if c.Sonar.LeftAddr > 0x7f || c.Sonar.RightAddr > 0x7f {
		return fmt.Errorf("config: sonar addresses must be 7-bit")
	}
	if c.Left.ADCChannel == c.Right.ADCChannel {
		return fmt.Errorf("config: both motors on ADC channel %d", c.Left.ADCChannel)
	}
	if c.Mixer.TurnGain < 0 || c.Mixer.FeedbackGain < 0 {
		return fmt.Errorf("config: negative mixer gain")
	}
	for name, pin := range c.Indicators {
		if _, ok := indicatorNames[name]; !ok {
			return fmt.Errorf("config: unknown indicator %q", name)
		}
		if _, err := ParsePin(pin); err != nil {
			return fmt.Errorf("config: indicator %s: %w", name, err)
		}
	}
	for _, pin := range []string{
		c.Left.PinA, c.Left.PinB, c.Left.PWMPin, c.Left.FeedbackPin,
		c.Right.PinA, c.Right.PinB, c.Right.PWMPin, c.Right.FeedbackPin,
		c.StartPin, c.StopPin,
	} {
		if _, err := ParsePin(pin); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// ParsePin converts a pin name like "gpio12" (or a bare number) to a pin
func ParsePin(name string) (core.GPIOPin, error) {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "gpio")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid pin %q", name)
	}
	return core.GPIOPin(n), nil
}

func mustPin(name string) core.GPIOPin {
	pin, err := ParsePin(name)
	if err != nil {
		panic(err)
	}
	return pin
}

// TickPeriod returns the master tick period
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.TickPeriodUS) * time.Microsecond
}

// RobotConfig builds the controller configuration. The configuration must
// have passed Validate.
func (c *Config) RobotConfig() core.RobotConfig {
	indicators := make(map[core.Indicator]core.GPIOPin, len(c.Indicators))
	for name, pin := range c.Indicators {
		indicators[indicatorNames[name]] = mustPin(pin)
	}
	tick := c.TickPeriod()

	return core.RobotConfig{
		Pins: core.Pins{
			LeftMotor:     core.MotorPins{A: mustPin(c.Left.PinA), B: mustPin(c.Left.PinB)},
			RightMotor:    core.MotorPins{A: mustPin(c.Right.PinA), B: mustPin(c.Right.PinB)},
			LeftFeedback:  mustPin(c.Left.FeedbackPin),
			RightFeedback: mustPin(c.Right.FeedbackPin),
			Start:         mustPin(c.StartPin),
			Stop:          mustPin(c.StopPin),
			Indicators:    indicators,
		},
		ADCChannels: [2]core.ADCChannelID{
			core.ADCChannelID(c.Left.ADCChannel),
			core.ADCChannelID(c.Right.ADCChannel),
		},
		PWMPeriod:   c.PWMPeriod,
		TickPeriod:  tick,
		TickTimeout: 4 * tick,
		Calibration: core.CalibrationTiming{
			LeadInTicks: c.Calibration.LeadInTicks,
			SettleTicks: c.Calibration.SettleTicks,
			TickTimeout: 4 * tick,
		},
		Ranger: core.RangerConfig{
			Left:           core.I2CAddress(c.Sonar.LeftAddr),
			Right:          core.I2CAddress(c.Sonar.RightAddr),
			Gain:           c.Sonar.Gain,
			MinRange:       c.Sonar.MinRange,
			MaxRange:       c.Sonar.MaxRange,
			ThresholdBase:  c.Sonar.ThresholdBase,
			ThresholdScale: c.Sonar.ThresholdScale,
			Cadence:        c.Sonar.CadenceTicks,
			ReadTimeout:    time.Duration(c.Sonar.ReadTimeoutMS) * time.Millisecond,
			MaxTimeouts:    c.Sonar.MaxTimeouts,
		},
		BusTimeoutTicks: c.Bus.TimeoutTicks,
		HeartbeatTicks:  c.HeartbeatTicks,
		Mixer: core.DifferentialMixer{
			TurnGain:     c.Mixer.TurnGain,
			FeedbackGain: c.Mixer.FeedbackGain,
		},
	}
}
