// Obstacle ranging with two SRF10 ultrasonic sensors on a shared bus.
//
// The sensors work in ping-pong: on each firing one sensor is told to range
// while the result of the other, pinged on the previous firing, is read back.
// The maximum range shrinks when the robot is slow and grows with speed, and
// so does the distance at which an echo counts as an obstacle.
package core

import (
	"math"
	"runtime"
	"time"
)

// SRF10 bus addresses, 7-bit form (0xE0 and 0xE2 on the wire).
const (
	SRF10LeftAddr  I2CAddress = 0x70
	SRF10RightAddr I2CAddress = 0x71
)

// SRF10 registers.
const (
	srf10RegCommand   = 0x00 // write
	srf10RegGain      = 0x01 // write
	srf10RegRange     = 0x02 // write
	srf10RegRevision  = 0x00 // read
	srf10RegRangeHigh = 0x02 // read
	srf10RegRangeLow  = 0x03 // read

	srf10RangeCentimeters = 0x51
)

const (
	sideLeft  = 0
	sideRight = 1
)

// initialDistance seeds both readings before the first echo arrives.
const initialDistance = 100

// NoEcho is the distance recorded when a sensor heard nothing within its
// range window. Only the low range byte is read, so the range window must
// stay below 256 cm.
const NoEcho = 0xFFFF

// MaxRangeRegister is the largest range register value whose range window,
// (value+1)*43 mm, fits in the low range byte.
const MaxRangeRegister = 58

// RangerConfig parameterizes the ranging driver.
type RangerConfig struct {
	Left, Right I2CAddress
	Gain        uint8

	// Range register window, scaled by |speed|.
	MinRange uint8
	MaxRange uint8

	// Activation threshold = ThresholdBase + ThresholdScale*|speed|.
	ThresholdBase  float32
	ThresholdScale float32

	// Cadence is the number of control ticks between firings.
	Cadence uint32

	// ReadTimeout bounds the wait for a range reading.
	ReadTimeout time.Duration
	// MaxTimeouts consecutive failed reads make the condition unrecovered.
	MaxTimeouts int
}

// DefaultRangerConfig returns the stock sensor setup.
func DefaultRangerConfig() RangerConfig {
	return RangerConfig{
		Left:           SRF10LeftAddr,
		Right:          SRF10RightAddr,
		Gain:           10,
		MinRange:       20,
		MaxRange:       45,
		ThresholdBase:  100,
		ThresholdScale: 100,
		Cadence:        10,
		ReadTimeout:    20 * time.Millisecond,
		MaxTimeouts:    3,
	}
}

// Obstacles are the per-side detection flags. At most one is set.
type Obstacles struct {
	Left  bool
	Right bool
}

func (o Obstacles) String() string {
	switch {
	case o.Left:
		return "left"
	case o.Right:
		return "right"
	}
	return "none"
}

// Ranger is the ranging driver.
type Ranger struct {
	bus        *I2CBus
	indicators *Indicators
	cfg        RangerConfig

	selector  int // side read on the next firing; the other side is pinged
	counter   uint32
	distance  [2]uint16
	rangeReg  uint8
	threshold float32
	cells     [2]RxCell
	pending   [2]bool
	timeouts  int
	obstacles Obstacles

	// Idle runs while waiting for a reading. Defaults to runtime.Gosched;
	// TxPeripheral users hook Service in here.
	Idle func()
}

// NewRanger creates a ranging driver on bus. indicators may be nil.
func NewRanger(bus *I2CBus, indicators *Indicators, cfg RangerConfig) *Ranger {
	if cfg.Cadence == 0 {
		cfg.Cadence = 1
	}
	return &Ranger{
		bus:        bus,
		indicators: indicators,
		cfg:        cfg,
		distance:   [2]uint16{initialDistance, initialDistance},
		rangeReg:   cfg.MinRange,
		threshold:  cfg.ThresholdBase,
		Idle:       runtime.Gosched,
	}
}

func (r *Ranger) addr(side int) I2CAddress {
	if side == sideLeft {
		return r.cfg.Left
	}
	return r.cfg.Right
}

// Init programs the analogue gain of both sensors. The left sensor gets an
// extra write first; the first transfer after power-up is not reliably
// latched.
func (r *Ranger) Init() error {
	if err := r.bus.Write(r.cfg.Left, srf10RegGain, r.cfg.Gain); err != nil {
		return err
	}
	if err := r.bus.Write(r.cfg.Left, srf10RegGain, r.cfg.Gain); err != nil {
		return err
	}
	return r.bus.Write(r.cfg.Right, srf10RegGain, r.cfg.Gain)
}

// Tick advances the ranging cadence. speed is the commanded normalized speed.
// The returned flags are those of the latest firing. A non-nil error means
// the reading of this firing was lost and the previous one kept; see
// Unrecovered.
func (r *Ranger) Tick(speed float32) (Obstacles, error) {
	r.counter++
	if r.counter < r.cfg.Cadence {
		return r.obstacles, nil
	}
	r.counter = 0
	err := r.fire(speed)
	return r.obstacles, err
}

func (r *Ranger) fire(speed float32) error {
	r.rangeReg = RangeRegister(r.cfg.MinRange, r.cfg.MaxRange, speed)
	r.threshold = Threshold(r.cfg.ThresholdBase, r.cfg.ThresholdScale, speed)

	read := r.selector
	ping := 1 - read
	r.selector = ping
	r.indicators.Set(IndicatorPingLeft, ping == sideLeft)
	r.indicators.Set(IndicatorPingRight, ping == sideRight)

	if err := r.bus.Write(r.addr(ping), srf10RegRange, r.rangeReg); err != nil {
		return r.failed(read, err)
	}
	if err := r.bus.Write(r.addr(ping), srf10RegCommand, srf10RangeCentimeters); err != nil {
		return r.failed(read, err)
	}

	cell := &r.cells[read]
	if r.pending[read] {
		// The previous read of this side never completed; the cell is still
		// referenced by the queue and cannot be reused yet.
		if _, done, _ := cell.Load(); !done {
			return r.failed(read, ErrRangingTimeout)
		}
		r.pending[read] = false
	}
	if err := r.bus.Read(r.addr(read), srf10RegRangeLow, cell); err != nil {
		return r.failed(read, err)
	}
	r.pending[read] = true

	v, err := r.await(cell)
	if err != nil {
		return r.failed(read, err)
	}
	r.pending[read] = false
	r.timeouts = 0
	if v == 0 {
		r.distance[read] = NoEcho
	} else {
		r.distance[read] = uint16(v)
	}
	r.decide()
	return nil
}

// await waits for cell to complete, bounded by the read timeout.
func (r *Ranger) await(cell *RxCell) (byte, error) {
	deadline := time.Now().Add(r.cfg.ReadTimeout)
	for {
		v, done, err := cell.Load()
		if done {
			return v, err
		}
		if time.Now().After(deadline) {
			return 0, ErrRangingTimeout
		}
		if r.Idle != nil {
			r.Idle()
		}
	}
}

func (r *Ranger) failed(side int, err error) error {
	r.timeouts++
	RecordEvent(EvtRangingTimeout, uint8(r.addr(side)), 0, uint32(r.timeouts), uint32(r.distance[side]))
	r.decide()
	return err
}

func (r *Ranger) decide() {
	obs := DecideObstacles(r.distance[sideLeft], r.distance[sideRight], r.threshold)
	if obs != r.obstacles && IsDebugEnabled() {
		DebugPrintln("[SONAR] left=" + itoa(int(r.distance[sideLeft])) + " right=" + itoa(int(r.distance[sideRight])) +
			" threshold=" + ftoa(r.threshold) + " obstacle=" + obs.String())
	}
	r.obstacles = obs
	r.indicators.Set(IndicatorObstacleLeft, r.obstacles.Left)
	r.indicators.Set(IndicatorObstacleRight, r.obstacles.Right)
}

// Unrecovered reports whether reads have failed MaxTimeouts times in a row.
func (r *Ranger) Unrecovered() bool {
	return r.cfg.MaxTimeouts > 0 && r.timeouts >= r.cfg.MaxTimeouts
}

// Revision reads a sensor's software revision register. It is a bench
// check that the sensor answers; do not call it while the driver is ticking.
func (r *Ranger) Revision(addr I2CAddress) (byte, error) {
	var cell RxCell
	if err := r.bus.Read(addr, srf10RegRevision, &cell); err != nil {
		return 0, err
	}
	return r.await(&cell)
}

// Obstacles returns the flags of the latest firing.
func (r *Ranger) Obstacles() Obstacles {
	return r.obstacles
}

// Distances returns the latest left and right readings in centimeters.
func (r *Ranger) Distances() (left, right uint16) {
	return r.distance[sideLeft], r.distance[sideRight]
}

// RangeRegister returns the range register value for a speed.
func RangeRegister(minRange, maxRange uint8, speed float32) uint8 {
	if maxRange < minRange {
		return minRange
	}
	return minRange + uint8(float32(maxRange-minRange)*speedMagnitude(speed))
}

// Threshold returns the activation distance for a speed.
func Threshold(base, scale, speed float32) float32 {
	return base + scale*speedMagnitude(speed)
}

func speedMagnitude(speed float32) float32 {
	s := float64(speed)
	if math.IsNaN(s) {
		return 0
	}
	return clamp(float32(math.Abs(s)), 0, 1)
}

// DecideObstacles flags the nearer side when it is within threshold. Equal
// readings flag the left side.
func DecideObstacles(left, right uint16, threshold float32) Obstacles {
	switch {
	case float32(left) <= threshold && left <= right:
		return Obstacles{Left: true}
	case float32(right) <= threshold && right <= left:
		return Obstacles{Right: true}
	}
	return Obstacles{}
}
