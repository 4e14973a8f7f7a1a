package sim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"diffbot/core"
)

// Telemetry is a snapshot of the robot taken after a control tick.
type Telemetry struct {
	Tick      uint32
	Armed     bool
	Stopped   bool
	Duty      core.DutyCommand
	Measured  [2]float32
	Actual    [2]float64
	Obstacles core.Obstacles
	Distance  [2]uint16
	Bus       core.BusStats
	Faults    uint32
	LastFault error
}

// Sim runs a core.Robot against the simulated plant.
type Sim struct {
	GPIO   *GPIO
	Timer  *Timer
	ADC    *ADC
	Bus    *SonarBus
	Serial *Serial
	Plant  *Plant
	Robot  *core.Robot

	// Speedup divides the wall-clock tick period. Must be set before Run.
	Speedup float64

	cfg       core.RobotConfig
	plantCfg  PlantConfig
	ticks     atomic.Uint32
	paused    atomic.Bool
	mu        sync.Mutex
	telemetry Telemetry
	steps     chan struct{}
}

// New builds the simulated hardware and a robot on top of it.
func New(cfg core.RobotConfig, plant PlantConfig) *Sim {
	s := &Sim{
		GPIO:     NewGPIO(),
		Timer:    &Timer{},
		ADC:      &ADC{},
		Bus:      NewSonarBus(cfg.Ranger.Left, cfg.Ranger.Right),
		Serial:   NewSerial(),
		Speedup:  1,
		cfg:      cfg,
		plantCfg: plant,
		steps:    make(chan struct{}, 1),
	}
	s.Plant = NewPlant(plant, s.GPIO, s.Timer, cfg.Pins)
	s.Robot = core.NewRobot(core.Hardware{
		GPIO:   s.GPIO,
		Timer:  s.Timer,
		ADC:    s.ADC,
		I2C:    s.Bus,
		Serial: s.Serial,
	}, cfg)
	s.ADC.Handler = s.Robot.Sampler.HandleConversion
	s.Robot.Timer.Idle = idle
	s.Robot.Ranger.Idle = idle
	s.Robot.AfterStep = s.snapshot
	return s
}

func idle() {
	time.Sleep(50 * time.Microsecond)
}

// Run initializes and calibrates the robot, then runs its main loop until
// ctx is done. A failed calibration leaves the robot disarmed but running,
// as on the real board.
func (s *Sim) Run(ctx context.Context) error {
	if s.cfg.TickPeriod <= 0 {
		return errors.New("sim: tick period not set")
	}
	if s.Speedup <= 0 {
		s.Speedup = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Bus.Run(ctx, s.Robot.Bus.HandleInterrupt)
	}()
	go func() {
		defer wg.Done()
		s.clock(ctx)
	}()

	if err := s.Robot.Init(); err != nil {
		return err
	}
	if err := s.Robot.Calibrate(); err != nil {
		core.DebugPrintln("[SIM] calibration failed: " + err.Error())
	}
	err := s.Robot.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *Sim) clock(ctx context.Context) {
	every := time.Duration(float64(s.cfg.TickPeriod) / s.Speedup)
	if every < 10*time.Microsecond {
		every = 10 * time.Microsecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if s.paused.Load() {
			continue
		}
		s.tick()
	}
}

// tick advances the plant by one period and raises the period interrupt.
func (s *Sim) tick() {
	s.Plant.Step(s.cfg.TickPeriod)
	for i := 0; i < s.plantCfg.ConversionsPerTick; i++ {
		s.ADC.Convert(func(ch int) core.ADCValue {
			return s.Plant.Sample(core.Motor(ch))
		})
	}
	s.Timer.Elapse()
	core.EnterInterrupt(s.Robot.Timer.HandleInterrupt)
	s.ticks.Add(1)
}

// Pause stops or resumes the simulated clock.
func (s *Sim) Pause(paused bool) {
	s.paused.Store(paused)
}

// Ticks returns the number of periods simulated.
func (s *Sim) Ticks() uint32 {
	return s.ticks.Load()
}

// PressStart drives the start input.
func (s *Sim) PressStart(down bool) {
	s.GPIO.Drive(s.cfg.Pins.Start, down)
}

// PressStop drives the stop input.
func (s *Sim) PressStop(down bool) {
	s.GPIO.Drive(s.cfg.Pins.Stop, down)
}

// Indicator returns the level of a status output.
func (s *Sim) Indicator(ind core.Indicator) bool {
	pin, ok := s.cfg.Pins.Indicators[ind]
	return ok && s.GPIO.Level(pin)
}

// snapshot runs on the robot's main loop.
func (s *Sim) snapshot() {
	r := s.Robot
	t := Telemetry{
		Tick:      r.Timer.Ticks(),
		Armed:     r.Armed(),
		Stopped:   r.EStop.Tripped(),
		Duty:      r.LastDuty(),
		Measured:  [2]float32{r.State.MeasuredLeft, r.State.MeasuredRight},
		Actual:    [2]float64{s.Plant.Speed(core.MotorLeft), s.Plant.Speed(core.MotorRight)},
		Obstacles: r.Ranger.Obstacles(),
		Bus:       r.Bus.Stats(),
	}
	t.Distance[0], t.Distance[1] = r.Ranger.Distances()
	t.Faults, t.LastFault = r.Faults()

	s.mu.Lock()
	s.telemetry = t
	s.mu.Unlock()
	select {
	case s.steps <- struct{}{}:
	default:
	}
}

// Telemetry returns the latest snapshot.
func (s *Sim) Telemetry() Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.telemetry
}

// WaitFor polls the telemetry after each control tick until cond holds or
// timeout elapses.
func (s *Sim) WaitFor(timeout time.Duration, cond func(Telemetry) bool) (Telemetry, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		t := s.Telemetry()
		if cond(t) {
			return t, true
		}
		select {
		case <-s.steps:
		case <-deadline.C:
			t = s.Telemetry()
			return t, cond(t)
		}
	}
}
