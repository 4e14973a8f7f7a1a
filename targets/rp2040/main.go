//go:build rp2040

package main

import (
	"context"
	"machine"
	"time"

	"diffbot/config"
	"diffbot/core"
	"diffbot/protocol"
)

const (
	// adcRate is the total conversion rate shared by both current-sense
	// channels.
	adcRate = 10000

	watchdogTimeoutMS = 500
)

var (
	// Debug counters
	panics     uint32
	calErrors  uint32
	loopResets uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	core.SetDebugWriter(func(s string) { println(s) })
	core.SetDebugEnabled(true)
	core.DebugPrintln("[BOOT] diffbot " + protocol.Version)

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		halt("config: " + err.Error())
	}
	rc := cfg.RobotConfig()

	robot, err := build(cfg, rc)
	if err != nil {
		halt("init: " + err.Error())
	}

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: watchdogTimeoutMS})
	machine.Watchdog.Start()
	// the bus has no interrupt line; every wait services it
	idle := func() {
		robot.ServiceBus()
		machine.Watchdog.Update()
	}
	robot.Timer.Idle = idle
	robot.Ranger.Idle = idle
	robot.AfterStep = func() { machine.Watchdog.Update() }

	if err := robot.Init(); err != nil {
		robot.Motors.Brake()
		halt("init: " + err.Error())
	}
	if err := robot.Calibrate(); err != nil {
		// stays disarmed; the loop keeps the motors braked
		calErrors++
	}

	for {
		runGuarded(robot)
		loopResets++
	}
}

// build wires the RP2040 peripherals into a robot.
func build(cfg *config.Config, rc core.RobotConfig) (*core.Robot, error) {
	gpio := NewRPGPIODriver()

	leftPWM, err := config.ParsePin(cfg.Left.PWMPin)
	if err != nil {
		return nil, err
	}
	rightPWM, err := config.ParsePin(cfg.Right.PWMPin)
	if err != nil {
		return nil, err
	}
	pwm, err := NewRP2040MotorPWM(leftPWM, rightPWM, rc.TickPeriod)
	if err != nil {
		return nil, err
	}

	sda, err := config.ParsePin(cfg.Bus.SDAPin)
	if err != nil {
		return nil, err
	}
	scl, err := config.ParsePin(cfg.Bus.SCLPin)
	if err != nil {
		return nil, err
	}
	i2c, err := configureBus(sda, scl, cfg.Bus.FrequencyHz)
	if err != nil {
		return nil, err
	}

	uart, err := configureUART(cfg.Serial)
	if err != nil {
		return nil, err
	}

	adc := NewRPAdcDriver(adcRate)
	robot := core.NewRobot(core.Hardware{
		GPIO:   gpio,
		Timer:  pwm,
		ADC:    adc,
		I2C:    newSonarBus(i2c),
		Serial: uart,
	}, rc)
	adc.HandleConversion = robot.Sampler.HandleConversion
	enableTickInterrupt(robot.Timer)
	return robot, nil
}

func configureUART(sc config.SerialConfig) (*machine.UART, error) {
	tx, err := config.ParsePin(sc.TxPin)
	if err != nil {
		return nil, err
	}
	rx, err := config.ParsePin(sc.RxPin)
	if err != nil {
		return nil, err
	}
	uart := machine.UART0
	err = uart.Configure(machine.UARTConfig{
		BaudRate: sc.Baud,
		TX:       machine.Pin(tx),
		RX:       machine.Pin(rx),
	})
	return uart, err
}

// runGuarded runs the main loop, recovering from a panic with the motors
// braked.
func runGuarded(robot *core.Robot) {
	defer func() {
		if r := recover(); r != nil {
			panics++
			robot.Motors.Brake()
			robot.EStop.Trip()
			core.RecordEvent(core.EvtFault, 0xFF, robot.Timer.Ticks(), panics, 0)
		}
	}()
	if err := robot.Run(context.Background()); err != nil {
		// the master tick stopped; nothing left to pace the loop
		core.DumpEvents()
		halt("run: " + err.Error())
	}
}

// halt parks the processor. A running watchdog resets the board.
func halt(msg string) {
	core.DebugPrintln("[HALT] " + msg)
	for {
		time.Sleep(time.Second)
	}
}
