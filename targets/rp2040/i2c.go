//go:build rp2040

package main

import (
	"errors"
	"machine"

	"diffbot/core"
)

// configureBus selects the I2C block the pins belong to and configures it.
// GPIO pins cycle SDA/SCL through I2C0 and I2C1 in groups of four.
func configureBus(sda, scl core.GPIOPin, frequencyHz uint32) (*machine.I2C, error) {
	if sda%2 != 0 || scl != sda+1 {
		return nil, errors.New("rp2040: I2C needs SDA on an even pin and SCL on the next")
	}
	i2c := machine.I2C0
	if (sda/2)%2 == 1 {
		i2c = machine.I2C1
	}
	err := i2c.Configure(machine.I2CConfig{
		Frequency: frequencyHz,
		SDA:       machine.Pin(sda),
		SCL:       machine.Pin(scl),
	})
	if err != nil {
		return nil, err
	}
	return i2c, nil
}

// newSonarBus wraps the blocking bus so the asynchronous engine can drive it.
// The engine's interrupt is delivered by Service from the ranging driver's
// idle hook.
func newSonarBus(i2c *machine.I2C) *core.TxPeripheral {
	return core.NewTxPeripheral(i2c)
}
