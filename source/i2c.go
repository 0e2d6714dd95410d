package source

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// I2CConfig selects a device on an I²C bus.
type I2CConfig struct {
	Bus     string // empty for the first available bus
	Address uint16
}

var (
	hostOnce sync.Once
	hostErr  error
)

// openBus loads the periph.io host drivers once per process and opens the
// named bus.
func openBus(name string) (i2c.BusCloser, error) {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return nil, fmt.Errorf("failed to initialize periph.io drivers: %w", hostErr)
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus '%s': %w", name, err)
	}
	return bus, nil
}
