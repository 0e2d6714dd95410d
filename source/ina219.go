package source

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ina219"
)

// INA219 reads bus voltage (V), current (A) and power (W) from a TI INA219
// power monitor.
type INA219 struct {
	name   string
	device *ina219.Dev
	bus    i2c.BusCloser
	mu     sync.Mutex
}

// NewINA219 opens the bus and configures the monitor. Address 0 selects
// 0x40.
func NewINA219(name string, config I2CConfig) (*INA219, error) {
	bus, err := openBus(config.Bus)
	if err != nil {
		return nil, err
	}

	opts := ina219.DefaultOpts
	if config.Address != 0 {
		opts.Address = int(config.Address)
	}
	dev, err := ina219.New(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize INA219 at address 0x%02X: %w", opts.Address, err)
	}

	return &INA219{name: name, device: dev, bus: bus}, nil
}

func (s *INA219) Sample(_ context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil, acquisitionError(s.name, ErrNotInitialized)
	}

	p, err := s.device.Sense()
	if err != nil {
		return nil, acquisitionError(s.name, err)
	}

	return []float64{
		float64(p.Voltage) / float64(physic.Volt),
		float64(p.Current) / float64(physic.Ampere),
		float64(p.Power) / float64(physic.Watt),
	}, nil
}

func (s *INA219) Channels() int { return 3 }
func (s *INA219) Name() string  { return s.name }

func (s *INA219) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.device = nil
	if s.bus == nil {
		return nil
	}
	err := s.bus.Close()
	s.bus = nil
	if err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

var _ Source = (*INA219)(nil)
