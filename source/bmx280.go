package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// StandardSeaLevel is the reference pressure in hPa used for altitude.
const StandardSeaLevel = 1013.25

// BMx280Config configures a BMP280 or BME280 on I²C.
type BMx280Config struct {
	I2CConfig
	SeaLevel float64       // hPa, 0 for StandardSeaLevel
	Options  *bmxx80.Opts // nil for driver defaults
}

// BMx280 reads temperature (°C), pressure (hPa) and altitude (m) from a
// Bosch BMP280/BME280.
type BMx280 struct {
	name     string
	device   *bmxx80.Dev
	bus      i2c.BusCloser
	seaLevel float64
	mu       sync.Mutex
}

// NewBMx280 opens the bus and connects to the device.
func NewBMx280(name string, config BMx280Config) (*BMx280, error) {
	if config.Address == 0 {
		config.Address = 0x76
	}
	if config.Options == nil {
		config.Options = &bmxx80.DefaultOpts
	}
	if config.SeaLevel <= 0 {
		config.SeaLevel = StandardSeaLevel
	}

	bus, err := openBus(config.Bus)
	if err != nil {
		return nil, err
	}

	dev, err := bmxx80.NewI2C(bus, config.Address, config.Options)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize BMx280 at address 0x%02X: %w", config.Address, err)
	}

	return &BMx280{
		name:     name,
		device:   dev,
		bus:      bus,
		seaLevel: config.SeaLevel,
	}, nil
}

func (s *BMx280) Sample(_ context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil, acquisitionError(s.name, ErrNotInitialized)
	}

	var env physic.Env
	if err := s.device.Sense(&env); err != nil {
		return nil, acquisitionError(s.name, err)
	}

	celsius := float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Kelvin)
	hpa := float64(env.Pressure) / float64(physic.Pascal) / 100

	return []float64{celsius, hpa, Altitude(hpa, s.seaLevel)}, nil
}

// Altitude returns the height in meters for a pressure in hPa relative to
// the sea level reference, using the international barometric formula.
func Altitude(pressure, seaLevel float64) float64 {
	if pressure <= 0 || seaLevel <= 0 {
		return 0
	}
	return 44330 * (1 - math.Pow(pressure/seaLevel, 1/5.255))
}

func (s *BMx280) Channels() int { return 3 }
func (s *BMx280) Name() string  { return s.name }

// Close halts the device and releases the bus.
func (s *BMx280) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.device != nil {
		if err := s.device.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("failed to halt device: %w", err))
		}
		s.device = nil
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close I2C bus: %w", err))
		}
		s.bus = nil
	}
	return errors.Join(errs...)
}

var _ Source = (*BMx280)(nil)
