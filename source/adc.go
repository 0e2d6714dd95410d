package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
)

// ADCConfig selects one input of an ADS1115.
type ADCConfig struct {
	I2CConfig
	Channel    int     // 0..3, single ended
	MaxVoltage float64 // full scale, 0 for 5 V
}

var adcChannels = [...]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// ADC is a single-channel analog read returning volts.
type ADC struct {
	name string
	bus  i2c.BusCloser
	dev  *ads1x15.Dev
	pin  ads1x15.PinADC
	mu   sync.Mutex
}

// NewADC opens the bus and prepares the selected input pin.
func NewADC(name string, config ADCConfig) (*ADC, error) {
	if config.Channel < 0 || config.Channel >= len(adcChannels) {
		return nil, fmt.Errorf("ADC channel %d out of range 0..%d", config.Channel, len(adcChannels)-1)
	}
	if config.MaxVoltage <= 0 {
		config.MaxVoltage = 5
	}

	bus, err := openBus(config.Bus)
	if err != nil {
		return nil, err
	}

	opts := ads1x15.DefaultOpts
	if config.Address != 0 {
		opts.I2cAddress = config.Address
	}
	dev, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize ADS1115: %w", err)
	}

	maxV := physic.ElectricPotential(config.MaxVoltage * float64(physic.Volt))
	pin, err := dev.PinForChannel(adcChannels[config.Channel], maxV, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to open ADC channel %d: %w", config.Channel, err)
	}

	return &ADC{name: name, bus: bus, dev: dev, pin: pin}, nil
}

func (a *ADC) Sample(_ context.Context) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pin == nil {
		return nil, acquisitionError(a.name, ErrNotInitialized)
	}

	s, err := a.pin.Read()
	if err != nil {
		return nil, acquisitionError(a.name, err)
	}
	return []float64{float64(s.V) / float64(physic.Volt)}, nil
}

func (a *ADC) Channels() int { return 1 }
func (a *ADC) Name() string  { return a.name }

func (a *ADC) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.pin != nil {
		if err := a.pin.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("failed to halt ADC pin: %w", err))
		}
		a.pin = nil
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close I2C bus: %w", err))
		}
		a.bus = nil
	}
	return errors.Join(errs...)
}

var _ Source = (*ADC)(nil)
