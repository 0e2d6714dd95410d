package main

import (
	"errors"
	"fmt"

	"github.com/anibaldeboni/zero-paper/sensormon/config"
	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
	"github.com/anibaldeboni/zero-paper/sensormon/source"
)

// newSource opens the source described by s. Sources with a device type
// have their raw values converted before offsets are applied.
func newSource(s config.SensorConfig) (source.Source, error) {
	var (
		src source.Source
		err error
	)

	switch sensor.Kind(s.Kind) {
	case sensor.KindSimulated:
		src = source.NewSimulated(s.Name, s.SimulatedConfig())
	case sensor.KindADC:
		src, err = source.NewADC(s.Name, s.ADCConfig())
	case sensor.KindBMP280, sensor.KindBME280:
		src, err = source.NewBMx280(s.Name, s.BMx280Config())
	case sensor.KindINA219:
		src, err = source.NewINA219(s.Name, s.I2CConfig())
	case sensor.KindSerial:
		src, err = source.NewSerial(s.Name, s.SerialConfig())
	case sensor.KindSNMP:
		src, err = source.NewSNMP(s.Name, s.SNMPConfig())
	default:
		return nil, fmt.Errorf("sensor %q: %w: %s", s.Name, source.ErrUnknownKind, s.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("sensor %q: %w", s.Name, err)
	}

	if s.DeviceType != "" {
		conv, ok := source.ConverterFor(s.DeviceType)
		if !ok {
			src.Close()
			return nil, fmt.Errorf("sensor %q: %w: %s", s.Name, source.ErrUnknownDevice, s.DeviceType)
		}
		src = source.NewConverting(src, conv)
	}
	return src, nil
}

// buildSensors opens every configured source. On error the sources opened
// so far are closed.
func buildSensors(cfg *config.AppConfig) ([]measurement.Sensor, error) {
	sensors := make([]measurement.Sensor, 0, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		src, err := newSource(s)
		if err != nil {
			return nil, errors.Join(err, closeSensors(sensors))
		}
		sensors = append(sensors, measurement.Sensor{Descriptor: s.Descriptor(), Source: src})
	}
	return sensors, nil
}

func closeSensors(sensors []measurement.Sensor) error {
	var errs []error
	for _, s := range sensors {
		if err := s.Source.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
