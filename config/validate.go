package config

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/anibaldeboni/zero-paper/sensormon/persist"
	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
	"github.com/anibaldeboni/zero-paper/sensormon/source"
)

// Validate reports every inconsistency in the configuration at once.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Measurement.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("measurement.history_size must be at least 1, got %d", c.Measurement.HistorySize))
	}
	if c.Measurement.Countdown < 0 {
		errs = append(errs, fmt.Errorf("measurement.countdown must not be negative"))
	}

	if utf8.RuneCountInString(c.Output.Separator) != 1 {
		errs = append(errs, fmt.Errorf("output.separator must be a single character, got %q", c.Output.Separator))
	}
	for _, ext := range c.Output.Extensions {
		if !persist.Supported(ext) {
			errs = append(errs, fmt.Errorf("output.extensions: %w: %q", persist.ErrUnknownExtension, ext))
		}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.MQTT.Format {
	case "json", "proto":
	default:
		errs = append(errs, fmt.Errorf("mqtt.format must be json or proto, got %q", c.MQTT.Format))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}

	seen := make(map[string]bool, len(c.Sensors))
	for _, s := range c.Sensors {
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate sensor name %q", s.Name))
		}
		seen[s.Name] = true

		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Validate checks one sensor entry, including its kind specific section.
func (s SensorConfig) Validate() error {
	if err := s.Descriptor().Validate(); err != nil {
		return err
	}

	if s.DeviceType != "" {
		if _, ok := source.ConverterFor(s.DeviceType); !ok {
			return fmt.Errorf("sensor %s: %w: %q", s.Name, source.ErrUnknownDevice, s.DeviceType)
		}
	}

	switch sensor.Kind(s.Kind) {
	case sensor.KindBMP280, sensor.KindBME280, sensor.KindINA219:
		if s.Channels != 3 {
			return fmt.Errorf("sensor %s: %s sensors have 3 channels, got %d", s.Name, s.Kind, s.Channels)
		}
	case sensor.KindADC:
		if s.I2C.Channel < 0 || s.I2C.Channel > 3 {
			return fmt.Errorf("sensor %s: adc channel must be 0..3, got %d", s.Name, s.I2C.Channel)
		}
	case sensor.KindSerial:
		if s.Serial.Port == "" {
			return fmt.Errorf("sensor %s: serial.port is required", s.Name)
		}
	case sensor.KindSNMP:
		if s.SNMP.Target == "" {
			return fmt.Errorf("sensor %s: snmp.target is required", s.Name)
		}
		if len(s.SNMP.OIDs) != s.Channels {
			return fmt.Errorf("sensor %s: snmp needs one oid per channel, got %d for %d", s.Name, len(s.SNMP.OIDs), s.Channels)
		}
	}
	return nil
}
