package config

import (
	"log/slog"
	"time"

	"github.com/anibaldeboni/zero-paper/sensormon/logging"
	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
	"github.com/anibaldeboni/zero-paper/sensormon/persist"
	"github.com/anibaldeboni/zero-paper/sensormon/publish"
	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
	"github.com/anibaldeboni/zero-paper/sensormon/source"
	"github.com/anibaldeboni/zero-paper/sensormon/web"
)

// LogOptions converts config to logging.Options
func (c *AppConfig) LogOptions() logging.Options {
	return logging.Options{
		Level:  logging.ParseLevel(c.Log.Level),
		Format: logging.Format(c.Log.Format),
	}
}

// Descriptors converts the sensor list to descriptors, in order
func (c *AppConfig) Descriptors() []sensor.Descriptor {
	out := make([]sensor.Descriptor, len(c.Sensors))
	for i, s := range c.Sensors {
		out[i] = s.Descriptor()
	}
	return out
}

// PersistOptions converts config to persist.Options
func (c *AppConfig) PersistOptions() persist.Options {
	sep, _ := firstRune(c.Output.Separator)
	return persist.Options{
		OutputPath:       c.Output.Path,
		Prefix:           c.Output.Prefix,
		Extensions:       append([]string(nil), c.Output.Extensions...),
		Separator:        sep,
		PollInterval:     c.Output.PollInterval,
		FailureThreshold: c.Output.FailureThreshold,
	}
}

// EmitterInterval returns the elapsed time tick period
func (c *AppConfig) EmitterInterval() time.Duration {
	return c.Measurement.UpdateInterval
}

// ControllerOptions converts config to measurement.Options
func (c *AppConfig) ControllerOptions(logger *slog.Logger) measurement.Options {
	return measurement.Options{
		HistorySize:   c.Measurement.HistorySize,
		QueueCapacity: c.Measurement.QueueCapacity,
		TickInterval:  c.EmitterInterval(),
		Persist:       c.PersistOptions(),
		Logger:        logger,
	}
}

// WebConfig converts config to web.Config
func (c *AppConfig) WebConfig() *web.Config {
	return &web.Config{
		Port:            c.Web.Port,
		ReadTimeout:     c.Web.ReadTimeout,
		WriteTimeout:    c.Web.WriteTimeout,
		IdleTimeout:     c.Web.IdleTimeout,
		ShutdownTimeout: c.Timeouts.WebShutdownTimeout,
	}
}

// PublishConfig converts config to publish.Config
func (c *AppConfig) PublishConfig() publish.Config {
	return publish.Config{
		Broker:         c.MQTT.Broker,
		ClientID:       c.MQTT.ClientID,
		TopicPrefix:    c.MQTT.TopicPrefix,
		Format:         publish.Format(c.MQTT.Format),
		QoS:            c.MQTT.QoS,
		Buffer:         c.MQTT.Buffer,
		KeepAlive:      c.MQTT.KeepAlive,
		ConnectTimeout: c.Timeouts.ConnectTimeout,
	}
}

// Descriptor converts a sensor entry to sensor.Descriptor
func (s SensorConfig) Descriptor() sensor.Descriptor {
	return sensor.Descriptor{
		Name:       s.Name,
		Kind:       sensor.Kind(s.Kind),
		DeviceType: s.DeviceType,
		Channels:   s.Channels,
		Offsets:    append([]float64(nil), s.Offsets...),
		Colors:     append([]string(nil), s.Colors...),
		Units:      append([]string(nil), s.Units...),
		Interval:   s.Interval,
		Active:     s.Active,
	}
}

// SimulatedConfig converts config to source.SimulatedConfig
func (s SensorConfig) SimulatedConfig() *source.SimulatedConfig {
	return &source.SimulatedConfig{
		Channels: s.Channels,
		Min:      s.Simulation.Min,
		Max:      s.Simulation.Max,
	}
}

// I2CConfig converts config to source.I2CConfig
func (s SensorConfig) I2CConfig() source.I2CConfig {
	return source.I2CConfig{
		Bus:     s.I2C.Bus,
		Address: s.I2C.Address,
	}
}

// ADCConfig converts config to source.ADCConfig
func (s SensorConfig) ADCConfig() source.ADCConfig {
	return source.ADCConfig{
		I2CConfig:  s.I2CConfig(),
		Channel:    s.I2C.Channel,
		MaxVoltage: s.I2C.MaxVoltage,
	}
}

// BMx280Config converts config to source.BMx280Config with driver default
// oversampling.
func (s SensorConfig) BMx280Config() source.BMx280Config {
	return source.BMx280Config{
		I2CConfig: s.I2CConfig(),
		SeaLevel:  s.I2C.SeaLevel,
	}
}

// SerialConfig converts config to source.SerialConfig
func (s SensorConfig) SerialConfig() source.SerialConfig {
	return source.SerialConfig{
		Port:      s.Serial.Port,
		BaudRate:  s.Serial.BaudRate,
		Channels:  s.Channels,
		Separator: s.Serial.Separator,
		Request:   s.Serial.Request,
		Timeout:   s.Serial.Timeout,
	}
}

// SNMPConfig converts config to source.SNMPConfig
func (s SensorConfig) SNMPConfig() source.SNMPConfig {
	return source.SNMPConfig{
		Target:    s.SNMP.Target,
		Port:      s.SNMP.Port,
		Community: s.SNMP.Community,
		OIDs:      append([]string(nil), s.SNMP.OIDs...),
		Timeout:   s.SNMP.Timeout,
		Retries:   s.SNMP.Retries,
	}
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}
