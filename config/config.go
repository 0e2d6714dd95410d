// Package config loads the sensormon configuration from YAML or TOML files
// with fallback to defaults that run without any hardware attached.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by loadConfigFromFile when no candidate file exists.
var ErrNotFound = errors.New("configuration file not found in any of the expected locations")

// AppConfig represents the complete application configuration
type AppConfig struct {
	Log         LogConfig         `yaml:"log" toml:"log"`
	Measurement MeasurementConfig `yaml:"measurement" toml:"measurement"`
	Output      OutputConfig      `yaml:"output" toml:"output"`
	Sensors     []SensorConfig    `yaml:"sensors" toml:"sensors"`
	Web         WebConfig         `yaml:"web" toml:"web"`
	MQTT        MQTTConfig        `yaml:"mqtt" toml:"mqtt"`
	Timeouts    TimeoutConfig     `yaml:"timeouts" toml:"timeouts"`

	// File is the path the configuration was read from, empty for defaults.
	File string `yaml:"-" toml:"-"`
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text or json
}

// MeasurementConfig holds the run-wide measurement settings
type MeasurementConfig struct {
	HistorySize    int           `yaml:"history_size" toml:"history_size"`
	UpdateInterval time.Duration `yaml:"update_interval" toml:"update_interval"`
	QueueCapacity  int           `yaml:"queue_capacity" toml:"queue_capacity"`
	Countdown      time.Duration `yaml:"countdown" toml:"countdown"` // 0 counts up until stopped
}

// OutputConfig describes where and how readings are persisted
type OutputConfig struct {
	Path             string        `yaml:"path" toml:"path"`
	Prefix           string        `yaml:"prefix" toml:"prefix"`
	Extensions       []string      `yaml:"extensions" toml:"extensions"`
	Separator        string        `yaml:"separator" toml:"separator"`
	PollInterval     time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	FailureThreshold int           `yaml:"failure_threshold" toml:"failure_threshold"`
}

// SensorConfig describes one sensor and the settings of its source kind.
// Only the section matching Kind is used.
type SensorConfig struct {
	Name       string        `yaml:"name" toml:"name"`
	Kind       string        `yaml:"kind" toml:"kind"`
	DeviceType string        `yaml:"device_type,omitempty" toml:"device_type"`
	Channels   int           `yaml:"channels" toml:"channels"`
	Offsets    []float64     `yaml:"offsets,omitempty" toml:"offsets"`
	Colors     []string      `yaml:"colors,omitempty" toml:"colors"`
	Units      []string      `yaml:"units,omitempty" toml:"units"`
	Interval   time.Duration `yaml:"interval" toml:"interval"`
	Active     bool          `yaml:"active" toml:"active"`

	Simulation SimConfig    `yaml:"simulation,omitempty" toml:"simulation"`
	I2C        I2CConfig    `yaml:"i2c,omitempty" toml:"i2c"`
	Serial     SerialConfig `yaml:"serial,omitempty" toml:"serial"`
	SNMP       SNMPConfig   `yaml:"snmp,omitempty" toml:"snmp"`
}

// SimConfig contains simulation parameters
type SimConfig struct {
	Min float64 `yaml:"min" toml:"min"`
	Max float64 `yaml:"max" toml:"max"`
}

// I2CConfig covers the adc, bmp280, bme280 and ina219 kinds
type I2CConfig struct {
	Bus        string  `yaml:"bus,omitempty" toml:"bus"`
	Address    uint16  `yaml:"address,omitempty" toml:"address"`
	Channel    int     `yaml:"channel,omitempty" toml:"channel"`         // adc input
	MaxVoltage float64 `yaml:"max_voltage,omitempty" toml:"max_voltage"` // adc full scale
	SeaLevel   float64 `yaml:"sea_level,omitempty" toml:"sea_level"`     // bmx280 reference, hPa
}

// SerialConfig contains serial port settings
type SerialConfig struct {
	Port      string        `yaml:"port,omitempty" toml:"port"`
	BaudRate  int           `yaml:"baud_rate,omitempty" toml:"baud_rate"`
	Separator string        `yaml:"separator,omitempty" toml:"separator"`
	Request   string        `yaml:"request,omitempty" toml:"request"`
	Timeout   time.Duration `yaml:"timeout,omitempty" toml:"timeout"`
}

// SNMPConfig contains SNMP agent settings
type SNMPConfig struct {
	Target    string        `yaml:"target,omitempty" toml:"target"`
	Port      uint16        `yaml:"port,omitempty" toml:"port"`
	Community string        `yaml:"community,omitempty" toml:"community"`
	OIDs      []string      `yaml:"oids,omitempty" toml:"oids"`
	Timeout   time.Duration `yaml:"timeout,omitempty" toml:"timeout"`
	Retries   int           `yaml:"retries,omitempty" toml:"retries"`
}

// WebConfig contains HTTP server configuration
type WebConfig struct {
	Enabled      bool          `yaml:"enabled" toml:"enabled"`
	Port         int           `yaml:"port" toml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
}

// MQTTConfig contains the optional reading publisher settings
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled" toml:"enabled"`
	Broker      string        `yaml:"broker" toml:"broker"` // host:port
	ClientID    string        `yaml:"client_id" toml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix" toml:"topic_prefix"`
	Format      string        `yaml:"format" toml:"format"` // json or proto
	QoS         byte          `yaml:"qos" toml:"qos"`
	Buffer      int           `yaml:"buffer" toml:"buffer"`
	KeepAlive   time.Duration `yaml:"keep_alive" toml:"keep_alive"`
}

// TimeoutConfig contains shutdown timeouts
type TimeoutConfig struct {
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	WebShutdownTimeout time.Duration `yaml:"web_shutdown_timeout" toml:"web_shutdown_timeout"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" toml:"connect_timeout"`
}

// Load reads the configuration from configPath or the first file found in
// the search list, falling back to defaults when none exists. Unlike a
// missing file, parse and validation errors are returned.
func Load(configPath string) (*AppConfig, error) {
	config, err := loadConfigFromFile(configPath)
	if errors.Is(err, ErrNotFound) {
		config = defaultConfig()
	} else if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", config.File, err)
	}
	return config, nil
}

// searchPaths lists the candidate files tried after an explicit path.
func searchPaths(configPath string) []string {
	return []string{
		configPath,
		"sensormon.yaml",
		"sensormon.yml",
		"sensormon.toml",
		"config/sensormon.yaml",
		"config/sensormon.yml",
		"/etc/sensormon/sensormon.yaml",
	}
}

// loadConfigFromFile attempts to load configuration from a YAML or TOML file
func loadConfigFromFile(configPath string) (*AppConfig, error) {
	var configFile string
	for _, path := range searchPaths(configPath) {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			configFile = path
			break
		}
	}
	if configFile == "" {
		return nil, ErrNotFound
	}

	config, err := decode(configFile)
	if err != nil {
		return nil, err
	}
	config.File = configFile

	applyDefaults(config)
	return config, nil
}

func decode(path string) (*AppConfig, error) {
	var config AppConfig

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return &config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *AppConfig {
	config := &AppConfig{}
	applyDefaults(config)
	return config
}

// Default returns the configuration used when no file is found.
func Default() *AppConfig {
	return defaultConfig()
}

// defaultSensors mirrors the stock sensor list: two distance sensors and a
// weather sensor, simulated so they run on any machine.
func defaultSensors() []SensorConfig {
	return []SensorConfig{
		{
			Name:       "Distance Sensor 1",
			Kind:       "simulated",
			DeviceType: "DistanceSensor_GP2Y0A710K0F",
			Channels:   1,
			Colors:     []string{"#FF0000"},
			Units:      []string{"cm"},
			Active:     true,
			Simulation: SimConfig{Min: 1.4, Max: 2.5},
		},
		{
			Name:       "Distance Sensor 2",
			Kind:       "simulated",
			DeviceType: "DistanceSensor_GP2Y0A21YK0F",
			Channels:   1,
			Colors:     []string{"#00FF00"},
			Units:      []string{"cm"},
			Simulation: SimConfig{Min: 0.29, Max: 2.2},
		},
		{
			Name:       "Weather Sensor",
			Kind:       "simulated",
			Channels:   3,
			Colors:     []string{"#FF0000", "#00FF00", "#0000FF"},
			Units:      []string{"C", "hPa", "m"},
			Simulation: SimConfig{Min: 0, Max: 40},
		},
	}
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *AppConfig) {
	// Log defaults
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	// Measurement defaults
	if config.Measurement.HistorySize == 0 {
		config.Measurement.HistorySize = 100
	}
	if config.Measurement.UpdateInterval == 0 {
		config.Measurement.UpdateInterval = 500 * time.Millisecond
	}
	if config.Measurement.QueueCapacity == 0 {
		config.Measurement.QueueCapacity = 4096
	}

	// Output defaults
	if config.Output.Path == "" {
		config.Output.Path = "./"
	}
	if config.Output.Prefix == "" {
		config.Output.Prefix = "Measurement"
	}
	if len(config.Output.Extensions) == 0 {
		config.Output.Extensions = []string{"csv"}
	}
	if config.Output.Separator == "" {
		config.Output.Separator = ","
	}
	if config.Output.PollInterval == 0 {
		config.Output.PollInterval = 75 * time.Millisecond
	}
	if config.Output.FailureThreshold == 0 {
		config.Output.FailureThreshold = 3
	}

	// Sensor defaults
	if len(config.Sensors) == 0 {
		config.Sensors = defaultSensors()
	}
	for i := range config.Sensors {
		applySensorDefaults(&config.Sensors[i], config.Measurement.UpdateInterval)
	}

	// Web defaults
	if config.Web.Port == 0 {
		config.Web.Port = 8080
	}
	if config.Web.ReadTimeout == 0 {
		config.Web.ReadTimeout = 10 * time.Second
	}
	if config.Web.WriteTimeout == 0 {
		config.Web.WriteTimeout = 10 * time.Second
	}
	if config.Web.IdleTimeout == 0 {
		config.Web.IdleTimeout = 120 * time.Second
	}

	// MQTT defaults
	if config.MQTT.Broker == "" {
		config.MQTT.Broker = "localhost:1883"
	}
	if config.MQTT.ClientID == "" {
		config.MQTT.ClientID = "sensormon"
	}
	if config.MQTT.TopicPrefix == "" {
		config.MQTT.TopicPrefix = "sensormon"
	}
	if config.MQTT.Format == "" {
		config.MQTT.Format = "json"
	}
	if config.MQTT.Buffer == 0 {
		config.MQTT.Buffer = 256
	}
	if config.MQTT.KeepAlive == 0 {
		config.MQTT.KeepAlive = 30 * time.Second
	}

	// Timeout defaults
	if config.Timeouts.ShutdownTimeout == 0 {
		config.Timeouts.ShutdownTimeout = 10 * time.Second
	}
	if config.Timeouts.WebShutdownTimeout == 0 {
		config.Timeouts.WebShutdownTimeout = 5 * time.Second
	}
	if config.Timeouts.ConnectTimeout == 0 {
		config.Timeouts.ConnectTimeout = 5 * time.Second
	}
}

func applySensorDefaults(s *SensorConfig, interval time.Duration) {
	if s.Kind == "" {
		s.Kind = "simulated"
	}
	if s.Channels == 0 {
		switch s.Kind {
		case "bmp280", "bme280", "ina219":
			s.Channels = 3
		case "snmp":
			s.Channels = max(len(s.SNMP.OIDs), 1)
		default:
			s.Channels = 1
		}
	}
	if s.Interval == 0 {
		s.Interval = interval
	}
	if s.Kind == "simulated" && s.Simulation.Min == 0 && s.Simulation.Max == 0 {
		s.Simulation = SimConfig{Min: -3, Max: 3}
	}
}

// GenerateExampleConfig creates an example configuration file. The format
// follows the file extension.
func GenerateExampleConfig(outputPath string) error {
	config := defaultConfig()

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(outputPath), ".toml") {
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(config)
		data = []byte(sb.String())
	} else {
		data, err = yaml.Marshal(config)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", outputPath, err)
	}

	return nil
}
