package publish

import "time"

// Format selects the payload encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatProto Format = "proto"
)

const (
	DefaultBuffer         = 256
	DefaultKeepAlive      = 30 * time.Second
	DefaultConnectTimeout = 5 * time.Second
)

// Config holds the broker connection and publishing options.
type Config struct {
	Broker         string // host:port
	ClientID       string
	TopicPrefix    string
	Format         Format
	QoS            byte
	Buffer         int // readings held while the broker is slow
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = "sensormon"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "sensormon"
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Buffer <= 0 {
		c.Buffer = DefaultBuffer
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}
