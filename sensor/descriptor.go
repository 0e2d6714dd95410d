// Package sensor describes sensors and runs one sampling loop per sensor.
package sensor

import (
	"fmt"
	"time"
)

// Kind is the acquisition kind of a sensor.
type Kind string

const (
	KindSimulated Kind = "simulated"
	KindADC       Kind = "adc"
	KindBMP280    Kind = "bmp280"
	KindBME280    Kind = "bme280"
	KindINA219    Kind = "ina219"
	KindSerial    Kind = "serial"
	KindSNMP      Kind = "snmp"
)

// Class groups kinds by how values are acquired.
type Class int

const (
	ClassUnknown Class = iota
	ClassSimulated
	ClassSingleChannel
	ClassMultiChannel
)

func (c Class) String() string {
	switch c {
	case ClassSimulated:
		return "simulated"
	case ClassSingleChannel:
		return "single-channel"
	case ClassMultiChannel:
		return "multi-channel"
	default:
		return "unknown"
	}
}

// Kinds lists every known acquisition kind.
func Kinds() []Kind {
	return []Kind{KindSimulated, KindADC, KindBMP280, KindBME280, KindINA219, KindSerial, KindSNMP}
}

// Class returns the acquisition class of k.
func (k Kind) Class() Class {
	switch k {
	case KindSimulated:
		return ClassSimulated
	case KindADC:
		return ClassSingleChannel
	case KindBMP280, KindBME280, KindINA219, KindSerial, KindSNMP:
		return ClassMultiChannel
	default:
		return ClassUnknown
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k.Class() != ClassUnknown
}

// Descriptor is the static configuration of one sensor.
type Descriptor struct {
	Name       string        `json:"name"`
	Kind       Kind          `json:"kind"`
	DeviceType string        `json:"device_type,omitempty"`
	Channels   int           `json:"channels"`
	Offsets    []float64     `json:"offsets,omitempty"`
	Colors     []string      `json:"colors,omitempty"`
	Units      []string      `json:"units,omitempty"`
	Interval   time.Duration `json:"interval"`
	Active     bool          `json:"active"`
}

// Offset returns the offset added to channel c. An empty list means no
// offset, a single value applies to every channel.
func (d Descriptor) Offset(c int) float64 {
	switch {
	case len(d.Offsets) == 0:
		return 0
	case len(d.Offsets) == 1:
		return d.Offsets[0]
	case c >= 0 && c < len(d.Offsets):
		return d.Offsets[c]
	default:
		return 0
	}
}

// Unit returns the unit label of channel c, or "" when none is set.
func (d Descriptor) Unit(c int) string {
	return pick(d.Units, c)
}

// Color returns the display color of channel c, or "" when none is set.
func (d Descriptor) Color(c int) string {
	return pick(d.Colors, c)
}

func pick(list []string, c int) string {
	switch {
	case len(list) == 0:
		return ""
	case len(list) == 1:
		return list[0]
	case c >= 0 && c < len(list):
		return list[c]
	default:
		return ""
	}
}

// Validate checks the descriptor is self-consistent.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("sensor name is required")
	}
	if d.Channels < 1 {
		return fmt.Errorf("sensor %s: channels must be at least 1, got %d", d.Name, d.Channels)
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("sensor %s: unknown kind %q", d.Name, d.Kind)
	}
	if d.Kind == KindADC && d.Channels != 1 {
		return fmt.Errorf("sensor %s: adc sensors have exactly 1 channel, got %d", d.Name, d.Channels)
	}
	perChannel := []struct {
		field string
		n     int
	}{
		{"offsets", len(d.Offsets)},
		{"colors", len(d.Colors)},
		{"units", len(d.Units)},
	}
	for _, pc := range perChannel {
		if pc.n > 1 && pc.n != d.Channels {
			return fmt.Errorf("sensor %s: %s must have 0, 1 or %d entries, got %d", d.Name, pc.field, d.Channels, pc.n)
		}
	}
	if d.Interval <= 0 {
		return fmt.Errorf("sensor %s: interval must be positive", d.Name)
	}
	return nil
}

// StampLayout formats reading timestamps as DD.MM.YYYY-HH:MM:SS.
const StampLayout = "02.01.2006-15:04:05"

// Reading is one offset-corrected sample of all channels.
type Reading struct {
	Values []float64 `json:"values"`
	Time   time.Time `json:"time"`
}

// Stamp returns the second-resolution timestamp written to output files.
func (r Reading) Stamp() string {
	return r.Time.Format(StampLayout)
}

// Clone returns a copy that shares no memory with r.
func (r Reading) Clone() Reading {
	values := make([]float64, len(r.Values))
	copy(values, r.Values)
	return Reading{Values: values, Time: r.Time}
}
