package source

import (
	"context"
	"sort"
)

// Converter maps a raw reading (usually volts) to a physical unit. Inputs
// outside the valid domain map to 0.
type Converter func(raw float64) float64

var converters = map[string]Converter{
	"DistanceSensor_GP2Y0A710K0F": DistanceGP2Y0A710K0F,
	"DistanceSensor_GP2Y0A21YK0F": DistanceGP2Y0A21YK0F,
}

// ConverterFor returns the converter registered for a device type.
func ConverterFor(deviceType string) (Converter, bool) {
	c, ok := converters[deviceType]
	return c, ok
}

// DeviceTypes lists the device types that have a converter.
func DeviceTypes() []string {
	out := make([]string, 0, len(converters))
	for k := range converters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DistanceGP2Y0A710K0F converts the output voltage of a Sharp GP2Y0A710K0F
// to centimeters. Valid between 1.4 V and 2.5 V.
func DistanceGP2Y0A710K0F(v float64) float64 {
	if v > 2.5 || v < 1.4 {
		return 0
	}
	inv := 1 / v
	return 222799*inv*inv*inv - 319655*inv*inv + 158254*inv - 25501
}

// DistanceGP2Y0A21YK0F converts the output voltage of a Sharp GP2Y0A21YK0F
// to centimeters. Valid between 0.29 V and 2.2 V.
func DistanceGP2Y0A21YK0F(v float64) float64 {
	if v > 2.2 || v < 0.29 {
		return 0
	}
	return 252.77*(1/v) - 20.237
}

// Converting applies a Converter to every channel of an inner source.
type Converting struct {
	inner   Source
	convert Converter
}

// NewConverting wraps inner with convert.
func NewConverting(inner Source, convert Converter) *Converting {
	return &Converting{inner: inner, convert: convert}
}

func (c *Converting) Sample(ctx context.Context) ([]float64, error) {
	values, err := c.inner.Sample(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = c.convert(v)
	}
	return out, nil
}

func (c *Converting) Channels() int { return c.inner.Channels() }
func (c *Converting) Name() string  { return c.inner.Name() }
func (c *Converting) Close() error  { return c.inner.Close() }

var _ Source = (*Converting)(nil)
