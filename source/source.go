// Package source implements the reading operations sampled by sensormon:
// simulated values, single-channel ADC reads, multi-value I²C devices,
// serial line devices and SNMP agents.
package source

import (
	"context"
	"errors"
	"fmt"
)

// Source produces one multi-value reading per call. Sample returns exactly
// Channels() values or an error.
type Source interface {
	Sample(ctx context.Context) ([]float64, error)
	Channels() int
	Name() string
	Close() error
}

var (
	ErrClosed          = errors.New("source is closed")
	ErrNotInitialized  = errors.New("source not initialized")
	ErrUnknownKind     = errors.New("unknown acquisition kind")
	ErrUnknownDevice   = errors.New("unknown device type")
	ErrInvalidResponse = errors.New("invalid device response")
)

// AcquisitionError reports a failed read. The sampler skips the cycle.
type AcquisitionError struct {
	Source string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition from %s failed: %v", e.Source, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

func acquisitionError(name string, err error) error {
	return &AcquisitionError{Source: name, Err: err}
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc struct {
	N    int
	ID   string
	Read func(ctx context.Context) ([]float64, error)
}

// Func returns a Source with n channels backed by fn.
func Func(name string, n int, fn func(ctx context.Context) ([]float64, error)) *SourceFunc {
	return &SourceFunc{N: n, ID: name, Read: fn}
}

func (f *SourceFunc) Sample(ctx context.Context) ([]float64, error) {
	values, err := f.Read(ctx)
	if err != nil {
		return nil, acquisitionError(f.ID, err)
	}
	return values, nil
}

func (f *SourceFunc) Channels() int { return f.N }
func (f *SourceFunc) Name() string  { return f.ID }
func (f *SourceFunc) Close() error  { return nil }

var _ Source = (*SourceFunc)(nil)
