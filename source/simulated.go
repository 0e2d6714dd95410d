package source

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SimulatedConfig holds the value range of a simulated source.
type SimulatedConfig struct {
	Channels int
	Min      float64
	Max      float64
}

// DefaultSimulatedConfig returns a single channel in [-3, 3].
func DefaultSimulatedConfig() *SimulatedConfig {
	return &SimulatedConfig{
		Channels: 1,
		Min:      -3,
		Max:      3,
	}
}

// Simulated produces uniformly distributed random values for testing and
// development.
type Simulated struct {
	config *SimulatedConfig
	name   string
	rand   *rand.Rand
	mu     sync.Mutex
	closed bool
}

// NewSimulated creates a simulated source seeded from the clock.
func NewSimulated(name string, config *SimulatedConfig) *Simulated {
	return NewSimulatedWithSeed(name, config, time.Now().UnixNano())
}

// NewSimulatedWithSeed creates a simulated source with a fixed seed.
func NewSimulatedWithSeed(name string, config *SimulatedConfig, seed int64) *Simulated {
	if config == nil {
		config = DefaultSimulatedConfig()
	}
	if config.Channels < 1 {
		config.Channels = 1
	}
	if config.Max < config.Min {
		config.Min, config.Max = config.Max, config.Min
	}

	return &Simulated{
		config: config,
		name:   name,
		rand:   rand.New(rand.NewSource(seed)),
	}
}

// Sample returns one random value per channel.
func (s *Simulated) Sample(_ context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, acquisitionError(s.name, ErrClosed)
	}

	span := s.config.Max - s.config.Min
	values := make([]float64, s.config.Channels)
	for i := range values {
		values[i] = s.config.Min + s.rand.Float64()*span
	}
	return values, nil
}

func (s *Simulated) Channels() int {
	return s.config.Channels
}

func (s *Simulated) Name() string {
	return s.name
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

var _ Source = (*Simulated)(nil)
