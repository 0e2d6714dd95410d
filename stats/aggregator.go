// Package stats keeps bounded rolling statistics for one sensor.
package stats

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DefaultHistorySize is the number of values kept per channel when no size
// is configured.
const DefaultHistorySize = 100

// quantileAccuracy is the relative accuracy of the per-channel sketches.
const quantileAccuracy = 0.01

// ErrChannelMismatch is returned by Add when a reading does not carry one
// value per channel.
var ErrChannelMismatch = errors.New("reading channel count does not match sensor")

// ErrNonFinite is returned by Add for readings holding NaN or an infinity.
var ErrNonFinite = errors.New("reading holds a non-finite value")

// Quantiles holds approximate percentiles of every value seen in the run.
type Quantiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P99 float64 `json:"p99"`
}

// Snapshot is a consistent copy of an aggregator's state. It shares no
// memory with the aggregator.
type Snapshot struct {
	Channels  int         `json:"channels"`
	Current   []float64   `json:"current"`
	Min       []float64   `json:"min"`
	Max       []float64   `json:"max"`
	Avg       []float64   `json:"avg"`
	Sum       []float64   `json:"sum"`
	Count     int         `json:"count"`
	Timestamp time.Time   `json:"timestamp"`
	History   [][]float64 `json:"history"`
	Quantiles []Quantiles `json:"quantiles,omitempty"`
	Capacity  int         `json:"history_size"`
}

// Empty reports whether no value has been added since the last Clear.
func (s Snapshot) Empty() bool {
	return s.Count == 0
}

// Aggregator holds current, min, max, sum, count, average and the last H
// values of each channel of one sensor. Add is called only by the owning
// sampler; Snapshot may be called from any goroutine.
type Aggregator struct {
	mu sync.Mutex

	channels int
	size     int

	current   []float64
	min       []float64
	max       []float64
	sum       []float64
	avg       []float64
	count     int
	timestamp time.Time
	history   []*ring
	sketches  []*ddsketch.DDSketch
}

// New creates an aggregator for the given channel count and history size.
func New(channels, historySize int) *Aggregator {
	if channels < 1 {
		channels = 1
	}
	if historySize < 1 {
		historySize = DefaultHistorySize
	}

	a := &Aggregator{
		channels: channels,
		size:     historySize,
		current:  make([]float64, channels),
		min:      make([]float64, channels),
		max:      make([]float64, channels),
		sum:      make([]float64, channels),
		avg:      make([]float64, channels),
		history:  make([]*ring, channels),
		sketches: make([]*ddsketch.DDSketch, channels),
	}
	for c := range channels {
		a.history[c] = newRing(historySize)
	}
	a.reset()
	return a
}

// Channels returns the channel count.
func (a *Aggregator) Channels() int {
	return a.channels
}

// HistorySize returns the configured history bound.
func (a *Aggregator) HistorySize() int {
	return a.size
}

// Add records one reading.
func (a *Aggregator) Add(values []float64, at time.Time) error {
	if len(values) != a.channels {
		return ErrChannelMismatch
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.timestamp = at

	for c, v := range values {
		a.current[c] = v
		a.history[c].push(v)
		a.min[c] = math.Min(a.min[c], v)
		a.max[c] = math.Max(a.max[c], v)
		a.sum[c] += v
		a.avg[c] = a.sum[c] / float64(a.count)
		// Values beyond the sketch's indexable range are left out of the
		// quantiles; min, max and avg still include them.
		if a.sketches[c] != nil {
			_ = a.sketches[c].Add(v)
		}
	}
	return nil
}

// Clear returns the aggregator to its empty state.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

func (a *Aggregator) reset() {
	a.count = 0
	a.timestamp = time.Time{}
	for c := range a.channels {
		a.current[c] = 0
		a.min[c] = math.Inf(1)
		a.max[c] = math.Inf(-1)
		a.sum[c] = 0
		a.avg[c] = 0
		a.history[c].reset()

		sketch, err := ddsketch.NewDefaultDDSketch(quantileAccuracy)
		if err != nil {
			sketch = nil
		}
		a.sketches[c] = sketch
	}
}

// Snapshot returns a deep copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		Channels:  a.channels,
		Current:   clone(a.current),
		Min:       clone(a.min),
		Max:       clone(a.max),
		Sum:       clone(a.sum),
		Avg:       clone(a.avg),
		Count:     a.count,
		Timestamp: a.timestamp,
		History:   make([][]float64, a.channels),
		Capacity:  a.size,
	}
	for c := range a.channels {
		s.History[c] = a.history[c].values()
	}

	if a.count > 0 {
		s.Quantiles = make([]Quantiles, a.channels)
		for c, sk := range a.sketches {
			if sk == nil {
				continue
			}
			s.Quantiles[c] = Quantiles{
				P50: quantile(sk, 0.50),
				P90: quantile(sk, 0.90),
				P99: quantile(sk, 0.99),
			}
		}
	}

	return s
}

func quantile(sk *ddsketch.DDSketch, q float64) float64 {
	v, err := sk.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return v
}

func clone(in []float64) []float64 {
	out := make([]float64, len(in))
	copy(out, in)
	return out
}
