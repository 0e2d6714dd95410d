package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anibaldeboni/zero-paper/sensormon/logging"
	"github.com/anibaldeboni/zero-paper/sensormon/queue"
	"github.com/anibaldeboni/zero-paper/sensormon/source"
	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

// ErrChannelMismatch is reported when a source returns a different number
// of values than the descriptor declares.
var ErrChannelMismatch = stats.ErrChannelMismatch

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// FaultError is a condition that stopped a sampler.
type FaultError struct {
	Sensor string
	Err    error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("sensor %s stopped: %v", e.Sensor, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// Hooks are called from the sampling goroutine and must not block.
type Hooks struct {
	OnReading func(d Descriptor, r Reading)
	OnFault   func(d Descriptor, err error)
}

// SamplerStats counts sampling cycles since the last Start.
type SamplerStats struct {
	Produced uint64 `json:"produced"`
	Skipped  uint64 `json:"skipped"`
}

// Sampler repeatedly acquires readings from one source, applies offsets,
// feeds the aggregator and hands readings to the attached queue.
type Sampler struct {
	desc   Descriptor
	src    source.Source
	agg    *stats.Aggregator
	hooks  Hooks
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	queue  *queue.Handoff[Reading]
	cancel context.CancelFunc
	done   chan struct{}

	active   atomic.Bool
	err      atomic.Pointer[error]
	produced atomic.Uint64
	skipped  atomic.Uint64
}

// NewSampler creates an idle sampler.
func NewSampler(desc Descriptor, src source.Source, agg *stats.Aggregator, hooks Hooks, logger *slog.Logger) *Sampler {
	if desc.Interval <= 0 {
		desc.Interval = DefaultInterval
	}
	return &Sampler{
		desc:   desc,
		src:    src,
		agg:    agg,
		hooks:  hooks,
		logger: logging.Or(logger, "sampler").With("sensor", desc.Name),
		now:    time.Now,
	}
}

// Descriptor returns the sampler's sensor descriptor.
func (s *Sampler) Descriptor() Descriptor {
	return s.desc
}

// Attach sets the queue readings are pushed to. Ignored while running.
func (s *Sampler) Attach(q *queue.Handoff[Reading]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return
	}
	s.queue = q
}

// Detach removes the queue. Ignored while running.
func (s *Sampler) Detach() {
	s.Attach(nil)
}

// Start launches the sampling loop. It is a no-op while running.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return
	}
	if s.cancel != nil {
		// The loop stopped on its own after a fault.
		s.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.err.Store(nil)
	s.produced.Store(0)
	s.skipped.Store(0)
	s.active.Store(true)

	go s.run(ctx, s.queue, s.done)
	s.logger.Debug("sampler started", "interval", s.desc.Interval)
}

// Stop cancels the loop and waits for it to exit. No reading is produced
// after Stop returns. It is a no-op when idle.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.logger.Debug("sampler stopped", "produced", s.produced.Load(), "skipped", s.skipped.Load())
}

// Running reports whether the loop is active. It never blocks, so hooks
// and observers may call it while Stop is waiting.
func (s *Sampler) Running() bool {
	return s.active.Load()
}

func (s *Sampler) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Err returns the fault that stopped the sampler, if any.
func (s *Sampler) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Stats returns the cycle counters.
func (s *Sampler) Stats() SamplerStats {
	return SamplerStats{
		Produced: s.produced.Load(),
		Skipped:  s.skipped.Load(),
	}
}

func (s *Sampler) run(ctx context.Context, q *queue.Handoff[Reading], done chan struct{}) {
	defer close(done)
	defer s.active.Store(false)

	timer := time.NewTimer(s.desc.Interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.cycle(ctx, q); err != nil {
			if ctx.Err() != nil {
				return
			}
			var acq *source.AcquisitionError
			if !errors.As(err, &acq) {
				s.fault(err)
				return
			}
			s.skipped.Add(1)
			s.logger.Warn("acquisition failed, cycle skipped", "error", err)
		}

		timer.Reset(s.desc.Interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// cycle performs one acquisition. Acquisition failures are returned as
// *source.AcquisitionError; anything else is fatal for the sampler.
func (s *Sampler) cycle(ctx context.Context, q *queue.Handoff[Reading]) error {
	values, err := s.src.Sample(ctx)
	if err != nil {
		var acq *source.AcquisitionError
		if !errors.As(err, &acq) {
			err = &source.AcquisitionError{Source: s.src.Name(), Err: err}
		}
		return err
	}
	if len(values) != s.desc.Channels {
		return fmt.Errorf("%w: source returned %d values, sensor has %d channels",
			ErrChannelMismatch, len(values), s.desc.Channels)
	}

	r := Reading{Values: make([]float64, len(values)), Time: s.now()}
	for c, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &source.AcquisitionError{
				Source: s.src.Name(),
				Err:    fmt.Errorf("%w: channel %d is %v", source.ErrInvalidResponse, c+1, v),
			}
		}
		r.Values[c] = v + s.desc.Offset(c)
	}

	if err := s.agg.Add(r.Values, r.Time); err != nil {
		return err
	}
	if q != nil {
		if err := q.Push(r.Clone()); err != nil {
			return fmt.Errorf("hand-off to writer failed: %w", err)
		}
	}
	s.produced.Add(1)

	if s.hooks.OnReading != nil {
		s.hooks.OnReading(s.desc, r)
	}
	return nil
}

func (s *Sampler) fault(err error) {
	ferr := error(&FaultError{Sensor: s.desc.Name, Err: err})
	s.err.Store(&ferr)
	s.logger.Error("sampler stopped by fault", "error", err)
	if s.hooks.OnFault != nil {
		s.hooks.OnFault(s.desc, ferr)
	}
}
