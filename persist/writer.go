package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anibaldeboni/zero-paper/sensormon/logging"
	"github.com/anibaldeboni/zero-paper/sensormon/queue"
	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
)

const (
	DefaultPollInterval     = 75 * time.Millisecond
	DefaultFailureThreshold = 3

	maxNameAttempts = 100
)

// Options configures a Writer.
type Options struct {
	OutputPath string
	Prefix     string
	Extensions []string // defaults to csv
	Separator  rune     // defaults to ','

	PollInterval     time.Duration
	FailureThreshold int

	// OnWarning receives every non-fatal persistence problem.
	OnWarning func(err error)
	Logger    *slog.Logger
}

// Target pairs a sensor with the queue its sampler pushes to.
type Target struct {
	Descriptor sensor.Descriptor
	Queue      *queue.Handoff[sensor.Reading]
}

// SensorStats reports what the writer did for one sensor.
type SensorStats struct {
	Rows    uint64   `json:"rows"`
	Dropped uint64   `json:"dropped"`
	Files   []string `json:"files"`
}

type sinkState struct {
	ext      string
	sink     RowSink
	breaker  *queue.CircuitBreaker
	disabled bool
	dirty    bool
}

type lane struct {
	desc  sensor.Descriptor
	queue *queue.Handoff[sensor.Reading]
	sinks []*sinkState

	rows    atomic.Uint64
	dropped atomic.Uint64
}

// Writer drains every sensor queue into that sensor's output files.
// A single goroutine owns all sinks.
type Writer struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// lanes is written under both mu and laneMu. Stats only takes laneMu
	// so it never waits for a Stop that is delivering warnings.
	laneMu sync.Mutex
	lanes  []*lane

	warnMu   sync.Mutex
	warnings []error
}

// NewWriter creates a stopped writer.
func NewWriter(opts Options) *Writer {
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{"csv"}
	}
	if opts.Separator == 0 {
		opts.Separator = ','
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	return &Writer{
		opts:   opts,
		logger: logging.Or(opts.Logger, "writer"),
		now:    time.Now,
	}
}

// Start opens the output files of every target and begins draining. Files
// that cannot be opened are skipped and returned as warnings; OnWarning is
// not called for them. Start is a no-op while running.
func (w *Writer) Start(targets []Target, runID string) []error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return nil
	}

	w.warnMu.Lock()
	w.warnings = nil
	w.warnMu.Unlock()

	start := w.now().Format(StartLayout)
	sinkOpts := SinkOptions{Separator: w.opts.Separator, RunID: runID}

	var warnings []error
	lanes := make([]*lane, 0, len(targets))
	for _, t := range targets {
		l := &lane{desc: t.Descriptor, queue: t.Queue}
		for _, ext := range w.opts.Extensions {
			sink, path, err := w.openUnique(t.Descriptor, start, ext, sinkOpts)
			if err != nil {
				perr := &PersistenceError{Sensor: t.Descriptor.Name, Path: path, Err: err}
				warnings = append(warnings, perr)
				w.record(perr)
				continue
			}
			l.sinks = append(l.sinks, &sinkState{
				ext:     normalizeExt(ext),
				sink:    sink,
				breaker: queue.NewCircuitBreaker(w.opts.FailureThreshold, 0),
			})
			w.logger.Info("output file opened", "sensor", t.Descriptor.Name, "path", path)
		}
		lanes = append(lanes, l)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.laneMu.Lock()
	w.lanes = lanes
	w.laneMu.Unlock()

	go w.run(ctx, lanes, w.done)
	return warnings
}

// openUnique opens the file for d named after start. When a run started in
// the same second already owns that name, _2, _3 and so on are appended to
// the stamp. Anything other than a regular file in the way is an error.
func (w *Writer) openUnique(d sensor.Descriptor, start, ext string, opts SinkOptions) (RowSink, string, error) {
	stamp := start
	for n := 2; ; n++ {
		path := FileName(w.opts.OutputPath, w.opts.Prefix, d.Name, stamp, ext)
		sink, err := w.open(path, ext, d, opts)
		if !errors.Is(err, os.ErrExist) || n > maxNameAttempts || !isRegular(path) {
			return sink, path, err
		}
		stamp = fmt.Sprintf("%s_%d", start, n)
	}
}

func isRegular(path string) bool {
	fi, err := os.Lstat(path)
	return err == nil && fi.Mode().IsRegular()
}

func (w *Writer) open(path, ext string, d sensor.Descriptor, opts SinkOptions) (RowSink, error) {
	factory, err := factoryFor(ext)
	if err != nil {
		return nil, err
	}
	return factory(path, d, opts)
}

// Stop waits for the current pass, drains every queue to empty and closes
// every file. It returns the joined close errors and is a no-op when
// stopped.
func (w *Writer) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return nil
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	w.done = nil

	// Draining: the loop has exited, so this goroutine owns the sinks now.
	for w.pass(w.lanes) > 0 {
	}

	var errs []error
	for _, l := range w.lanes {
		for _, s := range l.sinks {
			if s.disabled {
				continue
			}
			if err := s.sink.Close(); err != nil {
				errs = append(errs, &PersistenceError{Sensor: l.desc.Name, Path: s.sink.Path(), Err: err})
			}
		}
		w.logger.Info("output closed", "sensor", l.desc.Name, "rows", l.rows.Load(), "dropped", l.dropped.Load())
	}
	return errors.Join(errs...)
}

// Running reports whether the drain loop is active.
func (w *Writer) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *Writer) run(ctx context.Context, lanes []*lane, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		w.pass(lanes)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pass visits every queue once, writing all ready items, and returns the
// number of items consumed.
func (w *Writer) pass(lanes []*lane) int {
	n := 0
	for _, l := range lanes {
		for {
			r, ok := l.queue.TryPop()
			if !ok {
				break
			}
			n++
			w.write(l, r)
		}
		w.flush(l)
	}
	return n
}

func (w *Writer) write(l *lane, r sensor.Reading) {
	written := false
	for _, s := range l.sinks {
		if s.disabled {
			continue
		}
		err := s.breaker.Call(func() error { return s.sink.WriteRow(r) })
		if err == nil {
			written = true
			s.dirty = true
			continue
		}
		w.sinkFailed(l, s, err)
	}

	if written {
		l.rows.Add(1)
	} else {
		l.dropped.Add(1)
	}
}

func (w *Writer) flush(l *lane) {
	for _, s := range l.sinks {
		if s.disabled || !s.dirty {
			continue
		}
		s.dirty = false
		if err := s.breaker.Call(s.sink.Flush); err != nil {
			w.sinkFailed(l, s, err)
		}
	}
}

// sinkFailed logs a write failure and disables the sink once its breaker
// has opened.
func (w *Writer) sinkFailed(l *lane, s *sinkState, err error) {
	if s.breaker.State() != queue.CircuitBreakerOpen {
		w.logger.Warn("write failed", "sensor", l.desc.Name, "path", s.sink.Path(), "error", err)
		return
	}

	s.disabled = true
	cause := s.breaker.LastError()
	if cause == nil {
		cause = err
	}
	if cerr := s.sink.Close(); cerr != nil {
		cause = errors.Join(cause, cerr)
	}
	w.warn(&PersistenceError{Sensor: l.desc.Name, Path: s.sink.Path(), Err: cause})
}

// warn records a failure raised while draining and passes it to OnWarning.
func (w *Writer) warn(err error) {
	w.record(err)
	if w.opts.OnWarning != nil {
		w.opts.OnWarning(err)
	}
}

func (w *Writer) record(err error) {
	w.logger.Warn("persistence disabled", "error", err)

	w.warnMu.Lock()
	w.warnings = append(w.warnings, err)
	w.warnMu.Unlock()
}

// Warnings returns the warnings raised since the last Start.
func (w *Writer) Warnings() []error {
	w.warnMu.Lock()
	defer w.warnMu.Unlock()

	out := make([]error, len(w.warnings))
	copy(out, w.warnings)
	return out
}

// Stats returns per-sensor counters of the current or last run.
func (w *Writer) Stats() map[string]SensorStats {
	w.laneMu.Lock()
	lanes := w.lanes
	w.laneMu.Unlock()

	out := make(map[string]SensorStats, len(lanes))
	for _, l := range lanes {
		files := make([]string, 0, len(l.sinks))
		for _, s := range l.sinks {
			files = append(files, s.sink.Path())
		}
		out[l.desc.Name] = SensorStats{
			Rows:    l.rows.Load(),
			Dropped: l.dropped.Load(),
			Files:   files,
		}
	}
	return out
}
