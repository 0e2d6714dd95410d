package measurement

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anibaldeboni/zero-paper/sensormon/logging"
	"github.com/anibaldeboni/zero-paper/sensormon/persist"
	"github.com/anibaldeboni/zero-paper/sensormon/queue"
	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
	"github.com/anibaldeboni/zero-paper/sensormon/source"
	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

var (
	ErrNoActiveSensors    = errors.New("no active sensors")
	ErrMeasurementRunning = errors.New("measurement is running")
	ErrUnknownSensor      = errors.New("unknown sensor")
	ErrSensorInactive     = errors.New("sensor is not active")
	ErrDuplicateSensor    = errors.New("duplicate sensor name")
)

// Sensor pairs a descriptor with the source it samples.
type Sensor struct {
	Descriptor sensor.Descriptor
	Source     source.Source
}

// Options configures a Controller.
type Options struct {
	HistorySize   int
	QueueCapacity int
	TickInterval  time.Duration
	Persist       persist.Options
	Taps          []Tap
	Logger        *slog.Logger
}

// Status describes one sensor for display.
type Status struct {
	Descriptor sensor.Descriptor `json:"descriptor"`
	Selected   bool              `json:"selected"`
	Running    bool              `json:"running"`
	Fault      string            `json:"fault,omitempty"`
	Produced   uint64            `json:"produced"`
	Skipped    uint64            `json:"skipped"`
	Rows       uint64            `json:"rows"`
	Dropped    uint64            `json:"dropped"`
	Files      []string          `json:"files,omitempty"`
}

// Info describes the current or last measurement run.
type Info struct {
	Running   bool          `json:"running"`
	RunID     string        `json:"run_id,omitempty"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Countdown time.Duration `json:"countdown"`
	Warnings  []string      `json:"warnings,omitempty"`
}

type entry struct {
	desc    sensor.Descriptor
	src     source.Source
	agg     *stats.Aggregator
	sampler *sensor.Sampler
	queue   *queue.Handoff[sensor.Reading]
}

// Controller owns every sensor's aggregator and sampler, starts and stops
// measurement runs and routes events to the observer.
//
// Start, Stop and SetActive are serialized by the lifecycle lock. Queries
// only take the short state lock, so observers may call them at any time.
type Controller struct {
	opts   Options
	obs    Observer
	logger *slog.Logger

	entries []*entry
	byName  map[string]*entry

	lifecycle sync.Mutex
	writer    *persist.Writer
	emitter   *Emitter
	gen       atomic.Uint64

	state     sync.RWMutex
	running   bool
	runID     string
	startedAt time.Time
	countdown time.Duration

	selected atomic.Pointer[string]
}

// New creates an idle controller. The first active sensor is selected.
func New(sensors []Sensor, opts Options, obs Observer) (*Controller, error) {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = stats.DefaultHistorySize
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}

	c := &Controller{
		opts:   opts,
		obs:    obs,
		logger: logging.Or(opts.Logger, "controller"),
		byName: make(map[string]*entry, len(sensors)),
	}

	persistOpts := opts.Persist
	persistOpts.OnWarning = c.obs.OnWarning
	if persistOpts.Logger == nil && opts.Logger != nil {
		persistOpts.Logger = opts.Logger.With("component", "writer")
	}
	c.writer = persist.NewWriter(persistOpts)

	for _, s := range sensors {
		if err := s.Descriptor.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[s.Descriptor.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSensor, s.Descriptor.Name)
		}

		e := &entry{
			desc: s.Descriptor,
			src:  s.Source,
			agg:  stats.New(s.Descriptor.Channels, opts.HistorySize),
		}
		var samplerLogger *slog.Logger
		if opts.Logger != nil {
			samplerLogger = opts.Logger.With("component", "sampler", "sensor", s.Descriptor.Name)
		}
		e.sampler = sensor.NewSampler(s.Descriptor, s.Source, e.agg, sensor.Hooks{
			OnReading: c.onReading(e),
			OnFault:   c.onFault,
		}, samplerLogger)

		c.entries = append(c.entries, e)
		c.byName[e.desc.Name] = e
	}

	if first := c.firstActive(); first != "" {
		c.selected.Store(&first)
	}
	return c, nil
}

func (c *Controller) onReading(e *entry) func(sensor.Descriptor, sensor.Reading) {
	return func(d sensor.Descriptor, r sensor.Reading) {
		for _, tap := range c.opts.Taps {
			tap.OnSample(d, r)
		}
		if c.Selected() == d.Name {
			c.obs.OnReading(d.Name, e.agg.Snapshot())
		}
	}
}

func (c *Controller) onFault(d sensor.Descriptor, err error) {
	c.logger.Error("sensor fault", "sensor", d.Name, "error", err)
	c.obs.OnFault(d.Name, err)
}

// Start begins a measurement over every active sensor. A positive
// countdown ends the run automatically. Start is a no-op while running.
func (c *Controller) Start(countdown time.Duration) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.Running() {
		return nil
	}

	c.state.RLock()
	var active []*entry
	for _, e := range c.entries {
		if e.desc.Active {
			active = append(active, e)
		}
	}
	c.state.RUnlock()

	if len(active) == 0 {
		return ErrNoActiveSensors
	}

	runID := uuid.NewString()
	targets := make([]persist.Target, 0, len(active))
	for _, e := range active {
		e.agg.Clear()
		e.queue = queue.NewHandoff[sensor.Reading](c.opts.QueueCapacity)
		e.sampler.Attach(e.queue)
		targets = append(targets, persist.Target{Descriptor: e.desc, Queue: e.queue})
	}

	for _, w := range c.writer.Start(targets, runID) {
		c.obs.OnWarning(w)
	}

	for _, e := range active {
		e.sampler.Start()
	}

	gen := c.gen.Add(1)
	c.emitter = NewEmitter(c.opts.TickInterval, c.obs.OnTick, func() {
		go c.finish(gen)
	})
	c.emitter.Start(countdown)

	c.state.Lock()
	c.running = true
	c.runID = runID
	c.startedAt = time.Now()
	c.countdown = max(countdown, 0)
	c.state.Unlock()

	c.logger.Info("measurement started", "run_id", runID, "sensors", len(active), "countdown", countdown)
	return nil
}

// Stop ends the measurement: samplers first, then the writer drains and
// closes every file, then the emitter. It is a no-op when idle.
func (c *Controller) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	if !c.Running() {
		return nil
	}

	var g errgroup.Group
	for _, e := range c.entries {
		if e.queue == nil {
			continue
		}
		g.Go(func() error {
			e.sampler.Stop()
			return nil
		})
	}
	_ = g.Wait()

	err := c.writer.Stop()
	c.emitter.Stop()

	for _, e := range c.entries {
		if e.queue == nil {
			continue
		}
		e.sampler.Detach()
		e.queue.Close()
		e.queue = nil
	}

	c.state.Lock()
	c.running = false
	runID := c.runID
	c.state.Unlock()

	if err != nil {
		c.logger.Error("measurement stopped with errors", "run_id", runID, "error", err)
	} else {
		c.logger.Info("measurement stopped", "run_id", runID)
	}
	return err
}

// finish ends a run whose countdown ran out. Runs stopped or replaced in
// the meantime are left alone.
func (c *Controller) finish(gen uint64) {
	c.lifecycle.Lock()
	if c.gen.Load() != gen || !c.Running() {
		c.lifecycle.Unlock()
		return
	}
	if err := c.stopLocked(); err != nil {
		c.obs.OnWarning(err)
	}
	c.lifecycle.Unlock()

	c.obs.OnFinished()
}

// Close stops any running measurement and closes every source.
func (c *Controller) Close() error {
	errs := []error{c.Stop()}
	for _, e := range c.entries {
		if e.src != nil {
			errs = append(errs, e.src.Close())
		}
	}
	return errors.Join(errs...)
}

// SetActive enables or disables a sensor for the next run. Disabling the
// selected sensor moves the selection to the first active one.
func (c *Controller) SetActive(name string, active bool) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.Running() {
		return ErrMeasurementRunning
	}
	e, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSensor, name)
	}

	c.state.Lock()
	e.desc.Active = active
	c.state.Unlock()

	switch sel := c.Selected(); {
	case !active && sel == name:
		next := c.firstActive()
		c.selected.Store(&next)
	case active && sel == "":
		c.selected.Store(&name)
	}
	return nil
}

// Select makes name the observed sensor and publishes its current
// snapshot.
func (c *Controller) Select(name string) error {
	e, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSensor, name)
	}

	c.state.RLock()
	active := e.desc.Active
	c.state.RUnlock()
	if !active {
		return fmt.Errorf("%w: %s", ErrSensorInactive, name)
	}

	c.selected.Store(&name)
	c.obs.OnReading(name, e.agg.Snapshot())
	return nil
}

// Selected returns the observed sensor, or "" when no sensor is active.
func (c *Controller) Selected() string {
	if p := c.selected.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Controller) firstActive() string {
	c.state.RLock()
	defer c.state.RUnlock()

	for _, e := range c.entries {
		if e.desc.Active {
			return e.desc.Name
		}
	}
	return ""
}

// Snapshot returns the statistics of any sensor.
func (c *Controller) Snapshot(name string) (stats.Snapshot, error) {
	e, ok := c.byName[name]
	if !ok {
		return stats.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownSensor, name)
	}
	return e.agg.Snapshot(), nil
}

// Sensors returns the status of every sensor in configuration order.
func (c *Controller) Sensors() []Status {
	persisted := c.writer.Stats()
	selected := c.Selected()

	c.state.RLock()
	defer c.state.RUnlock()

	out := make([]Status, 0, len(c.entries))
	for _, e := range c.entries {
		st := e.sampler.Stats()
		s := Status{
			Descriptor: e.desc,
			Selected:   e.desc.Name == selected,
			Running:    e.sampler.Running(),
			Produced:   st.Produced,
			Skipped:    st.Skipped,
		}
		if err := e.sampler.Err(); err != nil {
			s.Fault = err.Error()
		}
		if p, ok := persisted[e.desc.Name]; ok {
			s.Rows = p.Rows
			s.Dropped = p.Dropped
			s.Files = p.Files
		}
		out = append(out, s)
	}
	return out
}

// Running reports whether a measurement is in progress.
func (c *Controller) Running() bool {
	c.state.RLock()
	defer c.state.RUnlock()
	return c.running
}

// RunID returns the ID of the current or last run.
func (c *Controller) RunID() string {
	c.state.RLock()
	defer c.state.RUnlock()
	return c.runID
}

// Info describes the current or last run.
func (c *Controller) Info() Info {
	var warnings []string
	for _, w := range c.writer.Warnings() {
		warnings = append(warnings, w.Error())
	}

	c.state.RLock()
	defer c.state.RUnlock()
	return Info{
		Running:   c.running,
		RunID:     c.runID,
		StartedAt: c.startedAt,
		Countdown: c.countdown,
		Warnings:  warnings,
	}
}
