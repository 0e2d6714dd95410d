package measurement

import (
	"context"
	"sync"
	"time"
)

// DefaultTickInterval is the emitter period when none is configured.
const DefaultTickInterval = 500 * time.Millisecond

// Tick reports measurement time. Elapsed is always set; Remaining only
// when counting down.
type Tick struct {
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
	Countdown bool          `json:"countdown"`
}

// Emitter emits elapsed time every interval, or remaining time when
// started with a budget, and signals completion when the budget is spent.
type Emitter struct {
	interval time.Duration
	onTick   func(Tick)
	onDone   func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEmitter creates an idle emitter. onDone is called from the emitter
// goroutine and must not call Stop.
func NewEmitter(interval time.Duration, onTick func(Tick), onDone func()) *Emitter {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if onTick == nil {
		onTick = func(Tick) {}
	}
	if onDone == nil {
		onDone = func() {}
	}
	return &Emitter{interval: interval, onTick: onTick, onDone: onDone}
}

// Interval returns the tick period.
func (e *Emitter) Interval() time.Duration {
	return e.interval
}

// Start counts up when budget <= 0 and down from budget otherwise. It is a
// no-op while running.
func (e *Emitter) Start(budget time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runningLocked() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx, budget, e.done)
}

// Stop halts the emitter and waits for it. It is a no-op when idle.
func (e *Emitter) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
	e.done = nil
}

// Running reports whether the emitter is ticking.
func (e *Emitter) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runningLocked()
}

func (e *Emitter) runningLocked() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *Emitter) run(ctx context.Context, budget time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	countdown := budget > 0
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Whole intervals, so jitter never skips or repeats a value.
		elapsed := time.Duration(n) * e.interval
		if !countdown {
			e.onTick(Tick{Elapsed: elapsed})
			continue
		}

		remaining := budget - elapsed
		if remaining <= 0 {
			e.onDone()
			return
		}
		e.onTick(Tick{Elapsed: elapsed, Remaining: remaining, Countdown: true})
	}
}
