package queue

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// TestCircuitBreakerRaceCondition hammers the breaker from many goroutines
// while it moves between states.
func TestCircuitBreakerRaceCondition(t *testing.T) {
	cb := NewCircuitBreaker(2, 100*time.Millisecond)

	var wg sync.WaitGroup
	numGoroutines := 100
	numCallsPerGoroutine := 50

	cb.Call(func() error { return errors.New("error 1") })
	cb.Call(func() error { return errors.New("error 2") })

	time.Sleep(150 * time.Millisecond)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numCallsPerGoroutine; j++ {
				if j%3 == 0 {
					cb.Call(func() error { return nil })
				} else {
					cb.Call(func() error { return errors.New("test error") })
				}
			}
		}()
	}

	wg.Wait()
	t.Logf("circuit breaker final state: %v", cb.State())
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 0)
	boom := errors.New("disk full")

	for i := 0; i < 2; i++ {
		if err := cb.Call(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}
	if cb.State() != CircuitBreakerClosed {
		t.Fatalf("expected closed after 2 failures, got %v", cb.State())
	}

	// A success resets the consecutive failure count.
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		cb.Call(func() error { return boom })
	}
	if cb.State() != CircuitBreakerOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}
	if !errors.Is(cb.LastError(), boom) {
		t.Errorf("expected last error boom, got %v", cb.LastError())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitBreakerOpen) || called {
		t.Fatalf("open breaker must reject calls, got err=%v called=%v", err, called)
	}
}

func TestCircuitBreakerWithoutTimeoutStaysOpen(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(1, 0)
	cb.now = func() time.Time { return now }

	cb.Call(func() error { return errors.New("fail") })
	now = now.Add(24 * time.Hour)

	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Fatalf("expected breaker to stay open, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(1, time.Second)
	cb.now = func() time.Time { return now }

	cb.Call(func() error { return errors.New("fail") })
	if cb.State() != CircuitBreakerOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	now = now.Add(2 * time.Second)
	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("half-open call %d failed: %v", i, err)
		}
	}
	if cb.State() != CircuitBreakerClosed {
		t.Fatalf("expected closed after recovery, got %v", cb.State())
	}
}
