package queue

import "errors"

var (
	ErrQueueClosed        = errors.New("queue is closed")
	ErrQueueFull          = errors.New("queue is full")
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)
