package retry

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrNoAttempts is returned by Do when the policy allows zero attempts.
var ErrNoAttempts = errors.New("retry: policy allows no attempts")

// Strategy yields the wait between consecutive attempts.
type Strategy interface {
	// NextDelay returns the next delay and whether another attempt is allowed
	NextDelay() (time.Duration, bool)
	// Reset returns the strategy to its initial state
	Reset()
}

// ExponentialBackoff grows the delay by Multiplier each attempt, capped at
// MaxDelay, with ±20% jitter.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int

	currentDelay time.Duration
	retryCount   int
	mu           sync.Mutex
}

// NewExponentialBackoff creates an exponential strategy.
func NewExponentialBackoff(initialDelay, maxDelay time.Duration, multiplier float64, maxRetries int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   multiplier,
		MaxRetries:   maxRetries,
		currentDelay: initialDelay,
	}
}

func (e *ExponentialBackoff) NextDelay() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.MaxRetries > 0 && e.retryCount >= e.MaxRetries {
		return 0, false
	}

	delay := time.Duration(float64(e.currentDelay) * (0.8 + 0.4*rand.Float64()))

	e.currentDelay = time.Duration(float64(e.currentDelay) * e.Multiplier)
	if e.currentDelay > e.MaxDelay {
		e.currentDelay = e.MaxDelay
	}
	e.retryCount++

	return delay, true
}

func (e *ExponentialBackoff) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentDelay = e.InitialDelay
	e.retryCount = 0
}

// LinearBackoff waits the same Delay before every retry.
type LinearBackoff struct {
	Delay      time.Duration
	MaxRetries int

	retryCount int
	mu         sync.Mutex
}

// NewLinearBackoff creates a fixed-delay strategy. A zero maxRetries
// leaves the attempt count to the Policy.
func NewLinearBackoff(delay time.Duration, maxRetries int) *LinearBackoff {
	return &LinearBackoff{
		Delay:      delay,
		MaxRetries: maxRetries,
	}
}

func (l *LinearBackoff) NextDelay() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.MaxRetries > 0 && l.retryCount >= l.MaxRetries {
		return 0, false
	}

	l.retryCount++
	return l.Delay, true
}

func (l *LinearBackoff) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retryCount = 0
}

// Policy bounds how many times an operation runs and how long to wait
// between runs.
type Policy struct {
	MaxAttempts int
	// NewStrategy builds a fresh strategy per Do call. Nil means no wait.
	NewStrategy func() Strategy
	// OnFailure is called after every failed attempt, attempts counted from 1.
	OnFailure func(attempt int, err error)
}

// Do runs op until it succeeds, the attempt budget or strategy is
// exhausted, or ctx is done. It returns the last op error, or the context
// error if ctx ended while waiting.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	if p.MaxAttempts <= 0 {
		return ErrNoAttempts
	}

	var strategy Strategy
	if p.NewStrategy != nil {
		strategy = p.NewStrategy()
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = op(ctx, attempt); err == nil {
			return nil
		}
		if p.OnFailure != nil {
			p.OnFailure(attempt, err)
		}
		if attempt == p.MaxAttempts {
			break
		}

		var delay time.Duration
		if strategy != nil {
			var ok bool
			if delay, ok = strategy.NextDelay(); !ok {
				break
			}
		}
		if delay <= 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
