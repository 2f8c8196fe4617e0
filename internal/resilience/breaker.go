// Package resilience guards calls to flaky upstream dependencies.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/formlab/formd/internal/metrics"
)

// State of a breaker. Closed passes calls through, open fails them fast,
// half-open lets a probe through after the cooldown.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned without invoking the wrapped call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Breaker trips after a number of consecutive failures and recovers
// through a half-open probe once the cooldown has passed.
type Breaker struct {
	mu       sync.Mutex
	name     string
	state    State
	failures int

	threshold int
	cooldown  time.Duration
	openedAt  time.Time

	clock clock
}

// Option adjusts a Breaker at construction time.
type Option func(*Breaker)

// WithClock substitutes the time source, for tests.
func WithClock(c clock) Option {
	return func(b *Breaker) { b.clock = c }
}

// NewBreaker returns a closed breaker. A non-positive threshold defaults to
// 3 consecutive failures, a non-positive cooldown to 30 seconds.
func NewBreaker(name string, threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	b := &Breaker{
		name:      name,
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(b)
	}

	metrics.SetBreakerState(b.name, string(b.state))
	return b
}

// Execute runs fn unless the breaker is open. Any error from fn counts as a
// failure; ErrCircuitOpen is returned without calling fn at all.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clock.Now().Sub(b.openedAt) > b.cooldown {
			b.transitionTo(StateHalfOpen)
			return true
		}
		return false
	default:
		// Closed always passes. Half-open passes probes without limiting
		// concurrency; a single failed probe re-opens the breaker.
		return true
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++

	if b.state == StateHalfOpen {
		metrics.IncBreakerTrip(b.name, "probe_failed")
		b.transitionTo(StateOpen)
		return
	}
	if b.state == StateClosed && b.failures >= b.threshold {
		metrics.IncBreakerTrip(b.name, "threshold")
		b.transitionTo(StateOpen)
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != StateClosed {
		b.transitionTo(StateClosed)
	}
}

// transitionTo must be called with the lock held.
func (b *Breaker) transitionTo(next State) {
	if b.state == next {
		return
	}
	b.state = next
	if next == StateOpen {
		b.openedAt = b.clock.Now()
	}
	metrics.SetBreakerState(b.name, string(next))
}
