package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when a call is refused because the
// breaker is open. The wrapped function is not invoked.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerState is the circuit breaker state machine position.
type BreakerState int

const (
	// BreakerClosed passes calls through, counting consecutive failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen fails fast until the recovery timeout elapses.
	BreakerOpen
	// BreakerHalfOpen lets probe calls through; enough successes close
	// the breaker, one failure reopens it.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes one breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the
	// breaker from closed.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before a call
	// is allowed through as a half-open probe.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the consecutive successes in half-open needed
	// to close the breaker again.
	SuccessThreshold int
}

// DefaultBreakerConfig matches the production defaults: five failures
// open the breaker, a single success after the 60s recovery window
// closes it.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 1,
	}
}

// Breaker is a circuit breaker guarding one component. Safe for
// concurrent use.
type Breaker struct {
	name    string
	cfg     BreakerConfig
	onState func(name string, from, to BreakerState)

	// now is replaceable in tests so the recovery timeout can be
	// crossed without sleeping.
	now func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker builds a breaker named for its component. onState, when
// non-nil, is called (outside the lock) after every state transition.
func NewBreaker(name string, cfg BreakerConfig, onState func(name string, from, to BreakerState)) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	return &Breaker{
		name:    name,
		cfg:     cfg,
		onState: onState,
		now:     time.Now,
	}
}

// State returns the current state, promoting open to half-open when
// the recovery timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.transitionLocked(BreakerHalfOpen)
	}
	return b.state
}

// Call invokes fn through the breaker. While open it returns
// ErrBreakerOpen without invoking fn.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	b.mu.Lock()
	if b.stateLocked() == BreakerOpen {
		b.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", b.name, ErrBreakerOpen)
	}
	b.mu.Unlock()

	out, err := fn(ctx)
	if err != nil {
		b.recordFailure()
		return nil, err
	}
	b.recordSuccess()
	return out, nil
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case BreakerHalfOpen:
		// One failure during probing reopens and restarts the clock.
		b.transitionLocked(BreakerOpen)
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(BreakerOpen)
		}
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transitionLocked(BreakerClosed)
		}
	case BreakerClosed:
		b.failures = 0
	}
}

func (b *Breaker) transitionLocked(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	switch to {
	case BreakerOpen:
		b.openedAt = b.now()
		b.successes = 0
	case BreakerClosed:
		b.failures = 0
		b.successes = 0
	case BreakerHalfOpen:
		b.successes = 0
	}

	if b.onState != nil {
		go b.onState(b.name, from, to)
	}
}
