package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when a call is short-circuited because the
// breaker for its operation class is open.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerState is the lifecycle state of a circuit breaker.
type BreakerState int

const (
	// StateClosed allows calls through and counts consecutive failures.
	StateClosed BreakerState = iota

	// StateOpen short-circuits all calls until the cool-down elapses.
	StateOpen

	// StateHalfOpen allows exactly one trial call after the cool-down.
	StateHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker. Default: 3.
	FailureThreshold int

	// CoolDown is how long the breaker stays open before allowing a
	// trial call. Default: 30s.
	CoolDown time.Duration

	// Logger, when set, records every state transition with the
	// operation class and failure count.
	Logger *slog.Logger

	// OnTransition, when set, is called with the class and new state
	// name on every transition. It runs with the breaker mutex held and
	// must not call back into the breaker.
	OnTransition func(class, state string)

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// DefaultBreaker is the standard breaker configuration.
var DefaultBreaker = BreakerConfig{
	FailureThreshold: 3,
	CoolDown:         30 * time.Second,
}

// Breaker is a circuit breaker for one protected operation class.
// Failure counters are shared across concurrent turns; all state updates
// happen under the mutex so transitions are atomic.
type Breaker struct {
	class  string
	config BreakerConfig

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	lastFailure         time.Time
	openUntil           time.Time
	trialInFlight       bool
}

// NewBreaker creates a closed breaker for an operation class.
func NewBreaker(class string, config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreaker.FailureThreshold
	}
	if config.CoolDown <= 0 {
		config.CoolDown = DefaultBreaker.CoolDown
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Breaker{class: class, config: config}
}

// Allow reports whether a call may proceed. In the open state it returns
// false until the cool-down elapses, then moves to half-open and admits
// exactly one trial call; concurrent callers are rejected until the
// trial resolves via Success or Failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.config.Clock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Before(b.openUntil) {
			return false
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return true
	case StateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return false
}

// Success records a successful call. A half-open trial success closes
// the breaker and resets the failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	b.consecutiveFailures = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// Failure records a failed call. In the closed state it opens the
// breaker once the consecutive-failure threshold is reached; a half-open
// trial failure reopens it and restarts the cool-down.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.config.Clock()
	b.lastFailure = now
	b.trialInFlight = false

	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.openUntil = now.Add(b.config.CoolDown)
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.consecutiveFailures++
		b.openUntil = now.Add(b.config.CoolDown)
		b.transition(StateOpen)
	case StateOpen:
		// Late failure report from a call admitted before opening.
		b.consecutiveFailures++
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current consecutive-failure count.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// transition updates the state and logs it. Caller holds the mutex.
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if b.config.Logger != nil {
		b.config.Logger.Info("circuit breaker transition",
			slog.String("class", b.class),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.Int("consecutive_failures", b.consecutiveFailures),
		)
	}
	if b.config.OnTransition != nil {
		b.config.OnTransition(b.class, to.String())
	}
}

// BreakerSet manages one breaker per operation class, created lazily on
// first use.
type BreakerSet struct {
	config BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet creates an empty breaker set.
func NewBreakerSet(config BreakerConfig) *BreakerSet {
	return &BreakerSet{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for an operation class, creating it if needed.
func (s *BreakerSet) For(class string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[class]
	if !ok {
		b = NewBreaker(class, s.config)
		s.breakers[class] = b
		if s.config.Logger != nil {
			s.config.Logger.Debug("circuit breaker created",
				slog.String("class", class))
		}
	}
	return b
}

// States returns a snapshot of breaker states by class.
func (s *BreakerSet) States() map[string]BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]BreakerState, len(s.breakers))
	for class, b := range s.breakers {
		out[class] = b.State()
	}
	return out
}

// Do runs fn through the breaker for class: rejected immediately with
// ErrBreakerOpen when the breaker disallows the call, otherwise the
// outcome is recorded on the breaker.
func (s *BreakerSet) Do(class string, fn func() error) error {
	b := s.For(class)
	if !b.Allow() {
		return fmt.Errorf("%w: class %s", ErrBreakerOpen, class)
	}
	if err := fn(); err != nil {
		b.Failure()
		return err
	}
	b.Success()
	return nil
}
