package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// SuccessThreshold successes while half-open close it again.
	SuccessThreshold int
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// MaxProbes bounds concurrent calls while half-open.
	MaxProbes int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		MaxProbes:        1,
	}
}

// CircuitBreaker stops calls to a dependency that keeps failing. Results
// can be reported later through Record, which suits async completions.
type CircuitBreaker struct {
	config Config
	now    func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	changedAt time.Time

	onStateChange func(from, to State)
}

func New(config Config) *CircuitBreaker {
	if config.MaxProbes < 1 {
		config.MaxProbes = 1
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		config:    config,
		now:       time.Now,
		changedAt: time.Now(),
	}
}

// OnStateChange registers fn, called outside the breaker lock.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Allow reports whether a call may proceed. Every nil return must be
// followed by exactly one Record.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	var change func()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.changedAt) < cb.config.OpenTimeout {
			cb.mu.Unlock()
			return ErrOpen
		}
		change = cb.transitionLocked(StateHalfOpen)
		cb.probes++
	case StateHalfOpen:
		if cb.probes >= cb.config.MaxProbes {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.probes++
	}

	cb.mu.Unlock()
	if change != nil {
		change()
	}
	return nil
}

// Record reports the outcome of an allowed call.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	var change func()

	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
	if err != nil {
		cb.successes = 0
		cb.failures++
		switch {
		case cb.state == StateHalfOpen:
			change = cb.transitionLocked(StateOpen)
		case cb.state == StateClosed && cb.failures >= cb.config.FailureThreshold:
			change = cb.transitionLocked(StateOpen)
		}
	} else {
		cb.failures = 0
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessThreshold {
			change = cb.transitionLocked(StateClosed)
		}
	}

	cb.mu.Unlock()
	if change != nil {
		change()
	}
}

// Execute runs fn when allowed and records its result.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.Record(err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.changedAt = cb.now()
	cb.failures = 0
	cb.successes = 0
	cb.probes = 0

	fn := cb.onStateChange
	if fn == nil {
		return nil
	}
	return func() { fn(from, to) }
}
