package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the state of a Breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen rejects a call while the breaker is open, or while another
// trial call is running against a half-open breaker.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive tripping failures that open
	// the circuit.
	Threshold int
	// Cooldown is how long the circuit stays open before one trial call is
	// let through.
	Cooldown time.Duration
	// OnChange is called on every state transition, under the breaker lock.
	OnChange func(from, to CircuitState)
}

// DefaultBreakerConfig opens after 5 failures and tries again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}
}

// Breaker stops calling a failing secondary scorer until it has had time to
// recover. Only failures whose Kind trips count. One breaker is shared by
// every worker of a run.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	trial    bool

	now func() time.Time
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// State returns the current state. An open breaker whose cooldown has
// passed reports half-open.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return b.state
}

// Call runs fn unless the breaker rejects it, and records the outcome.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		b.transition(CircuitHalfOpen)
		b.trial = true
		return nil
	case CircuitHalfOpen:
		if b.trial {
			return ErrCircuitOpen
		}
		b.trial = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasTrial := b.state == CircuitHalfOpen && b.trial
	if wasTrial {
		b.trial = false
	}

	// A canceled call says nothing about the API.
	if err != nil && Classify(err) == KindCanceled {
		return
	}
	if err == nil || !Classify(err).Trips() {
		b.failures = 0
		if wasTrial {
			b.transition(CircuitClosed)
		}
		return
	}

	b.failures++
	switch {
	case wasTrial:
		b.open()
	case b.state == CircuitClosed && b.failures >= b.cfg.Threshold:
		b.open()
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(CircuitOpen)
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	if from != to && b.cfg.OnChange != nil {
		b.cfg.OnChange(from, to)
	}
}
