// Package resilience provides retry and circuit breaker guards for calls to
// the external OCR, DLP and generation services.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when a call is rejected because the service's
// breaker is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerState is the state of a Breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// Breaker stops calling a service after a run of consecutive failures and
// lets a single trial call through once the reset timeout has passed.
type Breaker struct {
	name      string
	threshold int
	reset     time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker creates a closed breaker for the named service.
func NewBreaker(name string, threshold int, reset time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if reset <= 0 {
		reset = time.Minute
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		reset:     reset,
		state:     StateClosed,
		now:       time.Now,
	}
}

// Guard runs fn through the breaker. A nil breaker runs fn directly.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if b == nil {
		return fn(ctx)
	}
	var zero T
	if err := b.allow(); err != nil {
		return zero, eris.Wrapf(err, "%s", b.name)
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.reset {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) >= b.reset {
		b.setState(StateHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		return
	}
	if err == nil {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.openedAt = b.now()
		b.setState(StateOpen)
	case b.state == StateClosed && b.failures >= b.threshold:
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(to BreakerState) {
	if b.state == to {
		return
	}
	zap.L().Warn("circuit breaker state change",
		zap.String("service", b.name),
		zap.String("from", string(b.state)),
		zap.String("to", string(to)),
	)
	b.state = to
}

// Breakers hands out one Breaker per service name.
type Breakers struct {
	threshold int
	reset     time.Duration

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers creates a registry whose breakers share threshold and reset.
func NewBreakers(threshold int, reset time.Duration) *Breakers {
	return &Breakers{threshold: threshold, reset: reset, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for service, creating it on first use. A nil
// registry returns nil, which Guard treats as pass-through.
func (r *Breakers) Get(service string) *Breaker {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[service]
	if !ok {
		b = NewBreaker(service, r.threshold, r.reset)
		r.breakers[service] = b
	}
	return b
}

// States returns a snapshot of every breaker's state.
func (r *Breakers) States() map[string]BreakerState {
	r.mu.Lock()
	all := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		all = append(all, b)
	}
	r.mu.Unlock()

	out := make(map[string]BreakerState, len(all))
	for _, b := range all {
		out[b.name] = b.State()
	}
	return out
}
