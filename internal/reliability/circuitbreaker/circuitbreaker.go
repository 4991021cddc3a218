// Package circuitbreaker provides fast-fail protection for agency
// endpoints that fail repeatedly. Each source gets its own breaker so a
// broken state portal cannot suppress federal fetches.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a request outright
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker tracks consecutive failures against one upstream source
type Breaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	lastFailure      time.Time
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
}

// New creates a breaker that opens after failureThreshold consecutive
// failures and closes again after successThreshold half-open successes.
func New(failureThreshold, successThreshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
	}
}

// Allow reports whether a request may proceed, transitioning open ->
// half-open once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	default:
		if time.Since(b.lastFailure) > b.cooldown {
			b.state = StateHalfOpen
			b.failures = 0
			b.successes = 0
			return true
		}
		return false
	}
}

// RecordSuccess notes a successful call
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure notes a failed call and may trip the breaker open
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
			b.failures = 0
			b.successes = 0
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.failures = 0
		b.successes = 0
	}
}

// CurrentState returns the breaker state
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Group manages one breaker per named source
type Group struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	factory  func() *Breaker
}

// NewGroup creates a breaker group with a shared configuration
func NewGroup(failureThreshold, successThreshold int, cooldown time.Duration) *Group {
	return &Group{
		breakers: map[string]*Breaker{},
		factory: func() *Breaker {
			return New(failureThreshold, successThreshold, cooldown)
		},
	}
}

// For returns the breaker for a source, creating it on first use
func (g *Group) For(source string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[source]
	if !ok {
		b = g.factory()
		g.breakers[source] = b
	}
	return b
}
