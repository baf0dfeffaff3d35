package videomodel

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the admission state of a provider circuit breaker.
type BreakerState int

const (
	// BreakerClosed admits all calls.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the recovery window passes.
	BreakerOpen
	// BreakerHalfOpen admits probe calls after the recovery window.
	BreakerHalfOpen
)

// String returns the lowercase state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker trips after consecutive failures against one provider so a dead
// upstream sheds load fast instead of eating the full retry budget of every
// task. A probe is admitted once the recovery window passes; its outcome
// closes or re-opens the circuit.
type Breaker struct {
	mu                  sync.Mutex
	model               string
	threshold           int
	recovery            time.Duration
	state               BreakerState
	consecutiveFailures int
	lastFailure         time.Time
}

// NewBreaker builds a breaker for the named model: open after 3 consecutive
// failures, probe again after 30 seconds.
func NewBreaker(model string) *Breaker {
	return &Breaker{
		model:     model,
		threshold: 3,
		recovery:  30 * time.Second,
		state:     BreakerClosed,
	}
}

// Allow reports whether a call may proceed now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.lastFailure) < b.recovery {
			return false
		}
		b.state = BreakerHalfOpen
		return true
	default:
		return true
	}
}

// Success records a successful provider call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	if b.state != BreakerClosed {
		b.state = BreakerClosed
		slog.Info("model circuit closed", slog.String("model", b.model))
	}
}

// Failure records a failed provider call and opens the circuit at the
// threshold. A failed half-open probe re-opens immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	b.lastFailure = time.Now()
	if b.state == BreakerHalfOpen || b.consecutiveFailures >= b.threshold {
		if b.state != BreakerOpen {
			slog.Warn("model circuit opened",
				slog.String("model", b.model),
				slog.Int("consecutive_failures", b.consecutiveFailures))
		}
		b.state = BreakerOpen
	}
}

// State returns the current admission state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerSet keys breakers by model name, creating them on first use.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet builds an empty set.
func NewBreakerSet() *BreakerSet {
	return &BreakerSet{breakers: make(map[string]*Breaker)}
}

// For returns the breaker for model, creating it if needed.
func (s *BreakerSet) For(model string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[model]; ok {
		return b
	}
	b := NewBreaker(model)
	s.breakers[model] = b
	return b
}
