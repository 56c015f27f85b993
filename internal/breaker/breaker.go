// Package breaker implements a CircuitBreaker that wraps calls through a
// failing transport, stopping further CDP requests against a target whose
// WebSocket has gone unresponsive instead of piling up timeouts against it.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is one of the three circuit-breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Do when the breaker is open and rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed
	// state that trips the breaker to Open.
	FailureThreshold int
	// OpenDuration is how long the breaker stays Open before it moves to
	// HalfOpen, where calls are let through again on trial.
	OpenDuration time.Duration
	// HalfOpenSuccessThreshold is the number of consecutive HalfOpen
	// successes required before the breaker closes again.
	HalfOpenSuccessThreshold int
}

// DefaultConfig returns sensible defaults for guarding a single
// InspectorClient transport.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:         5,
		OpenDuration:             10 * time.Second,
		HalfOpenSuccessThreshold: 1,
	}
}

// Breaker guards calls to an unreliable transport. It is safe for
// concurrent use by multiple goroutines issuing calls through the same
// InspectorClient.
type Breaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	consecutiveFail int
	halfOpenSuccess int
	openedAt        time.Time
	name            string
}

// New constructs a Breaker named for logging (e.g. a session id).
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = DefaultConfig().OpenDuration
	}
	if cfg.HalfOpenSuccessThreshold <= 0 {
		cfg.HalfOpenSuccessThreshold = DefaultConfig().HalfOpenSuccessThreshold
	}
	return &Breaker{cfg: cfg, name: name, state: Closed}
}

// Do executes fn if the breaker permits it, recording the outcome.
// Returns ErrOpen without calling fn if the breaker is open and the
// open-duration cooldown has not yet elapsed.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// allow reports whether a call may proceed, transitioning Open -> HalfOpen
// once the cooldown has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.state = HalfOpen
			b.halfOpenSuccess = 0
			slog.Info("circuit breaker entering half-open", "breaker", b.name)
			return true
		}
		return false
	default:
		return false
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.onSuccess()
		return
	}
	b.onFailure()
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case HalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.HalfOpenSuccessThreshold {
			b.state = Closed
			b.consecutiveFail = 0
			slog.Info("circuit breaker closed", "breaker", b.name)
		}
	case Closed:
		b.consecutiveFail = 0
	}
}

func (b *Breaker) onFailure() {
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

// trip transitions the breaker to Open. Caller must hold mu.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	slog.Warn("circuit breaker open", "breaker", b.name, "consecutive_failures", b.consecutiveFail)
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to Closed, for explicit operator recovery.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFail = 0
	b.halfOpenSuccess = 0
}

func (b *Breaker) String() string {
	return fmt.Sprintf("breaker(%s, state=%s)", b.name, b.State())
}
