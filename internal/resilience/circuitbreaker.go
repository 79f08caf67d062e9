// Package resilience keeps interview turns flowing when a hosted speech or
// language provider degrades.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open) that
// stops hammering a provider once it fails repeatedly. [FallbackGroup] stacks
// alternative providers of the same kind behind per-provider breakers, so a
// turn routes around an outage instead of stalling the candidate; the typed
// wrappers ([LLMFallback], [STTFallback], [TTSFallback]) expose that as the
// ordinary provider interfaces.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and its cool-off has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-off
	// elapses.
	StateOpen

	// StateHalfOpen lets a small number of trial calls through to see
	// whether the provider recovered.
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

// Defaults sized for interview turns: a candidate speaks roughly every half
// minute, so three straight failures already span a noticeable stretch of the
// interview, and a 20s cool-off usually means the very next turn retries the
// provider.
const (
	defaultTripAfter = 3
	defaultCoolOff   = 20 * time.Second
	defaultTrialMax  = 2
)

// CircuitBreakerConfig holds the tuning knobs for a [CircuitBreaker].
// Zero-value fields take the package defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, usually the provider name.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before trial calls
	// are allowed.
	ResetTimeout time.Duration

	// HalfOpenMax caps the trial calls permitted in the half-open state.
	HalfOpenMax int
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name      string
	tripAfter int
	coolOff   time.Duration
	trialMax  int

	mu         sync.Mutex
	state      State
	failStreak int
	openedAt   time.Time
	trials     int
	trialFails int
}

// NewCircuitBreaker builds a breaker from cfg, substituting defaults for
// zero-value fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      cfg.Name,
		tripAfter: cfg.MaxFailures,
		coolOff:   cfg.ResetTimeout,
		trialMax:  cfg.HalfOpenMax,
		state:     StateClosed,
	}
	if cb.tripAfter <= 0 {
		cb.tripAfter = defaultTripAfter
	}
	if cb.coolOff <= 0 {
		cb.coolOff = defaultCoolOff
	}
	if cb.trialMax <= 0 {
		cb.trialMax = defaultTrialMax
	}
	return cb
}

// Execute runs fn unless the breaker refuses the call. Open breakers return
// [ErrCircuitOpen] without invoking fn; half-open breakers admit at most
// HalfOpenMax trial calls.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()
	cb.settle(trial, err)
	return err
}

// admit decides whether a call may proceed and reports whether it counts as a
// half-open trial.
func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.coolOff {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trials = 0
		cb.trialFails = 0
		slog.Info("circuit breaker trying trial calls", "name", cb.name)

	case StateHalfOpen:
		if cb.trials >= cb.trialMax {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.trials++
		return true, nil
	}
	return false, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if !trial {
			cb.failStreak = 0
			return
		}
		if cb.trials-cb.trialFails >= cb.trialMax {
			cb.state = StateClosed
			cb.failStreak = 0
			cb.trials = 0
			cb.trialFails = 0
			slog.Info("circuit breaker closed", "name", cb.name)
		}
		return
	}

	cb.openedAt = time.Now()
	if trial {
		// One bad trial sends the breaker straight back to open.
		cb.trialFails++
		cb.state = StateOpen
		cb.failStreak = cb.tripAfter
		slog.Warn("circuit breaker re-opened", "name", cb.name)
		return
	}

	cb.failStreak++
	if cb.failStreak >= cb.tripAfter {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name, "consecutive_failures", cb.failStreak)
	}
}

// State reports the breaker's state. An open breaker whose cool-off has
// elapsed reports [StateHalfOpen]; the stored transition happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.coolOff {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failStreak = 0
	cb.trials = 0
	cb.trialFails = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}
