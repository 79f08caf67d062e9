package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every provider in a [FallbackGroup] either
// failed or was skipped because its breaker is open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is the breaker configuration applied to every provider in a
// [FallbackGroup]. The Name field is overwritten with each provider's name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// guarded pairs a provider with its own circuit breaker, so one provider's
// outage never blocks the others.
type guarded[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary provider and zero or more fallbacks of the
// same kind, tried in registration order. A provider whose breaker is open is
// skipped without a call, which is what keeps a dead transcription or voice
// backend from adding its full timeout to every turn.
//
// Register all fallbacks before the first Execute; afterwards the group is
// safe for concurrent use.
type FallbackGroup[T any] struct {
	providers []guarded[T]
	cfg       FallbackConfig
}

// NewFallbackGroup creates a group with primary as the first provider.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a provider tried after the primary and any earlier
// fallbacks.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.providers = append(fg.providers, guarded[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Execute tries fn against each provider in order until one succeeds. When
// every provider fails it returns [ErrAllFailed] wrapped around the last
// error.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(p T) (struct{}, error) {
		return struct{}{}, fn(p)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a value.
// A package-level function because methods cannot introduce type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.providers {
		p := &fg.providers[i]
		var result R
		err := p.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(p.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider skipped, breaker open", "provider", p.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", p.name, "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
