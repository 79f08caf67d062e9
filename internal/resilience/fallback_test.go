package resilience

import (
	"errors"
	"testing"
	"time"
)

// The group under test models the STT chain: a hosted primary ("groq") with a
// self-hosted fallback ("whisper").
func newSTTGroup(cfg FallbackConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("groq", "groq", cfg)
	fg.AddFallback("whisper", "whisper")
	return fg
}

func TestFallbackGroupPrefersPrimary(t *testing.T) {
	fg := newSTTGroup(FallbackConfig{})

	var used string
	err := fg.Execute(func(backend string) error {
		used = backend
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "groq" {
		t.Fatalf("used %q, want the primary", used)
	}
}

func TestFallbackGroupFailsOverToNext(t *testing.T) {
	fg := newSTTGroup(FallbackConfig{})

	var used string
	err := fg.Execute(func(backend string) error {
		if backend == "groq" {
			return errSpeechAPI
		}
		used = backend
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "whisper" {
		t.Fatalf("used %q, want the fallback", used)
	}
}

func TestFallbackGroupAllProvidersDown(t *testing.T) {
	fg := newSTTGroup(FallbackConfig{})

	err := fg.Execute(func(string) error { return errSpeechAPI })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroupSkipsTrippedPrimary(t *testing.T) {
	fg := newSTTGroup(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})

	// Two straight primary failures trip its breaker; the turns still
	// complete via the fallback.
	for i := 0; i < 2; i++ {
		err := fg.Execute(func(backend string) error {
			if backend == "groq" {
				return errSpeechAPI
			}
			return nil
		})
		if err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	// With the primary's breaker open it is not even called.
	primaryCalls := 0
	var used string
	err := fg.Execute(func(backend string) error {
		if backend == "groq" {
			primaryCalls++
		}
		used = backend
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if primaryCalls != 0 {
		t.Fatal("tripped primary must be skipped without a call")
	}
	if used != "whisper" {
		t.Fatalf("used %q, want the fallback", used)
	}
}

func TestExecuteWithResultReturnsTranscript(t *testing.T) {
	fg := newSTTGroup(FallbackConfig{})

	transcript, err := ExecuteWithResult(fg, func(backend string) (string, error) {
		return "so, tell me about your last role (" + backend + ")", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if transcript != "so, tell me about your last role (groq)" {
		t.Fatalf("transcript = %q", transcript)
	}
}

func TestExecuteWithResultFailsOver(t *testing.T) {
	fg := newSTTGroup(FallbackConfig{})

	transcript, err := ExecuteWithResult(fg, func(backend string) (string, error) {
		if backend == "groq" {
			return "", errSpeechAPI
		}
		return "transcribed locally", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if transcript != "transcribed locally" {
		t.Fatalf("transcript = %q", transcript)
	}
}

func TestExecuteWithResultAllFail(t *testing.T) {
	fg := NewFallbackGroup("groq", "groq", FallbackConfig{})

	_, err := ExecuteWithResult(fg, func(string) (string, error) {
		return "", errSpeechAPI
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
