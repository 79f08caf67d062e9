package main

import (
	"context"
	"testing"

	"github.com/candivox/candivox/internal/config"
)

// The default configuration names the "mock" provider for every kind, so the
// builtin registrations must cover it: a fresh install with no config file
// edits has to come up without API keys.
func TestBuildProvidersWithDefaultConfig(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(context.Background(), reg)

	providers, err := buildProviders(config.Default(), reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if providers.LLM == nil {
		t.Error("LLM provider is nil")
	}
	if providers.STT == nil {
		t.Error("STT provider is nil")
	}
	if providers.TTS == nil {
		t.Error("TTS provider is nil")
	}
	if providers.LLMName != "mock" || providers.STTName != "mock" || providers.TTSName != "mock" {
		t.Errorf("provider names = %q/%q/%q, want mock/mock/mock",
			providers.LLMName, providers.STTName, providers.TTSName)
	}
}
