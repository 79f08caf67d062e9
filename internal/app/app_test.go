package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/candivox/candivox/internal/config"
	"github.com/candivox/candivox/pkg/audio/capture"
	"github.com/candivox/candivox/pkg/provider/llm"
	llmmock "github.com/candivox/candivox/pkg/provider/llm/mock"
	sttmock "github.com/candivox/candivox/pkg/provider/stt/mock"
	ttsmock "github.com/candivox/candivox/pkg/provider/tts/mock"
)

type silentSource struct{}

func (silentSource) Start(ctx context.Context) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Interview.StoragePath = filepath.Join(dir, "conversation.json")
	cfg.Interview.MediaDir = filepath.Join(dir, "media")
	cfg.Interview.PlayReplies = false
	return cfg
}

func testProviders() *Providers {
	return &Providers{
		LLM:     &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}},
		STT:     sttmock.New("hello"),
		TTS:     ttsmock.New(),
		LLMName: "mock",
		STTName: "mock",
		TTSName: "mock",
	}
}

func TestNewWiresSubsystems(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, testProviders(),
		WithRecorder(capture.NewRecorder(silentSource{})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.Store() == nil || a.Pipeline() == nil || a.Manager() == nil {
		t.Fatal("subsystems not wired")
	}
	if a.Pipeline().MediaDir() != cfg.Interview.MediaDir {
		t.Errorf("MediaDir = %q, want %q", a.Pipeline().MediaDir(), cfg.Interview.MediaDir)
	}
}

func TestNewRequiresProviders(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		name   string
		mutate func(*Providers)
	}{
		{"missing llm", func(p *Providers) { p.LLM = nil }},
		{"missing stt", func(p *Providers) { p.STT = nil }},
		{"missing tts", func(p *Providers) { p.TTS = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := testProviders()
			tt.mutate(ps)
			_, err := New(context.Background(), cfg, ps,
				WithRecorder(capture.NewRecorder(silentSource{})))
			if err == nil {
				t.Fatal("expected error for missing provider")
			}
		})
	}
}

func TestNewAppliesSystemPromptOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interview.SystemPrompt = "You are a calm interviewer."

	a, err := New(context.Background(), cfg, testProviders(),
		WithRecorder(capture.NewRecorder(silentSource{})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if got := a.Store().SystemPrompt(""); got != "You are a calm interviewer." {
		t.Errorf("SystemPrompt = %q", got)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, testProviders(),
		WithRecorder(capture.NewRecorder(silentSource{})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	calls := 0
	a.closers = append(a.closers, func() error {
		calls++
		return errors.New("closer failure is logged, not returned")
	})

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if calls != 1 {
		t.Errorf("closer ran %d times, want 1", calls)
	}
}
