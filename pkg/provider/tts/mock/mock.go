// Package mock provides a configurable in-memory text-to-speech provider
// for tests. Synthesize writes a small placeholder file so callers that
// check for the output's existence behave as they would with a real backend.
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/candivox/candivox/pkg/provider/tts"
)

// SynthesizeCall records one Synthesize invocation.
type SynthesizeCall struct {
	Text    string
	OutPath string
}

// Provider is a mock tts.Provider that records calls and returns
// configurable results.
type Provider struct {
	mu sync.Mutex

	// Err is returned from Synthesize when non-nil; no file is written.
	Err error
	// SynthesizeFunc, when set, handles Synthesize entirely.
	SynthesizeFunc func(ctx context.Context, text, outPath string) (string, error)
	// Voices is returned from ListVoices.
	Voices []tts.VoiceProfile

	calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// New creates a mock provider with a single default voice.
func New() *Provider {
	return &Provider{
		Voices: []tts.VoiceProfile{{ID: "mock-voice", Name: "Mock Voice", Provider: "mock"}},
	}
}

func (p *Provider) Synthesize(ctx context.Context, text, outPath string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Text: text, OutPath: outPath})
	p.mu.Unlock()

	if p.SynthesizeFunc != nil {
		return p.SynthesizeFunc(ctx, text, outPath)
	}
	if p.Err != nil {
		return "", p.Err
	}
	if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
		return "", err
	}
	return outPath, nil
}

func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return p.Voices, nil
}

// Calls returns the Synthesize invocations recorded so far.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	copy(out, p.calls)
	return out
}
