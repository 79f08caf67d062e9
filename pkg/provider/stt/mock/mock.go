// Package mock provides a configurable in-memory speech-to-text provider
// for tests.
package mock

import (
	"context"
	"sync"

	"github.com/candivox/candivox/pkg/provider/stt"
)

// Provider is a mock stt.Provider that records calls and returns
// configurable results.
type Provider struct {
	mu sync.Mutex

	// Result is returned from TranscribeFile when TranscribeFunc is nil.
	Result *stt.Result
	// Err is returned from TranscribeFile when non-nil.
	Err error
	// TranscribeFunc, when set, handles TranscribeFile entirely.
	TranscribeFunc func(ctx context.Context, path string) (*stt.Result, error)

	calls []string
}

var _ stt.Provider = (*Provider)(nil)

// New creates a mock provider that transcribes everything to text.
func New(text string) *Provider {
	return &Provider{Result: &stt.Result{Text: text, Confidence: 1.0}}
}

func (p *Provider) TranscribeFile(ctx context.Context, path string) (*stt.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, path)
	p.mu.Unlock()

	if p.TranscribeFunc != nil {
		return p.TranscribeFunc(ctx, path)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result != nil {
		res := *p.Result
		return &res, nil
	}
	return &stt.Result{}, nil
}

// Calls returns the file paths passed to TranscribeFile so far.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}
