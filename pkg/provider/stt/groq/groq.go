// Package groq provides an STT provider backed by Groq's hosted Whisper
// models. Groq exposes an OpenAI-compatible audio transcription endpoint, so
// the official OpenAI SDK is used with the Groq base URL.
//
// Usage:
//
//	p, err := groq.New(os.Getenv("GROQ_API_KEY"),
//	    groq.WithModel("whisper-large-v3-turbo"),
//	    groq.WithLanguage("en"),
//	)
//	res, err := p.TranscribeFile(ctx, "answer.wav")
package groq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/candivox/candivox/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "distil-whisper-large-v3-en"
	defaultTimeout = 60 * time.Second
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Groq Provider.
type Option func(*Provider)

// WithModel sets the Groq Whisper model ID (e.g., "whisper-large-v3-turbo").
// Defaults to "distil-whisper-large-v3-en".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the ISO-639-1 language hint sent with each request
// (e.g., "en"). Empty lets the model auto-detect.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithBaseURL overrides the Groq API base URL. Useful for tests and for
// OpenAI-compatible proxies.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 60s, which
// accommodates multi-minute recordings on slow uplinks.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements stt.Provider against the Groq transcription endpoint.
type Provider struct {
	apiKey   string
	model    string
	language string
	baseURL  string
	timeout  time.Duration

	client oai.Client
}

// New creates a new Groq Provider. apiKey must be non-empty; a syntactically
// present but invalid key surfaces as an authentication error on the first
// TranscribeFile call rather than here.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("groq: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}

	p.client = oai.NewClient(
		option.WithAPIKey(p.apiKey),
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(&http.Client{Timeout: p.timeout}),
	)
	return p, nil
}

// TranscribeFile implements stt.Provider. The file is uploaded as-is; Groq
// accepts WAV, MP3, and most common container formats.
func (p *Provider) TranscribeFile(ctx context.Context, path string) (*stt.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("groq: open audio file: %w", err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:  f,
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}

	transcription, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("groq: transcribe %q: %w", path, err)
	}

	return &stt.Result{
		Text:     transcription.Text,
		Language: p.language,
	}, nil
}
