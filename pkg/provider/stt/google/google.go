// Package google provides an STT provider backed by Google Cloud
// Speech-to-Text. It performs a synchronous batch Recognize call per recorded
// file, which comfortably covers interview answers (Google's synchronous API
// limit is one minute of audio; longer answers should use the groq provider).
//
// Authentication uses Application Default Credentials; set
// GOOGLE_APPLICATION_CREDENTIALS or run inside a credentialed environment.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/candivox/candivox/pkg/provider/stt"
)

const (
	defaultLanguage   = "en-US"
	defaultSampleRate = 44100
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Google Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 recognition language (e.g., "en-US", "de-DE").
// Defaults to "en-US".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the expected sample rate of submitted recordings in Hz.
// Must match the capture configuration. Defaults to 44100.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// Provider implements stt.Provider using Google Cloud Speech-to-Text.
type Provider struct {
	client     *speech.Client
	language   string
	sampleRate int
}

// New creates a new Google Provider. Client construction validates the
// credential chain; an environment without usable credentials fails here.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("google: create speech client: %w", err)
	}
	p := &Provider{
		client:     client,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

// TranscribeFile implements stt.Provider. The file must be a LINEAR16 WAV
// recording matching the configured sample rate; the RIFF header is accepted
// by the API and does not need stripping.
func (p *Provider) TranscribeFile(ctx context.Context, path string) (*stt.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("google: read audio file: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("google: audio file is empty")
	}

	resp, err := p.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(p.sampleRate),
			LanguageCode:    p.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("google: recognize %q: %w", path, err)
	}

	result := &stt.Result{Language: p.language}
	var totalSeconds float64
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if result.Text != "" {
			result.Text += " "
		}
		result.Text += alt.Transcript
		// Recognize returns per-segment confidence; keep the lowest so the
		// caller sees the weakest link, not an inflated average.
		if result.Confidence == 0 || float64(alt.Confidence) < result.Confidence {
			result.Confidence = float64(alt.Confidence)
		}
		if end := r.ResultEndTime; end != nil {
			totalSeconds = end.AsDuration().Seconds()
		}
	}
	result.Duration = time.Duration(totalSeconds * float64(time.Second))
	return result, nil
}
