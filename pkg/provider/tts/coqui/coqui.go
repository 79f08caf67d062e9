// Package coqui provides a local Coqui TTS-backed provider that connects to a
// standard Coqui TTS server (ghcr.io/coqui-ai/tts-cpu) via its REST API.
// Synthesis is performed with GET /api/tts and the returned WAV is written to
// disk unchanged; the voice catalogue is retrieved from GET /details.
// It implements the tts.Provider interface.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	path, err := p.Synthesize(ctx, "Tell me about yourself.", "reply.wav")
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/candivox/candivox/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	apiTTSEndpoint  = "/api/tts"
	detailsEndpoint = "/details"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language identifier sent to the TTS server (e.g. "en").
// Defaults to "en" if not set.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSpeaker sets the speaker_id query parameter for multi-speaker models.
func WithSpeaker(speakerID string) Option {
	return func(p *Provider) {
		p.speakerID = speakerID
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements tts.Provider against a standard Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	speakerID  string
	httpClient *http.Client
}

// New creates a Coqui provider pointing at serverURL, e.g.
// "http://localhost:5002".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize performs a single GET /api/tts request and writes the returned
// WAV audio to outPath. The extension is forced to .wav.
func (p *Provider) Synthesize(ctx context.Context, text, outPath string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("coqui: text must not be empty")
	}

	params := url.Values{}
	params.Set("text", text)
	if p.speakerID != "" {
		params.Set("speaker_id", p.speakerID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	reqURL := p.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("coqui: read WAV response: %w", err)
	}

	out := outPath
	if ext := filepath.Ext(out); ext != ".wav" {
		out = strings.TrimSuffix(out, ext) + ".wav"
	}
	if err := os.WriteFile(out, wav, 0o644); err != nil {
		return "", fmt.Errorf("coqui: write WAV file: %w", err)
	}
	return out, nil
}

// detailsResponse mirrors the GET /details payload of the standard server.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// ListVoices queries GET /details and returns one profile per speaker for
// multi-speaker models, or a single profile named after the model otherwise.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read details response: %w", err)
	}

	var details detailsResponse
	if err := sonic.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}

	// Multi-speaker model: return one profile per speaker.
	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		profiles := make([]tts.VoiceProfile, 0, len(speakers))
		for _, spk := range speakers {
			profiles = append(profiles, tts.VoiceProfile{
				ID:       spk,
				Name:     spk,
				Provider: "coqui",
				Metadata: map[string]string{
					"type":       "speaker",
					"model_name": details.ModelName,
				},
			})
		}
		return profiles, nil
	}

	// Single-speaker model: one profile identified by the model name.
	return []tts.VoiceProfile{{
		ID:       details.ModelName,
		Name:     details.ModelName,
		Provider: "coqui",
		Metadata: map[string]string{
			"type":     "model",
			"language": details.Language,
		},
	}}, nil
}
