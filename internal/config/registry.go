package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/candivox/candivox/pkg/provider/llm"
	"github.com/candivox/candivox/pkg/provider/stt"
	"github.com/candivox/candivox/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a config names a provider that no
// factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LLMFactory constructs an LLM provider from its config entry.
type LLMFactory func(ProviderEntry) (llm.Provider, error)

// STTFactory constructs a speech-to-text provider from its config entry.
type STTFactory func(ProviderEntry) (stt.Provider, error)

// TTSFactory constructs a text-to-speech provider from its config entry.
type TTSFactory func(ProviderEntry) (tts.Provider, error)

// Registry maps provider names to constructors. The main package registers
// the built-in providers at startup; embedders may add their own before
// creating providers from config.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]LLMFactory
	stt map[string]STTFactory
	tts map[string]TTSFactory
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]LLMFactory),
		stt: make(map[string]STTFactory),
		tts: make(map[string]TTSFactory),
	}
}

// RegisterLLM registers an LLM provider factory under name, replacing any
// existing registration.
func (r *Registry) RegisterLLM(name string, f LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = f
}

// RegisterSTT registers a speech-to-text provider factory under name.
func (r *Registry) RegisterSTT(name string, f STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = f
}

// RegisterTTS registers a text-to-speech provider factory under name.
func (r *Registry) RegisterTTS(name string, f TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = f
}

// CreateLLM builds the LLM provider named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm %q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := f(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create llm provider %q: %w", entry.Name, err)
	}
	return p, nil
}

// CreateSTT builds the speech-to-text provider named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	f, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt %q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := f(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create stt provider %q: %w", entry.Name, err)
	}
	return p, nil
}

// CreateTTS builds the text-to-speech provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	f, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts %q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := f(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create tts provider %q: %w", entry.Name, err)
	}
	return p, nil
}

// StringOption fetches a string value from an entry's Options map, returning
// def when absent or of another type.
func StringOption(e ProviderEntry, key, def string) string {
	if v, ok := e.Options[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// BoolOption fetches a boolean value from an entry's Options map.
func BoolOption(e ProviderEntry, key string, def bool) bool {
	if v, ok := e.Options[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
