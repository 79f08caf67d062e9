package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the provider names known to ship with Candivox,
// per provider kind. Unknown names only produce a warning during validation:
// deployments may register custom providers before starting the server.
var ValidProviderNames = map[string]map[string]bool{
	"llm": {
		"groq":      true,
		"openai":    true,
		"anthropic": true,
		"gemini":    true,
		"ollama":    true,
		"deepseek":  true,
		"mistral":   true,
		"mock":      true,
	},
	"stt": {
		"groq":    true,
		"google":  true,
		"whisper": true,
		"mock":    true,
	},
	"tts": {
		"elevenlabs": true,
		"coqui":      true,
		"mock":       true,
	},
}

// Default returns a Config populated with sensible defaults. Loading a file
// overlays the file's values on top of these.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Providers: ProvidersConfig{
			LLM: ProviderEntry{Name: "mock"},
			STT: ProviderEntry{Name: "mock"},
			TTS: ProviderEntry{Name: "mock"},
		},
		Interview: InterviewConfig{
			StoragePath:     "conversation.json",
			MediaDir:        "media",
			UseSystemPrompt: true,
			Temperature:     0.7,
			PlayReplies:     true,
		},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes, expands, and validates YAML configuration from r.
// Unknown fields are rejected so typos fail loudly instead of being silently
// ignored.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	// An empty file decodes as io.EOF and keeps the defaults.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	cfg.expandEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv resolves ${VAR} references in the secret-bearing fields so
// credentials can stay out of the config file.
func (c *Config) expandEnv() {
	expand := func(e *ProviderEntry) {
		e.APIKey = os.ExpandEnv(e.APIKey)
		e.BaseURL = os.ExpandEnv(e.BaseURL)
	}
	expand(&c.Providers.LLM)
	expand(&c.Providers.STT)
	expand(&c.Providers.TTS)
	for i := range c.Providers.LLMFallbacks {
		expand(&c.Providers.LLMFallbacks[i])
	}
	for i := range c.Providers.STTFallbacks {
		expand(&c.Providers.STTFallbacks[i])
	}
	for i := range c.Providers.TTSFallbacks {
		expand(&c.Providers.TTSFallbacks[i])
	}
	c.Archive.PostgresDSN = os.ExpandEnv(c.Archive.PostgresDSN)
}

// Validate checks the configuration for hard errors and logs warnings for
// soft issues. All hard errors are collected and returned joined so a broken
// config reports every problem in one pass.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}
	if c.Server.LogLevel != "" && !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is not one of debug, info, warn, error", c.Server.LogLevel))
	}
	if c.Server.TLS != nil {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	checkEntry := func(kind, field string, e ProviderEntry) {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name must not be empty", field))
			return
		}
		if known := ValidProviderNames[kind]; !known[e.Name] {
			slog.Warn("unrecognized provider name, assuming custom registration",
				"kind", kind, "name", e.Name)
		}
	}
	checkEntry("llm", "llm", c.Providers.LLM)
	checkEntry("stt", "stt", c.Providers.STT)
	checkEntry("tts", "tts", c.Providers.TTS)
	for i, e := range c.Providers.LLMFallbacks {
		checkEntry("llm", fmt.Sprintf("llm_fallbacks[%d]", i), e)
	}
	for i, e := range c.Providers.STTFallbacks {
		checkEntry("stt", fmt.Sprintf("stt_fallbacks[%d]", i), e)
	}
	for i, e := range c.Providers.TTSFallbacks {
		checkEntry("tts", fmt.Sprintf("tts_fallbacks[%d]", i), e)
	}

	if c.Interview.ContextWindow < 0 {
		errs = append(errs, fmt.Errorf("interview.context_window must not be negative, got %d", c.Interview.ContextWindow))
	}
	if c.Interview.Temperature < 0 || c.Interview.Temperature > 2 {
		errs = append(errs, fmt.Errorf("interview.temperature must be between 0 and 2, got %v", c.Interview.Temperature))
	}
	if c.Interview.MediaDir == "" {
		errs = append(errs, errors.New("interview.media_dir must not be empty"))
	}
	if c.Interview.StoragePath == "" {
		slog.Warn("interview.storage_path is empty, conversation history will not survive restarts")
	}

	if c.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate must not be negative, got %d", c.Capture.SampleRate))
	}
	if c.Capture.Channels < 0 || c.Capture.Channels > 2 {
		errs = append(errs, fmt.Errorf("capture.channels must be 0, 1, or 2, got %d", c.Capture.Channels))
	}
	if len(c.Capture.Command) == 1 && c.Capture.Command[0] == "" {
		errs = append(errs, errors.New("capture.command must name an executable when set"))
	}

	return errors.Join(errs...)
}

// SlogLevel converts the configured log level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Server.LogLevel {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
