// Command candivox is the main entry point for the Candivox interview
// assistant server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/candivox/candivox/internal/app"
	"github.com/candivox/candivox/internal/config"
	"github.com/candivox/candivox/internal/observe"
	"github.com/candivox/candivox/pkg/provider/llm"
	"github.com/candivox/candivox/pkg/provider/llm/anyllm"
	llmmock "github.com/candivox/candivox/pkg/provider/llm/mock"
	openaillm "github.com/candivox/candivox/pkg/provider/llm/openai"
	"github.com/candivox/candivox/pkg/provider/stt"
	googlestt "github.com/candivox/candivox/pkg/provider/stt/google"
	"github.com/candivox/candivox/pkg/provider/stt/groq"
	sttmock "github.com/candivox/candivox/pkg/provider/stt/mock"
	"github.com/candivox/candivox/pkg/provider/stt/whisper"
	"github.com/candivox/candivox/pkg/provider/tts"
	"github.com/candivox/candivox/pkg/provider/tts/coqui"
	"github.com/candivox/candivox/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/candivox/candivox/pkg/provider/tts/mock"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "candivox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "candivox: %v\n", err)
		}
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("candivox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first so every subsystem records against the shared meter.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "candivox",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithVersion(version))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Hot-reload log level and interview settings on config file changes.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if config.LogLevelChanged(old, new) {
			logLevel.Set(new.SlogLevel())
			slog.Info("log level updated", "level", new.Server.LogLevel)
		}
		if config.InterviewChanged(old, new) {
			application.Manager().SetTemperature(new.Interview.Temperature)
			application.Manager().SetContextWindow(new.Interview.ContextWindow)
			application.Pipeline().SetSystemPromptEachTurn(new.Interview.UseSystemPrompt)
			application.Pipeline().SetPlayReplies(new.Interview.PlayReplies)
			if new.Interview.SystemPrompt != old.Interview.SystemPrompt {
				application.Store().SetSystemPrompt("", new.Interview.SystemPrompt)
			}
			slog.Info("interview settings updated")
		}
		if config.RestartRequired(old, new) {
			slog.Warn("config changes require a restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// groq, anthropic, gemini, deepseek and mistral all go through the same
	// multi-backend client: optional APIKey + optional BaseURL.
	for _, providerName := range []string{"groq", "anthropic", "gemini", "deepseek", "mistral"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// openai uses the official SDK directly for exact token accounting.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		return openaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("groq", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []groq.Option
		if entry.Model != "" {
			opts = append(opts, groq.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, groq.WithBaseURL(entry.BaseURL))
		}
		if lang := config.StringOption(entry, "language", ""); lang != "" {
			opts = append(opts, groq.WithLanguage(lang))
		}
		return groq.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []googlestt.Option
		if lang := config.StringOption(entry, "language", ""); lang != "" {
			opts = append(opts, googlestt.WithLanguage(lang))
		}
		return googlestt.New(ctx, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.StringOption(entry, "language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if voice := config.StringOption(entry, "voice", ""); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		if format := config.StringOption(entry, "output_format", ""); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := config.StringOption(entry, "language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker := config.StringOption(entry, "speaker", ""); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Mock ──────────────────────────────────────────────────────────────────
	// The "mock" providers back the zero-config defaults so the server runs end
	// to end without any API keys.

	reg.RegisterLLM("mock", func(entry config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "Tell me about your most recent project."},
		}, nil
	})

	reg.RegisterSTT("mock", func(entry config.ProviderEntry) (stt.Provider, error) {
		return sttmock.New("(mock transcript)"), nil
	})

	reg.RegisterTTS("mock", func(entry config.ProviderEntry) (tts.Provider, error) {
		return ttsmock.New(), nil
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{
		LLMName: cfg.Providers.LLM.Name,
		STTName: cfg.Providers.STT.Name,
		TTSName: cfg.Providers.TTS.Name,
	}

	var err error
	if ps.LLM, err = reg.CreateLLM(cfg.Providers.LLM); err != nil {
		return nil, err
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	if ps.STT, err = reg.CreateSTT(cfg.Providers.STT); err != nil {
		return nil, err
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	if ps.TTS, err = reg.CreateTTS(cfg.Providers.TTS); err != nil {
		return nil, err
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	for _, entry := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, err
		}
		ps.LLMFallbacks = append(ps.LLMFallbacks, app.Named[llm.Provider]{Name: entry.Name, Provider: p})
		slog.Info("fallback provider created", "kind", "llm", "name", entry.Name)
	}
	for _, entry := range cfg.Providers.STTFallbacks {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, err
		}
		ps.STTFallbacks = append(ps.STTFallbacks, app.Named[stt.Provider]{Name: entry.Name, Provider: p})
		slog.Info("fallback provider created", "kind", "stt", "name", entry.Name)
	}
	for _, entry := range cfg.Providers.TTSFallbacks {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, err
		}
		ps.TTSFallbacks = append(ps.TTSFallbacks, app.Named[tts.Provider]{Name: entry.Name, Provider: p})
		slog.Info("fallback provider created", "kind", "tts", "name", entry.Name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Candivox — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fallbacks := len(cfg.Providers.LLMFallbacks) + len(cfg.Providers.STTFallbacks) + len(cfg.Providers.TTSFallbacks)
	fmt.Printf("║  Fallbacks       : %-19d ║\n", fallbacks)
	if cfg.Archive.PostgresDSN != "" {
		fmt.Printf("║  Turn archive    : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Turn archive    : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
