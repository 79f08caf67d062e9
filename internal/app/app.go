// Package app wires all Candivox subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until its context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithArchive, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/candivox/candivox/internal/archive"
	"github.com/candivox/candivox/internal/config"
	"github.com/candivox/candivox/internal/health"
	"github.com/candivox/candivox/internal/history"
	"github.com/candivox/candivox/internal/interview"
	"github.com/candivox/candivox/internal/resilience"
	"github.com/candivox/candivox/internal/server"
	"github.com/candivox/candivox/pkg/audio/capture"
	"github.com/candivox/candivox/pkg/provider/llm"
	"github.com/candivox/candivox/pkg/provider/stt"
	"github.com/candivox/candivox/pkg/provider/tts"
)

// Providers holds one interface value per pipeline stage, plus the optional
// ordered fallbacks for each. Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider

	// Fallbacks are keyed by provider name, in failover order.
	LLMFallbacks []Named[llm.Provider]
	STTFallbacks []Named[stt.Provider]
	TTSFallbacks []Named[tts.Provider]

	// Names of the primary providers, used for metric labels.
	LLMName string
	STTName string
	TTSName string
}

// Named pairs a provider with its configured name.
type Named[T any] struct {
	Name     string
	Provider T
}

// App owns all subsystem lifetimes for the interview assistant.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	store    *history.Store
	manager  *history.Manager
	recorder *capture.Recorder
	pipeline *interview.Pipeline
	archive  archive.TurnArchive
	srv      *server.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a conversation store instead of creating one from config.
func WithStore(s *history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithArchive injects a turn archive instead of connecting from config.
func WithArchive(ar archive.TurnArchive) Option {
	return func(a *App) { a.archive = ar }
}

// WithRecorder injects a recorder instead of auto-detecting a capture source.
func WithRecorder(r *capture.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithVersion sets the version string reported by /statusz.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}

	if providers.LLM == nil {
		return nil, fmt.Errorf("app: an llm provider is required")
	}
	if providers.STT == nil {
		return nil, fmt.Errorf("app: an stt provider is required")
	}
	if providers.TTS == nil {
		return nil, fmt.Errorf("app: a tts provider is required")
	}

	a.initStore()

	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}
	if err := a.initRecorder(); err != nil {
		return nil, fmt.Errorf("app: init recorder: %w", err)
	}
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.initServer()

	return a, nil
}

// Store returns the conversation store.
func (a *App) Store() *history.Store { return a.store }

// Pipeline returns the interview pipeline.
func (a *App) Pipeline() *interview.Pipeline { return a.pipeline }

// Manager returns the history manager, for hot-reloading interview settings.
func (a *App) Manager() *history.Manager { return a.manager }

func (a *App) initStore() {
	if a.store == nil {
		a.store = history.NewStore(a.cfg.Interview.StoragePath)
	}
	if a.cfg.Interview.SystemPrompt != "" {
		a.store.SetSystemPrompt(a.store.CurrentSession(), a.cfg.Interview.SystemPrompt)
	}

	llmProvider := a.providers.LLM
	if len(a.providers.LLMFallbacks) > 0 {
		f := resilience.NewLLMFallback(llmProvider, a.providers.LLMName, resilience.FallbackConfig{})
		for _, fb := range a.providers.LLMFallbacks {
			f.AddFallback(fb.Name, fb.Provider)
		}
		llmProvider = f
	}

	var mgrOpts []history.ManagerOption
	if a.cfg.Interview.ContextWindow > 0 {
		mgrOpts = append(mgrOpts, history.WithContextWindow(a.cfg.Interview.ContextWindow))
	}
	if a.cfg.Interview.Temperature > 0 {
		mgrOpts = append(mgrOpts, history.WithTemperature(a.cfg.Interview.Temperature))
	}
	a.manager = history.NewManager(a.store, llmProvider, mgrOpts...)
}

func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil {
		return nil
	}
	dsn := a.cfg.Archive.PostgresDSN
	if dsn == "" {
		return nil
	}
	pg, err := archive.NewPostgresArchive(ctx, dsn)
	if err != nil {
		return err
	}
	a.archive = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	slog.Info("turn archive connected")
	return nil
}

func (a *App) initRecorder() error {
	if a.recorder != nil {
		return nil
	}

	sampleRate := a.cfg.Capture.SampleRate
	if sampleRate == 0 {
		sampleRate = capture.DefaultSampleRate
	}
	channels := a.cfg.Capture.Channels
	if channels == 0 {
		channels = capture.DefaultChannels
	}

	var source capture.Source
	if cmd := a.cfg.Capture.Command; len(cmd) > 0 {
		source = capture.NewCommandSource(cmd[0], cmd[1:]...)
	} else {
		s, err := capture.DetectSource(sampleRate, channels)
		if err != nil {
			return err
		}
		source = s
	}

	a.recorder = capture.NewRecorder(source,
		capture.WithSampleRate(sampleRate),
		capture.WithChannels(channels),
	)
	return nil
}

func (a *App) initPipeline() error {
	sttProvider := a.providers.STT
	if len(a.providers.STTFallbacks) > 0 {
		f := resilience.NewSTTFallback(sttProvider, a.providers.STTName, resilience.FallbackConfig{})
		for _, fb := range a.providers.STTFallbacks {
			f.AddFallback(fb.Name, fb.Provider)
		}
		sttProvider = f
	}

	ttsProvider := a.providers.TTS
	if len(a.providers.TTSFallbacks) > 0 {
		f := resilience.NewTTSFallback(ttsProvider, a.providers.TTSName, resilience.FallbackConfig{})
		for _, fb := range a.providers.TTSFallbacks {
			f.AddFallback(fb.Name, fb.Provider)
		}
		ttsProvider = f
	}

	opts := []interview.Option{
		interview.WithArchive(a.archive),
		interview.WithSystemPromptEachTurn(a.cfg.Interview.UseSystemPrompt),
		interview.WithPlayReplies(a.cfg.Interview.PlayReplies),
		interview.WithProviderNames(a.providers.STTName, a.providers.LLMName, a.providers.TTSName),
	}
	// The player is wired whenever one exists so playback can be toggled at
	// runtime without a restart.
	if player := interview.NewPlayer(); player.Available() {
		opts = append(opts, interview.WithPlayer(player))
	} else if a.cfg.Interview.PlayReplies {
		slog.Warn("no audio player found, replies will not be played locally")
	}

	p, err := interview.NewPipeline(a.recorder, sttProvider, ttsProvider, a.manager,
		a.cfg.Interview.MediaDir, opts...)
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

func (a *App) initServer() {
	checkers := []health.Checker{
		{
			Name: "history",
			Check: func(ctx context.Context) error {
				// The snapshot file must stay writable for turns to persist.
				return a.store.CheckWritable()
			},
		},
	}
	if pg, ok := a.archive.(*archive.PostgresArchive); ok {
		checkers = append(checkers, health.Checker{Name: "archive", Check: pg.Ping})
	}

	srvCfg := server.Config{
		ListenAddr: a.cfg.Server.ListenAddr,
		Version:    a.version,
	}
	if a.cfg.Server.TLS != nil {
		srvCfg.TLSCert = a.cfg.Server.TLS.CertFile
		srvCfg.TLSKey = a.cfg.Server.TLS.KeyFile
	}

	a.srv = server.New(srvCfg, a.pipeline, a.store,
		server.WithHealth(health.New(checkers...)),
		server.WithTTS(a.providers.TTS),
	)

	// Completed turns are broadcast to websocket subscribers.
	hub := a.srv.Hub()
	a.pipeline.SetTurnHook(hub.Publish)
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running",
		"session", a.store.CurrentSession(),
		"media_dir", a.pipeline.MediaDir(),
	)
	return a.srv.Run(ctx)
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.pipeline.Recording() {
			a.pipeline.AbortRecording()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
