// Package interview orchestrates one voice interview turn: stop the
// microphone capture, transcribe the recording, generate the interviewer's
// reply from conversation history, synthesize it to audio, and optionally
// play it back.
package interview

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/candivox/candivox/internal/archive"
	"github.com/candivox/candivox/internal/history"
	"github.com/candivox/candivox/internal/observe"
	"github.com/candivox/candivox/pkg/audio/capture"
	"github.com/candivox/candivox/pkg/provider/stt"
	"github.com/candivox/candivox/pkg/provider/tts"
)

// Turn is the result of one completed interview exchange.
type Turn struct {
	SessionID  string        `json:"session_id"`
	Transcript string        `json:"transcript"`
	Reply      string        `json:"reply"`
	Fallback   bool          `json:"fallback"`
	AudioPath  string        `json:"audio_path,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPlayer enables local playback of synthesized replies.
func WithPlayer(p *Player) Option {
	return func(pl *Pipeline) { pl.player = p }
}

// WithArchive enables durable turn archiving.
func WithArchive(a archive.TurnArchive) Option {
	return func(pl *Pipeline) { pl.archive = a }
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithLogger overrides the pipeline's logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// WithSystemPromptEachTurn controls whether the session's system prompt is
// sent on every completion rather than only on the first turn.
func WithSystemPromptEachTurn(v bool) Option {
	return func(pl *Pipeline) { pl.useSystemPrompt = v }
}

// WithPlayReplies controls whether synthesized replies are played back
// locally. Playback additionally requires a player, see WithPlayer.
func WithPlayReplies(v bool) Option {
	return func(pl *Pipeline) { pl.playReplies = v }
}

// WithTurnHook registers a callback invoked after each completed turn, e.g.
// to broadcast it to websocket subscribers. The hook runs synchronously.
func WithTurnHook(fn func(Turn)) Option {
	return func(pl *Pipeline) { pl.onTurn = fn }
}

// SetTurnHook replaces the turn callback. Call before serving traffic; the
// hook is read without synchronization during CompleteTurn.
func (pl *Pipeline) SetTurnHook(fn func(Turn)) {
	pl.onTurn = fn
}

// WithProviderNames sets the provider labels used in metrics attributes.
func WithProviderNames(sttName, llmName, ttsName string) Option {
	return func(pl *Pipeline) {
		pl.sttName, pl.llmName, pl.ttsName = sttName, llmName, ttsName
	}
}

// Pipeline drives the capture → transcribe → respond → synthesize flow.
// Safe for concurrent use, though only one capture session can be active at
// a time.
type Pipeline struct {
	recorder *capture.Recorder
	stt      stt.Provider
	tts      tts.Provider
	manager  *history.Manager
	mediaDir string

	player  *Player
	archive archive.TurnArchive
	metrics *observe.Metrics
	logger  *slog.Logger
	onTurn  func(Turn)

	// mu guards the tunables, which can be hot-reloaded at runtime.
	mu              sync.Mutex
	useSystemPrompt bool
	playReplies     bool

	sttName string
	llmName string
	ttsName string
}

// SetSystemPromptEachTurn changes whether the system prompt accompanies every
// completion.
func (pl *Pipeline) SetSystemPromptEachTurn(v bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.useSystemPrompt = v
}

// SetPlayReplies toggles local playback of synthesized replies.
func (pl *Pipeline) SetPlayReplies(v bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.playReplies = v
}

// NewPipeline creates a Pipeline. mediaDir is created if missing; recordings
// and synthesized replies are written there.
func NewPipeline(recorder *capture.Recorder, sttProvider stt.Provider, ttsProvider tts.Provider,
	manager *history.Manager, mediaDir string, opts ...Option) (*Pipeline, error) {

	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("interview: create media dir: %w", err)
	}
	p := &Pipeline{
		recorder:        recorder,
		stt:             sttProvider,
		tts:             ttsProvider,
		manager:         manager,
		mediaDir:        mediaDir,
		logger:          slog.Default(),
		useSystemPrompt: true,
		playReplies:     true,
		sttName:         "stt",
		llmName:         "llm",
		ttsName:         "tts",
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// MediaDir returns the directory holding recordings and reply audio.
func (p *Pipeline) MediaDir() string {
	return p.mediaDir
}

// Recording reports whether a capture session is active.
func (p *Pipeline) Recording() bool {
	return p.recorder.Recording()
}

// StartRecording begins capturing microphone audio for the next turn.
func (p *Pipeline) StartRecording(ctx context.Context) error {
	return p.recorder.Start(ctx)
}

// AbortRecording discards the active capture session, if any.
func (p *Pipeline) AbortRecording() {
	p.recorder.Abort()
}

// CompleteTurn stops the capture session and runs the full exchange. The
// candidate's words are transcribed, answered through the conversation
// manager, and the reply is synthesized to an audio file (and played when a
// player is configured).
//
// STT and TTS failures are returned to the caller; LLM failures have already
// been converted to the fixed recovery reply by the manager and therefore
// still produce a complete Turn with Fallback set.
func (p *Pipeline) CompleteTurn(ctx context.Context, sessionID string) (*Turn, error) {
	start := time.Now()
	stamp := start.UnixNano()

	p.mu.Lock()
	useSystemPrompt, playReplies := p.useSystemPrompt, p.playReplies
	p.mu.Unlock()

	wavPath, err := p.recorder.Stop(filepath.Join(p.mediaDir, fmt.Sprintf("capture-%d.wav", stamp)))
	if err != nil {
		return nil, err
	}

	sttStart := time.Now()
	res, err := p.stt.TranscribeFile(ctx, wavPath)
	p.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, p.sttName, "stt")
		p.metrics.RecordTurn(ctx, "error")
		return nil, fmt.Errorf("interview: transcribe: %w", err)
	}
	p.metrics.RecordProviderRequest(ctx, p.sttName, "stt", "ok")

	llmStart := time.Now()
	reply, err := p.manager.Respond(ctx, sessionID, res.Text, useSystemPrompt)
	p.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	if err != nil {
		// Persistence failed after a successful completion. The reply is
		// still usable; the snapshot will be rewritten on the next turn.
		p.logger.Error("failed to persist turn", "session_id", sessionID, "error", err)
	}
	if reply.Fallback {
		p.metrics.RecordProviderError(ctx, p.llmName, "llm")
	} else {
		p.metrics.RecordProviderRequest(ctx, p.llmName, "llm", "ok")
	}

	ttsStart := time.Now()
	audioPath, err := p.tts.Synthesize(ctx, reply.Text, filepath.Join(p.mediaDir, fmt.Sprintf("reply-%d.mp3", stamp)))
	p.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, p.ttsName, "tts")
		p.metrics.RecordTurn(ctx, "error")
		return nil, fmt.Errorf("interview: synthesize reply: %w", err)
	}
	p.metrics.RecordProviderRequest(ctx, p.ttsName, "tts", "ok")

	if p.player != nil && playReplies {
		if err := p.player.Play(ctx, audioPath); err != nil {
			p.logger.Warn("reply playback failed", "path", audioPath, "error", err)
		}
	}

	p.archiveTurn(ctx, sessionID, res.Text, reply)

	turn := Turn{
		SessionID:  p.resolveSession(sessionID),
		Transcript: res.Text,
		Reply:      reply.Text,
		Fallback:   reply.Fallback,
		AudioPath:  audioPath,
		Duration:   time.Since(start),
	}

	status := "ok"
	if reply.Fallback {
		status = "fallback"
	}
	p.metrics.RecordTurn(ctx, status)
	p.metrics.TurnDuration.Record(ctx, turn.Duration.Seconds())

	if p.onTurn != nil {
		p.onTurn(turn)
	}
	return &turn, nil
}

// archiveTurn writes the exchange to the turn archive when one is configured.
// Fallback turns are not archived since nothing was added to history either.
func (p *Pipeline) archiveTurn(ctx context.Context, sessionID, transcript string, reply history.Reply) {
	if p.archive == nil || reply.Fallback {
		return
	}
	id := p.resolveSession(sessionID)
	now := time.Now()
	for _, turn := range []archive.Turn{
		{SessionID: id, Role: string(history.RoleUser), Content: transcript, Timestamp: now},
		{SessionID: id, Role: string(history.RoleAssistant), Content: reply.Text, Timestamp: now},
	} {
		if err := p.archive.Record(ctx, turn); err != nil {
			p.logger.Warn("turn archive write failed", "session_id", id, "error", err)
		}
	}
}

// resolveSession maps an empty session ID to the store's current session.
func (p *Pipeline) resolveSession(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return p.manager.Store().CurrentSession()
}
