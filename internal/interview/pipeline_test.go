package interview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/candivox/candivox/internal/archive"
	"github.com/candivox/candivox/internal/history"
	"github.com/candivox/candivox/internal/observe"
	"github.com/candivox/candivox/pkg/audio/capture"
	"github.com/candivox/candivox/pkg/provider/llm"
	llmmock "github.com/candivox/candivox/pkg/provider/llm/mock"
	sttmock "github.com/candivox/candivox/pkg/provider/stt/mock"
	ttsmock "github.com/candivox/candivox/pkg/provider/tts/mock"
)

// frameSource emits one fixed PCM frame then closes.
type frameSource struct{}

func (frameSource) Start(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte, 1)
	out <- []byte{0x01, 0x02, 0x03, 0x04}
	close(out)
	return out, nil
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

type pipelineDeps struct {
	stt     *sttmock.Provider
	tts     *ttsmock.Provider
	llm     *llmmock.Provider
	manager *history.Manager
	store   *history.Store
}

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *pipelineDeps) {
	t.Helper()
	deps := &pipelineDeps{
		stt: sttmock.New("tell me about channels"),
		tts: ttsmock.New(),
		llm: &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "Channels are typed conduits."},
		},
	}
	deps.store = history.NewStore("")
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps.manager = history.NewManager(deps.store, deps.llm, history.WithLogger(quiet))

	recorder := capture.NewRecorder(frameSource{})
	opts = append(opts, WithMetrics(testMetrics(t)), WithLogger(quiet))
	p, err := NewPipeline(recorder, deps.stt, deps.tts, deps.manager, t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, deps
}

func startAndSettle(t *testing.T, p *Pipeline) {
	t.Helper()
	if err := p.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	// The stub source delivers its single frame almost instantly; give the
	// drain goroutine a moment.
	time.Sleep(20 * time.Millisecond)
}

func TestCompleteTurn(t *testing.T) {
	p, deps := newTestPipeline(t)
	sid := deps.store.NewSession()
	startAndSettle(t, p)

	turn, err := p.CompleteTurn(context.Background(), sid)
	if err != nil {
		t.Fatalf("CompleteTurn: %v", err)
	}
	if turn.Transcript != "tell me about channels" {
		t.Errorf("Transcript = %q", turn.Transcript)
	}
	if turn.Reply != "Channels are typed conduits." {
		t.Errorf("Reply = %q", turn.Reply)
	}
	if turn.Fallback {
		t.Error("Fallback set on a successful turn")
	}
	if turn.SessionID != sid {
		t.Errorf("SessionID = %q, want %q", turn.SessionID, sid)
	}
	if _, err := os.Stat(turn.AudioPath); err != nil {
		t.Errorf("reply audio missing: %v", err)
	}

	// STT must have received the recorded WAV.
	calls := deps.stt.Calls()
	if len(calls) != 1 || !strings.HasSuffix(calls[0], ".wav") {
		t.Errorf("stt calls = %v", calls)
	}

	// The exchange must be in history.
	msgs := deps.store.History(sid, 0)
	if len(msgs) != 2 {
		t.Fatalf("history has %d messages, want 2", len(msgs))
	}
}

func TestCompleteTurnWithoutRecording(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.CompleteTurn(context.Background(), "")
	if !errors.Is(err, capture.ErrNothingRecorded) {
		t.Fatalf("got %v, want ErrNothingRecorded", err)
	}
}

func TestCompleteTurnSTTFailure(t *testing.T) {
	p, deps := newTestPipeline(t)
	deps.stt.Err = errors.New("upstream 500")
	sid := deps.store.NewSession()
	startAndSettle(t, p)

	if _, err := p.CompleteTurn(context.Background(), sid); err == nil {
		t.Fatal("STT failure must surface as an error")
	}
	if len(deps.store.History(sid, 0)) != 0 {
		t.Fatal("history must stay empty when transcription fails")
	}
}

func TestCompleteTurnLLMFailureYieldsFallback(t *testing.T) {
	p, deps := newTestPipeline(t)
	deps.llm.CompleteErr = errors.New("model overloaded")
	deps.llm.CompleteResponse = nil
	sid := deps.store.NewSession()
	startAndSettle(t, p)

	turn, err := p.CompleteTurn(context.Background(), sid)
	if err != nil {
		t.Fatalf("CompleteTurn: %v", err)
	}
	if !turn.Fallback {
		t.Fatal("Fallback not set after LLM failure")
	}
	if turn.Reply != history.FallbackReply {
		t.Fatalf("Reply = %q, want the recovery reply", turn.Reply)
	}
	if len(deps.store.History(sid, 0)) != 0 {
		t.Fatal("failed turn must not be recorded")
	}
	// The recovery reply is still spoken.
	if len(deps.tts.Calls()) != 1 {
		t.Fatalf("tts calls = %d, want 1", len(deps.tts.Calls()))
	}
}

func TestCompleteTurnTTSFailure(t *testing.T) {
	p, deps := newTestPipeline(t)
	deps.tts.Err = errors.New("voice service down")
	sid := deps.store.NewSession()
	startAndSettle(t, p)

	if _, err := p.CompleteTurn(context.Background(), sid); err == nil {
		t.Fatal("TTS failure must surface as an error")
	}
	// The exchange itself succeeded and stays recorded.
	if len(deps.store.History(sid, 0)) != 2 {
		t.Fatal("history should keep the successful exchange")
	}
}

func TestTurnHook(t *testing.T) {
	var got []Turn
	p, deps := newTestPipeline(t, WithTurnHook(func(turn Turn) {
		got = append(got, turn)
	}))
	sid := deps.store.NewSession()
	startAndSettle(t, p)

	if _, err := p.CompleteTurn(context.Background(), sid); err != nil {
		t.Fatalf("CompleteTurn: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("hook fired %d times, want 1", len(got))
	}
	if got[0].Reply == "" {
		t.Error("hook received empty turn")
	}
}

func TestSetSystemPromptEachTurn(t *testing.T) {
	p, deps := newTestPipeline(t)
	sid := deps.store.NewSession()

	// Seed history so the prompt is no longer forced in by the first-turn rule.
	if err := deps.store.AddMessage(sid, history.Message{Role: history.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := deps.store.AddMessage(sid, history.Message{Role: history.RoleAssistant, Content: "welcome"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	p.SetSystemPromptEachTurn(false)
	startAndSettle(t, p)
	if _, err := p.CompleteTurn(context.Background(), sid); err != nil {
		t.Fatalf("CompleteTurn: %v", err)
	}

	p.SetSystemPromptEachTurn(true)
	startAndSettle(t, p)
	if _, err := p.CompleteTurn(context.Background(), sid); err != nil {
		t.Fatalf("CompleteTurn: %v", err)
	}

	calls := deps.llm.Calls()
	if len(calls) != 2 {
		t.Fatalf("llm calls = %d, want 2", len(calls))
	}
	if len(calls[0].Req.Messages) == 0 || calls[0].Req.Messages[0].Role == "system" {
		t.Error("first completion should omit the system prompt while disabled")
	}
	if len(calls[1].Req.Messages) == 0 || calls[1].Req.Messages[0].Role != "system" {
		t.Error("second completion should lead with the system prompt once enabled")
	}
}

func TestSetPlayRepliesTogglesPlayback(t *testing.T) {
	plays := 0
	player := &Player{command: func(ctx context.Context, path string) *exec.Cmd {
		plays++
		return exec.CommandContext(ctx, "true")
	}}
	p, deps := newTestPipeline(t, WithPlayer(player))
	sid := deps.store.NewSession()

	p.SetPlayReplies(false)
	startAndSettle(t, p)
	if _, err := p.CompleteTurn(context.Background(), sid); err != nil {
		t.Fatalf("CompleteTurn: %v", err)
	}
	if plays != 0 {
		t.Fatalf("playback ran %d times while disabled", plays)
	}

	p.SetPlayReplies(true)
	startAndSettle(t, p)
	if _, err := p.CompleteTurn(context.Background(), sid); err != nil {
		t.Fatalf("CompleteTurn: %v", err)
	}
	if plays != 1 {
		t.Fatalf("playback ran %d times, want 1", plays)
	}
}

// memArchive is an in-memory TurnArchive for tests.
type memArchive struct {
	turns []archive.Turn
}

func (a *memArchive) Record(ctx context.Context, turn archive.Turn) error {
	a.turns = append(a.turns, turn)
	return nil
}

func (a *memArchive) Recent(ctx context.Context, sessionID string, limit int) ([]archive.Turn, error) {
	return a.turns, nil
}

func (a *memArchive) Close() {}

func TestCompleteTurnArchivesExchange(t *testing.T) {
	ar := &memArchive{}
	p, deps := newTestPipeline(t, WithArchive(ar))
	sid := deps.store.NewSession()
	startAndSettle(t, p)

	if _, err := p.CompleteTurn(context.Background(), sid); err != nil {
		t.Fatalf("CompleteTurn: %v", err)
	}
	if len(ar.turns) != 2 {
		t.Fatalf("archive has %d turns, want user+assistant", len(ar.turns))
	}
	if ar.turns[0].Role != "user" || ar.turns[1].Role != "assistant" {
		t.Fatalf("archive roles = %s, %s", ar.turns[0].Role, ar.turns[1].Role)
	}
}
