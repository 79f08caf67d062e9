package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/candivox/candivox/internal/history"
	"github.com/candivox/candivox/internal/interview"
	"github.com/candivox/candivox/pkg/audio/capture"
	"github.com/candivox/candivox/pkg/provider/llm"
	llmmock "github.com/candivox/candivox/pkg/provider/llm/mock"
	sttmock "github.com/candivox/candivox/pkg/provider/stt/mock"
	ttsmock "github.com/candivox/candivox/pkg/provider/tts/mock"
)

// frameSource delivers a fixed set of PCM frames and closes.
type frameSource struct {
	frames [][]byte
}

func (s *frameSource) Start(ctx context.Context) (<-chan []byte, error) {
	ch := make(chan []byte, len(s.frames))
	for _, f := range s.frames {
		ch <- f
	}
	close(ch)
	return ch, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	srv   *Server
	store *history.Store
	llm   *llmmock.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	store := history.NewStore(filepath.Join(dir, "conversation.json"))
	llmProv := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Tell me about your background."},
	}
	manager := history.NewManager(store, llmProv, history.WithLogger(quietLogger()))

	source := &frameSource{frames: [][]byte{bytes.Repeat([]byte{0x01, 0x02}, 256)}}
	recorder := capture.NewRecorder(source)

	pipeline, err := interview.NewPipeline(
		recorder,
		sttmock.New("tell me about go"),
		ttsmock.New(),
		manager,
		filepath.Join(dir, "media"),
		interview.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	srv := New(Config{ListenAddr: ":0", Version: "test"}, pipeline, store,
		WithLogger(quietLogger()),
		WithTTS(ttsmock.New()),
	)
	return &fixture{srv: srv, store: store, llm: llmProv}
}

func (f *fixture) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewSession(t *testing.T) {
	f := newFixture(t)

	before := f.store.CurrentSession()
	rec := f.do(t, http.MethodPost, "/api/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var resp sessionResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID == "" || resp.SessionID == before {
		t.Errorf("SessionID = %q, want fresh id (old %q)", resp.SessionID, before)
	}
	if f.store.CurrentSession() != resp.SessionID {
		t.Error("store did not switch to the new session")
	}
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t)
	sid := f.store.CurrentSession()
	f.store.AddMessage(sid, history.Message{Role: history.RoleUser, Content: "hello"})
	f.store.AddMessage(sid, history.Message{Role: history.RoleAssistant, Content: "hi"})

	rec := f.do(t, http.MethodGet, "/api/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp historyResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != sid {
		t.Errorf("SessionID = %q, want %q", resp.SessionID, sid)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Content != "hello" {
		t.Errorf("Messages = %+v", resp.Messages)
	}
}

func TestGetHistoryEmptySession(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/history?session=unknown", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"messages":[]`) {
		t.Errorf("body = %s, want empty messages array", rec.Body.String())
	}
}

func TestGetHistoryBadLimit(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/history?limit=x", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestClearHistory(t *testing.T) {
	f := newFixture(t)
	sid := f.store.CurrentSession()
	f.store.AddMessage(sid, history.Message{Role: history.RoleUser, Content: "hello"})

	rec := f.do(t, http.MethodDelete, "/api/history", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := f.store.History(sid, 0); len(got) != 0 {
		t.Errorf("history after clear = %+v", got)
	}
}

func TestClearAllHistory(t *testing.T) {
	f := newFixture(t)
	f.store.AddMessage("", history.Message{Role: history.RoleUser, Content: "a"})
	f.store.NewSession()
	f.store.AddMessage("", history.Message{Role: history.RoleUser, Content: "b"})

	rec := f.do(t, http.MethodDelete, "/api/history?all=true", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if n := f.store.SessionCount(); n != 0 {
		t.Errorf("SessionCount = %d, want 0", n)
	}
}

func TestSetPrompt(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/prompt", `{"prompt":"You are a kind interviewer."}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := f.store.SystemPrompt(""); got != "You are a kind interviewer." {
		t.Errorf("SystemPrompt = %q", got)
	}

	rec = f.do(t, http.MethodPost, "/api/prompt", `{"prompt":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty prompt status = %d, want 400", rec.Code)
	}
}

func TestRecordTurnRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/record/start", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202", rec.Code)
	}
	// Starting again while recording conflicts.
	rec = f.do(t, http.MethodPost, "/api/record/start", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("double start status = %d, want 409", rec.Code)
	}

	time.Sleep(50 * time.Millisecond) // let the source frames drain

	rec = f.do(t, http.MethodPost, "/api/record/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d, body %s", rec.Code, rec.Body.String())
	}

	var turn interview.Turn
	if err := sonic.Unmarshal(rec.Body.Bytes(), &turn); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if turn.Transcript != "tell me about go" {
		t.Errorf("Transcript = %q", turn.Transcript)
	}
	if turn.Reply != "Tell me about your background." {
		t.Errorf("Reply = %q", turn.Reply)
	}
	if strings.ContainsAny(turn.AudioPath, "/\\") {
		t.Errorf("AudioPath = %q, want bare file name", turn.AudioPath)
	}

	// The reply audio is then fetchable.
	rec = f.do(t, http.MethodGet, "/api/audio/"+turn.AudioPath, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audio status = %d, want 200", rec.Code)
	}
}

func TestRecordStopWithoutStart(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/record/stop", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRecordAbort(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/api/record/start", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/record/abort", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("abort status = %d, want 204", rec.Code)
	}
	// After abort, stop has nothing to work with.
	if rec := f.do(t, http.MethodPost, "/api/record/stop", ""); rec.Code != http.StatusConflict {
		t.Fatalf("stop after abort status = %d, want 409", rec.Code)
	}
}

func TestAudioRejectsTraversal(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"..%2Fsecret.wav", ".hidden"} {
		req := httptest.NewRequest(http.MethodGet, "/api/audio/"+name, nil)
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest && rec.Code != http.StatusNotFound {
			t.Errorf("GET %q status = %d, want rejection", name, rec.Code)
		}
	}
}

func TestVoices(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/voices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mock-voice") {
		t.Errorf("body = %s, want mock voice listed", rec.Body.String())
	}
}

func TestOperationalEndpoints(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/healthz", "/readyz", "/statusz", "/metrics"} {
		rec := f.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, rec.Code)
		}
	}
}
