// Package server exposes the interview assistant over HTTP: a JSON API for
// driving recording and history, a websocket event feed, and the usual
// operational endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/candivox/candivox/internal/health"
	"github.com/candivox/candivox/internal/history"
	"github.com/candivox/candivox/internal/interview"
	"github.com/candivox/candivox/internal/observe"
	"github.com/candivox/candivox/pkg/audio/capture"
	"github.com/candivox/candivox/pkg/provider/tts"
)

const shutdownTimeout = 10 * time.Second

// Config holds the server's construction parameters.
type Config struct {
	ListenAddr string
	TLSCert    string
	TLSKey     string

	// Version is reported by /statusz.
	Version string
}

// Server is the HTTP front end. It owns no interview state itself; all
// operations delegate to the pipeline and its history store.
type Server struct {
	cfg      Config
	pipeline *interview.Pipeline
	store    *history.Store
	tts      tts.Provider
	hub      *Hub
	health   *health.Handler
	status   *health.StatusHandler
	metrics  *observe.Metrics
	logger   *slog.Logger

	httpSrv *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithHealth sets the readiness handler. Without it, /readyz always succeeds.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithTTS enables the /api/voices endpoint.
func WithTTS(p tts.Provider) Option {
	return func(s *Server) { s.tts = p }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New assembles the server and its routes. The returned server's Hub is
// already wired; pass s.Hub().Publish to [interview.WithTurnHook] so turn
// events reach websocket subscribers.
func New(cfg Config, pipeline *interview.Pipeline, store *history.Store, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.status == nil {
		s.status = health.NewStatusHandler("candivox", cfg.Version)
	}
	s.hub = NewHub(s.logger)

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the websocket event hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the full route table, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", s.handleNewSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/history", s.handleGetHistory)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.HandleFunc("POST /api/prompt", s.handleSetPrompt)
	mux.HandleFunc("POST /api/record/start", s.handleRecordStart)
	mux.HandleFunc("POST /api/record/stop", s.handleRecordStop)
	mux.HandleFunc("POST /api/record/abort", s.handleRecordAbort)
	mux.HandleFunc("GET /api/audio/{file}", s.handleAudio)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.Handle("GET /api/events", s.hub)

	s.health.Register(mux)
	s.status.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLSCert != "")
		var err error
		if s.cfg.TLSCert != "" {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ── Session + history handlers ──────────────────────────────────────────────

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	id := s.store.NewSession()
	s.logger.Info("new interview session", "session", id)
	s.writeJSON(w, http.StatusCreated, sessionResponse{SessionID: id})
}

type sessionsResponse struct {
	Current  string   `json:"current"`
	Sessions []string `json:"sessions"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, sessionsResponse{
		Current:  s.store.CurrentSession(),
		Sessions: s.store.SessionIDs(),
	})
}

type historyResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []history.Message `json:"messages"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = s.store.CurrentSession()
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	msgs := s.store.History(sessionID, limit)
	if msgs == nil {
		msgs = []history.Message{}
	}
	s.writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Messages: msgs})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		if err := s.store.ClearAll(); err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.logger.Info("cleared all interview sessions")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = s.store.CurrentSession()
	}
	if err := s.store.Clear(sessionID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("cleared interview session", "session", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

type promptRequest struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

func (s *Server) handleSetPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("prompt must not be empty"))
		return
	}
	s.store.SetSystemPrompt(req.SessionID, req.Prompt)
	w.WriteHeader(http.StatusNoContent)
}

// ── Recording handlers ──────────────────────────────────────────────────────

type recordStopRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.StartRecording(r.Context()); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	var req recordStopRequest
	if r.ContentLength > 0 {
		if err := s.readJSON(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	turn, err := s.pipeline.CompleteTurn(r.Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, capture.ErrNothingRecorded) {
			s.writeError(w, http.StatusConflict, err)
			return
		}
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	// The API returns only the file name; clients fetch audio via /api/audio.
	out := *turn
	out.AudioPath = filepath.Base(out.AudioPath)
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecordAbort(w http.ResponseWriter, r *http.Request) {
	s.pipeline.AbortRecording()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	// Reject anything that could escape the media directory.
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid file name"))
		return
	}
	http.ServeFile(w, r, filepath.Join(s.pipeline.MediaDir(), name))
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("no tts provider configured"))
		return
	}
	voices, err := s.tts.ListVoices(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, voices)
}

// ── JSON helpers ────────────────────────────────────────────────────────────

type apiError struct {
	Error string `json:"error"`
}

func (s *Server) readJSON(r *http.Request, v any) error {
	dec := sonic.ConfigDefault.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	s.writeJSON(w, status, apiError{Error: err.Error()})
}
