// Package health serves the operational probes: /healthz for liveness,
// /readyz for readiness, and /statusz for process statistics.
//
// Readiness aggregates [Checker] probes over the dependencies a turn needs,
// such as the conversation snapshot staying writable and the Postgres turn
// archive answering pings. A deployment fronted by a load balancer uses
// /readyz to stop routing interviews to an instance that could not persist
// them.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

// probeTimeout bounds a single readiness probe. A snapshot write check is
// local disk and a pooled Postgres ping is one round trip, so anything slower
// counts as unhealthy.
const probeTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil when the dependency
// can serve a turn and an error describing the problem otherwise; it must
// honor ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// report is the response body shared by /healthz and /readyz.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the liveness and readiness probes. The checker set is fixed
// at construction, making the handler safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] that runs the given checkers, in order, on every
// /readyz request.
func New(checkers ...Checker) *Handler {
	h := &Handler{checkers: make([]Checker, len(checkers))}
	copy(h.checkers, checkers)
	return h
}

// Healthz always answers 200: a process that reached the handler is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz answers 200 only when every probe passes, with a per-check
// breakdown in the body. Failing probes answer 503 so a balancer drains the
// instance.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.runProbes(r.Context())

	res := report{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !healthy {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (h *Handler) runProbes(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, len(h.checkers))
	healthy := true
	for _, c := range h.checkers {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := c.Check(probeCtx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			healthy = false
			continue
		}
		checks[c.Name] = "ok"
	}
	return checks, healthy
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
