package health

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status is the JSON response body for the /statusz endpoint.
type Status struct {
	Service       string  `json:"service"`
	Version       string  `json:"version,omitempty"`
	Uptime        string  `json:"uptime"`
	GoVersion     string  `json:"go_version"`
	NumGoroutines int     `json:"num_goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	MemUsedMB     uint64  `json:"mem_used_mb"`
}

// StatusHandler serves a human-inspectable process status page with uptime
// and host CPU/memory utilisation.
type StatusHandler struct {
	service string
	version string
	started time.Time
}

// NewStatusHandler creates a StatusHandler. The uptime clock starts now.
func NewStatusHandler(service, version string) *StatusHandler {
	return &StatusHandler{
		service: service,
		version: version,
		started: time.Now(),
	}
}

// Statusz reports process and host statistics. CPU or memory probe failures
// leave the respective fields at zero rather than failing the request.
func (s *StatusHandler) Statusz(w http.ResponseWriter, _ *http.Request) {
	st := Status{
		Service:       s.service,
		Version:       s.version,
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		st.CPUPercent = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		st.MemPercent = vm.UsedPercent
		st.MemUsedMB = vm.Used / (1024 * 1024)
	}

	writeJSON(w, http.StatusOK, st)
}

// Register adds the /statusz route to mux.
func (s *StatusHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /statusz", s.Statusz)
}
