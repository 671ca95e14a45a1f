package handlers

import (
	"net/http"
	"time"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/logbuffer"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// JobLister lists in-flight jobs
type JobLister interface {
	Active() []jobs.JobSnapshot
}

// StatusHandler serves health, job and log status
type StatusHandler struct {
	jobs JobLister
}

// NewStatusHandler creates a status handler
func NewStatusHandler(lister JobLister) *StatusHandler {
	return &StatusHandler{jobs: lister}
}

// JobsResponse lists in-flight jobs
type JobsResponse struct {
	Jobs  []jobs.JobSnapshot `json:"jobs"`
	Count int                `json:"count"`
}

// LogsResponse carries buffered log entries
type LogsResponse struct {
	Entries      []logbuffer.Entry `json:"entries"`
	Count        int               `json:"count"`
	Buffered     int               `json:"buffered"`
	Capacity     int               `json:"capacity"`
	Level        string            `json:"level"`
	DebugEnabled bool              `json:"debug_enabled"`
}

// Health handles GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Jobs handles GET /jobs
func (h *StatusHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	active := h.jobs.Active()
	sendJSON(w, http.StatusOK, JobsResponse{Jobs: active, Count: len(active)})
}

// Logs handles GET /debug/logs. The optional since parameter is RFC3339.
func (h *StatusHandler) Logs(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			sendAPIError(w, "since must be an RFC3339 timestamp", CodeValidation, http.StatusBadRequest)
			return
		}
		since = t
	}

	entries := debug.BufferedLogs(since)
	if entries == nil {
		entries = []logbuffer.Entry{}
	}
	buffered, capacity := debug.BufferStats()

	sendJSON(w, http.StatusOK, LogsResponse{
		Entries:      entries,
		Count:        len(entries),
		Buffered:     buffered,
		Capacity:     capacity,
		Level:        debug.GetLogLevelName(),
		DebugEnabled: debug.IsDebugEnabled(),
	})
}
