package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// Runner executes crack jobs
type Runner interface {
	Run(ctx context.Context, req jobs.CrackRequest) (*jobs.CrackResult, error)
}

// CrackHandler handles job submissions
type CrackHandler struct {
	runner  Runner
	timeout time.Duration
}

// NewCrackHandler creates a crack handler. A zero timeout leaves jobs
// unbounded.
func NewCrackHandler(runner Runner, timeout time.Duration) *CrackHandler {
	return &CrackHandler{
		runner:  runner,
		timeout: timeout,
	}
}

// Crack handles POST /crack. The job runs to completion before the response
// is written.
func (h *CrackHandler) Crack(w http.ResponseWriter, r *http.Request) {
	var req jobs.CrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendAPIError(w, "Invalid request payload", CodeValidation, http.StatusBadRequest)
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		sendAPIError(w, "Token is required", CodeValidation, http.StatusBadRequest)
		return
	}

	// a dropped client connection does not abort the attack
	ctx := context.WithoutCancel(r.Context())
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		message, code, status := classify(err)
		debug.Error("Crack request failed: %v", err)
		sendAPIError(w, message, code, status)
		return
	}

	sendJSON(w, http.StatusOK, result)
}

// classify maps a job error to its HTTP response
func classify(err error) (message, code string, status int) {
	switch {
	case errors.Is(err, jobs.ErrProvisioning):
		return "Failed to provision wordlist", CodeProvisioning, http.StatusInternalServerError
	case errors.Is(err, jobs.ErrProcessSpawn):
		return "Failed to start jwt_tool", CodeSpawn, http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return "Job exceeded the configured timeout", CodeTimeout, http.StatusGatewayTimeout
	default:
		return "Internal server error", CodeInternal, http.StatusInternalServerError
	}
}
