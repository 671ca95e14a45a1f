// Package handlers serves the worker's HTTP surface: job submission, health,
// in-flight job status and buffered logs.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// Error codes returned in APIError.Code
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeProvisioning = "WORDLIST_PROVISIONING_FAILED"
	CodeSpawn        = "TOOL_SPAWN_FAILED"
	CodeTimeout      = "JOB_TIMEOUT"
	CodeInternal     = "INTERNAL_ERROR"
)

// APIError is the body of every error response
type APIError struct {
	Message string `json:"error"`
	Code    string `json:"code"`
}

// sendAPIError sends a standardized API error response
func sendAPIError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}

// sendJSON writes v with the given status
func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Error("Failed to encode response: %v", err)
	}
}
