// Package routes wires the worker's HTTP handlers onto a gorilla/mux router.
package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/handlers"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// SetupRoutes configures every worker route. A nil metrics handler leaves
// /metrics unregistered.
func SetupRoutes(router *mux.Router, crack *handlers.CrackHandler, status *handlers.StatusHandler, metrics http.Handler) {
	debug.Debug("Setting up worker routes")

	router.HandleFunc("/crack", crack.Crack).Methods(http.MethodPost)
	router.HandleFunc("/health", status.Health).Methods(http.MethodGet)
	router.HandleFunc("/jobs", status.Jobs).Methods(http.MethodGet)
	router.HandleFunc("/debug/logs", status.Logs).Methods(http.MethodGet)

	if metrics != nil {
		router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	router.Use(loggingMiddleware)
	debug.Info("Configured worker routes: /crack, /health, /jobs, /debug/logs")
}

// NewRouter returns a router with every worker route configured
func NewRouter(crack *handlers.CrackHandler, status *handlers.StatusHandler, metrics http.Handler) *mux.Router {
	router := mux.NewRouter()
	SetupRoutes(router, crack, status, metrics)
	return router
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		debug.Debug("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
