// Package server exposes the job queue over HTTP: submit and manage
// conversion jobs, check tool health, and follow progress live over SSE or a
// websocket.
package server

import (
	"net/http"

	"github.com/stevecastle/vr180/appconfig"
	"github.com/stevecastle/vr180/auth"
	"github.com/stevecastle/vr180/jobqueue"
	"github.com/stevecastle/vr180/stream"
)

// Dependencies are the shared services the handlers use.
type Dependencies struct {
	Queue *jobqueue.Queue
	Hub   *stream.Hub
	// Settings are the defaults per-job overrides are checked against.
	Settings appconfig.VR180
	// Auth, when set, requires a bearer token on everything but login and
	// health.
	Auth *auth.Service
}

// New returns the routed handler.
func New(deps *Dependencies) http.Handler {
	if deps.Hub == nil {
		deps.Hub = stream.Default()
	}

	guarded := func(h http.HandlerFunc) http.HandlerFunc {
		return ApplyMiddlewares(RequireAuth(deps.Auth, h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", guarded(jobsHandler(deps)))
	mux.HandleFunc("/api/jobs/clear", guarded(clearNonRunningJobsHandler(deps)))
	mux.HandleFunc("/api/jobs/{id}", guarded(jobHandler(deps)))
	mux.HandleFunc("/api/jobs/{id}/cancel", guarded(cancelHandler(deps)))
	mux.HandleFunc("/api/jobs/{id}/retry", guarded(retryHandler(deps)))
	mux.HandleFunc("/api/tasks", guarded(tasksHandler()))
	mux.HandleFunc("/api/settings", guarded(settingsHandler(deps)))
	mux.HandleFunc("/api/users", guarded(usersHandler(deps)))
	mux.HandleFunc("/api/users/{name}", guarded(userHandler(deps)))
	mux.HandleFunc("/api/login", ApplyMiddlewares(loginHandler(deps)))
	mux.HandleFunc("/api/health", ApplyMiddlewares(healthHandler(deps)))
	mux.HandleFunc("/stream", RequireAuth(deps.Auth, deps.Hub.ServeSSE))
	mux.HandleFunc("/ws", RequireAuth(deps.Auth, deps.Hub.ServeWS))
	return mux
}
