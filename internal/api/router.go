// Package api serves the JSON HTTP interface for sessions, requests, play
// history, diagnostics, and webhooks.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/sydlexius/tracksignal/internal/api/middleware"
	"github.com/sydlexius/tracksignal/internal/history"
	"github.com/sydlexius/tracksignal/internal/logging"
	"github.com/sydlexius/tracksignal/internal/maintenance"
	"github.com/sydlexius/tracksignal/internal/pipeline"
	"github.com/sydlexius/tracksignal/internal/request"
	"github.com/sydlexius/tracksignal/internal/watcher"
	"github.com/sydlexius/tracksignal/internal/webhook"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Manager           *pipeline.Manager
	RequestService    *request.Service
	HistoryService    *history.Service
	WebhookService    *webhook.Service
	WebhookDispatcher *webhook.Dispatcher
	LogManager        *logging.Manager
	Maintenance       *maintenance.Service
	DB                *sql.DB
	Logger            *slog.Logger
	BasePath          string
	// APIToken, when set, is required on every route except health.
	APIToken string
	// TestRPS limits the diagnostic endpoints per client.
	TestRPS float64
	// Remote and SearchPatterns drive the source check and discovery endpoints.
	Remote         watcher.RemoteConfig
	SearchPatterns []string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	manager           *pipeline.Manager
	requestService    *request.Service
	historyService    *history.Service
	webhookService    *webhook.Service
	webhookDispatcher *webhook.Dispatcher
	logManager        *logging.Manager
	maintenance       *maintenance.Service
	db                *sql.DB
	logger            *slog.Logger
	basePath          string
	apiToken          string
	testRPS           float64
	remote            watcher.RemoteConfig
	searchPatterns    []string
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		manager:           deps.Manager,
		requestService:    deps.RequestService,
		historyService:    deps.HistoryService,
		webhookService:    deps.WebhookService,
		webhookDispatcher: deps.WebhookDispatcher,
		logManager:        deps.LogManager,
		maintenance:       deps.Maintenance,
		db:                deps.DB,
		logger:            logging.OrDiscard(deps.Logger).With("component", "api"),
		basePath:          deps.BasePath,
		apiToken:          deps.APIToken,
		testRPS:           deps.TestRPS,
		remote:            deps.Remote,
		searchPatterns:    deps.SearchPatterns,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
// ctx bounds background work owned by the middleware.
func (r *Router) Handler(ctx context.Context) http.Handler {
	authMw := middleware.BearerToken(r.apiToken)
	limiter := middleware.NewClientRateLimiter(ctx, r.testRPS, 0)
	mux := http.NewServeMux()
	bp := r.basePath

	// Public routes (no auth)
	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)

	// Session routes
	mux.HandleFunc("GET "+bp+"/api/v1/sessions", wrapAuth(r.handleListSessions, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/sessions", wrapAuth(r.handleStartSession, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/sessions/{id}", wrapAuth(r.handleGetSession, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/sessions/{id}", wrapAuth(r.handleStopSession, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/sessions/{id}/now-playing", wrapAuth(r.handleNowPlaying, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/sessions/{id}/signal", wrapAuth(r.handleInjectSignal, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/sessions/{id}/history", wrapAuth(r.handleSessionHistory, authMw))

	// Diagnostics (rate limited, they may reach out to remote sources)
	mux.HandleFunc("POST "+bp+"/api/v1/test-track", wrapAuth(limiter.Wrap(r.handleTestTrack), authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/sources/check", wrapAuth(limiter.Wrap(r.handleCheckSource), authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/sources/discover", wrapAuth(limiter.Wrap(r.handleDiscoverSources), authMw))

	// Request routes
	mux.HandleFunc("GET "+bp+"/api/v1/requests", wrapAuth(r.handleListRequests, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/requests", wrapAuth(r.handleCreateRequest, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/requests/{id}", wrapAuth(r.handleGetRequest, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/requests/{id}/status", wrapAuth(r.handleUpdateRequestStatus, authMw))

	// Webhook routes
	mux.HandleFunc("GET "+bp+"/api/v1/webhooks", wrapAuth(r.handleListWebhooks, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/webhooks", wrapAuth(r.handleCreateWebhook, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/webhooks/{id}", wrapAuth(r.handleGetWebhook, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/webhooks/{id}", wrapAuth(r.handleUpdateWebhook, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/webhooks/{id}", wrapAuth(r.handleDeleteWebhook, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/webhooks/{id}/test", wrapAuth(limiter.Wrap(r.handleTestWebhook), authMw))

	// Logging routes
	mux.HandleFunc("GET "+bp+"/api/v1/logging", wrapAuth(r.handleGetLogging, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/logging", wrapAuth(r.handleUpdateLogging, authMw))

	// Database maintenance routes
	mux.HandleFunc("GET "+bp+"/api/v1/maintenance", wrapAuth(r.handleMaintenanceStatus, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/maintenance/optimize", wrapAuth(r.handleOptimize, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/maintenance/vacuum", wrapAuth(r.handleVacuum, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/backups", wrapAuth(r.handleListBackups, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/backups", wrapAuth(r.handleCreateBackup, authMw))

	return middleware.Logging(r.logger)(middleware.SecurityHeaders(mux))
}

// wrapAuth wraps a handler function with auth middleware.
func wrapAuth(fn http.HandlerFunc, authMw func(http.Handler) http.Handler) http.HandlerFunc {
	return authMw(fn).ServeHTTP
}
