package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vectorbound/boundaryplane/internal/domain/bridge"
	"github.com/vectorbound/boundaryplane/internal/domain/bundle"
	"github.com/vectorbound/boundaryplane/internal/domain/deployment"
	"github.com/vectorbound/boundaryplane/internal/domain/refresh"
	"github.com/vectorbound/boundaryplane/internal/domain/telemetry"
	"github.com/vectorbound/boundaryplane/internal/service"
)

// tracerName identifies this package's spans in any configured otel
// exporter (spec.md's "one span per enforce call" ambient requirement).
const tracerName = "github.com/vectorbound/boundaryplane/internal/adapter/inbound/http"

// EnforcementHandler serves the data plane's HTTP surface: Enforce,
// InstallRules, RefreshRules, QueryTelemetry (spec.md §6, semantics of the
// gRPC surface exposed here as JSON-over-HTTP). Grounded on the teacher's
// AdminAPIHandler: an options-constructed struct with shared
// respondJSON/respondError/readJSON helpers and one http.ServeMux per
// concern.
type EnforcementHandler struct {
	enforcement *service.EnforcementService
	bundles     *bundle.Service
	deployments *deployment.Manager
	scheduler   *refresh.Scheduler
	bridge      *bridge.Bridge
	recorder    *telemetry.Recorder
	adminKeys   *AdminKeyStore
	metrics     *Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
}

// HandlerOption configures an EnforcementHandler dependency.
type HandlerOption func(*EnforcementHandler)

func WithEnforcementService(s *service.EnforcementService) HandlerOption {
	return func(h *EnforcementHandler) { h.enforcement = s }
}

func WithBundleService(s *bundle.Service) HandlerOption {
	return func(h *EnforcementHandler) { h.bundles = s }
}

func WithDeploymentManager(m *deployment.Manager) HandlerOption {
	return func(h *EnforcementHandler) { h.deployments = m }
}

func WithScheduler(s *refresh.Scheduler) HandlerOption {
	return func(h *EnforcementHandler) { h.scheduler = s }
}

func WithBridge(b *bridge.Bridge) HandlerOption {
	return func(h *EnforcementHandler) { h.bridge = b }
}

func WithRecorder(r *telemetry.Recorder) HandlerOption {
	return func(h *EnforcementHandler) { h.recorder = r }
}

func WithAdminKeyStore(s *AdminKeyStore) HandlerOption {
	return func(h *EnforcementHandler) { h.adminKeys = s }
}

func WithHandlerMetrics(m *Metrics) HandlerOption {
	return func(h *EnforcementHandler) { h.metrics = m }
}

func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *EnforcementHandler) { h.logger = l }
}

// NewEnforcementHandler builds an EnforcementHandler from the given options.
func NewEnforcementHandler(opts ...HandlerOption) *EnforcementHandler {
	h := &EnforcementHandler{
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with every enforcement endpoint
// registered. The Bundle CRUD surface (InstallRules/RefreshRules) is
// gated by AdminAuthMiddleware when an AdminKeyStore is configured.
func (h *EnforcementHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/enforce", h.handleEnforce)
	mux.HandleFunc("GET /v1/telemetry", h.handleQueryTelemetry)

	adminMux := http.NewServeMux()
	adminMux.HandleFunc("POST /v1/bundles", h.handleInstallBundle)
	adminMux.HandleFunc("POST /v1/bundles/{id}/activate", h.handleActivateBundle)
	adminMux.HandleFunc("POST /v1/bundles/{id}/rollback", h.handleRollbackBundle)
	adminMux.HandleFunc("POST /v1/bundles/{id}/revoke", h.handleRevokeBundle)
	adminMux.HandleFunc("POST /v1/rules/refresh", h.handleRefreshRules)

	if h.adminKeys != nil {
		mux.Handle("/v1/bundles", AdminAuthMiddleware(h.adminKeys)(adminMux))
		mux.Handle("/v1/bundles/", AdminAuthMiddleware(h.adminKeys)(adminMux))
		mux.Handle("/v1/rules/refresh", AdminAuthMiddleware(h.adminKeys)(adminMux))
	} else {
		mux.Handle("/v1/bundles", adminMux)
		mux.Handle("/v1/bundles/", adminMux)
		mux.Handle("/v1/rules/refresh", adminMux)
	}

	return mux
}

// --- JSON helper methods (teacher's AdminAPIHandler idiom) ---

func (h *EnforcementHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *EnforcementHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *EnforcementHandler) readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *EnforcementHandler) pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
