// Package handlers provides HTTP request handlers for the ddocs service.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fileverse/ddocs-stack/common/httputil"
	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/common/messaging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/auth"
	"github.com/fileverse/ddocs-stack/ddocs/internal/mcp"
	"github.com/fileverse/ddocs-stack/ddocs/internal/service"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	maxUploadBytes   = 10 << 20
)

// Handler provides HTTP handlers for the ddocs service
type Handler struct {
	svc     *service.Service
	catalog *mcp.Catalog
	broker  messaging.Client
	logger  *logging.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(svc *service.Service, catalog *mcp.Catalog, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, catalog: catalog, logger: logger}
}

// WithBroker makes readiness depend on the broker connection.
func (h *Handler) WithBroker(client messaging.Client) *Handler {
	h.broker = client
	return h
}

// =============================================================================
// Helper Methods
// =============================================================================

// portal returns the portal the auth middleware resolved.
func portal(r *http.Request) string {
	p, _ := auth.PortalFromContext(r.Context())
	return p
}

// internalError logs err and writes a generic 500.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "request failed",
		logging.Method(r.Method), logging.Path(r.URL.Path), logging.Error(err))
	httputil.WriteMessage(w, http.StatusInternalServerError, "Internal server error")
}

// =============================================================================
// Health Check Handlers
// =============================================================================

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck handles GET /readyz
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.svc.Ping(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	counts, err := h.svc.EventCounts(ctx, "")
	if err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	body := map[string]any{"status": "ready", "events": counts}
	if h.broker != nil {
		health := messaging.CheckClientHealth(ctx, h.broker)
		body["nats"] = health
		if !health.Connected {
			body["status"] = "not ready"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// Ping handles GET /ping
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"reply": "pong"})
}

// isNotFound reports whether err is one of the store's not-found errors.
func isNotFound(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
