// Package server provides HTTP server setup for the ddocs service.
package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fileverse/ddocs-stack/common/httputil"
	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/common/middleware"
	"github.com/fileverse/ddocs-stack/ddocs/internal/handlers"
	"github.com/fileverse/ddocs-stack/ddocs/internal/mcp"
	"github.com/fileverse/ddocs-stack/ddocs/internal/metrics"
)

const maxRootBodyBytes = 4 << 20

// Authenticator guards the /api routes.
type Authenticator interface {
	Middleware(next http.Handler) http.Handler
}

// NewRouter constructs a ServeMux with the ddocs routes registered.
func NewRouter(h *handlers.Handler, mcpHandler *mcp.Handler, authn Authenticator, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	mux := http.NewServeMux()

	// Informational and health endpoints
	mux.HandleFunc("GET /{$}", h.Guide)
	mux.HandleFunc("POST /{$}", rootPost(mcpHandler))
	mux.HandleFunc("GET /llm.txt", h.LLMText)
	mux.HandleFunc("GET /ping", h.Ping)
	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.HandleFunc("GET /readyz", h.ReadyCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Document routes
	api := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn.Middleware(fn))
	}
	api("POST /api/ddocs", h.CreateDocument)
	api("GET /api/ddocs", h.ListDocuments)
	api("GET /api/ddocs/{ddocId}", h.GetDocument)
	api("PUT /api/ddocs/{ddocId}", h.UpdateDocument)
	api("DELETE /api/ddocs/{ddocId}", h.DeleteDocument)
	api("GET /api/search", h.SearchDocuments)

	// Folder routes
	api("GET /api/folders", h.ListFolders)
	api("POST /api/folders", h.CreateFolder)
	api("GET /api/folders/{folderRef}/{folderId}", h.GetFolder)

	// Event routes
	api("GET /api/events/failed", h.ListFailedEvents)
	api("POST /api/events/retry-failed", h.RetryFailedEvents)
	api("POST /api/events/{id}/retry", h.RetryEvent)

	// MCP endpoint; credentials are resolved per tool call
	mux.HandleFunc("POST /mcp", mcpHandler.Post)
	mux.HandleFunc("GET /mcp", mcpHandler.Get)
	mux.HandleFunc("DELETE /mcp", mcpHandler.Delete)

	var handler http.Handler = instrument(mux)
	handler = middleware.AccessLog(logger.Logger, handler)
	handler = middleware.Recover(logger.Logger, handler)
	return middleware.RequestID(handler)
}

// rootPost forwards JSON-RPC bodies posted to / to the MCP transport.
func rootPost(mcpHandler *mcp.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRootBodyBytes))
		if err == nil && mcp.IsJSONRPC(body) {
			mcpHandler.Serve(w, r, body)
			return
		}
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Use POST /mcp for MCP requests.")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request durations by matched route pattern.
func instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(sw.status)).Observe(time.Since(start).Seconds())
	})
}
