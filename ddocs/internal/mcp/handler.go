package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/fileverse/ddocs-stack/common/httputil"
	"github.com/fileverse/ddocs-stack/common/logging"
)

const maxBodyBytes = 4 << 20

// Handler is the HTTP transport for a Dispatcher. The request credential
// is taken from the apiKey query parameter, the X-API-Key header or a
// bearer token, falling back to the server's own key.
type Handler struct {
	dispatcher  *Dispatcher
	fallbackKey string
	logger      *logging.Logger
}

func NewHandler(dispatcher *Dispatcher, fallbackKey string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{dispatcher: dispatcher, fallbackKey: fallbackKey, logger: logger}
}

func (h *Handler) credential(r *http.Request) string {
	if c := httputil.Credential(r); c != "" {
		return c
	}
	return h.fallbackKey
}

// Post handles POST /mcp.
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteJSON(w, http.StatusOK, failure(nullID, CodeParseError, "Parse error"))
		return
	}
	h.Serve(w, r, body)
}

// Serve dispatches an already read body.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, body []byte) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		httputil.WriteJSON(w, http.StatusOK, failure(nullID, CodeParseError, "Parse error"))
		return
	}

	ctx := r.Context()
	cred := h.credential(r)

	if body[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil || len(batch) == 0 {
			httputil.WriteJSON(w, http.StatusOK, failure(nullID, CodeInvalidRequest, "Invalid Request"))
			return
		}
		responses := h.dispatcher.DispatchBatch(ctx, batch, cred)
		if len(responses) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, responses)
		return
	}

	resp := h.dispatcher.DispatchRaw(ctx, body, cred)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /mcp.
func (h *Handler) Get(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed. Use POST for MCP requests.")
}

// Delete handles DELETE /mcp.
func (h *Handler) Delete(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed. No sessions in stateless mode.")
}
