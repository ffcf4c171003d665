package handlers

import (
	"net/http"

	"github.com/fileverse/ddocs-stack/common/httputil"
)

// ListFailedEvents handles GET /api/events/failed
func (h *Handler) ListFailedEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListFailedEvents(r.Context(), portal(r))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

// RetryFailedEvents handles POST /api/events/retry-failed
func (h *Handler) RetryFailedEvents(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RetryAllFailed(r.Context(), portal(r))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"retried": n})
}

// RetryEvent handles POST /api/events/{id}/retry
func (h *Handler) RetryEvent(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.RetryEvent(r.Context(), portal(r), r.PathValue("id"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if !ok {
		httputil.WriteMessage(w, http.StatusNotFound, "Event not found or not in failed state")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
