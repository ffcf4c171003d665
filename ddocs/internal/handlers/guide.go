package handlers

import (
	"net/http"
	"strings"

	"github.com/fileverse/ddocs-stack/common/httputil"
)

const guide = `ddocs API

Documents are stored locally and anchored to the ledger asynchronously.
Every /api route needs an API key: ?apiKey=..., an X-API-Key header or
an Authorization: Bearer header.

  POST   /api/ddocs                      create (JSON, multipart or form)
  GET    /api/ddocs?limit=&skip=         list
  GET    /api/ddocs/{ddocId}             fetch
  PUT    /api/ddocs/{ddocId}             update title and/or content
  DELETE /api/ddocs/{ddocId}             delete
  GET    /api/search?q=&limit=&skip=     search
  GET    /api/folders                    list folders
  POST   /api/folders                    create folder
  GET    /api/folders/{folderRef}/{id}   fetch folder
  GET    /api/events/failed              failed sync events
  POST   /api/events/retry-failed        requeue every failed event
  POST   /api/events/{id}/retry          requeue one failed event

MCP clients POST JSON-RPC 2.0 to /mcp. The tool list is at /llm.txt.
`

// Guide handles GET /
func (h *Handler) Guide(w http.ResponseWriter, r *http.Request) {
	httputil.WriteText(w, http.StatusOK, guide)
}

// LLMText handles GET /llm.txt
func (h *Handler) LLMText(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("# ddocs MCP tools\n\n")
	b.WriteString("Endpoint: POST /mcp (JSON-RPC 2.0, methods initialize, ping, tools/list, tools/call)\n\n")
	if h.catalog != nil {
		b.WriteString(h.catalog.Summary())
	}
	httputil.WriteText(w, http.StatusOK, b.String())
}
