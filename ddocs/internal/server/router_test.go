package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/auth"
	"github.com/fileverse/ddocs-stack/ddocs/internal/handlers"
	"github.com/fileverse/ddocs-stack/ddocs/internal/mcp"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
	"github.com/fileverse/ddocs-stack/ddocs/internal/repository"
	"github.com/fileverse/ddocs-stack/ddocs/internal/service"
)

const (
	apiKey = "test-key-0123456789"
	portal = "0xportal"
)

type testEnv struct {
	router http.Handler
	repo   *repository.InMemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.Discard()
	repo := repository.NewInMemoryRepository(repository.DefaultOptions())
	resolver := auth.NewResolver(repo, nil, 0, logger)
	_, err := resolver.Register(context.Background(), apiKey, portal)
	require.NoError(t, err)

	svc := service.NewService(repo, nil, logger)
	catalog := mcp.MustDefaultCatalog()
	dispatcher := mcp.NewDispatcher(mcp.DefaultConfig(), catalog, mcp.NewServiceExecutor(svc), resolver, logger)
	h := handlers.NewHandler(svc, catalog, logger)

	return &testEnv{
		router: NewRouter(h, mcp.NewHandler(dispatcher, apiKey, logger), resolver, logger),
		repo:   repo,
	}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.HasPrefix(path, "/api/") && !strings.Contains(path, "apiKey=") {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type created struct {
	Message string          `json:"message"`
	Data    models.Document `json:"data"`
}

func (e *testEnv) createJSON(t *testing.T, title, content string) models.Document {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"title": title, "content": content})
	rec := e.do(t, http.MethodPost, "/api/ddocs", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[created](t, rec).Data
}

func TestPublicRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"pong"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/ddocs")

	rec = env.do(t, http.MethodGet, "/llm.txt", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fileverse_create_document")

	rec = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAPIRequiresCredential(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ddocs", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid or missing API key"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/ddocs?apiKey="+apiKey, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/ddocs", nil)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	doc := env.createJSON(t, "Plan", "first draft")
	assert.Equal(t, models.SyncStatusPending, doc.SyncStatus)

	rec := env.do(t, http.MethodGet, "/api/ddocs/"+doc.DDocID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Plan", decode[models.Document](t, rec).Title)

	rec = env.do(t, http.MethodPut, "/api/ddocs/"+doc.DDocID, "application/json", []byte(`{"content":"second draft"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[created](t, rec)
	assert.Equal(t, "File updated successfully", updated.Message)
	assert.Equal(t, "second draft", updated.Data.Content)
	assert.Equal(t, "Plan", updated.Data.Title)
	assert.Equal(t, 2, updated.Data.LocalVersion)

	rec = env.do(t, http.MethodGet, "/api/ddocs?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.DocumentList](t, rec).Total)

	rec = env.do(t, http.MethodGet, "/api/search?q=second", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[models.SearchResult](t, rec).Nodes, 1)

	rec = env.do(t, http.MethodDelete, "/api/ddocs/"+doc.DDocID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "File deleted successfully", decode[created](t, rec).Message)

	rec = env.do(t, http.MethodGet, "/api/ddocs/"+doc.DDocID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"File not found"}`, rec.Body.String())
}

func TestCreateDocument_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/ddocs", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.JSONEq(t, `{"message":"Unsupported content type"}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/ddocs", "application/json", []byte(`{"title":"only title"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Both title and content are required"}`, rec.Body.String())

	rec = env.do(t, http.MethodPut, "/api/ddocs/whatever", "application/json", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"At least one field is required: Either provide title, content, or both"}`, rec.Body.String())

	rec = env.do(t, http.MethodPut, "/api/ddocs/missing", "application/json", []byte(`{"title":"x"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDocument_Forms(t *testing.T) {
	env := newTestEnv(t)

	t.Run("multipart file upload", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "notes.md")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("# from file"))
		require.NoError(t, mw.Close())

		rec := env.do(t, http.MethodPost, "/api/ddocs", mw.FormDataContentType(), buf.Bytes())
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		doc := decode[created](t, rec).Data
		assert.Equal(t, "Untitled", doc.Title)
		assert.Equal(t, "# from file", doc.Content)
	})

	t.Run("urlencoded", func(t *testing.T) {
		form := url.Values{"title": {"Form"}, "content": {"body"}}
		rec := env.do(t, http.MethodPost, "/api/ddocs", "application/x-www-form-urlencoded", []byte(form.Encode()))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "Form", decode[created](t, rec).Data.Title)
	})
}

func TestSearch_RequiresQuery(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/search", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Query parameter 'q' is required"}`, rec.Body.String())
}

func folderBody(overrides map[string]any) []byte {
	body := map[string]any{
		"onchainFileId":                 "7",
		"folderId":                      "f-1",
		"folderRef":                     "ref-1",
		"folderName":                    "Research",
		"portalAddress":                 portal,
		"metadataIPFSHash":              "QmHash",
		"lastTransactionBlockNumber":    0,
		"lastTransactionBlockTimestamp": 1700000000,
	}
	for k, v := range overrides {
		if v == nil {
			delete(body, k)
			continue
		}
		body[k] = v
	}
	raw, _ := json.Marshal(body)
	return raw
}

func TestFolders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/folders", "application/json", folderBody(map[string]any{"folderName": nil}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Missing required field: folderName"}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/folders", "application/json", folderBody(nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	folder := decode[models.Folder](t, rec)
	assert.Equal(t, int64(0), folder.LastTransactionBlockNumber)
	assert.Equal(t, int64(1700000000), folder.LastTransactionBlockTimestamp)

	rec = env.do(t, http.MethodPost, "/api/folders", "application/json", folderBody(nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/folders/ref-1/f-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Research", decode[models.Folder](t, rec).FolderName)

	rec = env.do(t, http.MethodGet, "/api/folders/ref-1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Folder not found"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/folders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.FolderList](t, rec).Total)
}

func failFirstPending(t *testing.T, repo *repository.InMemoryRepository) string {
	t.Helper()
	ctx := context.Background()
	claim, err := repo.ClaimNextPending(ctx, portal, nil)
	require.NoError(t, err)
	require.NoError(t, repo.MarkSubmitted(ctx, claim, "ref"))
	claim, err = repo.ClaimNextSubmitted(ctx, portal, nil)
	require.NoError(t, err)
	require.NoError(t, repo.MarkResolved(ctx, claim, models.Resolution{Status: models.EventStatusFailed, Reason: "rejected"}))
	return claim.EventID()
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)
	env.createJSON(t, "a", "x")
	id := failFirstPending(t, env.repo)

	rec := env.do(t, http.MethodGet, "/api/events/failed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decode[[]models.Event](t, rec)
	require.Len(t, failed, 1)
	assert.Equal(t, id, failed[0].ID)

	rec = env.do(t, http.MethodPost, "/api/events/"+id+"/retry", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/events/"+id+"/retry", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Event not found or not in failed state"}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/events/retry-failed", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"retried":0}`, rec.Body.String())
}

func TestMCPRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/mcp", "application/json", []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/mcp", "application/json", []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/mcp", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(t, http.MethodDelete, "/mcp", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(t, http.MethodPost, "/", "application/json", []byte(`[{"jsonrpc":"2.0","id":9,"method":"tools/list"}]`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fileverse_list_documents")

	rec = env.do(t, http.MethodPost, "/", "application/json", []byte(`{"hello":"world"}`))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Use POST /mcp for MCP requests."}`, rec.Body.String())
}

func TestMCP_ToolCreatesVisibleDocument(t *testing.T) {
	env := newTestEnv(t)

	call := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"fileverse_create_document","arguments":{"title":"via mcp","content":"body"}}}`
	rec := env.do(t, http.MethodPost, "/mcp", "application/json", []byte(call))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"isError"`)

	rec = env.do(t, http.MethodGet, "/api/search?q=via", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.SearchResult](t, rec).Total)
}
