package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/fileverse/ddocs-stack/common/httputil"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
	"github.com/fileverse/ddocs-stack/ddocs/internal/repository"
	"github.com/fileverse/ddocs-stack/ddocs/internal/service"
)

var errUnsupportedContentType = errors.New("Unsupported content type")

type bodyFields struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (f bodyFields) title() string {
	if f.Title == nil {
		return ""
	}
	return *f.Title
}

func (f bodyFields) content() string {
	if f.Content == nil {
		return ""
	}
	return *f.Content
}

// parseBodyFields reads title and content from a JSON, multipart or form
// body. An uploaded file supplies the content and, if the title is empty,
// the title. Form bodies without a title get defaultTitle.
func parseBodyFields(r *http.Request, defaultTitle string) (bodyFields, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		var f bodyFields
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return bodyFields{}, err
		}
		return f, nil

	case "multipart/form-data", "application/x-www-form-urlencoded":
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
				return bodyFields{}, err
			}
		} else if err := r.ParseForm(); err != nil {
			return bodyFields{}, err
		}

		var title *string
		if values, ok := r.PostForm["title"]; ok && len(values) > 0 {
			title = &values[0]
		} else if defaultTitle != "" {
			title = &defaultTitle
		}
		var content *string
		if file, header, err := r.FormFile("file"); err == nil {
			defer file.Close()
			text, err := readUpload(file)
			if err != nil {
				return bodyFields{}, err
			}
			content = &text
			if title == nil || *title == "" {
				title = &header.Filename
			}
		} else if values, ok := r.PostForm["content"]; ok && len(values) > 0 {
			content = &values[0]
		}
		return bodyFields{Title: title, Content: content}, nil
	}
	return bodyFields{}, errUnsupportedContentType
}

func readUpload(f multipart.File) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (h *Handler) writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnsupportedContentType) {
		httputil.WriteMessage(w, http.StatusUnsupportedMediaType, "Unsupported content type")
		return
	}
	httputil.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
}

// CreateDocument handles POST /api/ddocs
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	fields, err := parseBodyFields(r, "Untitled")
	if err != nil {
		h.writeBodyError(w, err)
		return
	}
	if fields.title() == "" || fields.content() == "" {
		httputil.WriteMessage(w, http.StatusBadRequest, "Both title and content are required")
		return
	}

	doc, err := h.svc.CreateDocument(r.Context(), portal(r), models.CreateDocumentRequest{
		Title:   fields.title(),
		Content: fields.content(),
	})
	if errors.Is(err, service.ErrTitleAndContentRequired) {
		httputil.WriteMessage(w, http.StatusBadRequest, "Both title and content are required")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "File created successfully. Sync to on-chain is pending.",
		"data":    doc,
	})
}

// ListDocuments handles GET /api/ddocs
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePage(r, defaultPageLimit, maxPageLimit)
	list, err := h.svc.ListDocuments(r.Context(), portal(r), models.ListOptions{Limit: page.Limit, Skip: page.Skip})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

// GetDocument handles GET /api/ddocs/{ddocId}
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.GetDocument(r.Context(), portal(r), r.PathValue("ddocId"))
	if isNotFound(err, repository.ErrDocumentNotFound) {
		httputil.WriteMessage(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// UpdateDocument handles PUT /api/ddocs/{ddocId}
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	fields, err := parseBodyFields(r, "")
	if err != nil {
		h.writeBodyError(w, err)
		return
	}
	req := models.UpdateDocumentRequest{Title: fields.Title, Content: fields.Content}
	if req.Empty() {
		httputil.WriteMessage(w, http.StatusBadRequest, "At least one field is required: Either provide title, content, or both")
		return
	}

	doc, err := h.svc.UpdateDocument(r.Context(), portal(r), r.PathValue("ddocId"), req)
	if isNotFound(err, repository.ErrDocumentNotFound) {
		httputil.WriteMessage(w, http.StatusNotFound, "File not found")
		return
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		httputil.WriteMessage(w, http.StatusConflict, "File was modified concurrently, retry the request")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "File updated successfully",
		"data":    doc,
	})
}

// DeleteDocument handles DELETE /api/ddocs/{ddocId}
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.DeleteDocument(r.Context(), portal(r), r.PathValue("ddocId"))
	if isNotFound(err, repository.ErrDocumentNotFound) {
		httputil.WriteMessage(w, http.StatusNotFound, "File not found")
		return
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		httputil.WriteMessage(w, http.StatusConflict, "File was modified concurrently, retry the request")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "File deleted successfully",
		"data":    doc,
	})
}

// SearchDocuments handles GET /api/search
func (h *Handler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		httputil.WriteMessage(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}
	page := httputil.ParsePage(r, defaultPageLimit, maxPageLimit)
	result, err := h.svc.SearchDocuments(r.Context(), portal(r), q, models.ListOptions{Limit: page.Limit, Skip: page.Skip})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
