package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fileverse/ddocs-stack/common/httputil"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
	"github.com/fileverse/ddocs-stack/ddocs/internal/repository"
)

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func folderFromBody(body map[string]any) (*models.Folder, error) {
	blockNumber, err := asInt64(body["lastTransactionBlockNumber"])
	if err != nil {
		return nil, fmt.Errorf("lastTransactionBlockNumber: %w", err)
	}
	blockTimestamp, err := asInt64(body["lastTransactionBlockTimestamp"])
	if err != nil {
		return nil, fmt.Errorf("lastTransactionBlockTimestamp: %w", err)
	}
	return &models.Folder{
		OnchainFileID:                 asString(body["onchainFileId"]),
		FolderID:                      asString(body["folderId"]),
		FolderRef:                     asString(body["folderRef"]),
		FolderName:                    asString(body["folderName"]),
		PortalAddress:                 asString(body["portalAddress"]),
		MetadataIPFSHash:              asString(body["metadataIPFSHash"]),
		LastTransactionBlockNumber:    blockNumber,
		LastTransactionBlockTimestamp: blockTimestamp,
	}, nil
}

// CreateFolder handles POST /api/folders
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if field, missing := models.MissingFolderField(body); missing {
		httputil.WriteMessage(w, http.StatusBadRequest, "Missing required field: "+field)
		return
	}
	folder, err := folderFromBody(body)
	if err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "Invalid field "+err.Error())
		return
	}

	created, err := h.svc.CreateFolder(r.Context(), folder)
	if errors.Is(err, repository.ErrFolderExists) {
		httputil.WriteMessage(w, http.StatusConflict, "Folder already exists")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// ListFolders handles GET /api/folders
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePage(r, defaultPageLimit, maxPageLimit)
	list, err := h.svc.ListFolders(r.Context(), models.ListOptions{Limit: page.Limit, Skip: page.Skip})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

// GetFolder handles GET /api/folders/{folderRef}/{folderId}
func (h *Handler) GetFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := h.svc.GetFolder(r.Context(), r.PathValue("folderRef"), r.PathValue("folderId"))
	if isNotFound(err, repository.ErrFolderNotFound) {
		httputil.WriteMessage(w, http.StatusNotFound, "Folder not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, folder)
}
