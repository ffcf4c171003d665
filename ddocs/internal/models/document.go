package models

import "time"

// SyncStatus is a document's on-chain anchoring state.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// Document is a stored ddoc.
type Document struct {
	DDocID         string     `json:"ddocId"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	PortalAddress  string     `json:"portalAddress"`
	SyncStatus     SyncStatus `json:"syncStatus"`
	Link           string     `json:"link,omitempty"`
	LocalVersion   int        `json:"localVersion"`
	OnchainVersion int        `json:"onchainVersion"`
	IsDeleted      bool       `json:"isDeleted"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// SyncInfo is the subset of a document reported by the sync status tool.
type SyncInfo struct {
	DDocID         string     `json:"ddocId"`
	SyncStatus     SyncStatus `json:"syncStatus"`
	Link           string     `json:"link"`
	LocalVersion   int        `json:"localVersion"`
	OnchainVersion int        `json:"onchainVersion"`
}

// SyncInfo returns d's sync fields.
func (d *Document) SyncInfo() SyncInfo {
	return SyncInfo{
		DDocID:         d.DDocID,
		SyncStatus:     d.SyncStatus,
		Link:           d.Link,
		LocalVersion:   d.LocalVersion,
		OnchainVersion: d.OnchainVersion,
	}
}

// CreateDocumentRequest carries the fields of a new document.
type CreateDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateDocumentRequest carries optional replacements. Nil fields are left
// unchanged.
type UpdateDocumentRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r UpdateDocumentRequest) Empty() bool {
	return (r.Title == nil || *r.Title == "") && (r.Content == nil || *r.Content == "")
}

// ListOptions pages a listing or search.
type ListOptions struct {
	Limit int
	Skip  int
}

// DocumentList is a page of documents.
type DocumentList struct {
	DDocs   []*Document `json:"ddocs"`
	Total   int         `json:"total"`
	HasNext bool        `json:"hasNext"`
}

// SearchResult is a page of search hits.
type SearchResult struct {
	Nodes   []*Document `json:"nodes"`
	Total   int         `json:"total"`
	HasNext bool        `json:"hasNext"`
}
