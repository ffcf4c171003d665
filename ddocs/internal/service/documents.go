package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
	"github.com/fileverse/ddocs-stack/ddocs/internal/repository"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return "0x" + hex.EncodeToString(sum[:])
}

// newEvent builds the outbox event recording doc at its current version.
func newEvent(doc *models.Document, typ models.EventType) (*models.Event, error) {
	payload := models.EventPayload{DDocID: doc.DDocID, Version: doc.LocalVersion}
	if typ != models.EventTypeDelete {
		payload.Title = doc.Title
		payload.ContentHash = contentHash(doc.Content)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}
	return &models.Event{
		ID:            newID(),
		Type:          typ,
		PortalAddress: doc.PortalAddress,
		FileID:        doc.DDocID,
		Version:       doc.LocalVersion,
		Status:        models.EventStatusPending,
		Payload:       raw,
	}, nil
}

func normalize(opts models.ListOptions) models.ListOptions {
	if opts.Limit < 1 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Skip < 0 {
		opts.Skip = 0
	}
	return opts
}

// CreateDocument stores a new document and enqueues its create event.
func (s *Service) CreateDocument(ctx context.Context, portal string, req models.CreateDocumentRequest) (*models.Document, error) {
	if strings.TrimSpace(req.Title) == "" || req.Content == "" {
		return nil, ErrTitleAndContentRequired
	}

	doc := &models.Document{
		DDocID:        newID(),
		Title:         req.Title,
		Content:       req.Content,
		PortalAddress: portal,
		SyncStatus:    models.SyncStatusPending,
		LocalVersion:  1,
	}
	evt, err := newEvent(doc, models.EventTypeCreate)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateDocument(ctx, doc, evt); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.InfoContext(ctx, "document created", logging.DDocID(doc.DDocID), logging.PortalAddress(portal), logging.EventID(evt.ID))
	s.indexDocument(ctx, doc)
	return doc, nil
}

// GetDocument returns a live document of portal.
func (s *Service) GetDocument(ctx context.Context, portal, ddocID string) (*models.Document, error) {
	return s.repo.GetDocument(ctx, ddocID, portal)
}

// ListDocuments pages portal's live documents, most recently updated first.
func (s *Service) ListDocuments(ctx context.Context, portal string, opts models.ListOptions) (*models.DocumentList, error) {
	return s.repo.ListDocuments(ctx, portal, normalize(opts))
}

// maxVersionAttempts bounds how often a mutation re-reads a document that
// changed underneath it before giving up with ErrVersionConflict.
const maxVersionAttempts = 5

// mutate reads the live document, applies change, bumps its version and
// writes it with an event of typ. A concurrent write makes it start over
// from a fresh read.
func (s *Service) mutate(ctx context.Context, portal, ddocID string, typ models.EventType, change func(*models.Document)) (*models.Document, *models.Event, error) {
	for attempt := 1; ; attempt++ {
		doc, err := s.repo.GetDocument(ctx, ddocID, portal)
		if err != nil {
			return nil, nil, err
		}
		change(doc)
		doc.LocalVersion++
		doc.SyncStatus = models.SyncStatusPending

		evt, err := newEvent(doc, typ)
		if err != nil {
			return nil, nil, err
		}
		err = s.repo.UpdateDocument(ctx, doc, evt)
		if errors.Is(err, repository.ErrVersionConflict) && attempt < maxVersionAttempts {
			s.logger.DebugContext(ctx, "document changed concurrently, retrying",
				logging.DDocID(ddocID), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return doc, evt, nil
	}
}

// UpdateDocument applies the non-empty fields of req and enqueues an
// update event for the new version.
func (s *Service) UpdateDocument(ctx context.Context, portal, ddocID string, req models.UpdateDocumentRequest) (*models.Document, error) {
	if req.Empty() {
		return nil, ErrNothingToUpdate
	}

	doc, evt, err := s.mutate(ctx, portal, ddocID, models.EventTypeUpdate, func(doc *models.Document) {
		if req.Title != nil && *req.Title != "" {
			doc.Title = *req.Title
		}
		if req.Content != nil && *req.Content != "" {
			doc.Content = *req.Content
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	s.logger.InfoContext(ctx, "document updated", logging.DDocID(ddocID), logging.PortalAddress(portal), logging.EventID(evt.ID))
	s.indexDocument(ctx, doc)
	return doc, nil
}

// DeleteDocument soft-deletes a document and enqueues its delete event.
// It returns the document as it was deleted.
func (s *Service) DeleteDocument(ctx context.Context, portal, ddocID string) (*models.Document, error) {
	doc, evt, err := s.mutate(ctx, portal, ddocID, models.EventTypeDelete, func(doc *models.Document) {
		doc.IsDeleted = true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}

	s.logger.InfoContext(ctx, "document deleted", logging.DDocID(ddocID), logging.PortalAddress(portal), logging.EventID(evt.ID))
	if s.index != nil {
		if err := s.index.RemoveDocument(ctx, ddocID); err != nil {
			s.logger.WarnContext(ctx, "failed to remove document from index", logging.DDocID(ddocID), logging.Error(err))
		}
	}
	return doc, nil
}

// SearchDocuments matches query against portal's documents.
func (s *Service) SearchDocuments(ctx context.Context, portal, query string, opts models.ListOptions) (*models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrQueryRequired
	}
	opts = normalize(opts)

	if s.index != nil {
		result, err := s.index.Search(ctx, portal, query, opts)
		if err == nil {
			return result, nil
		}
		s.logger.WarnContext(ctx, "index search failed, using store", logging.PortalAddress(portal), logging.Error(err))
	}
	return s.repo.SearchDocuments(ctx, portal, query, opts)
}

// SyncStatus reports a document's anchoring state.
func (s *Service) SyncStatus(ctx context.Context, portal, ddocID string) (models.SyncInfo, error) {
	doc, err := s.repo.GetDocument(ctx, ddocID, portal)
	if err != nil {
		return models.SyncInfo{}, err
	}
	return doc.SyncInfo(), nil
}

func (s *Service) indexDocument(ctx context.Context, doc *models.Document) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexDocument(ctx, doc); err != nil {
		s.logger.WarnContext(ctx, "failed to index document", logging.DDocID(doc.DDocID), logging.Error(err))
	}
}
