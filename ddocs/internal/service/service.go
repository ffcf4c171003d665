// Package service holds the ddocs business operations shared by the REST
// handlers, the MCP tools and the CLI.
package service

import (
	"context"
	"errors"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
	"github.com/fileverse/ddocs-stack/ddocs/internal/repository"
)

var (
	ErrTitleAndContentRequired = errors.New("both title and content are required")
	ErrNothingToUpdate         = errors.New("at least one of title or content is required")
	ErrQueryRequired           = errors.New("query is required")
)

// Index is an optional full-text index kept next to the store. Indexing
// failures are logged and never fail a mutation; a failed search falls
// back to the store's substring match.
type Index interface {
	IndexDocument(ctx context.Context, doc *models.Document) error
	RemoveDocument(ctx context.Context, ddocID string) error
	Search(ctx context.Context, portal, query string, opts models.ListOptions) (*models.SearchResult, error)
}

// Service provides business logic for the ddocs service
type Service struct {
	repo   repository.Repository
	index  Index
	logger *logging.Logger
}

// NewService creates a new Service instance. index may be nil.
func NewService(repo repository.Repository, index Index, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, index: index, logger: logger}
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// EventCounts returns the outbox status counts for portal ("" for all).
func (s *Service) EventCounts(ctx context.Context, portal string) (models.StatusCounts, error) {
	return s.repo.CountByStatus(ctx, portal)
}
