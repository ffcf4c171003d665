package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrFolderNotFound   = errors.New("folder not found")
	ErrFolderExists     = errors.New("folder already exists")
	ErrAPIKeyNotFound   = errors.New("api key not found")

	// ErrVersionConflict means the document changed since it was read.
	ErrVersionConflict = errors.New("document version conflict")

	// ErrNoEventAvailable means no claimable event matched.
	ErrNoEventAvailable = errors.New("no event available")
	// ErrClaimLost means the claim token no longer matches the event, either
	// because the lease expired and another worker took it or because the
	// event already moved on.
	ErrClaimLost = errors.New("event claim lost")
	// ErrInvalidTransition is models.ErrInvalidTransition.
	ErrInvalidTransition = models.ErrInvalidTransition
)

// Options are the store policies shared by every implementation.
type Options struct {
	// ClaimLease is how long a claim stays exclusive. An older claim is
	// considered abandoned.
	ClaimLease time.Duration
	// MaxRetries caps failed -> pending resets per event. Zero is unlimited.
	MaxRetries int
}

// DefaultOptions returns a five minute lease and no retry cap.
func DefaultOptions() Options {
	return Options{ClaimLease: 5 * time.Minute}
}

// EventStore is the outbox. Every status change goes through these
// conditional operations; nothing else writes events.status.
type EventStore interface {
	// ClaimNextPending claims the oldest unclaimed pending event in scope
	// ("" means every portal) whose id is not in exclude.
	ClaimNextPending(ctx context.Context, scope string, exclude []string) (*models.Claim, error)
	// ClaimNextSubmitted is ClaimNextPending for submitted events.
	ClaimNextSubmitted(ctx context.Context, scope string, exclude []string) (*models.Claim, error)
	// MarkSubmitted moves a claimed pending event to submitted and drops the claim.
	MarkSubmitted(ctx context.Context, claim *models.Claim, ledgerRef string) error
	// MarkResolved records a definitive outcome for a claimed submitted event
	// and updates the document's sync state.
	MarkResolved(ctx context.Context, claim *models.Claim, res models.Resolution) error
	// ReleaseClaim drops a claim without changing status. A non-empty cause
	// is stored as the event's last error.
	ReleaseClaim(ctx context.Context, claim *models.Claim, cause string) error

	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListFailed(ctx context.Context, scope string) ([]*models.Event, error)
	// ResetFailedToPending reports false, with no mutation, when the event is
	// missing, out of scope, not failed or out of retries.
	ResetFailedToPending(ctx context.Context, id, scope string) (bool, error)
	ResetAllFailedToPending(ctx context.Context, scope string) (int, error)
	CountByStatus(ctx context.Context, scope string) (models.StatusCounts, error)
}

// DocumentStore persists documents. Every mutation enqueues its event in
// the same transaction.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document, event *models.Event) error
	// UpdateDocument overwrites a live document, including soft deletes.
	// doc.LocalVersion is the new version; the write only applies while the
	// stored version is the one before it, else ErrVersionConflict.
	UpdateDocument(ctx context.Context, doc *models.Document, event *models.Event) error
	GetDocument(ctx context.Context, ddocID, portal string) (*models.Document, error)
	ListDocuments(ctx context.Context, portal string, opts models.ListOptions) (*models.DocumentList, error)
	// SearchDocuments is a substring match on title and content.
	SearchDocuments(ctx context.Context, portal, query string, opts models.ListOptions) (*models.SearchResult, error)
}

type FolderStore interface {
	CreateFolder(ctx context.Context, folder *models.Folder) error
	GetFolder(ctx context.Context, folderRef, folderID string) (*models.Folder, error)
	ListFolders(ctx context.Context, opts models.ListOptions) (*models.FolderList, error)
}

type APIKeyStore interface {
	// UpsertAPIKey registers or replaces the key with the same key id.
	UpsertAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKey(ctx context.Context, keyID string) (*models.APIKey, error)
}

// Repository is the full ddocs store.
type Repository interface {
	EventStore
	DocumentStore
	FolderStore
	APIKeyStore

	Ping(ctx context.Context) error
	Close() error
}
