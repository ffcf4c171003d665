package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

// InMemoryRepository implements Repository in process memory. Claims use
// the same compare-and-set rules as PostgreSQL, under one mutex.
type InMemoryRepository struct {
	mu   sync.Mutex
	opts Options
	now  func() time.Time

	documents   map[string]*models.Document
	docOrder    []string
	events      map[string]*models.Event
	eventOrder  []string
	folders     map[string]*models.Folder
	folderOrder []string
	apiKeys     map[string]*models.APIKey
}

func NewInMemoryRepository(opts Options) *InMemoryRepository {
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = DefaultOptions().ClaimLease
	}
	return &InMemoryRepository{
		opts:      opts,
		now:       time.Now,
		documents: make(map[string]*models.Document),
		events:    make(map[string]*models.Event),
		folders:   make(map[string]*models.Folder),
		apiKeys:   make(map[string]*models.APIKey),
	}
}

func (r *InMemoryRepository) Ping(context.Context) error { return nil }
func (r *InMemoryRepository) Close() error               { return nil }

func copyEvent(e *models.Event) *models.Event {
	c := *e
	c.Payload = slices.Clone(e.Payload)
	return &c
}

func copyDocument(d *models.Document) *models.Document {
	c := *d
	return &c
}

func inScope(portal, scope string) bool {
	return scope == "" || portal == scope
}

// =============================================================================
// EVENTS
// =============================================================================

func (r *InMemoryRepository) addEvent(e *models.Event, now time.Time) {
	stored := copyEvent(e)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = models.EventStatusPending
	}
	r.events[stored.ID] = stored
	r.eventOrder = append(r.eventOrder, stored.ID)
	e.CreatedAt, e.UpdatedAt, e.Status = now, now, stored.Status
}

func (r *InMemoryRepository) claimNext(status models.EventStatus, scope string, exclude []string) (*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, id := range r.eventOrder {
		e := r.events[id]
		if e.Status != status || !inScope(e.PortalAddress, scope) || slices.Contains(exclude, id) {
			continue
		}
		if !e.ClaimExpired(now, r.opts.ClaimLease) {
			continue
		}
		claimedAt := now
		e.ClaimToken = uuid.NewString()
		e.ClaimedAt = &claimedAt
		return &models.Claim{Event: copyEvent(e), Token: e.ClaimToken, ClaimedAt: claimedAt}, nil
	}
	return nil, ErrNoEventAvailable
}

func (r *InMemoryRepository) ClaimNextPending(_ context.Context, scope string, exclude []string) (*models.Claim, error) {
	return r.claimNext(models.EventStatusPending, scope, exclude)
}

func (r *InMemoryRepository) ClaimNextSubmitted(_ context.Context, scope string, exclude []string) (*models.Claim, error) {
	return r.claimNext(models.EventStatusSubmitted, scope, exclude)
}

// claimed returns the stored event if claim still holds it in status.
func (r *InMemoryRepository) claimed(claim *models.Claim, status models.EventStatus) (*models.Event, error) {
	e, ok := r.events[claim.EventID()]
	if !ok || e.ClaimToken != claim.Token || e.Status != status {
		return nil, ErrClaimLost
	}
	return e, nil
}

func (r *InMemoryRepository) MarkSubmitted(_ context.Context, claim *models.Claim, ledgerRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.claimed(claim, models.EventStatusPending)
	if err != nil {
		return err
	}
	if err := e.Transition(models.EventStatusSubmitted, r.now()); err != nil {
		return err
	}
	e.LedgerRef = ledgerRef
	e.LastError = ""
	e.ClaimToken, e.ClaimedAt = "", nil
	return nil
}

func (r *InMemoryRepository) MarkResolved(_ context.Context, claim *models.Claim, res models.Resolution) error {
	if err := models.ValidateTransition(models.EventStatusSubmitted, res.Status); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.claimed(claim, models.EventStatusSubmitted)
	if err != nil {
		return err
	}
	now := r.now()
	if err := e.Transition(res.Status, now); err != nil {
		return err
	}
	e.LastError = res.Reason
	e.ClaimToken, e.ClaimedAt = "", nil

	doc, ok := r.documents[e.FileID]
	if !ok {
		return nil
	}
	if res.Status == models.EventStatusResolved {
		doc.OnchainVersion = max(doc.OnchainVersion, e.Version)
		if doc.OnchainVersion >= doc.LocalVersion {
			doc.SyncStatus = models.SyncStatusSynced
		} else {
			doc.SyncStatus = models.SyncStatusPending
		}
		if res.Link != "" {
			doc.Link = res.Link
		}
	} else if doc.LocalVersion <= e.Version {
		doc.SyncStatus = models.SyncStatusFailed
	}
	doc.UpdatedAt = now
	return nil
}

func (r *InMemoryRepository) ReleaseClaim(_ context.Context, claim *models.Claim, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[claim.EventID()]
	if !ok || e.ClaimToken != claim.Token {
		return ErrClaimLost
	}
	e.ClaimToken, e.ClaimedAt = "", nil
	if cause != "" {
		e.LastError = cause
	}
	e.UpdatedAt = r.now()
	return nil
}

func (r *InMemoryRepository) GetEvent(_ context.Context, id string) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return copyEvent(e), nil
}

func (r *InMemoryRepository) ListFailed(_ context.Context, scope string) ([]*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*models.Event{}
	for _, id := range r.eventOrder {
		if e := r.events[id]; e.Status == models.EventStatusFailed && inScope(e.PortalAddress, scope) {
			out = append(out, copyEvent(e))
		}
	}
	return out, nil
}

// resetLocked applies failed -> pending to e if the retry budget allows.
func (r *InMemoryRepository) resetLocked(e *models.Event, now time.Time) bool {
	if e.Status != models.EventStatusFailed {
		return false
	}
	if r.opts.MaxRetries > 0 && e.Attempts >= r.opts.MaxRetries {
		return false
	}
	if err := e.Transition(models.EventStatusPending, now); err != nil {
		return false
	}
	e.ClaimToken, e.ClaimedAt = "", nil
	if doc, ok := r.documents[e.FileID]; ok && doc.SyncStatus == models.SyncStatusFailed {
		doc.SyncStatus = models.SyncStatusPending
		doc.UpdatedAt = now
	}
	return true
}

func (r *InMemoryRepository) ResetFailedToPending(_ context.Context, id, scope string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok || !inScope(e.PortalAddress, scope) {
		return false, nil
	}
	return r.resetLocked(e, r.now()), nil
}

func (r *InMemoryRepository) ResetAllFailedToPending(_ context.Context, scope string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for _, id := range r.eventOrder {
		if e := r.events[id]; inScope(e.PortalAddress, scope) && r.resetLocked(e, now) {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) CountByStatus(_ context.Context, scope string) (models.StatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := models.StatusCounts{}
	for _, e := range r.events {
		if inScope(e.PortalAddress, scope) {
			counts[e.Status]++
		}
	}
	return counts, nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func (r *InMemoryRepository) CreateDocument(_ context.Context, doc *models.Document, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	r.documents[doc.DDocID] = copyDocument(doc)
	r.docOrder = append(r.docOrder, doc.DDocID)
	r.addEvent(event, now)
	return nil
}

func (r *InMemoryRepository) UpdateDocument(_ context.Context, doc *models.Document, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.documents[doc.DDocID]
	if !ok || stored.IsDeleted || stored.PortalAddress != doc.PortalAddress {
		return ErrDocumentNotFound
	}
	if stored.LocalVersion != doc.LocalVersion-1 {
		return ErrVersionConflict
	}
	now := r.now()
	stored.Title = doc.Title
	stored.Content = doc.Content
	stored.SyncStatus = doc.SyncStatus
	stored.LocalVersion = doc.LocalVersion
	stored.IsDeleted = doc.IsDeleted
	stored.UpdatedAt = now
	doc.UpdatedAt = now
	r.addEvent(event, now)
	return nil
}

func (r *InMemoryRepository) GetDocument(_ context.Context, ddocID, portal string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.documents[ddocID]
	if !ok || d.IsDeleted || d.PortalAddress != portal {
		return nil, ErrDocumentNotFound
	}
	return copyDocument(d), nil
}

func (r *InMemoryRepository) ListDocuments(_ context.Context, portal string, opts models.ListOptions) (*models.DocumentList, error) {
	docs, total := r.filterDocuments(portal, "", opts)
	return &models.DocumentList{DDocs: docs, Total: total, HasNext: opts.Skip+len(docs) < total}, nil
}

func (r *InMemoryRepository) SearchDocuments(_ context.Context, portal, query string, opts models.ListOptions) (*models.SearchResult, error) {
	docs, total := r.filterDocuments(portal, query, opts)
	return &models.SearchResult{Nodes: docs, Total: total, HasNext: opts.Skip+len(docs) < total}, nil
}

// filterDocuments mirrors the PostgreSQL ordering: most recently updated first.
func (r *InMemoryRepository) filterDocuments(portal, query string, opts models.ListOptions) ([]*models.Document, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(query)
	matched := []*models.Document{}
	for _, id := range r.docOrder {
		d := r.documents[id]
		if d.IsDeleted || d.PortalAddress != portal {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(d.Title), needle) &&
			!strings.Contains(strings.ToLower(d.Content), needle) {
			continue
		}
		matched = append(matched, copyDocument(d))
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return page(matched, opts), len(matched)
}

func page[T any](items []T, opts models.ListOptions) []T {
	if opts.Skip >= len(items) {
		return []T{}
	}
	items = items[opts.Skip:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// =============================================================================
// FOLDERS
// =============================================================================

func folderKey(ref, id string) string { return ref + "/" + id }

func (r *InMemoryRepository) CreateFolder(_ context.Context, folder *models.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := folderKey(folder.FolderRef, folder.FolderID)
	if _, exists := r.folders[key]; exists {
		return ErrFolderExists
	}
	folder.CreatedAt = r.now()
	c := *folder
	r.folders[key] = &c
	r.folderOrder = append(r.folderOrder, key)
	return nil
}

func (r *InMemoryRepository) GetFolder(_ context.Context, folderRef, folderID string) (*models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.folders[folderKey(folderRef, folderID)]
	if !ok {
		return nil, ErrFolderNotFound
	}
	c := *f
	return &c, nil
}

func (r *InMemoryRepository) ListFolders(_ context.Context, opts models.ListOptions) (*models.FolderList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*models.Folder, 0, len(r.folderOrder))
	for i := len(r.folderOrder) - 1; i >= 0; i-- {
		c := *r.folders[r.folderOrder[i]]
		all = append(all, &c)
	}
	folders := page(all, opts)
	return &models.FolderList{Folders: folders, Total: len(all), HasNext: opts.Skip+len(folders) < len(all)}, nil
}

// =============================================================================
// API KEYS
// =============================================================================

func (r *InMemoryRepository) UpsertAPIKey(_ context.Context, key *models.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.apiKeys[key.KeyID]; ok {
		key.CreatedAt = existing.CreatedAt
	} else {
		key.CreatedAt = r.now()
	}
	c := *key
	r.apiKeys[key.KeyID] = &c
	return nil
}

func (r *InMemoryRepository) GetAPIKey(_ context.Context, keyID string) (*models.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.apiKeys[keyID]
	if !ok {
		return nil, ErrAPIKeyNotFound
	}
	c := *k
	return &c, nil
}

var _ Repository = (*InMemoryRepository)(nil)
