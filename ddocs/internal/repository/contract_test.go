package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

const (
	portalA = "0xportal-a"
	portalB = "0xportal-b"
)

type repoFactory func(t *testing.T, opts Options) Repository

// seedDocument stores a new document together with its create event.
func seedDocument(t *testing.T, repo Repository, portal, title string) (*models.Document, *models.Event) {
	t.Helper()
	doc := &models.Document{
		DDocID:        uuid.NewString(),
		Title:         title,
		Content:       "content of " + title,
		PortalAddress: portal,
		SyncStatus:    models.SyncStatusPending,
		LocalVersion:  1,
	}
	evt := &models.Event{
		ID:            uuid.NewString(),
		Type:          models.EventTypeCreate,
		PortalAddress: portal,
		FileID:        doc.DDocID,
		Version:       1,
		Status:        models.EventStatusPending,
	}
	require.NoError(t, repo.CreateDocument(context.Background(), doc, evt))
	// Distinct created_at values keep oldest-first ordering deterministic.
	time.Sleep(2 * time.Millisecond)
	return doc, evt
}

// failEvent drives a pending event through submission to a rejected outcome.
func failEvent(t *testing.T, repo Repository, id string) {
	t.Helper()
	ctx := context.Background()

	claim, err := repo.ClaimNextPending(ctx, "", nil)
	require.NoError(t, err)
	require.Equal(t, id, claim.EventID())
	require.NoError(t, repo.MarkSubmitted(ctx, claim, "ref-"+id))

	claim, err = repo.ClaimNextSubmitted(ctx, "", nil)
	require.NoError(t, err)
	require.NoError(t, repo.MarkResolved(ctx, claim, models.Resolution{Status: models.EventStatusFailed, Reason: "rejected"}))
}

func runRepositoryContract(t *testing.T, newRepo repoFactory) {
	t.Run("claims oldest first and honours exclusions", func(t *testing.T) {
		repo := newRepo(t, DefaultOptions())
		ctx := context.Background()
		_, first := seedDocument(t, repo, portalA, "first")
		_, second := seedDocument(t, repo, portalA, "second")

		c1, err := repo.ClaimNextPending(ctx, portalA, nil)
		require.NoError(t, err)
		assert.Equal(t, first.ID, c1.EventID())

		c2, err := repo.ClaimNextPending(ctx, portalA, []string{c1.EventID()})
		require.NoError(t, err)
		assert.Equal(t, second.ID, c2.EventID())

		_, err = repo.ClaimNextPending(ctx, portalA, nil)
		assert.ErrorIs(t, err, ErrNoEventAvailable, "both events are claimed")

		_, err = repo.ClaimNextPending(ctx, portalB, nil)
		assert.ErrorIs(t, err, ErrNoEventAvailable)
	})

	t.Run("concurrent claimers never share an event", func(t *testing.T) {
		repo := newRepo(t, DefaultOptions())
		ctx := context.Background()
		_, evt := seedDocument(t, repo, portalA, "contended")

		const workers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		won := 0
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claim, err := repo.ClaimNextPending(ctx, "", nil)
				if err != nil {
					return
				}
				if repo.MarkSubmitted(ctx, claim, "ref") == nil {
					mu.Lock()
					won++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, won)
		got, err := repo.GetEvent(ctx, evt.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EventStatusSubmitted, got.Status)
	})

	t.Run("stale claim token is rejected", func(t *testing.T) {
		repo := newRepo(t, DefaultOptions())
		ctx := context.Background()
		seedDocument(t, repo, portalA, "doc")

		claim, err := repo.ClaimNextPending(ctx, "", nil)
		require.NoError(t, err)

		forged := &models.Claim{Event: claim.Event, Token: "not-the-token"}
		assert.ErrorIs(t, repo.MarkSubmitted(ctx, forged, "ref"), ErrClaimLost)
		assert.ErrorIs(t, repo.ReleaseClaim(ctx, forged, ""), ErrClaimLost)

		require.NoError(t, repo.MarkSubmitted(ctx, claim, "ref-1"))
		assert.ErrorIs(t, repo.MarkSubmitted(ctx, claim, "ref-2"), ErrClaimLost, "claim is consumed")
	})

	t.Run("release keeps the event pending and records the cause", func(t *testing.T) {
		repo := newRepo(t, DefaultOptions())
		ctx := context.Background()
		_, evt := seedDocument(t, repo, portalA, "doc")

		claim, err := repo.ClaimNextPending(ctx, "", nil)
		require.NoError(t, err)
		require.NoError(t, repo.ReleaseClaim(ctx, claim, "ledger unreachable"))

		got, err := repo.GetEvent(ctx, evt.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EventStatusPending, got.Status)
		assert.Equal(t, "ledger unreachable", got.LastError)

		again, err := repo.ClaimNextPending(ctx, "", nil)
		require.NoError(t, err)
		assert.Equal(t, evt.ID, again.EventID())
	})

	t.Run("resolution updates the document", func(t *testing.T) {
		repo := newRepo(t, DefaultOptions())
		ctx := context.Background()
		doc, evt := seedDocument(t, repo, portalA, "doc")

		claim, err := repo.ClaimNextPending(ctx, "", nil)
		require.NoError(t, err)
		require.NoError(t, repo.MarkSubmitted(ctx, claim, "0xabc"))

		claim, err = repo.ClaimNextSubmitted(ctx, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "0xabc", claim.Event.LedgerRef)

		err = repo.MarkResolved(ctx, claim, models.Resolution{Status: models.EventStatusPending})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		require.NoError(t, repo.MarkResolved(ctx, claim, models.Resolution{
			Status: models.EventStatusResolved,
			Link:   "https://explorer.example/tx/0xabc",
		}))

		got, err := repo.GetEvent(ctx, evt.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EventStatusResolved, got.Status)
		assert.NotNil(t, got.SubmittedAt)
		assert.NotNil(t, got.ResolvedAt)

		stored, err := repo.GetDocument(ctx, doc.DDocID, portalA)
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusSynced, stored.SyncStatus)
		assert.Equal(t, 1, stored.OnchainVersion)
		assert.Equal(t, "https://explorer.example/tx/0xabc", stored.Link)

		_, err = repo.ClaimNextSubmitted(ctx, "", nil)
		assert.ErrorIs(t, err, ErrNoEventAvailable, "resolved events are never handed out again")
	})

	t.Run("reset failed to pending", func(t *testing.T) {
		repo := newRepo(t, DefaultOptions())
		ctx := context.Background()
		doc, evt := seedDocument(t, repo, portalA, "doc")
		_, pending := seedDocument(t, repo, portalA, "other")

		ok, err := repo.ResetFailedToPending(ctx, uuid.NewString(), portalA)
		require.NoError(t, err)
		assert.False(t, ok, "unknown event")

		ok, err = repo.ResetFailedToPending(ctx, pending.ID, portalA)
		require.NoError(t, err)
		assert.False(t, ok, "pending event is not failed")

		failEvent(t, repo, evt.ID)
		stored, err := repo.GetDocument(ctx, doc.DDocID, portalA)
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusFailed, stored.SyncStatus)

		failed, err := repo.ListFailed(ctx, portalA)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "rejected", failed[0].LastError)

		ok, err = repo.ResetFailedToPending(ctx, evt.ID, portalB)
		require.NoError(t, err)
		assert.False(t, ok, "other portal")

		ok, err = repo.ResetFailedToPending(ctx, evt.ID, portalA)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetEvent(ctx, evt.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EventStatusPending, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.Nil(t, got.SubmittedAt)

		stored, err = repo.GetDocument(ctx, doc.DDocID, portalA)
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusPending, stored.SyncStatus)
	})

	t.Run("bulk reset counts and respects the retry budget", func(t *testing.T) {
		repo := newRepo(t, Options{ClaimLease: time.Minute, MaxRetries: 1})
		ctx := context.Background()
		_, e1 := seedDocument(t, repo, portalA, "one")
		failEvent(t, repo, e1.ID)

		n, err := repo.ResetAllFailedToPending(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		failEvent(t, repo, e1.ID)
		n, err = repo.ResetAllFailedToPending(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 0, n, "retry budget exhausted")

		counts, err := repo.CountByStatus(ctx, portalA)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[models.EventStatusFailed])
	})

	t.Run("documents", func(t *testing.T) {
		repo := newRepo(t, DefaultOptions())
		ctx := context.Background()
		doc, _ := seedDocument(t, repo, portalA, "Quarterly report")
		seedDocument(t, repo, portalA, "Meeting notes")
		seedDocument(t, repo, portalB, "Quarterly elsewhere")

		list, err := repo.ListDocuments(ctx, portalA, models.ListOptions{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, list.Total)
		assert.Len(t, list.DDocs, 1)
		assert.True(t, list.HasNext)

		found, err := repo.SearchDocuments(ctx, portalA, "quarterly", models.ListOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, found.Nodes, 1)
		assert.Equal(t, doc.DDocID, found.Nodes[0].DDocID)

		_, err = repo.GetDocument(ctx, doc.DDocID, portalB)
		assert.ErrorIs(t, err, ErrDocumentNotFound)

		doc.Title = "Renamed"
		doc.LocalVersion = 2
		upd := &models.Event{ID: uuid.NewString(), Type: models.EventTypeUpdate, PortalAddress: portalA,
			FileID: doc.DDocID, Version: 2, Status: models.EventStatusPending}
		require.NoError(t, repo.UpdateDocument(ctx, doc, upd))

		got, err := repo.GetDocument(ctx, doc.DDocID, portalA)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, 2, got.LocalVersion)

		doc.IsDeleted = true
		doc.LocalVersion = 3
		del := &models.Event{ID: uuid.NewString(), Type: models.EventTypeDelete, PortalAddress: portalA,
			FileID: doc.DDocID, Version: 3, Status: models.EventStatusPending}
		require.NoError(t, repo.UpdateDocument(ctx, doc, del))

		_, err = repo.GetDocument(ctx, doc.DDocID, portalA)
		assert.ErrorIs(t, err, ErrDocumentNotFound)
		assert.ErrorIs(t, repo.UpdateDocument(ctx, doc, del), ErrDocumentNotFound)

		counts, err := repo.CountByStatus(ctx, portalA)
		require.NoError(t, err)
		assert.Equal(t, 4, counts[models.EventStatusPending])
	})

	t.Run("stale document version is a conflict", func(t *testing.T) {
		repo := newRepo(t, DefaultOptions())
		ctx := context.Background()
		doc, _ := seedDocument(t, repo, portalA, "Draft")

		update := func(title string) error {
			c := *doc
			c.Title = title
			c.LocalVersion = 2
			evt := &models.Event{ID: uuid.NewString(), Type: models.EventTypeUpdate, PortalAddress: portalA,
				FileID: doc.DDocID, Version: 2, Status: models.EventStatusPending}
			return repo.UpdateDocument(ctx, &c, evt)
		}
		require.NoError(t, update("First"))
		assert.ErrorIs(t, update("Second"), ErrVersionConflict)

		got, err := repo.GetDocument(ctx, doc.DDocID, portalA)
		require.NoError(t, err)
		assert.Equal(t, "First", got.Title)
		assert.Equal(t, 2, got.LocalVersion)

		counts, err := repo.CountByStatus(ctx, portalA)
		require.NoError(t, err)
		assert.Equal(t, 2, counts[models.EventStatusPending], "a rejected write enqueues nothing")
	})

	t.Run("folders", func(t *testing.T) {
		repo := newRepo(t, DefaultOptions())
		ctx := context.Background()
		folder := &models.Folder{
			OnchainFileID: "7", FolderID: "f-1", FolderRef: "ref-1", FolderName: "Specs",
			PortalAddress: portalA, MetadataIPFSHash: "QmHash",
		}
		require.NoError(t, repo.CreateFolder(ctx, folder))
		assert.ErrorIs(t, repo.CreateFolder(ctx, folder), ErrFolderExists)

		got, err := repo.GetFolder(ctx, "ref-1", "f-1")
		require.NoError(t, err)
		assert.Equal(t, "Specs", got.FolderName)

		_, err = repo.GetFolder(ctx, "ref-1", "missing")
		assert.ErrorIs(t, err, ErrFolderNotFound)

		list, err := repo.ListFolders(ctx, models.ListOptions{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, list.Total)
	})

	t.Run("api keys", func(t *testing.T) {
		repo := newRepo(t, DefaultOptions())
		ctx := context.Background()

		key := &models.APIKey{KeyID: "abcdefgh", KeyHash: "hash-1", PortalAddress: portalA}
		require.NoError(t, repo.UpsertAPIKey(ctx, key))
		key.KeyHash = "hash-2"
		require.NoError(t, repo.UpsertAPIKey(ctx, key))

		got, err := repo.GetAPIKey(ctx, "abcdefgh")
		require.NoError(t, err)
		assert.Equal(t, "hash-2", got.KeyHash)
		assert.Equal(t, portalA, got.PortalAddress)

		_, err = repo.GetAPIKey(ctx, "missing0")
		assert.ErrorIs(t, err, ErrAPIKeyNotFound)
	})
}
