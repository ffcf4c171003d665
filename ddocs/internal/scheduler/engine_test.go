package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/ledger"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
	"github.com/fileverse/ddocs-stack/ddocs/internal/repository"
)

const portal = "0xportal"

// fakeLedger fails or answers per event id / ledger ref and counts calls.
type fakeLedger struct {
	mu          sync.Mutex
	submitErr   map[string]error
	outcomes    map[string]ledger.Outcome
	checkErr    error
	submitDelay time.Duration
	panicOn     string
	submitted   []string
	checked     []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{submitErr: map[string]error{}, outcomes: map[string]ledger.Outcome{}}
}

func (f *fakeLedger) Submit(_ context.Context, evt *models.Event) (ledger.Receipt, error) {
	if f.submitDelay > 0 {
		time.Sleep(f.submitDelay)
	}
	if evt.ID == f.panicOn {
		panic("ledger exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, evt.ID)
	if err := f.submitErr[evt.ID]; err != nil {
		return ledger.Receipt{}, err
	}
	return ledger.Receipt{Ref: "ref-" + evt.ID}, nil
}

func (f *fakeLedger) CheckResolution(_ context.Context, ref string) (ledger.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, ref)
	if f.checkErr != nil {
		return ledger.Outcome{}, f.checkErr
	}
	if out, ok := f.outcomes[ref]; ok {
		return out, nil
	}
	return ledger.Outcome{State: ledger.OutcomeConfirmed}, nil
}

func (f *fakeLedger) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type recordingNotifier struct {
	mu        sync.Mutex
	submitted []string
	resolved  map[string]models.EventStatus
}

func (n *recordingNotifier) EventSubmitted(_ context.Context, evt *models.Event, _ ledger.Receipt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitted = append(n.submitted, evt.ID)
}

func (n *recordingNotifier) EventResolved(_ context.Context, evt *models.Event, res models.Resolution) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.resolved == nil {
		n.resolved = map[string]models.EventStatus{}
	}
	n.resolved[evt.ID] = res.Status
}

func seed(t *testing.T, repo repository.Repository, n int) []*models.Event {
	t.Helper()
	events := make([]*models.Event, 0, n)
	for i := 0; i < n; i++ {
		doc := &models.Document{
			DDocID: uuid.NewString(), Title: "doc", PortalAddress: portal,
			SyncStatus: models.SyncStatusPending, LocalVersion: 1,
		}
		evt := &models.Event{
			ID: uuid.NewString(), Type: models.EventTypeCreate, PortalAddress: portal,
			FileID: doc.DDocID, Version: 1, Status: models.EventStatusPending,
		}
		require.NoError(t, repo.CreateDocument(context.Background(), doc, evt))
		events = append(events, evt)
	}
	return events
}

func status(t *testing.T, repo repository.Repository, id string) *models.Event {
	t.Helper()
	evt, err := repo.GetEvent(context.Background(), id)
	require.NoError(t, err)
	return evt
}

func newEngine(repo repository.Repository, l ledger.Ledger, n Notifier) *Engine {
	cfg := DefaultConfig()
	cfg.ExplorerURL = "https://explorer.example/tx/"
	return NewEngine(repo, l, n, cfg, logging.Discard())
}

func TestSubmitPending_RespectsCap(t *testing.T) {
	repo := repository.NewInMemoryRepository(repository.DefaultOptions())
	events := seed(t, repo, 5)
	fl := newFakeLedger()

	report := newEngine(repo, fl, nil).SubmitPending(context.Background())

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, fl.submitCount())

	counts, err := repo.CountByStatus(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.EventStatusSubmitted])
	assert.Equal(t, 3, counts[models.EventStatusPending])

	assert.Equal(t, models.EventStatusSubmitted, status(t, repo, events[0].ID).Status, "oldest first")
	assert.Equal(t, "ref-"+events[0].ID, status(t, repo, events[0].ID).LedgerRef)
}

func TestSubmitPending_FailureDoesNotBlockBatch(t *testing.T) {
	repo := repository.NewInMemoryRepository(repository.DefaultOptions())
	events := seed(t, repo, 2)
	fl := newFakeLedger()
	fl.submitErr[events[0].ID] = errors.New("ledger unreachable")

	report := newEngine(repo, fl, nil).SubmitPending(context.Background())

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Errors)

	failed := status(t, repo, events[0].ID)
	assert.Equal(t, models.EventStatusPending, failed.Status, "submission errors never mark an event failed")
	assert.Equal(t, "ledger unreachable", failed.LastError)
	assert.Equal(t, models.EventStatusSubmitted, status(t, repo, events[1].ID).Status)
}

func TestSubmitPending_NoRetryWithinRun(t *testing.T) {
	repo := repository.NewInMemoryRepository(repository.DefaultOptions())
	events := seed(t, repo, 1)
	fl := newFakeLedger()
	fl.submitErr[events[0].ID] = errors.New("boom")

	report := newEngine(repo, fl, nil).SubmitPending(context.Background())

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, fl.submitCount())
}

func TestSubmitPending_PanicIsIsolated(t *testing.T) {
	repo := repository.NewInMemoryRepository(repository.DefaultOptions())
	events := seed(t, repo, 2)
	fl := newFakeLedger()
	fl.panicOn = events[0].ID

	report := newEngine(repo, fl, nil).SubmitPending(context.Background())

	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.Succeeded)
	assert.Contains(t, status(t, repo, events[0].ID).LastError, "panic")
	assert.Equal(t, models.EventStatusSubmitted, status(t, repo, events[1].ID).Status)
}

func TestSubmitPending_ConcurrentRunsSubmitOnce(t *testing.T) {
	repo := repository.NewInMemoryRepository(repository.DefaultOptions())
	events := seed(t, repo, 1)
	fl := newFakeLedger()
	fl.submitDelay = 20 * time.Millisecond

	e1 := newEngine(repo, fl, nil)
	e2 := newEngine(repo, fl, nil)

	var wg sync.WaitGroup
	for _, e := range []*Engine{e1, e2} {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			e.SubmitPending(context.Background())
		}(e)
	}
	wg.Wait()

	assert.Equal(t, 1, fl.submitCount())
	assert.Equal(t, models.EventStatusSubmitted, status(t, repo, events[0].ID).Status)
}

func TestSubmitPending_Empty(t *testing.T) {
	repo := repository.NewInMemoryRepository(repository.DefaultOptions())
	report := newEngine(repo, newFakeLedger(), nil).SubmitPending(context.Background())
	assert.Zero(t, report.Processed)
}

func TestResolveSubmitted_Outcomes(t *testing.T) {
	repo := repository.NewInMemoryRepository(repository.DefaultOptions())
	ctx := context.Background()
	events := seed(t, repo, 3)
	fl := newFakeLedger()
	notifier := &recordingNotifier{}
	engine := newEngine(repo, fl, notifier)

	engine.cfg.MaxSubmitPerRun = 3
	require.Equal(t, 3, engine.SubmitPending(ctx).Succeeded)

	fl.outcomes["ref-"+events[1].ID] = ledger.Outcome{State: ledger.OutcomeRejected, Reason: "reverted"}
	fl.outcomes["ref-"+events[2].ID] = ledger.Outcome{State: ledger.OutcomePending}

	report := engine.ResolveSubmitted(ctx)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Deferred)

	confirmed := status(t, repo, events[0].ID)
	assert.Equal(t, models.EventStatusResolved, confirmed.Status)
	doc, err := repo.GetDocument(ctx, events[0].FileID, portal)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, doc.SyncStatus)
	assert.Equal(t, "https://explorer.example/tx/ref-"+events[0].ID, doc.Link)

	rejected := status(t, repo, events[1].ID)
	assert.Equal(t, models.EventStatusFailed, rejected.Status)
	assert.Equal(t, "reverted", rejected.LastError)

	assert.Equal(t, models.EventStatusSubmitted, status(t, repo, events[2].ID).Status)

	assert.Len(t, notifier.submitted, 3)
	assert.Equal(t, models.EventStatusResolved, notifier.resolved[events[0].ID])
	assert.Equal(t, models.EventStatusFailed, notifier.resolved[events[1].ID])
}

func TestResolveSubmitted_TransportErrorLeavesSubmitted(t *testing.T) {
	repo := repository.NewInMemoryRepository(repository.DefaultOptions())
	ctx := context.Background()
	events := seed(t, repo, 1)
	fl := newFakeLedger()
	engine := newEngine(repo, fl, nil)
	require.Equal(t, 1, engine.SubmitPending(ctx).Succeeded)

	fl.checkErr = errors.New("timeout")
	report := engine.ResolveSubmitted(ctx)
	assert.Equal(t, 1, report.Errors)

	evt := status(t, repo, events[0].ID)
	assert.Equal(t, models.EventStatusSubmitted, evt.Status)
	assert.Equal(t, "timeout", evt.LastError)

	fl.checkErr = nil
	assert.Equal(t, 1, engine.ResolveSubmitted(ctx).Succeeded, "a later run retries the check")
}

func TestResolveSubmitted_RespectsCap(t *testing.T) {
	repo := repository.NewInMemoryRepository(repository.DefaultOptions())
	ctx := context.Background()
	seed(t, repo, 5)
	fl := newFakeLedger()
	engine := newEngine(repo, fl, nil)
	engine.cfg.MaxSubmitPerRun = 5
	require.Equal(t, 5, engine.SubmitPending(ctx).Succeeded)

	report := engine.ResolveSubmitted(ctx)
	assert.Equal(t, 3, report.Processed)
}

// unrecordedSubmissions accepts claims but cannot persist submissions.
type unrecordedSubmissions struct {
	*repository.InMemoryRepository
}

func (unrecordedSubmissions) MarkSubmitted(context.Context, *models.Claim, string) error {
	return errors.New("connection reset")
}

func TestSubmitPending_UnrecordedSubmissionLogsLedgerRef(t *testing.T) {
	repo := unrecordedSubmissions{repository.NewInMemoryRepository(repository.DefaultOptions())}
	ctx := context.Background()
	events := seed(t, repo, 1)

	var buf bytes.Buffer
	engine := NewEngine(repo, newFakeLedger(), nil, DefaultConfig(), logging.NewWithWriter(&buf, slog.LevelInfo, "json"))
	report := engine.SubmitPending(ctx)
	assert.Equal(t, 1, report.Errors)

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["ledger_ref"] == "ref-"+events[0].ID && entry["level"] == "ERROR" {
			assert.Equal(t, events[0].ID, entry[logging.FieldEventID])
			assert.Equal(t, "connection reset", entry[logging.FieldError])
			found = true
		}
	}
	assert.True(t, found, "error log carries the ledger ref: %s", buf.String())

	evt := status(t, repo, events[0].ID)
	assert.Equal(t, models.EventStatusPending, evt.Status)
	assert.Equal(t, 0, engine.SubmitPending(ctx).Processed, "the claim holds until its lease ends")
}
