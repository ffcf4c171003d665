// Package scheduler drains the event outbox: bounded submission runs hand
// pending events to the ledger and bounded resolution runs record the
// ledger's verdict on submitted ones.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/ledger"
	"github.com/fileverse/ddocs-stack/ddocs/internal/metrics"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
	"github.com/fileverse/ddocs-stack/ddocs/internal/repository"
)

const (
	phaseSubmit  = "submit"
	phaseResolve = "resolve"
)

// Notifier is told about every status change the engine makes. Publishing
// is best effort; the engine never waits on or fails because of it.
type Notifier interface {
	EventSubmitted(ctx context.Context, event *models.Event, receipt ledger.Receipt)
	EventResolved(ctx context.Context, event *models.Event, res models.Resolution)
}

// Config bounds the work done per run.
type Config struct {
	MaxSubmitPerRun  int
	MaxResolvePerRun int
	// Scope limits runs to one portal. Empty drains every portal.
	Scope string
	// ExplorerURL prefixes the ledger reference to form a document's link.
	ExplorerURL string
}

// DefaultConfig returns two submissions and three resolutions per run.
func DefaultConfig() Config {
	return Config{MaxSubmitPerRun: 2, MaxResolvePerRun: 3}
}

// RunReport summarizes one run.
type RunReport struct {
	Phase     string        `json:"phase"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Rejected  int           `json:"rejected"`
	Deferred  int           `json:"deferred"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// Engine runs submission and resolution batches against an EventStore.
type Engine struct {
	store    repository.EventStore
	ledger   ledger.Ledger
	notifier Notifier
	cfg      Config
	logger   *logging.Logger
}

// NewEngine creates an engine. notifier may be nil.
func NewEngine(store repository.EventStore, l ledger.Ledger, notifier Notifier, cfg Config, logger *logging.Logger) *Engine {
	if cfg.MaxSubmitPerRun <= 0 {
		cfg.MaxSubmitPerRun = DefaultConfig().MaxSubmitPerRun
	}
	if cfg.MaxResolvePerRun <= 0 {
		cfg.MaxResolvePerRun = DefaultConfig().MaxResolvePerRun
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{store: store, ledger: l, notifier: notifier, cfg: cfg, logger: logger}
}

type claimFunc func(ctx context.Context, scope string, exclude []string) (*models.Claim, error)

// drain claims up to limit events one at a time and processes each in
// turn. Events handled earlier in the run are excluded from later claims,
// so a released event is not retried until the next run.
func (e *Engine) drain(ctx context.Context, phase string, limit int, claim claimFunc, process func(context.Context, *models.Claim, *RunReport)) RunReport {
	start := time.Now()
	report := RunReport{Phase: phase}
	exclude := []string{}

	for i := 0; i < limit; i++ {
		c, err := claim(ctx, e.cfg.Scope, exclude)
		if errors.Is(err, repository.ErrNoEventAvailable) {
			break
		}
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to claim event", slog.String("phase", phase), logging.Error(err))
			report.Errors++
			break
		}
		exclude = append(exclude, c.EventID())
		report.Processed++
		e.safely(ctx, phase, c, &report, process)
	}

	report.Duration = time.Since(start)
	e.logger.InfoContext(ctx, "sync run finished",
		slog.String("phase", phase),
		slog.Int("processed", report.Processed),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("rejected", report.Rejected),
		slog.Int("deferred", report.Deferred),
		slog.Int("errors", report.Errors),
		logging.Duration(report.Duration))
	return report
}

// safely runs process, turning a panic into a logged per-event error and
// releasing the claim so the rest of the batch still runs.
func (e *Engine) safely(ctx context.Context, phase string, c *models.Claim, report *RunReport, process func(context.Context, *models.Claim, *RunReport)) {
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Sprintf("panic: %v", r)
			e.logger.ErrorContext(ctx, "event processing panicked",
				slog.String("phase", phase), logging.EventID(c.EventID()), slog.String(logging.FieldError, cause))
			metrics.SyncEventsTotal.WithLabelValues(phase, metrics.ResultError).Inc()
			report.Errors++
			e.release(ctx, c, cause)
		}
	}()
	process(ctx, c, report)
}

func (e *Engine) release(ctx context.Context, c *models.Claim, cause string) {
	if err := e.store.ReleaseClaim(ctx, c, cause); err != nil && !errors.Is(err, repository.ErrClaimLost) {
		e.logger.WarnContext(ctx, "failed to release claim", logging.EventID(c.EventID()), logging.Error(err))
	}
}

func eventAttrs(evt *models.Event) []any {
	return []any{
		logging.EventID(evt.ID),
		logging.EventType(string(evt.Type)),
		logging.PortalAddress(evt.PortalAddress),
		logging.DDocID(evt.FileID),
	}
}

// SubmitPending submits at most MaxSubmitPerRun pending events. A failed
// submission is logged and the event stays pending with its last error
// recorded; the run moves on to the next event.
func (e *Engine) SubmitPending(ctx context.Context) RunReport {
	return e.drain(ctx, phaseSubmit, e.cfg.MaxSubmitPerRun, e.store.ClaimNextPending, e.submitOne)
}

func (e *Engine) submitOne(ctx context.Context, c *models.Claim, report *RunReport) {
	evt := c.Event
	e.logger.InfoContext(ctx, "submitting event", eventAttrs(evt)...)

	receipt, err := e.ledger.Submit(ctx, evt)
	if err != nil {
		e.logger.ErrorContext(ctx, "event submission failed", append(eventAttrs(evt), logging.Error(err))...)
		metrics.SyncEventsTotal.WithLabelValues(phaseSubmit, metrics.ResultError).Inc()
		report.Errors++
		e.release(ctx, c, err.Error())
		return
	}

	if err := e.store.MarkSubmitted(ctx, c, receipt.Ref); err != nil {
		result := metrics.ResultError
		if errors.Is(err, repository.ErrClaimLost) {
			result = metrics.ResultClaimLost
		}
		// The ledger already holds this event; the ref lets an operator
		// reconcile it with the resubmission after the claim lease ends.
		e.logger.ErrorContext(ctx, "event accepted by ledger but submission not recorded",
			append(eventAttrs(evt), slog.String("ledger_ref", receipt.Ref), logging.Error(err))...)
		metrics.SyncEventsTotal.WithLabelValues(phaseSubmit, result).Inc()
		report.Errors++
		return
	}

	e.logger.InfoContext(ctx, "event submitted", append(eventAttrs(evt), slog.String("ledger_ref", receipt.Ref))...)
	metrics.SyncEventsTotal.WithLabelValues(phaseSubmit, metrics.ResultSubmitted).Inc()
	report.Succeeded++

	if e.notifier != nil {
		evt.Status = models.EventStatusSubmitted
		evt.LedgerRef = receipt.Ref
		e.notifier.EventSubmitted(ctx, evt, receipt)
	}
}

// ResolveSubmitted checks at most MaxResolvePerRun submitted events.
// Confirmed events become resolved and rejected ones failed. An undecided
// outcome or a failed check leaves the event submitted for a later run.
func (e *Engine) ResolveSubmitted(ctx context.Context) RunReport {
	return e.drain(ctx, phaseResolve, e.cfg.MaxResolvePerRun, e.store.ClaimNextSubmitted, e.resolveOne)
}

func (e *Engine) resolveOne(ctx context.Context, c *models.Claim, report *RunReport) {
	evt := c.Event
	e.logger.InfoContext(ctx, "resolving event", append(eventAttrs(evt), slog.String("ledger_ref", evt.LedgerRef))...)

	outcome, err := e.ledger.CheckResolution(ctx, evt.LedgerRef)
	if err != nil {
		e.logger.WarnContext(ctx, "resolution check failed", append(eventAttrs(evt), logging.Error(err))...)
		metrics.SyncEventsTotal.WithLabelValues(phaseResolve, metrics.ResultError).Inc()
		report.Errors++
		e.release(ctx, c, err.Error())
		return
	}

	var res models.Resolution
	var result string
	switch outcome.State {
	case ledger.OutcomeConfirmed:
		res = models.Resolution{Status: models.EventStatusResolved, Link: e.link(evt.LedgerRef)}
		result = metrics.ResultConfirmed
	case ledger.OutcomeRejected:
		res = models.Resolution{Status: models.EventStatusFailed, Reason: outcome.Reason}
		if res.Reason == "" {
			res.Reason = "rejected by ledger"
		}
		result = metrics.ResultRejected
	default:
		e.logger.DebugContext(ctx, "event not final yet", eventAttrs(evt)...)
		metrics.SyncEventsTotal.WithLabelValues(phaseResolve, metrics.ResultPending).Inc()
		report.Deferred++
		e.release(ctx, c, "")
		return
	}

	if err := e.store.MarkResolved(ctx, c, res); err != nil {
		e.logger.ErrorContext(ctx, "failed to record resolution", append(eventAttrs(evt), logging.Error(err))...)
		metrics.SyncEventsTotal.WithLabelValues(phaseResolve, metrics.ResultError).Inc()
		report.Errors++
		return
	}

	e.logger.InfoContext(ctx, "event resolved", append(eventAttrs(evt), logging.Status(string(res.Status)))...)
	metrics.SyncEventsTotal.WithLabelValues(phaseResolve, result).Inc()
	if res.Status == models.EventStatusResolved {
		report.Succeeded++
	} else {
		report.Rejected++
	}

	if e.notifier != nil {
		evt.Status = res.Status
		e.notifier.EventResolved(ctx, evt, res)
	}
}

func (e *Engine) link(ref string) string {
	if e.cfg.ExplorerURL == "" || ref == "" {
		return ""
	}
	return strings.TrimRight(e.cfg.ExplorerURL, "/") + "/" + ref
}

// RefreshGauges publishes the store's status counts for the engine's scope.
func (e *Engine) RefreshGauges(ctx context.Context) {
	counts, err := e.store.CountByStatus(ctx, e.cfg.Scope)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to count events", logging.Error(err))
		return
	}
	metrics.ObserveStatusCounts(counts)
}
