package nats

import (
	"context"
	"time"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/common/messaging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/ledger"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

// Publisher publishes sync lifecycle events. It satisfies scheduler.Notifier.
type Publisher struct {
	client messaging.Publisher
	logger *logging.Logger
	now    func() time.Time
}

// NewPublisher creates a new lifecycle publisher.
func NewPublisher(client messaging.Publisher, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{client: client, logger: logger, now: time.Now}
}

// EventSubmitted publishes to ddocs.events.submitted.
func (p *Publisher) EventSubmitted(ctx context.Context, event *models.Event, receipt ledger.Receipt) {
	submittedAt := p.now()
	if event.SubmittedAt != nil {
		submittedAt = *event.SubmittedAt
	}
	p.publish(ctx, messaging.SubjectEventsSubmitted, event, &EventSubmittedMessage{
		EventID:       event.ID,
		Type:          event.Type,
		PortalAddress: event.PortalAddress,
		FileID:        event.FileID,
		Version:       event.Version,
		LedgerRef:     receipt.Ref,
		SubmittedAt:   submittedAt,
	})
}

// EventResolved publishes to ddocs.events.resolved, or ddocs.events.failed
// when the ledger rejected the event.
func (p *Publisher) EventResolved(ctx context.Context, event *models.Event, res models.Resolution) {
	subject := messaging.SubjectEventsResolved
	if res.Status == models.EventStatusFailed {
		subject = messaging.SubjectEventsFailed
	}
	resolvedAt := p.now()
	if event.ResolvedAt != nil {
		resolvedAt = *event.ResolvedAt
	}
	p.publish(ctx, subject, event, &EventResolvedMessage{
		EventID:       event.ID,
		Type:          event.Type,
		PortalAddress: event.PortalAddress,
		FileID:        event.FileID,
		Version:       event.Version,
		Status:        res.Status,
		Reason:        res.Reason,
		Link:          res.Link,
		ResolvedAt:    resolvedAt,
	})
}

// publish is best effort; failures are logged and dropped.
func (p *Publisher) publish(ctx context.Context, subject string, event *models.Event, msg any) {
	if err := p.client.PublishJSON(ctx, subject, msg); err != nil {
		p.logger.WarnContext(ctx, "failed to publish lifecycle event",
			logging.EventID(event.ID),
			logging.Subject(subject),
			logging.Error(err))
	}
}
