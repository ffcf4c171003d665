package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/common/messaging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/scheduler"
)

// Firer runs a named sync trigger once.
type Firer interface {
	Fire(ctx context.Context, nameOrCron string) (scheduler.RunReport, error)
}

// Broker is the slice of the messaging client the trigger handler needs.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte) error
	QueueSubscribe(subject, queue string, handler messaging.MessageHandler) (messaging.Subscription, error)
}

// Handler fires sync triggers requested over the broker. Workers share a
// queue group so each trigger message runs on exactly one of them.
type Handler struct {
	client Broker
	firer  Firer
	logger *logging.Logger
	subs   []messaging.Subscription
}

// NewHandler creates a new trigger handler.
func NewHandler(client Broker, firer Firer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{client: client, firer: firer, logger: logger}
}

// Start subscribes to every trigger subject.
func (h *Handler) Start(ctx context.Context) error {
	subject := messaging.SyncTriggerWildcard()
	sub, err := h.client.QueueSubscribe(subject, messaging.QueueSyncWorkers, h.handleTrigger)
	if err != nil {
		return fmt.Errorf("failed to subscribe to sync triggers: %w", err)
	}
	h.subs = append(h.subs, sub)

	h.logger.InfoContext(ctx, "NATS trigger handler started", logging.Subject(subject))
	return nil
}

// Stop unsubscribes from all subjects.
func (h *Handler) Stop() error {
	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe", logging.Subject(sub.Subject()), logging.Error(err))
		}
	}
	h.subs = nil
	h.logger.Info("NATS trigger handler stopped")
	return nil
}

func (h *Handler) handleTrigger(ctx context.Context, msg *messaging.Message) error {
	name, ok := messaging.TriggerFromSubject(msg.Subject)
	if !ok {
		return h.reply(ctx, msg, TriggerReply{Error: "invalid trigger subject: " + msg.Subject})
	}

	reply := TriggerReply{Trigger: name}
	report, err := h.firer.Fire(ctx, name)
	if err != nil {
		h.logger.WarnContext(ctx, "remote trigger not run", logging.Trigger(name), logging.Error(err))
		reply.Error = err.Error()
	} else {
		h.logger.InfoContext(ctx, "remote trigger completed",
			logging.Trigger(name),
			logging.Duration(report.Duration))
		reply.Report = &report
	}
	return h.reply(ctx, msg, reply)
}

// reply answers request/reply callers; plain publishes get no answer.
func (h *Handler) reply(ctx context.Context, msg *messaging.Message, reply TriggerReply) error {
	if msg.Reply == "" {
		return nil
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger reply: %w", err)
	}
	return h.client.Publish(ctx, msg.Reply, data)
}
