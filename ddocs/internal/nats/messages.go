// Package nats bridges the sync engine to the message broker: it publishes
// event lifecycle notifications and accepts remote sync triggers.
package nats

import (
	"time"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
	"github.com/fileverse/ddocs-stack/ddocs/internal/scheduler"
)

// EventSubmittedMessage is published to ddocs.events.submitted when the
// ledger accepts an event.
type EventSubmittedMessage struct {
	EventID       string           `json:"event_id"`
	Type          models.EventType `json:"type"`
	PortalAddress string           `json:"portal_address"`
	FileID        string           `json:"file_id"`
	Version       int              `json:"version"`
	LedgerRef     string           `json:"ledger_ref"`
	SubmittedAt   time.Time        `json:"submitted_at"`
}

// EventResolvedMessage is published to ddocs.events.resolved or
// ddocs.events.failed once the ledger outcome is definitive.
type EventResolvedMessage struct {
	EventID       string             `json:"event_id"`
	Type          models.EventType   `json:"type"`
	PortalAddress string             `json:"portal_address"`
	FileID        string             `json:"file_id"`
	Version       int                `json:"version"`
	Status        models.EventStatus `json:"status"`
	Reason        string             `json:"reason,omitempty"`
	Link          string             `json:"link,omitempty"`
	ResolvedAt    time.Time          `json:"resolved_at"`
}

// TriggerReply answers a trigger request that carried a reply subject.
type TriggerReply struct {
	Trigger string               `json:"trigger"`
	Report  *scheduler.RunReport `json:"report,omitempty"`
	Error   string               `json:"error,omitempty"`
}
