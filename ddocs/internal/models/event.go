// Package models provides data models for the ddocs service.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType is the kind of document mutation an event anchors.
type EventType string

const (
	EventTypeCreate EventType = "create"
	EventTypeUpdate EventType = "update"
	EventTypeDelete EventType = "delete"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeCreate, EventTypeUpdate, EventTypeDelete:
		return true
	}
	return false
}

// EventStatus is the sync state of an event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusSubmitted EventStatus = "submitted"
	EventStatusResolved  EventStatus = "resolved"
	EventStatusFailed    EventStatus = "failed"
)

// ErrInvalidTransition is returned for any status change not in the
// transition table.
var ErrInvalidTransition = errors.New("invalid event status transition")

var allowedTransitions = map[EventStatus]map[EventStatus]struct{}{
	EventStatusPending: {
		EventStatusSubmitted: {},
	},
	EventStatusSubmitted: {
		EventStatusResolved: {},
		EventStatusFailed:   {},
	},
	EventStatusFailed: {
		EventStatusPending: {},
	},
	EventStatusResolved: {},
}

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s EventStatus) Terminal() bool {
	return s.Valid() && len(allowedTransitions[s]) == 0
}

// ValidateTransition returns ErrInvalidTransition unless from -> to is an
// allowed edge.
func ValidateTransition(from, to EventStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: unknown status %q -> %q", ErrInvalidTransition, from, to)
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Event is one pending change to on-chain state, written in the same
// transaction as the document mutation that caused it.
type Event struct {
	ID            string          `json:"_id"`
	Type          EventType       `json:"type"`
	PortalAddress string          `json:"portalAddress"`
	FileID        string          `json:"fileId"`
	Version       int             `json:"version"`
	Status        EventStatus     `json:"status"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	LedgerRef     string          `json:"ledgerRef,omitempty"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	ClaimToken    string          `json:"-"`
	ClaimedAt     *time.Time      `json:"-"`
	SubmittedAt   *time.Time      `json:"submittedAt,omitempty"`
	ResolvedAt    *time.Time      `json:"resolvedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Transition moves e to status to, stamping the matching timestamp.
// failed -> pending counts as a retry attempt and clears the ledger
// reference and resolution time.
func (e *Event) Transition(to EventStatus, at time.Time) error {
	if err := ValidateTransition(e.Status, to); err != nil {
		return err
	}

	switch to {
	case EventStatusSubmitted:
		e.SubmittedAt = &at
	case EventStatusResolved, EventStatusFailed:
		e.ResolvedAt = &at
	case EventStatusPending:
		e.Attempts++
		e.LedgerRef = ""
		e.SubmittedAt = nil
		e.ResolvedAt = nil
	}
	e.Status = to
	e.UpdatedAt = at
	return nil
}

// ClaimExpired reports whether the claim on e, if any, is older than lease.
func (e *Event) ClaimExpired(now time.Time, lease time.Duration) bool {
	return e.ClaimedAt == nil || !e.ClaimedAt.After(now.Add(-lease))
}

// Claim is the exclusive, time-bounded right to process one event.
type Claim struct {
	Event     *Event
	Token     string
	ClaimedAt time.Time
}

// EventID returns the claimed event's id.
func (c *Claim) EventID() string { return c.Event.ID }

// Resolution is the definitive ledger outcome recorded for a submitted event.
type Resolution struct {
	// Status is EventStatusResolved or EventStatusFailed.
	Status EventStatus
	Reason string
	// Link is the public explorer link stored on the document when resolved.
	Link string
}

// EventPayload is what the ledger receives for an event.
type EventPayload struct {
	DDocID      string `json:"ddocId"`
	Title       string `json:"title,omitempty"`
	ContentHash string `json:"contentHash,omitempty"`
	Version     int    `json:"version"`
}

// StatusCounts maps each status to its number of events.
type StatusCounts map[EventStatus]int
