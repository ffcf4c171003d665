// Package ledger provides the on-chain anchoring capability the sync engine
// submits events to and polls for finality.
package ledger

import (
	"context"
	"errors"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

// OutcomeState is the ledger's verdict on a submitted event.
type OutcomeState string

const (
	OutcomeConfirmed OutcomeState = "confirmed"
	OutcomeRejected  OutcomeState = "rejected"
	// OutcomePending means the ledger has not decided yet.
	OutcomePending OutcomeState = "pending"
)

// ErrUnknownReference is returned when a ledger has no record of a reference.
var ErrUnknownReference = errors.New("unknown ledger reference")

// Receipt is returned by a successful submission.
type Receipt struct {
	Ref string `json:"ref"`
}

// Outcome is the result of a resolution check.
type Outcome struct {
	State  OutcomeState `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// Ledger submits events and reports their resolution. Errors from either
// method are treated as transient by the caller.
type Ledger interface {
	Submit(ctx context.Context, event *models.Event) (Receipt, error)
	CheckResolution(ctx context.Context, ref string) (Outcome, error)
}
