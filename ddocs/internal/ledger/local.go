package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

const genesisHash = "genesis"

// Entry is one hash-chained record in a LocalLedger.
type Entry struct {
	Sequence uint64          `json:"sequence"`
	EventID  string          `json:"eventId"`
	Type     string          `json:"type"`
	Portal   string          `json:"portalAddress"`
	Payload  json.RawMessage `json:"payload"`
	PrevHash string          `json:"prevHash"`
	Hash     string          `json:"hash"`
	At       time.Time       `json:"at"`
}

// LocalLedger is an in-process, append-only ledger for development and
// tests. Entries are confirmed on their first resolution check. A ref
// passed to Reject resolves as rejected instead.
type LocalLedger struct {
	mu       sync.Mutex
	entries  []Entry
	byRef    map[string]int
	rejected map[string]string
	head     string
	clock    func() time.Time
}

func NewLocalLedger() *LocalLedger {
	return &LocalLedger{
		byRef:    make(map[string]int),
		rejected: make(map[string]string),
		head:     genesisHash,
		clock:    time.Now,
	}
}

// entryHash hashes the RFC 8785 canonical form of the entry, so payloads
// that differ only in key order or whitespace chain identically.
func entryHash(seq uint64, eventID, typ string, payload json.RawMessage, prev string) (string, error) {
	raw, err := json.Marshal(struct {
		Seq     uint64          `json:"seq"`
		EventID string          `json:"event"`
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload,omitempty"`
		Prev    string          `json:"prev"`
	}{seq, eventID, typ, payload, prev})
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "0x" + hex.EncodeToString(h[:]), nil
}

// Submit appends event and returns the entry hash as its reference.
func (l *LocalLedger) Submit(ctx context.Context, event *models.Event) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	hash, err := entryHash(seq, event.ID, string(event.Type), event.Payload, l.head)
	if err != nil {
		return Receipt{}, err
	}

	l.entries = append(l.entries, Entry{
		Sequence: seq,
		EventID:  event.ID,
		Type:     string(event.Type),
		Portal:   event.PortalAddress,
		Payload:  event.Payload,
		PrevHash: l.head,
		Hash:     hash,
		At:       l.clock(),
	})
	l.byRef[hash] = len(l.entries) - 1
	l.head = hash
	return Receipt{Ref: hash}, nil
}

func (l *LocalLedger) CheckResolution(ctx context.Context, ref string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byRef[ref]; !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	}
	if reason, ok := l.rejected[ref]; ok {
		return Outcome{State: OutcomeRejected, Reason: reason}, nil
	}
	return Outcome{State: OutcomeConfirmed}, nil
}

// Reject marks ref so its next resolution check reports rejection.
func (l *LocalLedger) Reject(ref, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejected[ref] = reason
}

// Len returns the number of entries.
func (l *LocalLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Verify recomputes every hash and checks the chain links.
func (l *LocalLedger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := genesisHash
	for _, e := range l.entries {
		if e.PrevHash != prev {
			return fmt.Errorf("chain broken at entry %d", e.Sequence)
		}
		hash, err := entryHash(e.Sequence, e.EventID, e.Type, e.Payload, e.PrevHash)
		if err != nil {
			return err
		}
		if hash != e.Hash {
			return fmt.Errorf("hash mismatch at entry %d", e.Sequence)
		}
		prev = e.Hash
	}
	return nil
}

var _ Ledger = (*LocalLedger)(nil)
