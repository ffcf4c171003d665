package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

const (
	methodSubmitEvent     = "ddoc_submitEvent"
	methodGetEventReceipt = "ddoc_getEventReceipt"
)

// RPCLedger talks JSON-RPC 2.0 over HTTP to a ledger node.
type RPCLedger struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	nextID  atomic.Int64
}

// NewRPCLedger creates a client for url. timeout bounds each call.
func NewRPCLedger(url string, timeout time.Duration) *RPCLedger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPCLedger{url: url, http: &http.Client{Timeout: timeout}}
}

// WithRateLimit caps calls to rps per second with the given burst. A
// non-positive rps removes the cap.
func (l *RPCLedger) WithRateLimit(rps float64, burst int) *RPCLedger {
	if rps <= 0 {
		l.limiter = nil
		return l
	}
	l.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	return l
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by the ledger node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger rpc error %d: %s", e.Code, e.Message)
}

func (l *RPCLedger) call(ctx context.Context, method string, params []any, out any) error {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: l.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned HTTP %d", method, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

type submitParams struct {
	EventID       string          `json:"eventId"`
	Type          string          `json:"type"`
	PortalAddress string          `json:"portalAddress"`
	FileID        string          `json:"fileId"`
	Version       int             `json:"version"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func (l *RPCLedger) Submit(ctx context.Context, event *models.Event) (Receipt, error) {
	params := submitParams{
		EventID:       event.ID,
		Type:          string(event.Type),
		PortalAddress: event.PortalAddress,
		FileID:        event.FileID,
		Version:       event.Version,
		Payload:       event.Payload,
	}

	var receipt Receipt
	if err := l.call(ctx, methodSubmitEvent, []any{params}, &receipt); err != nil {
		return Receipt{}, err
	}
	if receipt.Ref == "" {
		return Receipt{}, fmt.Errorf("%s returned an empty reference", methodSubmitEvent)
	}
	return receipt, nil
}

func (l *RPCLedger) CheckResolution(ctx context.Context, ref string) (Outcome, error) {
	var out Outcome
	if err := l.call(ctx, methodGetEventReceipt, []any{ref}, &out); err != nil {
		return Outcome{}, err
	}
	switch out.State {
	case OutcomeConfirmed, OutcomeRejected, OutcomePending:
		return out, nil
	case "":
		return Outcome{State: OutcomePending}, nil
	default:
		return Outcome{}, fmt.Errorf("%s returned unknown status %q", methodGetEventReceipt, out.State)
	}
}

var _ Ledger = (*RPCLedger)(nil)
