package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/metrics"
)

// CredentialResolver maps a client credential to its portal.
type CredentialResolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}

// Config holds the fixed initialize metadata and batch limits.
type Config struct {
	ProtocolVersion  string
	ServerName       string
	ServerVersion    string
	BatchConcurrency int
}

// DefaultConfig returns the metadata advertised by fileverse-api.
func DefaultConfig() Config {
	return Config{
		ProtocolVersion:  "2025-03-26",
		ServerName:       "fileverse-api",
		ServerVersion:    "1.0.0",
		BatchConcurrency: 8,
	}
}

type handlerFunc func(ctx context.Context, req *Request, credential string) *Response

// Dispatcher maps requests to responses. It keeps no state between calls;
// every tools/call resolves its own credential.
type Dispatcher struct {
	cfg      Config
	catalog  *Catalog
	executor Executor
	resolver CredentialResolver
	logger   *logging.Logger
	handlers map[Method]handlerFunc
}

// NewDispatcher creates a dispatcher over catalog.
func NewDispatcher(cfg Config, catalog *Catalog, executor Executor, resolver CredentialResolver, logger *logging.Logger) *Dispatcher {
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = DefaultConfig().BatchConcurrency
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{cfg: cfg, catalog: catalog, executor: executor, resolver: resolver, logger: logger}
	d.handlers = map[Method]handlerFunc{
		MethodInitialize:  d.initialize,
		MethodInitialized: nil,
		MethodCancelled:   nil,
		MethodPing:        d.ping,
		MethodToolsList:   d.toolsList,
		MethodToolsCall:   d.toolsCall,
	}
	return d
}

// Catalog returns the dispatcher's tool catalog.
func (d *Dispatcher) Catalog() *Catalog { return d.catalog }

// Dispatch handles one request. It returns nil when no response is due:
// for notification methods and for requests without an id.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, credential string) *Response {
	if req.JSONRPC != JSONRPCVersion || req.Method == "" {
		metrics.RPCRequestsTotal.WithLabelValues("invalid", "error").Inc()
		return failure(req.responseID(), CodeInvalidRequest, "Invalid Request")
	}

	method := Method(req.Method)
	handler, known := d.handlers[method]
	if !known {
		metrics.RPCRequestsTotal.WithLabelValues("unknown", "method_not_found").Inc()
		d.logger.DebugContext(ctx, "unknown protocol method", logging.Method(req.Method))
		if !req.HasID() {
			return nil
		}
		return failure(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
	}

	if method.IsNotification() {
		metrics.RPCRequestsTotal.WithLabelValues(string(method), "notification").Inc()
		return nil
	}

	resp := handler(ctx, req, credential)
	outcome := "ok"
	if resp.Error != nil {
		outcome = "error"
	}
	metrics.RPCRequestsTotal.WithLabelValues(string(method), outcome).Inc()
	if !req.HasID() {
		return nil
	}
	return resp
}

// DispatchRaw decodes and handles one encoded request.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw json.RawMessage, credential string) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return failure(nullID, CodeInvalidRequest, "Invalid Request")
	}
	return d.Dispatch(ctx, &req, credential)
}

// DispatchBatch handles every request of a batch concurrently. Responses
// keep the positions of their requests; entries with no response are
// dropped. The result is empty when the batch held only notifications.
func (d *Dispatcher) DispatchBatch(ctx context.Context, batch []json.RawMessage, credential string) []*Response {
	results := make([]*Response, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.BatchConcurrency)
	for i, raw := range batch {
		g.Go(func() error {
			results[i] = d.DispatchRaw(gctx, raw, credential)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Response, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (d *Dispatcher) initialize(_ context.Context, req *Request, _ string) *Response {
	return success(req.responseID(), InitializeResult{
		ProtocolVersion: d.cfg.ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      ServerInfo{Name: d.cfg.ServerName, Version: d.cfg.ServerVersion},
	})
}

func (d *Dispatcher) ping(_ context.Context, req *Request, _ string) *Response {
	return success(req.responseID(), struct{}{})
}

func (d *Dispatcher) toolsList(_ context.Context, req *Request, _ string) *Response {
	return success(req.responseID(), map[string]any{"tools": d.catalog.Tools()})
}

func (d *Dispatcher) toolsCall(ctx context.Context, req *Request, credential string) *Response {
	var params CallParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return failure(req.responseID(), CodeInvalidParams, "Invalid params")
		}
	}
	text, err := d.callTool(ctx, params, credential)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		d.logger.InfoContext(ctx, "tool call failed", logging.Tool(params.Name), logging.Error(err))
		text = err.Error()
	}
	metrics.ToolCallsTotal.WithLabelValues(d.toolLabel(params.Name), outcome).Inc()
	return success(req.responseID(), textResult(text, err != nil))
}

func (d *Dispatcher) toolLabel(name string) string {
	if _, ok := d.catalog.Lookup(name); ok {
		return name
	}
	return "unknown"
}

// callTool resolves the credential, validates the arguments and runs the
// tool, returning its result as indented JSON.
func (d *Dispatcher) callTool(ctx context.Context, params CallParams, credential string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "tool panicked", logging.Tool(params.Name), slog.Any("panic", r))
			err = errors.New("Tool execution failed")
		}
	}()

	portal, err := d.resolver.Resolve(ctx, credential)
	if err != nil {
		return "", errors.New("Invalid API key")
	}

	if params.Name == "" {
		return "", errors.New("Unknown tool: name is required")
	}
	if _, ok := d.catalog.Lookup(params.Name); !ok {
		return "", fmt.Errorf("Unknown tool: %s", params.Name)
	}
	args, err := d.catalog.Prepare(params.Name, params.Arguments)
	if err != nil {
		return "", err
	}

	result, err := d.executor.Execute(ctx, portal, params.Name, args)
	if err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(out), nil
}
