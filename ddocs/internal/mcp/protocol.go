// Package mcp implements the stateless Model Context Protocol endpoint:
// JSON-RPC 2.0 request dispatch over a closed method set, the document
// tool catalog and its HTTP transport.
package mcp

import (
	"bytes"
	"encoding/json"
)

const JSONRPCVersion = "2.0"

// Method is one of the closed set of protocol methods the dispatcher knows.
type Method string

const (
	MethodInitialize  Method = "initialize"
	MethodInitialized Method = "notifications/initialized"
	MethodCancelled   Method = "notifications/cancelled"
	MethodPing        Method = "ping"
	MethodToolsList   Method = "tools/list"
	MethodToolsCall   Method = "tools/call"
)

// Methods lists every known method.
var Methods = []Method{
	MethodInitialize,
	MethodInitialized,
	MethodCancelled,
	MethodPing,
	MethodToolsList,
	MethodToolsCall,
}

// IsNotification reports whether m never produces a response.
func (m Method) IsNotification() bool {
	return m == MethodInitialized || m == MethodCancelled
}

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var nullID = json.RawMessage("null")

// Request is a JSON-RPC request. ID is kept raw so string and numeric ids
// are echoed back unchanged.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// HasID reports whether the request carries a non-null id. Requests
// without one are notifications.
func (r *Request) HasID() bool {
	return len(r.ID) > 0 && !bytes.Equal(bytes.TrimSpace(r.ID), nullID)
}

func (r *Request) responseID() json.RawMessage {
	if r == nil || !r.HasID() {
		return nullID
	}
	return r.ID
}

// Response is a JSON-RPC response carrying either Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func success(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

func failure(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: &Error{Code: code, Message: message}}
}

// ServerInfo identifies the server in the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the initialize response payload.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// CallParams are the tools/call parameters.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Content is one item of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the tools/call response payload. Tool failures set
// IsError instead of producing a protocol error.
type CallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

func textResult(text string, isError bool) CallResult {
	return CallResult{Content: []Content{{Type: "text", Text: text}}, IsError: isError}
}

// IsJSONRPC reports whether body is a JSON-RPC request or a batch whose
// first element is one.
func IsJSONRPC(body []byte) bool {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return false
	}
	var probe struct {
		JSONRPC string `json:"jsonrpc"`
	}
	if body[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil || len(batch) == 0 {
			return false
		}
		body = batch[0]
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.JSONRPC == JSONRPCVersion
}
