package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool names.
const (
	ToolListDocuments     = "fileverse_list_documents"
	ToolGetDocument       = "fileverse_get_document"
	ToolCreateDocument    = "fileverse_create_document"
	ToolUpdateDocument    = "fileverse_update_document"
	ToolDeleteDocument    = "fileverse_delete_document"
	ToolSearchDocuments   = "fileverse_search_documents"
	ToolGetSyncStatus     = "fileverse_get_sync_status"
	ToolRetryFailedEvents = "fileverse_retry_failed_events"
)

// ErrUnknownTool is returned for a name outside the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// Property is one declared tool argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// InputSchema declares a tool's arguments as a JSON Schema object.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Tool is a catalog entry as listed by tools/list.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

func object(required []string, props map[string]Property) InputSchema {
	return InputSchema{Type: "object", Properties: props, Required: required}
}

func str(desc string) Property { return Property{Type: "string", Description: desc} }
func num(desc string) Property { return Property{Type: "number", Description: desc} }

// DefaultTools is the document tool set.
var DefaultTools = []Tool{
	{
		Name:        ToolListDocuments,
		Description: "List documents stored in Fileverse. Returns an array of documents with their metadata and sync status.",
		InputSchema: object(nil, map[string]Property{
			"limit": num("Maximum number of documents to return"),
			"skip":  num("Number of documents to skip (for pagination)"),
		}),
	},
	{
		Name:        ToolGetDocument,
		Description: "Get a single document by its ddocId. Returns the full document including content, sync status, and blockchain link.",
		InputSchema: object([]string{"ddocId"}, map[string]Property{
			"ddocId": str("The unique document identifier"),
		}),
	},
	{
		Name:        ToolCreateDocument,
		Description: "Create a new document and wait for blockchain sync. Returns the document with its sync status and public link once synced.",
		InputSchema: object([]string{"title", "content"}, map[string]Property{
			"title":   str("Document title"),
			"content": str("Document content (plain text or markdown)"),
		}),
	},
	{
		Name:        ToolUpdateDocument,
		Description: "Update an existing document's title and/or content, then wait for blockchain sync. Returns the updated document with sync status and link.",
		InputSchema: object([]string{"ddocId"}, map[string]Property{
			"ddocId":  str("The unique document identifier"),
			"title":   str("New document title"),
			"content": str("New document content"),
		}),
	},
	{
		Name:        ToolDeleteDocument,
		Description: "Delete a document by its ddocId.",
		InputSchema: object([]string{"ddocId"}, map[string]Property{
			"ddocId": str("The unique document identifier to delete"),
		}),
	},
	{
		Name:        ToolSearchDocuments,
		Description: "Search documents by text query. Returns matching documents ranked by relevance.",
		InputSchema: object([]string{"query"}, map[string]Property{
			"query": str("Search query string"),
			"limit": num("Maximum number of results"),
			"skip":  num("Number of results to skip"),
		}),
	},
	{
		Name:        ToolGetSyncStatus,
		Description: "Check the sync status of a document. Returns the current syncStatus and blockchain link if synced.",
		InputSchema: object([]string{"ddocId"}, map[string]Property{
			"ddocId": str("The unique document identifier"),
		}),
	},
	{
		Name:        ToolRetryFailedEvents,
		Description: "Retry all failed blockchain sync events. Use this when documents are stuck in 'failed' sync status.",
		InputSchema: object(nil, map[string]Property{}),
	},
}

// Catalog is an immutable set of tools with compiled argument schemas.
type Catalog struct {
	tools   []Tool
	byName  map[string]int
	schemas map[string]*jsonschema.Schema
}

// NewCatalog compiles the input schema of every tool.
func NewCatalog(tools []Tool) (*Catalog, error) {
	c := &Catalog{
		tools:   tools,
		byName:  make(map[string]int, len(tools)),
		schemas: make(map[string]*jsonschema.Schema, len(tools)),
	}
	for i, t := range tools {
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name)
		}
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: failed to encode schema: %w", t.Name, err)
		}
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://ddocs.schemas.local/tools/%s.schema.json", t.Name)
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("tool %s: schema load failed: %w", t.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("tool %s: schema compile failed: %w", t.Name, err)
		}
		c.byName[t.Name] = i
		c.schemas[t.Name] = schema
	}
	return c, nil
}

// MustDefaultCatalog returns the catalog of DefaultTools.
func MustDefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultTools)
	if err != nil {
		panic(err)
	}
	return c
}

// Tools returns the tools in declaration order.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Lookup returns the named tool.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Tool{}, false
	}
	return c.tools[i], true
}

// Prepare coerces args to the declared property types and validates them
// against the tool's schema. Numeric strings are accepted for number
// properties. The returned map is a copy.
func (c *Catalog) Prepare(name string, args map[string]any) (map[string]any, error) {
	tool, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	out := make(map[string]any, len(args))
	for k, v := range args {
		if v == nil {
			continue
		}
		out[k] = coerce(tool.InputSchema.Properties[k].Type, v)
	}

	if err := c.schemas[name].Validate(out); err != nil {
		return nil, validationError(err)
	}
	return out, nil
}

func coerce(typ string, v any) any {
	s, isString := v.(string)
	if !isString || (typ != "number" && typ != "integer") {
		return v
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return v
	}
	return f
}

// validationError flattens a schema validation error into one line.
func validationError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	leaves := []string{}
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc == "" {
				leaves = append(leaves, e.Message)
			} else {
				leaves = append(leaves, loc+": "+e.Message)
			}
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return fmt.Errorf("invalid arguments: %s", strings.Join(leaves, "; "))
}

// Summary renders the catalog as plain text, one block per tool.
func (c *Catalog) Summary() string {
	var b strings.Builder
	for _, t := range c.tools {
		fmt.Fprintf(&b, "%s\n  %s\n", t.Name, t.Description)
		names := make([]string, 0, len(t.InputSchema.Properties))
		for name := range t.InputSchema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := t.InputSchema.Properties[name]
			req := ""
			if slices.Contains(t.InputSchema.Required, name) {
				req = ", required"
			}
			fmt.Fprintf(&b, "  - %s (%s%s): %s\n", name, p.Type, req, p.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
