package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
	"github.com/fileverse/ddocs-stack/ddocs/internal/repository"
	"github.com/fileverse/ddocs-stack/ddocs/internal/service"
)

var errDocumentNotFound = errors.New("Document not found")

// Executor runs a validated tool call for portal.
type Executor interface {
	Execute(ctx context.Context, portal, tool string, args map[string]any) (any, error)
}

// ServiceExecutor maps the document tools onto service operations.
type ServiceExecutor struct {
	svc *service.Service
}

func NewServiceExecutor(svc *service.Service) *ServiceExecutor {
	return &ServiceExecutor{svc: svc}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int {
	f, _ := args[key].(float64)
	return int(f)
}

func listOptions(args map[string]any) models.ListOptions {
	return models.ListOptions{Limit: intArg(args, "limit"), Skip: intArg(args, "skip")}
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return errDocumentNotFound
	}
	return err
}

func (e *ServiceExecutor) Execute(ctx context.Context, portal, tool string, args map[string]any) (any, error) {
	switch tool {
	case ToolListDocuments:
		return e.svc.ListDocuments(ctx, portal, listOptions(args))

	case ToolGetDocument:
		doc, err := e.svc.GetDocument(ctx, portal, stringArg(args, "ddocId"))
		return doc, notFound(err)

	case ToolCreateDocument:
		return e.svc.CreateDocument(ctx, portal, models.CreateDocumentRequest{
			Title:   stringArg(args, "title"),
			Content: stringArg(args, "content"),
		})

	case ToolUpdateDocument:
		var req models.UpdateDocumentRequest
		if title := stringArg(args, "title"); title != "" {
			req.Title = &title
		}
		if content := stringArg(args, "content"); content != "" {
			req.Content = &content
		}
		doc, err := e.svc.UpdateDocument(ctx, portal, stringArg(args, "ddocId"), req)
		return doc, notFound(err)

	case ToolDeleteDocument:
		doc, err := e.svc.DeleteDocument(ctx, portal, stringArg(args, "ddocId"))
		return doc, notFound(err)

	case ToolSearchDocuments:
		return e.svc.SearchDocuments(ctx, portal, stringArg(args, "query"), listOptions(args))

	case ToolGetSyncStatus:
		info, err := e.svc.SyncStatus(ctx, portal, stringArg(args, "ddocId"))
		if err != nil {
			return nil, notFound(err)
		}
		return info, nil

	case ToolRetryFailedEvents:
		n, err := e.svc.RetryAllFailed(ctx, portal)
		if err != nil {
			return nil, err
		}
		return map[string]int{"retried": n}, nil
	}
	return nil, fmt.Errorf("Unknown tool: %s", tool)
}
