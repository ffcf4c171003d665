package service

import (
	"context"
	"fmt"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

// CreateFolder records a folder. Required fields are checked by the caller
// against the raw request with models.MissingFolderField.
func (s *Service) CreateFolder(ctx context.Context, folder *models.Folder) (*models.Folder, error) {
	if err := s.repo.CreateFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	s.logger.InfoContext(ctx, "folder created", logging.PortalAddress(folder.PortalAddress))
	return folder, nil
}

func (s *Service) GetFolder(ctx context.Context, folderRef, folderID string) (*models.Folder, error) {
	return s.repo.GetFolder(ctx, folderRef, folderID)
}

func (s *Service) ListFolders(ctx context.Context, opts models.ListOptions) (*models.FolderList, error) {
	return s.repo.ListFolders(ctx, normalize(opts))
}
