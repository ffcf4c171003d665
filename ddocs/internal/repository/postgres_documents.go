package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

const documentColumns = `
	ddoc_id, title, content, portal_address, sync_status, link,
	local_version, onchain_version, is_deleted, created_at, updated_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.DDocID, &d.Title, &d.Content, &d.PortalAddress, &d.SyncStatus, &d.Link,
		&d.LocalVersion, &d.OnchainVersion, &d.IsDeleted, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PostgresRepository) CreateDocument(ctx context.Context, doc *models.Document, event *models.Event) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO documents (ddoc_id, title, content, portal_address, sync_status, link,
			                       local_version, onchain_version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at
		`, doc.DDocID, doc.Title, doc.Content, doc.PortalAddress, doc.SyncStatus, doc.Link,
			doc.LocalVersion, doc.OnchainVersion,
		).Scan(&doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		return insertEvent(ctx, tx, event)
	})
}

func (r *PostgresRepository) UpdateDocument(ctx context.Context, doc *models.Document, event *models.Event) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE documents
			SET title = $3, content = $4, sync_status = $5, local_version = $6,
			    is_deleted = $7, updated_at = NOW()
			WHERE ddoc_id = $1 AND portal_address = $2 AND is_deleted = FALSE
			  AND local_version = $8
			RETURNING updated_at
		`, doc.DDocID, doc.PortalAddress, doc.Title, doc.Content, doc.SyncStatus,
			doc.LocalVersion, doc.IsDeleted, doc.LocalVersion-1,
		).Scan(&doc.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.missedUpdate(ctx, tx, doc)
			}
			return fmt.Errorf("failed to update document: %w", err)
		}
		return insertEvent(ctx, tx, event)
	})
}

// missedUpdate tells a concurrent write apart from a missing document after
// a versioned update matched no row.
func (r *PostgresRepository) missedUpdate(ctx context.Context, tx pgx.Tx, doc *models.Document) error {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM documents
			WHERE ddoc_id = $1 AND portal_address = $2 AND is_deleted = FALSE
		)`, doc.DDocID, doc.PortalAddress).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check document: %w", err)
	}
	if exists {
		return ErrVersionConflict
	}
	return ErrDocumentNotFound
}

func (r *PostgresRepository) GetDocument(ctx context.Context, ddocID, portal string) (*models.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE ddoc_id = $1 AND portal_address = $2 AND is_deleted = FALSE`

	d, err := scanDocument(r.pool.QueryRow(ctx, query, ddocID, portal))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) ListDocuments(ctx context.Context, portal string, opts models.ListOptions) (*models.DocumentList, error) {
	docs, total, err := r.queryDocuments(ctx, portal, "", opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return &models.DocumentList{DDocs: docs, Total: total, HasNext: opts.Skip+len(docs) < total}, nil
}

func (r *PostgresRepository) SearchDocuments(ctx context.Context, portal, query string, opts models.ListOptions) (*models.SearchResult, error) {
	docs, total, err := r.queryDocuments(ctx, portal, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return &models.SearchResult{Nodes: docs, Total: total, HasNext: opts.Skip+len(docs) < total}, nil
}

// queryDocuments pages live documents of portal, optionally filtered by a
// case-insensitive substring of title or content.
func (r *PostgresRepository) queryDocuments(ctx context.Context, portal, search string, opts models.ListOptions) ([]*models.Document, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pattern := ""
	if search != "" {
		pattern = "%" + escapeLike(search) + "%"
	}

	query := `SELECT ` + documentColumns + `, COUNT(*) OVER ()
		FROM documents
		WHERE portal_address = $1 AND is_deleted = FALSE
		  AND ($2::text = '' OR title ILIKE $2 OR content ILIKE $2)
		ORDER BY updated_at DESC, ddoc_id
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, portal, pattern, opts.Limit, opts.Skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs := []*models.Document{}
	total := 0
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.DDocID, &d.Title, &d.Content, &d.PortalAddress, &d.SyncStatus, &d.Link,
			&d.LocalVersion, &d.OnchainVersion, &d.IsDeleted, &d.CreatedAt, &d.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// COUNT(*) OVER () is absent when the page is past the end.
	if len(docs) == 0 && opts.Skip > 0 {
		err := r.pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM documents
			WHERE portal_address = $1 AND is_deleted = FALSE
			  AND ($2::text = '' OR title ILIKE $2 OR content ILIKE $2)`, portal, pattern).Scan(&total)
		if err != nil {
			return nil, 0, err
		}
	}
	return docs, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// =============================================================================
// FOLDERS
// =============================================================================

const folderColumns = `
	onchain_file_id, folder_id, folder_ref, folder_name, portal_address,
	metadata_ipfs_hash, last_transaction_block_number, last_transaction_block_timestamp, created_at`

func scanFolder(row pgx.Row) (*models.Folder, error) {
	var f models.Folder
	err := row.Scan(
		&f.OnchainFileID, &f.FolderID, &f.FolderRef, &f.FolderName, &f.PortalAddress,
		&f.MetadataIPFSHash, &f.LastTransactionBlockNumber, &f.LastTransactionBlockTimestamp, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PostgresRepository) CreateFolder(ctx context.Context, folder *models.Folder) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO folders (onchain_file_id, folder_id, folder_ref, folder_name, portal_address,
		                     metadata_ipfs_hash, last_transaction_block_number, last_transaction_block_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		folder.OnchainFileID, folder.FolderID, folder.FolderRef, folder.FolderName, folder.PortalAddress,
		folder.MetadataIPFSHash, folder.LastTransactionBlockNumber, folder.LastTransactionBlockTimestamp,
	).Scan(&folder.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrFolderExists
		}
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetFolder(ctx context.Context, folderRef, folderID string) (*models.Folder, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + folderColumns + ` FROM folders WHERE folder_ref = $1 AND folder_id = $2`
	f, err := scanFolder(r.pool.QueryRow(ctx, query, folderRef, folderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ListFolders(ctx context.Context, opts models.ListOptions) (*models.FolderList, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM folders`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count folders: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+folderColumns+`
		FROM folders ORDER BY created_at DESC, folder_ref, folder_id
		LIMIT $1 OFFSET $2`, opts.Limit, opts.Skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	folders := []*models.Folder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &models.FolderList{Folders: folders, Total: total, HasNext: opts.Skip+len(folders) < total}, nil
}
