package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

const eventColumns = `
	id, type, portal_address, file_id, version, status, payload,
	COALESCE(ledger_ref, ''), attempts, COALESCE(last_error, ''),
	COALESCE(claim_token, ''), claimed_at, submitted_at, resolved_at,
	created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.ID, &e.Type, &e.PortalAddress, &e.FileID, &e.Version, &e.Status, &e.Payload,
		&e.LedgerRef, &e.Attempts, &e.LastError,
		&e.ClaimToken, &e.ClaimedAt, &e.SubmittedAt, &e.ResolvedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, e *models.Event) error {
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	query := `
		INSERT INTO events (id, type, portal_address, file_id, version, status, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		e.ID, e.Type, e.PortalAddress, e.FileID, e.Version, e.Status, payload,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}
	return nil
}

// claimNext takes one event with the given status using SKIP LOCKED, so
// concurrent claimers each get a different row or nothing.
func (r *PostgresRepository) claimNext(ctx context.Context, status models.EventStatus, scope string, exclude []string) (*models.Claim, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if exclude == nil {
		exclude = []string{}
	}
	token := uuid.NewString()

	query := `
		UPDATE events
		SET claim_token = $1, claimed_at = NOW()
		WHERE id = (
			SELECT id FROM events
			WHERE status = $2
			  AND ($3::text = '' OR portal_address = $3)
			  AND NOT (id = ANY($4::text[]))
			  AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $5::float8))
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + eventColumns

	e, err := scanEvent(r.pool.QueryRow(ctx, query, token, status, scope, exclude, r.opts.ClaimLease.Seconds()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoEventAvailable
		}
		return nil, fmt.Errorf("failed to claim %s event: %w", status, err)
	}
	return &models.Claim{Event: e, Token: token, ClaimedAt: *e.ClaimedAt}, nil
}

func (r *PostgresRepository) ClaimNextPending(ctx context.Context, scope string, exclude []string) (*models.Claim, error) {
	return r.claimNext(ctx, models.EventStatusPending, scope, exclude)
}

func (r *PostgresRepository) ClaimNextSubmitted(ctx context.Context, scope string, exclude []string) (*models.Claim, error) {
	return r.claimNext(ctx, models.EventStatusSubmitted, scope, exclude)
}

func (r *PostgresRepository) MarkSubmitted(ctx context.Context, claim *models.Claim, ledgerRef string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE events
		SET status = 'submitted', ledger_ref = $3, submitted_at = NOW(), updated_at = NOW(),
		    claim_token = NULL, claimed_at = NULL, last_error = NULL
		WHERE id = $1 AND claim_token = $2 AND status = 'pending'
	`
	tag, err := r.pool.Exec(ctx, query, claim.EventID(), claim.Token, ledgerRef)
	if err != nil {
		return fmt.Errorf("failed to mark event submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

func (r *PostgresRepository) MarkResolved(ctx context.Context, claim *models.Claim, res models.Resolution) error {
	if err := models.ValidateTransition(models.EventStatusSubmitted, res.Status); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var fileID string
		var version int
		err := tx.QueryRow(ctx, `
			UPDATE events
			SET status = $3, resolved_at = NOW(), updated_at = NOW(),
			    claim_token = NULL, claimed_at = NULL,
			    last_error = NULLIF($4::text, '')
			WHERE id = $1 AND claim_token = $2 AND status = 'submitted'
			RETURNING file_id, version
		`, claim.EventID(), claim.Token, res.Status, res.Reason).Scan(&fileID, &version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrClaimLost
			}
			return fmt.Errorf("failed to mark event resolved: %w", err)
		}

		var docQuery string
		args := []any{fileID, version}
		if res.Status == models.EventStatusResolved {
			docQuery = `
				UPDATE documents
				SET onchain_version = GREATEST(onchain_version, $2),
				    sync_status = CASE WHEN GREATEST(onchain_version, $2) >= local_version
				                       THEN 'synced' ELSE 'pending' END,
				    link = COALESCE(NULLIF($3::text, ''), link),
				    updated_at = NOW()
				WHERE ddoc_id = $1
			`
			args = append(args, res.Link)
		} else {
			docQuery = `
				UPDATE documents SET sync_status = 'failed', updated_at = NOW()
				WHERE ddoc_id = $1 AND local_version <= $2
			`
		}
		if _, err := tx.Exec(ctx, docQuery, args...); err != nil {
			return fmt.Errorf("failed to update document sync state: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) ReleaseClaim(ctx context.Context, claim *models.Claim, cause string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE events
		SET claim_token = NULL, claimed_at = NULL, updated_at = NOW(),
		    last_error = COALESCE(NULLIF($3::text, ''), last_error)
		WHERE id = $1 AND claim_token = $2
	`
	tag, err := r.pool.Exec(ctx, query, claim.EventID(), claim.Token, cause)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

func (r *PostgresRepository) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListFailed(ctx context.Context, scope string) ([]*models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE status = 'failed' AND ($1::text = '' OR portal_address = $1)
		ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed events: %w", err)
	}
	defer rows.Close()

	events := []*models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// resetFailedQuery moves failed events back to pending and their documents
// back to pending sync in one statement. $1 is an event id or '' for all.
const resetFailedQuery = `
	WITH reset AS (
		UPDATE events
		SET status = 'pending', attempts = attempts + 1, updated_at = NOW(),
		    ledger_ref = NULL, submitted_at = NULL, resolved_at = NULL,
		    claim_token = NULL, claimed_at = NULL
		WHERE status = 'failed'
		  AND ($1::text = '' OR id = $1)
		  AND ($2::text = '' OR portal_address = $2)
		  AND ($3::int = 0 OR attempts < $3)
		RETURNING file_id
	), docs AS (
		UPDATE documents d
		SET sync_status = 'pending', updated_at = NOW()
		FROM reset
		WHERE d.ddoc_id = reset.file_id AND d.sync_status = 'failed'
		RETURNING d.ddoc_id
	)
	SELECT COUNT(*) FROM reset`

func (r *PostgresRepository) resetFailed(ctx context.Context, id, scope string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int
	if err := r.pool.QueryRow(ctx, resetFailedQuery, id, scope, r.opts.MaxRetries).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to reset failed events: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ResetFailedToPending(ctx context.Context, id, scope string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := r.resetFailed(ctx, id, scope)
	return n > 0, err
}

func (r *PostgresRepository) ResetAllFailedToPending(ctx context.Context, scope string) (int, error) {
	return r.resetFailed(ctx, "", scope)
}

func (r *PostgresRepository) CountByStatus(ctx context.Context, scope string) (models.StatusCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM events
		WHERE ($1::text = '' OR portal_address = $1)
		GROUP BY status`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := models.StatusCounts{}
	for rows.Next() {
		var status models.EventStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
