package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

const queryTimeout = 5 * time.Second

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
	opts Options
}

// NewPostgresRepository connects to connString. maxConns <= 0 keeps the
// pgxpool default.
func NewPostgresRepository(ctx context.Context, connString string, maxConns int32, opts Options) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if opts.ClaimLease <= 0 {
		opts.ClaimLease = DefaultOptions().ClaimLease
	}
	return &PostgresRepository{pool: pool, opts: opts}, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// =============================================================================
// API KEYS
// =============================================================================

func (r *PostgresRepository) UpsertAPIKey(ctx context.Context, key *models.APIKey) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO api_keys (key_id, key_hash, portal_address)
		VALUES ($1, $2, $3)
		ON CONFLICT (key_id) DO UPDATE
		SET key_hash = EXCLUDED.key_hash, portal_address = EXCLUDED.portal_address
		RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query, key.KeyID, key.KeyHash, key.PortalAddress).Scan(&key.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert api key: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetAPIKey(ctx context.Context, keyID string) (*models.APIKey, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT key_id, key_hash, portal_address, created_at FROM api_keys WHERE key_id = $1`

	var key models.APIKey
	err := r.pool.QueryRow(ctx, query, keyID).Scan(&key.KeyID, &key.KeyHash, &key.PortalAddress, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &key, nil
}

var _ Repository = (*PostgresRepository)(nil)
