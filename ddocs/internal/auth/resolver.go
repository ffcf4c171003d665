// Package auth resolves client API keys to the portal they act for.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
	"github.com/fileverse/ddocs-stack/ddocs/internal/repository"
)

const cachePrefix = "ddocs:apikey:"

var (
	// ErrInvalidCredential covers missing, unknown and mismatched keys.
	ErrInvalidCredential = errors.New("invalid API key")
	ErrKeyTooShort       = fmt.Errorf("api key must be at least %d characters", models.KeyIDLength)
)

// Resolver maps API keys to portal addresses. Keys are looked up by their
// key id and verified against a bcrypt hash. Successful resolutions are
// cached in Redis when a client is configured.
type Resolver struct {
	store  repository.APIKeyStore
	cache  *redis.Client
	ttl    time.Duration
	cost   int
	logger *logging.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(store repository.APIKeyStore, cache *redis.Client, ttl time.Duration, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{store: store, cache: cache, ttl: ttl, cost: bcrypt.DefaultCost, logger: logger}
}

// NewRedisClient connects to redisURL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// digest is what gets hashed and cached in place of the key itself.
func digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func slogKeyID(id string) slog.Attr { return slog.String("key_id", id) }

func cacheKey(key string) string {
	return cachePrefix + digest(key)
}

// Resolve returns the portal key acts for.
func (r *Resolver) Resolve(ctx context.Context, key string) (string, error) {
	if len(key) < models.KeyIDLength {
		return "", ErrInvalidCredential
	}

	if r.cache != nil {
		portal, err := r.cache.Get(ctx, cacheKey(key)).Result()
		switch {
		case err == nil:
			return portal, nil
		case !errors.Is(err, redis.Nil):
			r.logger.WarnContext(ctx, "credential cache read failed", logging.Error(err))
		}
	}

	stored, err := r.store.GetAPIKey(ctx, models.KeyIDOf(key))
	if errors.Is(err, repository.ErrAPIKeyNotFound) {
		return "", ErrInvalidCredential
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up api key: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.KeyHash), []byte(digest(key))); err != nil {
		return "", ErrInvalidCredential
	}

	if r.cache != nil && r.ttl > 0 {
		if err := r.cache.Set(ctx, cacheKey(key), stored.PortalAddress, r.ttl).Err(); err != nil {
			r.logger.WarnContext(ctx, "credential cache write failed", logging.Error(err))
		}
	}
	return stored.PortalAddress, nil
}

// Register stores key for portal, replacing any key with the same key id.
func (r *Resolver) Register(ctx context.Context, key, portal string) (*models.APIKey, error) {
	if len(key) < models.KeyIDLength {
		return nil, ErrKeyTooShort
	}
	if portal == "" {
		return nil, errors.New("portal address is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(digest(key)), r.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash api key: %w", err)
	}
	apiKey := &models.APIKey{
		KeyID:         models.KeyIDOf(key),
		KeyHash:       string(hash),
		PortalAddress: portal,
	}
	if err := r.store.UpsertAPIKey(ctx, apiKey); err != nil {
		return nil, fmt.Errorf("failed to store api key: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Del(ctx, cacheKey(key)).Err(); err != nil {
			r.logger.WarnContext(ctx, "credential cache invalidation failed", logging.Error(err))
		}
	}
	r.logger.InfoContext(ctx, "api key registered", slogKeyID(apiKey.KeyID), logging.PortalAddress(portal))
	return apiKey, nil
}
