package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const evidenceKeyPrefix = "grading:evidence:"

// EvidenceCacheRepository stores repository evidence bundles keyed by owner/repo.
type EvidenceCacheRepository interface {
	Get(ctx context.Context, repoKey string) (string, bool, error)
	Set(ctx context.Context, repoKey string, bundle string) error
}

type evidenceCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEvidenceCacheRepository constructs a Redis-backed evidence cache.
func NewEvidenceCacheRepository(client *redis.Client, ttl time.Duration) EvidenceCacheRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &evidenceCacheRepository{client: client, ttl: ttl}
}

func (r *evidenceCacheRepository) Get(ctx context.Context, repoKey string) (string, bool, error) {
	value, err := r.client.Get(ctx, evidenceKeyPrefix+repoKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *evidenceCacheRepository) Set(ctx context.Context, repoKey string, bundle string) error {
	return r.client.Set(ctx, evidenceKeyPrefix+repoKey, bundle, r.ttl).Err()
}
