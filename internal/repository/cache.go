package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"callinsight-backend/internal/models"
)

type profileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
}

// CachedProfiles fronts profile lookups made on every authenticated request.
// Misses are not cached so a freshly provisioned profile is seen immediately.
type CachedProfiles struct {
	repo profileReader
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCachedProfiles(repo profileReader, rdb *redis.Client, ttl time.Duration) *CachedProfiles {
	return &CachedProfiles{repo: repo, rdb: rdb, ttl: ttl}
}

func profileCacheKey(id uuid.UUID) string {
	return "profile:" + id.String()
}

func (c *CachedProfiles) GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	if c.rdb != nil {
		if raw, err := c.rdb.Get(ctx, profileCacheKey(id)).Bytes(); err == nil {
			var p models.UserProfile
			if json.Unmarshal(raw, &p) == nil {
				return &p, nil
			}
		}
	}

	p, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.rdb != nil {
		if raw, err := json.Marshal(p); err == nil {
			c.rdb.Set(ctx, profileCacheKey(id), raw, c.ttl)
		}
	}
	return p, nil
}

func (c *CachedProfiles) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, profileCacheKey(id)).Err()
}

// KeyStore holds short-lived flags: idempotency claims and scheduler bookkeeping.
type KeyStore struct {
	rdb *redis.Client
}

func NewKeyStore(rdb *redis.Client) *KeyStore {
	return &KeyStore{rdb: rdb}
}

// Claim reports whether key was newly taken. A second claim within ttl returns false.
func (s *KeyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, "idem:"+key, 1, ttl).Result()
}

func (s *KeyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, "idem:"+key).Err()
}

func (s *KeyStore) GetString(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (s *KeyStore) SetString(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}
