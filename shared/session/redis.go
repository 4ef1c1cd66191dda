package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/pavitra93/go-planning-dashboard/shared/models"
)

// KeyPrefix namespaces every session key
const KeyPrefix = "planboard:session:"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// RedisStore persists one Record per access token. The token itself is never
// stored; the key is its sha256.
type RedisStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Key returns the Redis key of token
func Key(token string) string {
	hash := sha256.Sum256([]byte(token))
	return KeyPrefix + hex.EncodeToString(hash[:])
}

// Create starts a session for identity and persists it for ttl
func (s *RedisStore) Create(ctx context.Context, token string, identity Identity, flags models.AccessFlags, ttl time.Duration) (Record, error) {
	now := s.now()
	r := Record{
		Version:     SchemaVersion,
		SessionID:   uuid.New().String(),
		Identity:    &identity,
		AccessFlags: flags,
		CreatedAt:   now,
		LastUsedAt:  now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := s.Save(ctx, token, r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Save writes r with a TTL matching its remaining lifetime
func (s *RedisStore) Save(ctx context.Context, token string, r Record) error {
	ttl := r.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrSessionExpired
	}

	data, err := Encode(r)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, Key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

// Load returns the session of token. Expired records are removed.
func (s *RedisStore) Load(ctx context.Context, token string) (Record, error) {
	key := Key(token)
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	r, err := Decode(data)
	if err != nil {
		return Record{}, err
	}
	if r.IsExpired(s.now()) {
		s.client.Del(ctx, key)
		return Record{}, ErrSessionExpired
	}
	return r, nil
}

// Delete revokes the session of token
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, Key(token)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
