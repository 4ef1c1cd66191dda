package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/go-planning-dashboard/shared/models"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreLifecycle(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "tok-1", *member(), models.DefaultAccessFlags(), time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, created.SessionID)

	assert.False(t, mr.Exists(KeyPrefix+"tok-1"), "raw tokens are never used as keys")
	assert.True(t, mr.Exists(Key("tok-1")))
	assert.True(t, strings.HasPrefix(Key("tok-1"), KeyPrefix))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL(Key("tok-1")).Seconds(), 2)

	loaded, err := store.Load(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, created.SessionID, loaded.SessionID)
	assert.Equal(t, *member(), *loaded.Identity)

	require.NoError(t, store.Delete(ctx, "tok-1"))
	_, err = store.Load(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreSaveKeepsOverride(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	r, err := store.Create(ctx, "tok-root", *master(), nil, time.Hour)
	require.NoError(t, err)

	s := New(nil)
	s.Restore(r.Snapshot())
	require.NoError(t, s.SwitchTenant(globexID))
	r.Apply(s.Snapshot())
	require.NoError(t, store.Save(ctx, "tok-root", r))

	loaded, err := store.Load(ctx, "tok-root")
	require.NoError(t, err)
	tenant, _ := loaded.Snapshot().EffectiveTenant()
	assert.Equal(t, globexID, tenant)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err := store.Create(ctx, "tok-1", *member(), nil, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Load(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, mr.Exists(Key("tok-1")))

	err = store.Save(ctx, "tok-2", Record{Identity: member(), ExpiresAt: now.Add(-time.Second)})
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRedisStoreUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)

	_, err := store.Load(context.Background(), "tok-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
