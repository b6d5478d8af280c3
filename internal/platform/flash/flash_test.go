package flash

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { c.Close() })
	return mr, NewRedisStore(c)
}

func TestRedisStore_TakeOnce(t *testing.T) {
	_, s := setupRedisStore(t)
	ctx := context.Background()
	key := Key("op-1", "screenings", "message")

	require.NoError(t, s.Put(ctx, key, []byte("Application submitted."), time.Minute))

	val, err := s.Take(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Application submitted.", string(val))

	_, err = s.Take(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, s := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := s.Take(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_DefaultTTL(t *testing.T) {
	mr, s := setupRedisStore(t)
	require.NoError(t, s.Put(context.Background(), "k", []byte("v"), 0))
	assert.Equal(t, DefaultTTL, mr.TTL("k"))
}

func TestMemoryStore_TakeOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	val, err := s.Take(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(val))

	_, err = s.Take(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2025, 10, 5, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "old", []byte("v"), time.Second))
	now = now.Add(2 * time.Second)

	_, err := s.Take(ctx, "old")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Put(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, s.Put(ctx, "b", []byte("2"), time.Hour))
	now = now.Add(2 * time.Second)
	require.NoError(t, s.Put(ctx, "c", []byte("3"), time.Hour))
	assert.Len(t, s.entries, 2, "expired entries are swept on put")
}

func TestJSONHelpers(t *testing.T) {
	type handoff struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, PutJSON(ctx, s, "rec", handoff{ID: "12", Status: "Pending"}, time.Minute))

	var got handoff
	require.NoError(t, TakeJSON(ctx, s, "rec", &got))
	assert.Equal(t, handoff{ID: "12", Status: "Pending"}, got)

	assert.ErrorIs(t, TakeJSON(ctx, s, "rec", &got), ErrMiss)
}

func TestOpen(t *testing.T) {
	store, closeFn, err := Open(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	assert.NoError(t, closeFn())

	mr := miniredis.RunT(t)
	store, closeFn, err = Open(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	assert.NoError(t, closeFn())

	_, _, err = Open(context.Background(), "::not a url")
	assert.Error(t, err)
}
