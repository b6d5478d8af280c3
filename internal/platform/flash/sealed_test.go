package flash

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = bytes.Repeat([]byte{7}, 32)

func TestSealedStore_RoundTrip(t *testing.T) {
	_, redisStore := setupRedisStore(t)
	s, err := NewSealedStore(redisStore, testKey)
	require.NoError(t, err)
	ctx := context.Background()
	key := Key("op-1", "patients", "record", "5")

	require.NoError(t, s.Put(ctx, key, []byte(`{"full_name":"Ana Cruz"}`), time.Minute))

	val, err := s.Take(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"full_name":"Ana Cruz"}`, string(val))

	_, err = s.Take(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSealedStore_CiphertextAtRest(t *testing.T) {
	inner := NewMemoryStore()
	s, err := NewSealedStore(inner, testKey)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("Ana Cruz"), time.Minute))
	raw, err := inner.Take(ctx, "k")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Ana Cruz")
}

func TestSealedStore_RejectsMovedValue(t *testing.T) {
	inner := NewMemoryStore()
	s, err := NewSealedStore(inner, testKey)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", []byte("secret"), time.Minute))
	raw, err := inner.Take(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, inner.Put(ctx, "b", raw, time.Minute))

	_, err = s.Take(ctx, "b")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, inner.Put(ctx, "c", []byte("short"), time.Minute))
	_, err = s.Take(ctx, "c")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey(strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = ParseKey("zz")
	assert.Error(t, err)
	_, err = ParseKey("abcd")
	assert.Error(t, err)
	_, err = NewSealedStore(NewMemoryStore(), []byte("short"))
	assert.Error(t, err)
}
