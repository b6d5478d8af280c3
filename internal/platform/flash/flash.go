// Package flash hands short-lived values from one console view to the next:
// the record an operator opened from a list, or the message a create flow
// leaves for the list it returns to. Every value can be read exactly once.
package flash

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned by Take when no value is stored under the key, or it
// was already taken or has expired.
var ErrMiss = errors.New("flash miss")

// DefaultTTL bounds how long an untaken value is kept.
const DefaultTTL = 5 * time.Minute

// Store is a consume-once key/value store.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Take returns the value and removes it atomically.
	Take(ctx context.Context, key string) ([]byte, error)
}

// Key builds a store key scoped to an operator.
func Key(operator string, parts ...string) string {
	return "console:flash:" + operator + ":" + strings.Join(parts, ":")
}

// PutJSON stores v encoded as JSON.
func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, b, ttl)
}

// TakeJSON takes the value under key and decodes it into v.
func TakeJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := s.Take(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// RedisStore keeps values in Redis and takes them with GETDEL.
type RedisStore struct {
	c *redis.Client
}

func NewRedisStore(c *redis.Client) *RedisStore { return &RedisStore{c: c} }

func (r *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return r.c.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Take(ctx context.Context, key string) ([]byte, error) {
	val, err := r.c.GetDel(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrMiss
		}
		return nil, err
	}
	return val, nil
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the single-process fallback used when no Redis URL is
// configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry), now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.entries[key] = entry{value: cp, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Take(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	delete(m.entries, key)
	if !m.now().Before(e.expiresAt) {
		return nil, ErrMiss
	}
	return e.value, nil
}

func (m *MemoryStore) sweepLocked() {
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// Open returns a Redis-backed store when redisURL is set and reachable,
// otherwise the in-memory store.
func Open(ctx context.Context, redisURL string) (Store, func() error, error) {
	if redisURL == "" {
		return NewMemoryStore(), func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, err
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, nil, err
	}
	return NewRedisStore(c), c.Close, nil
}
