package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

// CacheEntry is one cached embedding keyed by a content fingerprint.
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Vector      []float32 `json:"vector"`
	Preview     string    `json:"preview"`
	Model       string    `json:"model"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EmbeddingCache stores embeddings keyed by content fingerprint. Lookup
// returns (nil, nil) on a miss; Upsert is last-writer-wins and safe to
// repeat with identical entries.
type EmbeddingCache interface {
	Lookup(ctx context.Context, fingerprint string) (*CacheEntry, error)
	Upsert(ctx context.Context, entry CacheEntry) error
}

// MemoryCache is a process-local embedding cache. It is the default backend
// and the inner layer in front of a shared one.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]CacheEntry)}
}

func (c *MemoryCache) Lookup(_ context.Context, fingerprint string) (*CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (c *MemoryCache) Upsert(_ context.Context, entry CacheEntry) error {
	if entry.Fingerprint == "" {
		return errors.New("memory cache: empty fingerprint")
	}
	if len(entry.Vector) == 0 {
		return errors.New("memory cache: empty vector")
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	c.mu.Lock()
	c.entries[entry.Fingerprint] = entry
	c.mu.Unlock()
	return nil
}

// Len reports the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache keeps embeddings in Redis as JSON values under a shared key
// prefix, expiring after the configured TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

const redisKeyPrefix = "deepresearch:embedding:"

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Lookup(ctx context.Context, fingerprint string) (*CacheEntry, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+fingerprint).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache lookup: %w", err)
	}
	var entry CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("redis cache decode: %w", err)
	}
	return &entry, nil
}

func (c *RedisCache) Upsert(ctx context.Context, entry CacheEntry) error {
	if entry.Fingerprint == "" {
		return errors.New("redis cache: empty fingerprint")
	}
	if len(entry.Vector) == 0 {
		return errors.New("redis cache: empty vector")
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis cache encode: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+entry.Fingerprint, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache upsert: %w", err)
	}
	return nil
}

// StoreCache backs the embedding cache with the embedding_cache table so
// entries survive restarts and are shared across processes.
type StoreCache struct {
	st *store.Store
}

func NewStoreCache(st *store.Store) *StoreCache {
	return &StoreCache{st: st}
}

func (c *StoreCache) Lookup(ctx context.Context, fingerprint string) (*CacheEntry, error) {
	rec, err := c.st.LookupEmbedding(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return &CacheEntry{
		Fingerprint: rec.Fingerprint,
		Vector:      rec.Vector,
		Preview:     rec.Preview,
		Model:       rec.Model,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

func (c *StoreCache) Upsert(ctx context.Context, entry CacheEntry) error {
	return c.st.UpsertEmbedding(ctx, store.EmbeddingCacheRecord{
		Fingerprint: entry.Fingerprint,
		Vector:      entry.Vector,
		Preview:     entry.Preview,
		Model:       entry.Model,
	})
}

// LayeredCache composes caches fastest-first. Lookup probes layers in order
// and backfills earlier ones on a deeper hit; Upsert writes through to all.
type LayeredCache struct {
	layers []EmbeddingCache
}

func NewLayeredCache(layers ...EmbeddingCache) *LayeredCache {
	return &LayeredCache{layers: layers}
}

func (c *LayeredCache) Lookup(ctx context.Context, fingerprint string) (*CacheEntry, error) {
	for i, layer := range c.layers {
		entry, err := layer.Lookup(ctx, fingerprint)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		for j := 0; j < i; j++ {
			if err := c.layers[j].Upsert(ctx, *entry); err != nil {
				return nil, err
			}
		}
		return entry, nil
	}
	return nil, nil
}

func (c *LayeredCache) Upsert(ctx context.Context, entry CacheEntry) error {
	for _, layer := range c.layers {
		if err := layer.Upsert(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
