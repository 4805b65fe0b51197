package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrCacheMiss is returned by Get for absent or expired payloads.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned when a stored payload does not decode.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// LoadFunc produces a fresh entry on cache miss.
type LoadFunc func(ctx context.Context) (*Entry, error)

// Manager stores loader payloads in Redis and indexes them by surrogate key.
type Manager struct {
	redis  *redis.Client
	logger zerolog.Logger
	group  singleflight.Group
}

// NewManager returns a Manager on rdb. rdb must not be nil.
func NewManager(rdb *redis.Client, logger zerolog.Logger) *Manager {
	if rdb == nil {
		panic("cache: nil redis client")
	}
	return &Manager{
		redis:  rdb,
		logger: logger,
	}
}

// Ping checks Redis availability.
func (m *Manager) Ping(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}

// Get returns the payload stored under key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(key.Route).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.WithLabelValues(key.Route).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(key.Route).Inc()
	return &entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field and
// records the key under each of the entry's surrogate keys.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	cacheKey := key.String()
	pipe := m.redis.TxPipeline()
	pipe.Set(ctx, cacheKey, data, ttl)
	for _, sk := range append([]string{AllEntries}, entry.SurrogateKeys...) {
		setKey := surrogateSetKey(sk)
		pipe.SAdd(ctx, setKey, cacheKey)
		// Entries share the configured TTL, so the latest write carries the
		// latest expiry and the index set outlives its members.
		pipe.Expire(ctx, setKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	BytesWritten.Add(float64(len(data)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// PurgeSurrogate evicts every entry tagged with any of the surrogate keys and
// drops the index sets. It returns the number of evicted entries.
func (m *Manager) PurgeSurrogate(ctx context.Context, surrogateKeys ...string) (int, error) {
	if len(surrogateKeys) == 0 {
		return 0, nil
	}

	setKeys := make([]string, len(surrogateKeys))
	for i, sk := range surrogateKeys {
		setKeys[i] = surrogateSetKey(sk)
	}

	members, err := m.redis.SUnion(ctx, setKeys...).Result()
	if err != nil {
		CacheErrors.WithLabelValues("purge").Inc()
		return 0, fmt.Errorf("redis sunion: %w", err)
	}

	toDelete := append(members, setKeys...)
	if err := m.redis.Del(ctx, toDelete...).Err(); err != nil {
		CacheErrors.WithLabelValues("purge").Inc()
		return 0, fmt.Errorf("redis del: %w", err)
	}

	PurgedEntries.Add(float64(len(members)))
	m.logger.Debug().
		Strs("surrogate_keys", surrogateKeys).
		Int("entries", len(members)).
		Msg("Purged cache entries by surrogate key")

	return len(members), nil
}

// GetOrLoad returns the cached entry for key, or calls load on a miss and
// caches its result. Concurrent misses for the same key share one load.
// Cache failures are logged and never prevent the loader from running.
// The boolean result reports a cache hit.
func (m *Manager) GetOrLoad(ctx context.Context, key Key, load LoadFunc) (*Entry, bool, error) {
	entry, err := m.Get(ctx, key)
	if err == nil {
		m.logger.Debug().Str("cache_key", key.String()).Msg("Cache hit")
		return entry, true, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		m.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Cache get error, loading directly")
	}

	v, err, _ := m.group.Do(key.String(), func() (any, error) {
		CacheLoads.WithLabelValues(key.Route).Inc()
		fresh, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.Set(ctx, key, fresh); err != nil {
			m.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Failed to cache payload")
		} else {
			m.logger.Debug().
				Str("cache_key", key.String()).
				Dur("ttl", fresh.TTL()).
				Msg("Cached payload")
		}
		return fresh, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}
