// Package cache provides the loader payload cache with a Redis backend.
//
// Public pages are rendered from JSON loader payloads. The cache manager
// stores those payloads cache-aside and keeps a surrogate-key index so that a
// content change can evict exactly the payloads that depend on it, mirroring
// the Surrogate-Key purge performed at the CDN.
//
// - TTL management from the entry's Expires field
// - Surrogate-key index sets for targeted invalidation
// - Strong ETags derived from payload bytes for conditional GETs
// - Single-flight loading so a cold key is loaded once under concurrency
// - Prometheus metrics for observability
// - Deterministic cache key generation
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, logger)
//
//	key := cache.Key{
//		Route:  "drink",
//		Params: map[string]string{"slug": "negroni"},
//	}
//
//	entry, hit, err := manager.GetOrLoad(ctx, key, func(ctx context.Context) (*cache.Entry, error) {
//		payload, err := json.Marshal(loadDrink(ctx, "negroni"))
//		if err != nil {
//			return nil, err
//		}
//		return cache.NewEntry(payload, []string{"drink:negroni"}, 24*time.Hour), nil
//	})
//
// # Invalidation
//
//	// Evict every payload tagged with the surrogate keys
//	removed, err := manager.PurgeSurrogate(ctx, "drink:negroni", "drinks")
//
// # Serving
//
//	if cache.NotModified(req, entry) {
//		return c.NoContent(http.StatusNotModified)
//	}
//	cache.WriteHeaders(resp.Header(), entry, policy)
//
// # Metrics
//
//   - drinks_cache_hits_total{route} - Cache hits
//   - drinks_cache_misses_total{route} - Cache misses
//   - drinks_cache_loads_total{route} - Loader invocations on miss
//   - drinks_cache_bytes_written_total - Bytes written to the cache
//   - drinks_cache_not_modified_total - 304 responses served from ETags
//   - drinks_cache_purged_entries_total - Entries evicted by surrogate key
//   - drinks_cache_errors_total{operation} - Cache operation errors
//
// An empty or unreachable cache never fails a request: errors are counted,
// logged and the loader is called directly.
package cache
