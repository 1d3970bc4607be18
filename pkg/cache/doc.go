// Package cache provides the session-scoped page cache used by the fetch
// orchestrator.
//
// A Store maps a 1-based page number to the articles fetched for it. A key
// is present only after a successful fetch of that page, and entries are
// never evicted or invalidated during a session; Clear drops everything.
//
// Three implementations are provided:
//
//   - Memory: an in-process map, the default.
//   - RedisStore: values kept in Redis under a per-session key namespace so
//     several processes can share one session's pages.
//   - Tiered: Memory in front of another Store; lower-tier hits are promoted.
//
// # Basic Usage
//
//	store := cache.NewMemory()
//
//	articles, err := store.Get(ctx, 1)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - fetch from the network
//	}
//
//	if err := store.Put(ctx, 1, articles); err != nil {
//		return err
//	}
//
// # Redis
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewTiered(cache.NewMemory(), cache.NewRedisStore(redisClient, cache.DefaultRedisConfig()))
//
// # Metrics
//
//   - news_cache_hits_total{layer} - Cache hits
//   - news_cache_misses_total{layer} - Cache misses
//   - news_cache_entries{layer} - Pages currently cached
//   - news_cache_errors_total{layer,operation} - Backend errors
package cache
