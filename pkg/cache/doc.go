// Package cache stores list query results in Redis for a bounded freshness
// window.
//
// A query is identified by its resource path and filter values; the page
// number is not part of the key, so every page of one logical query shares a
// single entry. Entries carry their own expiry and Redis evicts them at the
// same moment, so a key that exists is fresh.
//
// # Basic Usage
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.CacheKey{
//		Resource: "/api/contests",
//		Filters:  url.Values{"type": []string{"Design"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the backend, then
//		_ = manager.Set(ctx, key, cache.NewEntry(payload, 5*time.Minute))
//	}
//
// # Invalidation
//
// Mutations (creating, editing or deleting a contest, changing a role) make
// cached lists wrong. InvalidateResource removes every key of a resource:
//
//	n, err := manager.InvalidateResource(ctx, "/api/contests")
//
// # Metrics
//
//   - contesthub_cache_hits_total
//   - contesthub_cache_misses_total
//   - contesthub_cache_invalidations_total
//   - contesthub_cache_errors_total{operation}
package cache
