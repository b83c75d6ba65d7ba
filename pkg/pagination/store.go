package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/contesthub-client/pkg/cache"
)

// Store keeps the accumulated pages of a query for reuse by later queries
// with the same identity. Load reports found=false for absent or stale data.
type Store interface {
	Load(ctx context.Context, d Descriptor) (pages []Page, found bool, err error)
	Save(ctx context.Context, d Descriptor, pages []Page, ttl time.Duration) error
	Invalidate(ctx context.Context, resource string) error
}

// RedisStore is a Store on top of the Redis query cache.
type RedisStore struct {
	cache *cache.Manager
	scope string
}

// NewRedisStore creates a store. scope separates users sharing one Redis
// (e.g., the signed-in uid); leave it empty for public lists.
func NewRedisStore(m *cache.Manager, scope string) *RedisStore {
	return &RedisStore{cache: m, scope: scope}
}

func (s *RedisStore) key(d Descriptor) cache.CacheKey {
	filters := d.Filters.Values()
	if filters == nil {
		filters = make(map[string][]string, 1)
	}
	filters.Set("limit", strconv.Itoa(d.PageSize))
	return cache.CacheKey{Resource: d.Resource, Filters: filters, Scope: s.scope}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, d Descriptor) ([]Page, bool, error) {
	entry, err := s.cache.Get(ctx, s.key(d))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var pages []Page
	if err := json.Unmarshal(entry.Data, &pages); err != nil {
		return nil, false, fmt.Errorf("%w: %v", cache.ErrInvalidEntry, err)
	}
	return pages, true, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, d Descriptor, pages []Page, ttl time.Duration) error {
	data, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("encode pages: %w", err)
	}
	return s.cache.Set(ctx, s.key(d), cache.NewEntry(data, ttl))
}

// Invalidate implements Store.
func (s *RedisStore) Invalidate(ctx context.Context, resource string) error {
	_, err := s.cache.InvalidateResource(ctx, resource)
	return err
}

// MemoryStore is an in-process Store for clients running without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	resource string
	pages    []Page
	expires  time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func memoryKey(d Descriptor) string {
	return d.Identity() + "#" + strconv.Itoa(d.PageSize)
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, d Descriptor) ([]Page, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey(d)
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !time.Now().Before(e.expires) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return append([]Page(nil), e.pages...), true, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, d Descriptor, pages []Page, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[memoryKey(d)] = memoryEntry{
		resource: strings.Trim(d.Resource, "/"),
		pages:    append([]Page(nil), pages...),
		expires:  time.Now().Add(ttl),
	}
	return nil
}

// Invalidate implements Store.
func (s *MemoryStore) Invalidate(_ context.Context, resource string) error {
	resource = strings.Trim(resource, "/")
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.resource == resource {
			delete(s.entries, k)
		}
	}
	return nil
}
