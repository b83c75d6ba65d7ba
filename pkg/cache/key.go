package cache

import (
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix starts every query cache key.
const KeyPrefix = "contesthub:query"

// CacheKey identifies one cached list query. The page number is deliberately
// not part of it: all pages of a query live under one key.
type CacheKey struct {
	// Resource is the list endpoint path (e.g., "/api/contests")
	Resource string

	// Filters are the query's filter values (e.g., {"type": ["Design"]})
	Filters url.Values

	// Scope separates users sharing one cache (empty for public lists)
	Scope string
}

// String generates a deterministic key.
// Format: contesthub:query:resource:k1=v1:k2=v2:scope=s
//
// Example:
//
//	contesthub:query:api/contests:status=all:type=Design
func (k CacheKey) String() string {
	parts := []string{resourcePrefix(k.Resource)}

	if len(k.Filters) > 0 {
		keys := make([]string, 0, len(k.Filters))
		for key := range k.Filters {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(k.Filters.Get(key)))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+url.QueryEscape(k.Scope))
	}

	return strings.Join(parts, ":")
}

func resourcePrefix(resource string) string {
	resource = strings.Trim(resource, "/")
	if resource == "" {
		return KeyPrefix
	}
	return KeyPrefix + ":" + resource
}

// escapeGlob escapes Redis SCAN pattern metacharacters.
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
