package cache

import (
	"time"
)

// CacheEntry is one cached query payload.
type CacheEntry struct {
	// Data is the encoded payload (the accumulated pages of a query)
	Data []byte `json:"data"`

	// CachedAt is when the payload was stored
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the payload stops being fresh
	Expires time.Time `json:"expires"`
}

// NewEntry builds an entry that stays fresh for ttl.
func NewEntry(data []byte, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:     data,
		CachedAt: now,
		Expires:  now.Add(ttl),
	}
}

// IsExpired returns true if the entry is no longer fresh.
func (e *CacheEntry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the time until expiration, or 0.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the entry was stored.
func (e *CacheEntry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
