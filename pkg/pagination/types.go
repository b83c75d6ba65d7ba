package pagination

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DefaultPageSize is the page size used when a descriptor leaves it unset.
const DefaultPageSize = 10

var (
	// ErrNotReady marks a query that cannot run yet: no resource, or no
	// filter mapping. It is recorded on the query but never reported as a
	// query error and never causes a request.
	ErrNotReady = errors.New("query not ready")

	// ErrInvalidDescriptor is returned for descriptors that can never run.
	ErrInvalidDescriptor = errors.New("invalid query descriptor")

	// ErrQueryClosed is returned by Wait on a closed query.
	ErrQueryClosed = errors.New("query closed")

	// ErrInvalidEnvelope is returned when a list response has no item array.
	ErrInvalidEnvelope = errors.New("invalid list envelope")
)

// Filters is the filter mapping of a list query. Values are strings, bools,
// integers or floats. A nil mapping means the caller is not ready; an empty
// non-nil mapping is a valid query without filters.
type Filters map[string]any

// Values renders the filters as query parameters, one value per key.
func (f Filters) Values() url.Values {
	if f == nil {
		return nil
	}
	v := make(url.Values, len(f))
	for k, val := range f {
		v.Set(k, formatValue(val))
	}
	return v
}

// keys returns the filter keys in sorted order.
func (f Filters) keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy; nil stays nil.
func (f Filters) Clone() Filters {
	if f == nil {
		return nil
	}
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// Descriptor is what a list screen asks for: a resource and its filters.
type Descriptor struct {
	// Resource is the list endpoint path (e.g., "/api/contests")
	Resource string

	// Filters are sent after page and limit; nil means not ready
	Filters Filters

	// PageSize is the limit per page (default DefaultPageSize)
	PageSize int
}

// Ready reports whether the descriptor can be fetched. The returned error
// wraps ErrNotReady with the reason.
func (d Descriptor) Ready() error {
	if strings.TrimSpace(d.Resource) == "" {
		return fmt.Errorf("%w: no resource", ErrNotReady)
	}
	if d.Filters == nil {
		return fmt.Errorf("%w: no filter mapping", ErrNotReady)
	}
	return nil
}

// Validate rejects descriptors that can never be fetched.
func (d Descriptor) Validate() error {
	if d.PageSize < 0 {
		return fmt.Errorf("%w: page size must be >= 0 (got %d)", ErrInvalidDescriptor, d.PageSize)
	}
	for k := range d.Filters {
		if k == "" || k == "page" || k == "limit" {
			return fmt.Errorf("%w: reserved or empty filter key %q", ErrInvalidDescriptor, k)
		}
	}
	return nil
}

func (d Descriptor) withDefaults() Descriptor {
	if d.PageSize == 0 {
		d.PageSize = DefaultPageSize
	}
	d.Filters = d.Filters.Clone()
	return d
}

// Identity is the query identity: resource plus sorted filters. Two
// descriptors with the same identity share accumulated results; the page
// number is never part of it.
func (d Descriptor) Identity() string {
	var b strings.Builder
	b.WriteString(d.Resource)
	for i, k := range d.Filters.keys() {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(formatValue(d.Filters[k])))
	}
	return b.String()
}

// Request builds the request for one page of this query.
func (d Descriptor) Request(page int) PageRequest {
	return PageRequest{
		Resource: d.Resource,
		Filters:  d.Filters,
		Page:     page,
		Limit:    d.PageSize,
	}
}

// PageRequest is one page of a query.
type PageRequest struct {
	Resource string
	Filters  Filters
	Page     int
	Limit    int
}

// Query renders "page=N&limit=M" followed by the filters in key order.
func (r PageRequest) Query() string {
	page := r.Page
	if page < 1 {
		page = 1
	}
	limit := r.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}

	var b strings.Builder
	b.WriteString("page=")
	b.WriteString(strconv.Itoa(page))
	b.WriteString("&limit=")
	b.WriteString(strconv.Itoa(limit))
	for _, k := range r.Filters.keys() {
		b.WriteByte('&')
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(formatValue(r.Filters[k])))
	}
	return b.String()
}

// Page is one fetched page of a query.
type Page struct {
	Items      []json.RawMessage `json:"items"`
	Page       int               `json:"page"`
	TotalPages int               `json:"totalPages"`
}

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool {
	return p.Page < p.TotalPages
}
