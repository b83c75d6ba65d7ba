package pagination

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type envelopeMeta struct {
	Page        int `json:"page"`
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	Total       int `json:"total"`
	TotalItems  int `json:"totalItems"`
	Limit       int `json:"limit"`
}

type envelope struct {
	Data       json.RawMessage `json:"data"`
	Pagination *envelopeMeta   `json:"pagination"`
	envelopeMeta
}

// DecodeEnvelope decodes one list response. Accepted shapes:
//
//	{"data": [...], "pagination": {"page": 1, "totalPages": 3}}
//	{"data": [...], "total": 42}
//	[...]
//
// With only a total, the page count is derived from the requested limit and
// the page is the requested one. A bare array is a single, final page.
func DecodeEnvelope(body []byte, req PageRequest) (*Page, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidEnvelope)
	}

	if body[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode list response: %w", err)
		}
		page := max(req.Page, 1)
		return &Page{Items: items, Page: page, TotalPages: page}, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil, fmt.Errorf("%w: missing %q field", ErrInvalidEnvelope, "data")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(env.Data, &items); err != nil {
		return nil, fmt.Errorf("%w: data is not an array: %v", ErrInvalidEnvelope, err)
	}

	meta := env.envelopeMeta
	if env.Pagination != nil {
		meta = *env.Pagination
	}

	page := meta.Page
	if page == 0 {
		page = meta.CurrentPage
	}
	if page == 0 {
		page = max(req.Page, 1)
	}

	total := meta.TotalPages
	if total == 0 {
		count := meta.Total
		if count == 0 {
			count = meta.TotalItems
		}
		limit := meta.Limit
		if limit <= 0 {
			limit = req.Limit
		}
		if limit <= 0 {
			limit = DefaultPageSize
		}
		total = (count + limit - 1) / limit
	}
	// An envelope without any count is a single page.
	if total == 0 && meta.Total == 0 && meta.TotalItems == 0 && len(items) > 0 {
		total = page
	}

	return &Page{Items: items, Page: page, TotalPages: total}, nil
}

// Decode unmarshals every item of pages, in page order, into T.
func Decode[T any](pages []Page) ([]T, error) {
	n := 0
	for _, p := range pages {
		n += len(p.Items)
	}
	out := make([]T, 0, n)
	for _, p := range pages {
		for i, raw := range p.Items {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode page %d item %d: %w", p.Page, i, err)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// Records concatenates the items of pages in page order.
func Records(pages []Page) []json.RawMessage {
	var out []json.RawMessage
	for _, p := range pages {
		out = append(out, p.Items...)
	}
	return out
}
