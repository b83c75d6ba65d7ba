package pagination

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Sternrassler/contesthub-client/pkg/client"
)

// maxPageBody bounds a single page response.
const maxPageBody = 8 << 20

// PageFetcher fetches one page of a list query.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// FetcherFunc adapts a function to PageFetcher.
type FetcherFunc func(ctx context.Context, req PageRequest) (*Page, error)

// FetchPage implements PageFetcher.
func (f FetcherFunc) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	return f(ctx, req)
}

// HTTPFetcher fetches pages from the backend through the shared client. Each
// call is a single attempt; retries belong to the coordinator.
type HTTPFetcher struct {
	client *client.Client
}

// NewHTTPFetcher creates a fetcher over c.
func NewHTTPFetcher(c *client.Client) *HTTPFetcher {
	return &HTTPFetcher{client: c}
}

// FetchPage implements PageFetcher.
func (f *HTTPFetcher) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	httpReq, err := f.client.NewRequest(ctx, http.MethodGet, req.Resource, nil, nil)
	if err != nil {
		return nil, err
	}
	httpReq.URL.RawQuery = req.Query()

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Do already turned 4xx and 5xx into errors; anything else outside 2xx
	// will not change on retry.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &client.APIError{
			Method:     http.MethodGet,
			Path:       req.Resource,
			StatusCode: resp.StatusCode,
			ErrorClass: client.ErrorClassClient,
			Message:    "unexpected status " + resp.Status,
		}
	}
	if resp.StatusCode == http.StatusNoContent {
		page := max(req.Page, 1)
		return &Page{Page: page, TotalPages: page}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return nil, fmt.Errorf("read page %d of %s: %w", req.Page, req.Resource, err)
	}

	page, err := DecodeEnvelope(body, req)
	if err != nil {
		return nil, fmt.Errorf("page %d of %s: %w", req.Page, req.Resource, err)
	}
	return page, nil
}
