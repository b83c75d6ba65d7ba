package pagination

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/contesthub-client/pkg/client"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int

	// Timeout per page fetch
	Timeout time.Duration

	// Retry applies to every page
	Retry client.RetryConfig
}

// DefaultBatchConfig returns a configuration that stays well inside the
// backend's request budget.
func DefaultBatchConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		Retry:          client.FixedRetryConfig(DefaultRetries, DefaultRetryDelay),
	}
}

// BatchFetcher fetches every page of a query, in parallel after the first.
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	def := DefaultBatchConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Retry.MaxAttempts < 1 {
		config.Retry = def.Retry
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches page 1 of req to learn the page count, then the remaining
// pages concurrently. Pages are returned in page order. The first failing
// page cancels the rest and fails the whole export.
func (bf *BatchFetcher) FetchAll(ctx context.Context, req PageRequest) ([]Page, error) {
	start := time.Now()
	req.Page = 1
	if req.Limit <= 0 {
		req.Limit = DefaultPageSize
	}

	first, err := bf.fetchOne(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	totalPages := max(first.TotalPages, 1)
	log.Info().
		Str("resource", req.Resource).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	pages := make([]Page, totalPages)
	pages[0] = *first
	if totalPages == 1 {
		log.Info().
			Str("resource", req.Resource).
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return pages, nil
	}

	var fetched atomic.Int32
	fetched.Store(1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)
	for page := 2; page <= totalPages; page++ {
		pageReq := req
		pageReq.Page = page
		g.Go(func() error {
			p, err := bf.fetchOne(gctx, pageReq)
			if err != nil {
				return fmt.Errorf("page %d: %w", pageReq.Page, err)
			}
			p.Page = pageReq.Page
			pages[pageReq.Page-1] = *p

			if n := fetched.Add(1); n%50 == 0 {
				log.Info().
					Int32("fetched", n).
					Int("total", totalPages).
					Float64("progress_pct", float64(n)/float64(totalPages)*100).
					Msg("Fetch progress")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn().
			Err(err).
			Int32("fetched_pages", fetched.Load()).
			Int("total_pages", totalPages).
			Msg("Batch fetch failed")
		return nil, err
	}

	log.Info().
		Str("resource", req.Resource).
		Int("pages", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return pages, nil
}

func (bf *BatchFetcher) fetchOne(ctx context.Context, req PageRequest) (*Page, error) {
	var page *Page
	err := client.Retry(ctx, bf.config.Retry, func(int) error {
		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		defer cancel()

		p, err := bf.fetcher.FetchPage(pageCtx, req)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: fetcher returned no page", ErrInvalidEnvelope)
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	batchPagesFetched.Inc()
	return page, nil
}
