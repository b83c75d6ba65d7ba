package pagination

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/contesthub-client/pkg/client"
	"github.com/Sternrassler/contesthub-client/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Default coordinator settings, matching the list screens.
const (
	DefaultStaleTime  = 5 * time.Minute
	DefaultRetries    = 2
	DefaultRetryDelay = 1 * time.Second
)

// Options configures a Coordinator.
type Options struct {
	// PageSize applies to descriptors that leave it unset
	PageSize int

	// StaleTime is how long saved pages are reused by new queries
	StaleTime time.Duration

	// Retry applies to every page fetch
	Retry client.RetryConfig

	// Store keeps accumulated pages between queries. DefaultOptions sets an
	// in-process MemoryStore; nil disables reuse.
	Store Store

	// OnUpdate is called after every state change of every query
	OnUpdate func(q *Query, s Snapshot)

	// Logger defaults to the "pagination" component logger
	Logger *zerolog.Logger
}

// DefaultOptions returns the list screen defaults: page size 10, five
// minute freshness, two retries one second apart and a fresh MemoryStore,
// so reopening the same query within the stale time restores its pages.
func DefaultOptions() Options {
	return Options{
		PageSize:  DefaultPageSize,
		StaleTime: DefaultStaleTime,
		Retry:     client.FixedRetryConfig(DefaultRetries, DefaultRetryDelay),
		Store:     NewMemoryStore(),
	}
}

// Coordinator opens list queries and runs their page fetches. Page fetches
// with the same identity, page size and page number share one request.
type Coordinator struct {
	fetcher PageFetcher
	opts    Options
	logger  zerolog.Logger
	group   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator creates a coordinator. Zero option fields take the
// defaults of DefaultOptions, except Store: a nil Store is kept and turns
// page reuse off.
func NewCoordinator(fetcher PageFetcher, opts Options) *Coordinator {
	def := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = def.StaleTime
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = def.Retry
	}

	logger := logging.NewLogger("pagination")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// QueryOption customizes a single query.
type QueryOption func(*Query)

// WithObserver registers fn to receive every snapshot of the query.
func WithObserver(fn func(Snapshot)) QueryOption {
	return func(q *Query) { q.observer = fn }
}

// Open starts a query for d. Page 1 is requested immediately in the
// background unless fresh pages for the same identity are stored, in which
// case they are restored without a request. A descriptor that is not ready
// yields an idle query that never fetches.
func (c *Coordinator) Open(d Descriptor, opts ...QueryOption) *Query {
	if d.PageSize == 0 {
		d.PageSize = c.opts.PageSize
	}
	d = d.withDefaults()

	ctx, cancel := context.WithCancel(c.ctx)
	q := &Query{
		coord:    c,
		desc:     d,
		identity: d.Identity(),
		ctx:      ctx,
		cancel:   cancel,
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := d.Validate(); err != nil {
		q.status = StatusError
		q.err = err
		c.logger.Error().Err(err).Str("resource", d.Resource).Msg("Rejected list query")
		return q
	}
	if err := d.Ready(); err != nil {
		q.notReady = err
		c.logger.Debug().Err(err).Str("resource", d.Resource).Msg("List query not ready")
		return q
	}

	queriesOpened.WithLabelValues(d.Resource).Inc()
	c.logger.Info().
		Str("resource", d.Resource).
		Str("identity", q.identity).
		Int("page_size", d.PageSize).
		Msg("Opened list query")

	q.begin(fetchInitial)
	return q
}

// Invalidate drops stored pages of resource so the next query refetches.
func (c *Coordinator) Invalidate(ctx context.Context, resource string) error {
	if c.opts.Store == nil {
		return nil
	}
	return c.opts.Store.Invalidate(ctx, resource)
}

// Close cancels every query opened by this coordinator.
func (c *Coordinator) Close() {
	c.cancel()
}

func (c *Coordinator) flightKey(d Descriptor, page int) string {
	return d.Identity() + "#" + strconv.Itoa(d.PageSize) + "#" + strconv.Itoa(page)
}

// fetchPage runs one page fetch with retries, shared with any concurrent
// fetch of the same page. ctx belongs to the query that starts the shared
// fetch; a waiter whose leader was cancelled starts over on its own.
func (c *Coordinator) fetchPage(ctx context.Context, d Descriptor, page int) (*Page, error) {
	req := d.Request(page)
	key := c.flightKey(d, page)

	for {
		ch := c.group.DoChan(key, func() (any, error) {
			var p *Page
			err := client.Retry(ctx, c.opts.Retry, func(attempt int) error {
				var err error
				p, err = c.fetcher.FetchPage(ctx, req)
				if err == nil && p == nil {
					err = fmt.Errorf("%w: fetcher returned no page", ErrInvalidEnvelope)
				}
				if err != nil {
					c.logger.Warn().
						Err(err).
						Str("resource", d.Resource).
						Int("page", page).
						Int("attempt", attempt).
						Msg("Page fetch failed")
				}
				return err
			})
			if err == nil {
				pagesFetched.WithLabelValues(d.Resource).Inc()
			}
			return p, err
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				if res.Shared && ctx.Err() == nil && client.Classify(res.Err) == client.ErrorClassCancelled {
					continue
				}
				return nil, res.Err
			}

			p := *res.Val.(*Page)
			if p.Page != page {
				c.logger.Warn().
					Str("resource", d.Resource).
					Int("requested", page).
					Int("returned", p.Page).
					Msg("Backend returned a different page number")
				p.Page = page
			}
			return &p, nil
		}
	}
}
