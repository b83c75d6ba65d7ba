package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Status is the overall state of a query.
type Status string

const (
	// StatusIdle is a query that is not ready and will not fetch.
	StatusIdle Status = "idle"

	// StatusPending is a query whose first page has not arrived yet.
	StatusPending Status = "pending"

	// StatusError is a query whose last fetch failed after its retries.
	StatusError Status = "error"

	// StatusSuccess is a query with at least one page loaded.
	StatusSuccess Status = "success"
)

// Event is an environment signal delivered to a query.
type Event int

const (
	// EventReconnect is sent when connectivity returns; it triggers a refetch.
	EventReconnect Event = iota

	// EventFocus is sent when the view regains focus; it is ignored.
	EventFocus
)

func (e Event) String() string {
	switch e {
	case EventReconnect:
		return "reconnect"
	case EventFocus:
		return "focus"
	default:
		return "unknown"
	}
}

type fetchKind int

const (
	fetchInitial fetchKind = iota
	fetchNext
	fetchRefetch
)

func (k fetchKind) String() string {
	switch k {
	case fetchInitial:
		return "initial"
	case fetchNext:
		return "next"
	default:
		return "refetch"
	}
}

// Snapshot is a consistent view of a query.
type Snapshot struct {
	Status             Status
	Pages              []Page
	HasNextPage        bool
	IsFetching         bool
	IsFetchingNextPage bool

	// Err is the failure behind StatusError
	Err error

	// NotReady wraps ErrNotReady while the query is idle
	NotReady error

	// UpdatedAt is when pages were last replaced or extended
	UpdatedAt time.Time

	// Seq grows with every state change of the query. Observers may be
	// called concurrently; a snapshot with a lower Seq than one already seen
	// is outdated.
	Seq uint64
}

// Records returns every item of every page in order.
func (s Snapshot) Records() []json.RawMessage {
	return Records(s.Pages)
}

// Query is one open list query. Its accumulated pages belong to it alone and
// are discarded with it.
type Query struct {
	coord    *Coordinator
	desc     Descriptor
	identity string
	observer func(Snapshot)

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	status       Status
	pages        []Page
	err          error
	notReady     error
	fetching     bool
	fetchingNext bool
	closed       bool
	done         chan struct{}
	updatedAt    time.Time
	seq          uint64
}

// Descriptor returns the query's descriptor, defaults applied.
func (q *Query) Descriptor() Descriptor {
	return q.desc
}

// Identity returns the query identity.
func (q *Query) Identity() string {
	return q.identity
}

// Snapshot returns the current state.
func (q *Query) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Query) snapshotLocked() Snapshot {
	s := Snapshot{
		Status:             q.status,
		Pages:              append([]Page(nil), q.pages...),
		IsFetching:         q.fetching,
		IsFetchingNextPage: q.fetchingNext,
		Err:                q.err,
		NotReady:           q.notReady,
		UpdatedAt:          q.updatedAt,
		Seq:                q.seq,
	}
	if n := len(q.pages); n > 0 {
		s.HasNextPage = q.pages[n-1].HasNext()
	}
	return s
}

// FetchNextPage requests the page after the last loaded one. It is a no-op
// returning false when there is no next page, a fetch is in flight, the
// query has failed or the query is closed.
func (q *Query) FetchNextPage() bool {
	return q.begin(fetchNext)
}

// Refetch re-requests the query: page 1 when nothing is loaded, otherwise
// every loaded page in order, replacing them. It returns false when the query
// is idle, closed or already fetching.
func (q *Query) Refetch() bool {
	return q.begin(fetchRefetch)
}

// Notify delivers an environment event.
func (q *Query) Notify(e Event) {
	switch e {
	case EventReconnect:
		if q.Refetch() {
			q.coord.logger.Debug().Str("identity", q.identity).Msg("Refetching after reconnect")
		}
	default:
		q.coord.logger.Debug().Str("identity", q.identity).Stringer("event", e).Msg("Ignoring event")
	}
}

// Wait blocks until no fetch is in flight and returns the resulting state.
func (q *Query) Wait(ctx context.Context) (Snapshot, error) {
	for {
		q.mu.Lock()
		if q.closed {
			s := q.snapshotLocked()
			q.mu.Unlock()
			return s, ErrQueryClosed
		}
		if !q.fetching {
			s := q.snapshotLocked()
			q.mu.Unlock()
			return s, nil
		}
		done := q.done
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return q.Snapshot(), ctx.Err()
		case <-done:
		}
	}
}

// Close discards the query. An in-flight fetch is cancelled and its result,
// should it still arrive, is dropped. No observer is called after Close.
func (q *Query) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	inFlight := q.fetching
	q.mu.Unlock()

	q.cancel()
	if inFlight {
		queriesSuperseded.Inc()
		q.coord.logger.Debug().Str("identity", q.identity).Msg("Closed query with fetch in flight")
	}
}

// Closed reports whether Close has been called.
func (q *Query) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Query) begin(kind fetchKind) bool {
	q.mu.Lock()
	if q.closed || q.fetching || q.notReady != nil || errors.Is(q.err, ErrInvalidDescriptor) {
		q.mu.Unlock()
		return false
	}

	next := 1
	count := len(q.pages)
	switch kind {
	case fetchNext:
		if q.status != StatusSuccess || count == 0 || !q.pages[count-1].HasNext() {
			q.mu.Unlock()
			return false
		}
		next = q.pages[count-1].Page + 1
	case fetchRefetch:
		q.err = nil
		if count == 0 {
			q.status = StatusPending
		} else {
			q.status = StatusSuccess
		}
	case fetchInitial:
		q.status = StatusPending
	}

	q.fetching = true
	q.fetchingNext = kind == fetchNext
	q.seq++
	done := make(chan struct{})
	q.done = done
	s := q.snapshotLocked()
	q.mu.Unlock()

	q.coord.logger.Debug().
		Str("identity", q.identity).
		Stringer("kind", kind).
		Int("page", next).
		Msg("Starting page fetch")

	q.notify(s)
	go q.run(kind, next, count, done)
	return true
}

func (q *Query) run(kind fetchKind, next, count int, done chan struct{}) {
	defer close(done)

	var (
		pages     []Page
		err       error
		fromStore bool
	)

	switch kind {
	case fetchInitial:
		pages, fromStore = q.loadStored()
		if !fromStore {
			var p *Page
			p, err = q.coord.fetchPage(q.ctx, q.desc, 1)
			if err == nil {
				pages = []Page{*p}
			}
		}
	case fetchNext:
		var p *Page
		p, err = q.coord.fetchPage(q.ctx, q.desc, next)
		if err == nil {
			pages = []Page{*p}
		}
	case fetchRefetch:
		count = max(count, 1)
		for page := 1; page <= count; page++ {
			var p *Page
			p, err = q.coord.fetchPage(q.ctx, q.desc, page)
			if err != nil {
				break
			}
			pages = append(pages, *p)
			if !p.HasNext() {
				break
			}
		}
	}

	q.finish(kind, pages, err, fromStore)
}

func (q *Query) loadStored() ([]Page, bool) {
	store := q.coord.opts.Store
	if store == nil {
		return nil, false
	}
	pages, found, err := store.Load(q.ctx, q.desc)
	if err != nil {
		q.coord.logger.Warn().Err(err).Str("identity", q.identity).Msg("Failed to load stored pages")
		return nil, false
	}
	if !found || len(pages) == 0 {
		q.coord.logger.Debug().Str("identity", q.identity).Msg("No fresh stored pages")
		return nil, false
	}
	q.coord.logger.Debug().Str("identity", q.identity).Int("pages", len(pages)).Msg("Restored stored pages")
	return pages, true
}

func (q *Query) finish(kind fetchKind, pages []Page, err error, fromStore bool) {
	q.mu.Lock()
	q.fetching = false
	q.fetchingNext = false
	q.seq++
	if q.closed {
		q.mu.Unlock()
		return
	}

	if err != nil {
		q.status = StatusError
		q.err = err
		s := q.snapshotLocked()
		q.mu.Unlock()

		queryErrors.WithLabelValues(q.desc.Resource).Inc()
		q.coord.logger.Error().
			Err(err).
			Str("identity", q.identity).
			Stringer("kind", kind).
			Msg("List query failed")
		q.notify(s)
		return
	}

	if kind == fetchNext {
		q.pages = append(q.pages, pages...)
	} else {
		q.pages = pages
	}
	q.status = StatusSuccess
	q.err = nil
	q.updatedAt = time.Now()
	s := q.snapshotLocked()
	q.mu.Unlock()

	q.coord.logger.Info().
		Str("identity", q.identity).
		Stringer("kind", kind).
		Int("pages", len(s.Pages)).
		Bool("has_next_page", s.HasNextPage).
		Bool("from_store", fromStore).
		Msg("List query updated")

	if !fromStore {
		q.save(s.Pages)
	}
	q.notify(s)
}

func (q *Query) save(pages []Page) {
	store := q.coord.opts.Store
	if store == nil {
		return
	}
	if err := store.Save(q.ctx, q.desc, pages, q.coord.opts.StaleTime); err != nil {
		q.coord.logger.Warn().Err(err).Str("identity", q.identity).Msg("Failed to store pages")
	}
}

func (q *Query) notify(s Snapshot) {
	if q.Closed() {
		return
	}
	if q.observer != nil {
		q.observer(s)
	}
	if q.coord.opts.OnUpdate != nil {
		q.coord.opts.OnUpdate(q, s)
	}
}
