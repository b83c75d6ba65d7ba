package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/contesthub-client/pkg/cache"
	"github.com/Sternrassler/contesthub-client/pkg/client"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

var errUnavailable = &client.APIError{StatusCode: 503, ErrorClass: client.ErrorClassServer, Message: "unavailable"}

// fakeFetcher serves `total` items as {"id": n} records.
type fakeFetcher struct {
	mu       sync.Mutex
	total    int
	calls    []PageRequest
	failures map[int][]error
	gates    map[int]chan struct{}
	ctxErrs  int
}

func newFakeFetcher(total int) *fakeFetcher {
	return &fakeFetcher{
		total:    total,
		failures: make(map[int][]error),
		gates:    make(map[int]chan struct{}),
	}
}

// failPage queues errors for the next fetches of page.
func (f *fakeFetcher) failPage(page int, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[page] = append(f.failures[page], errs...)
}

// gatePage blocks the next fetch of page until the returned func is called.
func (f *fakeFetcher) gatePage(page int) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[page] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeFetcher) setTotal(total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total = total
}

func (f *fakeFetcher) pagesRequested() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages := make([]int, len(f.calls))
	for i, c := range f.calls {
		pages[i] = c.Page
	}
	return pages
}

func (f *fakeFetcher) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	var err error
	if queued := f.failures[req.Page]; len(queued) > 0 {
		err = queued[0]
		f.failures[req.Page] = queued[1:]
	}
	gate := f.gates[req.Page]
	delete(f.gates, req.Page)
	total := f.total
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			f.mu.Lock()
			f.ctxErrs++
			f.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	totalPages := (total + req.Limit - 1) / req.Limit
	start := (req.Page - 1) * req.Limit
	end := min(start+req.Limit, total)
	var items []json.RawMessage
	for i := start; i < end; i++ {
		items = append(items, json.RawMessage(fmt.Sprintf(`{"id":%d}`, i+1)))
	}
	return &Page{Items: items, Page: req.Page, TotalPages: totalPages}, nil
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s.Status)
}

func (r *statusRecorder) seen(status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (r *statusRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func newTestCoordinator(t *testing.T, f PageFetcher, mutate func(*Options)) *Coordinator {
	t.Helper()
	logger := zerolog.Nop()
	opts := DefaultOptions()
	opts.Retry = client.FixedRetryConfig(2, 5*time.Millisecond)
	opts.Logger = &logger
	opts.Store = nil
	if mutate != nil {
		mutate(&opts)
	}
	c := NewCoordinator(f, opts)
	t.Cleanup(c.Close)
	return c
}

func contestsQuery(filters Filters) Descriptor {
	return Descriptor{Resource: "/api/contests", Filters: filters}
}

var defaultFilters = Filters{"search": "", "status": "all", "type": "all"}

func waitSnapshot(t *testing.T, q *Query) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := q.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	return s
}

func TestOpen_PagesThroughAllPages(t *testing.T) {
	f := newFakeFetcher(25)
	c := newTestCoordinator(t, f, nil)

	q := c.Open(contestsQuery(defaultFilters))
	defer q.Close()

	s := waitSnapshot(t, q)
	if s.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success (err: %v)", s.Status, s.Err)
	}
	if len(s.Pages) != 1 || !s.HasNextPage {
		t.Fatalf("after page 1: pages=%d hasNext=%v", len(s.Pages), s.HasNextPage)
	}

	for i := 2; i <= 3; i++ {
		if !q.FetchNextPage() {
			t.Fatalf("FetchNextPage() for page %d returned false", i)
		}
		s = waitSnapshot(t, q)
	}

	if len(s.Pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(s.Pages))
	}
	for i, p := range s.Pages {
		if p.Page != i+1 {
			t.Errorf("pages[%d].Page = %d, want %d", i, p.Page, i+1)
		}
	}
	if s.HasNextPage {
		t.Error("HasNextPage should be false after the last page")
	}
	if len(s.Records()) != 25 {
		t.Errorf("records = %d, want 25", len(s.Records()))
	}
	if q.FetchNextPage() {
		t.Error("FetchNextPage() past the last page should be a no-op")
	}

	if got := f.pagesRequested(); fmt.Sprint(got) != "[1 2 3]" {
		t.Errorf("pages requested = %v, want [1 2 3]", got)
	}
}

func TestOpen_SendsFiltersAndLimit(t *testing.T) {
	f := newFakeFetcher(5)
	c := newTestCoordinator(t, f, nil)

	q := c.Open(Descriptor{Resource: "/api/contests", Filters: Filters{"type": "Design"}, PageSize: 20})
	defer q.Close()
	waitSnapshot(t, q)

	f.mu.Lock()
	req := f.calls[0]
	f.mu.Unlock()
	if req.Limit != 20 || req.Page != 1 || req.Filters["type"] != "Design" {
		t.Errorf("request = %+v", req)
	}
	if got := req.Query(); got != "page=1&limit=20&type=Design" {
		t.Errorf("Query() = %q", got)
	}
}

func TestFetchNextPage_NoConcurrentDuplicate(t *testing.T) {
	f := newFakeFetcher(30)
	c := newTestCoordinator(t, f, nil)

	q := c.Open(contestsQuery(defaultFilters))
	defer q.Close()
	waitSnapshot(t, q)

	release := f.gatePage(2)
	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.FetchNextPage() {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	s := q.Snapshot()
	if !s.IsFetchingNextPage || !s.IsFetching {
		t.Error("IsFetchingNextPage should be true while page 2 is in flight")
	}

	release()
	s = waitSnapshot(t, q)

	if started.Load() != 1 {
		t.Errorf("FetchNextPage started %d fetches, want 1", started.Load())
	}
	if len(s.Pages) != 2 {
		t.Errorf("pages = %d, want 2", len(s.Pages))
	}
	if got := f.pagesRequested(); fmt.Sprint(got) != "[1 2]" {
		t.Errorf("pages requested = %v, want [1 2]", got)
	}
}

func TestRetry_RecoversWithoutErrorState(t *testing.T) {
	f := newFakeFetcher(5)
	f.failPage(1, errUnavailable, errUnavailable)
	rec := &statusRecorder{}
	c := newTestCoordinator(t, f, nil)

	q := c.Open(contestsQuery(defaultFilters), WithObserver(rec.observe))
	defer q.Close()
	s := waitSnapshot(t, q)

	if s.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success (err: %v)", s.Status, s.Err)
	}
	if rec.seen(StatusError) {
		t.Error("observer saw an error state during retries")
	}
	if got := len(f.pagesRequested()); got != 3 {
		t.Errorf("fetch attempts = %d, want 3", got)
	}
}

func TestRetry_ExhaustedThenManualRefetch(t *testing.T) {
	f := newFakeFetcher(5)
	f.failPage(1, errUnavailable, errUnavailable, errUnavailable)
	c := newTestCoordinator(t, f, nil)

	q := c.Open(contestsQuery(defaultFilters))
	defer q.Close()
	s := waitSnapshot(t, q)

	if s.Status != StatusError {
		t.Fatalf("Status = %q, want error", s.Status)
	}
	if !errors.Is(s.Err, client.ErrRetryExhausted) {
		t.Errorf("Err = %v, want ErrRetryExhausted", s.Err)
	}
	if q.FetchNextPage() {
		t.Error("FetchNextPage() should be a no-op on an errored query")
	}

	if !q.Refetch() {
		t.Fatal("Refetch() should start a fetch from the error state")
	}
	s = waitSnapshot(t, q)
	if s.Status != StatusSuccess || s.Err != nil {
		t.Errorf("after refetch: status=%q err=%v", s.Status, s.Err)
	}
	if got := len(f.pagesRequested()); got != 4 {
		t.Errorf("fetch attempts = %d, want 4", got)
	}
}

func TestRetry_ClientErrorNotRetried(t *testing.T) {
	f := newFakeFetcher(5)
	f.failPage(1, &client.APIError{StatusCode: 404, ErrorClass: client.ErrorClassClient})
	c := newTestCoordinator(t, f, nil)

	q := c.Open(contestsQuery(defaultFilters))
	defer q.Close()
	s := waitSnapshot(t, q)

	if s.Status != StatusError {
		t.Fatalf("Status = %q, want error", s.Status)
	}
	if client.StatusCode(s.Err) != 404 {
		t.Errorf("StatusCode = %d, want 404", client.StatusCode(s.Err))
	}
	if got := len(f.pagesRequested()); got != 1 {
		t.Errorf("fetch attempts = %d, want 1", got)
	}
}

func TestOpen_NotReady(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
	}{
		{"nil filters", Descriptor{Resource: "/api/contests"}},
		{"no resource", Descriptor{Filters: Filters{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher(5)
			c := newTestCoordinator(t, f, nil)

			q := c.Open(tt.desc)
			defer q.Close()
			s := waitSnapshot(t, q)

			if s.Status != StatusIdle {
				t.Errorf("Status = %q, want idle", s.Status)
			}
			if s.Err != nil {
				t.Errorf("Err = %v, want nil", s.Err)
			}
			if !errors.Is(s.NotReady, ErrNotReady) {
				t.Errorf("NotReady = %v, want ErrNotReady", s.NotReady)
			}
			if q.FetchNextPage() || q.Refetch() {
				t.Error("a not-ready query must never fetch")
			}
			if got := len(f.pagesRequested()); got != 0 {
				t.Errorf("requests = %d, want 0", got)
			}
		})
	}
}

func TestOpen_EmptyFiltersAreReady(t *testing.T) {
	f := newFakeFetcher(3)
	c := newTestCoordinator(t, f, nil)

	q := c.Open(contestsQuery(Filters{}))
	defer q.Close()

	if s := waitSnapshot(t, q); s.Status != StatusSuccess {
		t.Errorf("Status = %q, want success", s.Status)
	}
}

func TestOpen_InvalidDescriptor(t *testing.T) {
	f := newFakeFetcher(3)
	c := newTestCoordinator(t, f, nil)

	for _, d := range []Descriptor{
		{Resource: "/api/contests", Filters: Filters{}, PageSize: -1},
		{Resource: "/api/contests", Filters: Filters{"page": 2}},
	} {
		q := c.Open(d)
		s := q.Snapshot()
		if s.Status != StatusError || !errors.Is(s.Err, ErrInvalidDescriptor) {
			t.Errorf("%+v: status=%q err=%v", d, s.Status, s.Err)
		}
		if q.Refetch() {
			t.Error("Refetch() should not run an invalid descriptor")
		}
		q.Close()
	}
	if got := len(f.pagesRequested()); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}

func TestClose_DiscardsLateResult(t *testing.T) {
	f := newFakeFetcher(5)
	release := f.gatePage(1)
	rec := &statusRecorder{}
	c := newTestCoordinator(t, f, nil)

	q := c.Open(contestsQuery(defaultFilters), WithObserver(rec.observe))
	before := rec.count()
	q.Close()
	release()

	if _, err := q.Wait(context.Background()); !errors.Is(err, ErrQueryClosed) {
		t.Errorf("Wait() error = %v, want ErrQueryClosed", err)
	}

	time.Sleep(30 * time.Millisecond)
	if rec.count() != before {
		t.Errorf("observer called %d times after Close", rec.count()-before)
	}
	if len(q.Snapshot().Pages) != 0 {
		t.Error("closed query must not accept pages")
	}
	if q.FetchNextPage() || q.Refetch() {
		t.Error("closed query must not fetch")
	}
}

func TestClose_CancelsInFlightFetch(t *testing.T) {
	f := newFakeFetcher(5)
	f.gatePage(1)
	c := newTestCoordinator(t, f, nil)

	q := c.Open(contestsQuery(defaultFilters))
	time.Sleep(10 * time.Millisecond)
	q.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		n := f.ctxErrs
		f.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("in-flight fetch was not cancelled")
}

func TestSupersededQueryDoesNotAffectNewQuery(t *testing.T) {
	f := newFakeFetcher(25)
	c := newTestCoordinator(t, f, nil)

	old := c.Open(contestsQuery(defaultFilters))
	waitSnapshot(t, old)
	release := f.gatePage(2)
	old.FetchNextPage()

	fresh := c.Open(contestsQuery(Filters{"search": "logo", "status": "all", "type": "all"}))
	old.Close()
	release()
	defer fresh.Close()

	s := waitSnapshot(t, fresh)
	if len(s.Pages) != 1 || s.Pages[0].Page != 1 {
		t.Errorf("fresh query pages = %+v", s.Pages)
	}
	if len(old.Snapshot().Pages) != 1 {
		t.Errorf("superseded query accepted a late page")
	}
}

func TestRefetch_ReplacesLoadedPages(t *testing.T) {
	f := newFakeFetcher(25)
	c := newTestCoordinator(t, f, nil)

	q := c.Open(contestsQuery(defaultFilters))
	defer q.Close()
	waitSnapshot(t, q)
	q.FetchNextPage()
	waitSnapshot(t, q)

	f.setTotal(12)
	if !q.Refetch() {
		t.Fatal("Refetch() returned false")
	}
	s := waitSnapshot(t, q)

	if len(s.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(s.Pages))
	}
	if len(s.Records()) != 12 {
		t.Errorf("records = %d, want 12", len(s.Records()))
	}
	if s.HasNextPage {
		t.Error("HasNextPage should reflect the refetched total")
	}
	if got := f.pagesRequested(); fmt.Sprint(got) != "[1 2 1 2]" {
		t.Errorf("pages requested = %v, want [1 2 1 2]", got)
	}
}

func TestNotify(t *testing.T) {
	f := newFakeFetcher(5)
	c := newTestCoordinator(t, f, nil)

	q := c.Open(contestsQuery(defaultFilters))
	defer q.Close()
	waitSnapshot(t, q)

	q.Notify(EventFocus)
	waitSnapshot(t, q)
	if got := len(f.pagesRequested()); got != 1 {
		t.Errorf("focus triggered a fetch: requests = %d", got)
	}

	q.Notify(EventReconnect)
	waitSnapshot(t, q)
	if got := len(f.pagesRequested()); got != 2 {
		t.Errorf("reconnect should refetch: requests = %d, want 2", got)
	}
}

func TestSharedFetch_SameIdentity(t *testing.T) {
	f := newFakeFetcher(5)
	release := f.gatePage(1)
	c := newTestCoordinator(t, f, nil)

	q1 := c.Open(contestsQuery(defaultFilters))
	defer q1.Close()
	time.Sleep(10 * time.Millisecond)
	q2 := c.Open(contestsQuery(Filters{"type": "all", "status": "all", "search": ""}))
	defer q2.Close()
	time.Sleep(10 * time.Millisecond)
	release()

	s1 := waitSnapshot(t, q1)
	s2 := waitSnapshot(t, q2)
	if s1.Status != StatusSuccess || s2.Status != StatusSuccess {
		t.Fatalf("statuses = %q, %q", s1.Status, s2.Status)
	}
	if got := len(f.pagesRequested()); got != 1 {
		t.Errorf("requests = %d, want 1 shared request", got)
	}
}

func TestSharedFetch_LeaderClosed(t *testing.T) {
	f := newFakeFetcher(5)
	f.gatePage(1)
	c := newTestCoordinator(t, f, nil)

	leader := c.Open(contestsQuery(defaultFilters))
	time.Sleep(10 * time.Millisecond)
	follower := c.Open(contestsQuery(defaultFilters))
	defer follower.Close()
	time.Sleep(10 * time.Millisecond)

	leader.Close()

	s := waitSnapshot(t, follower)
	if s.Status != StatusSuccess {
		t.Fatalf("follower status = %q (err: %v)", s.Status, s.Err)
	}
	if got := len(f.pagesRequested()); got != 2 {
		t.Errorf("requests = %d, want 2 (cancelled leader plus follower)", got)
	}
}

func TestMemoryStore_RestoresFreshPages(t *testing.T) {
	f := newFakeFetcher(25)
	store := NewMemoryStore()
	c := newTestCoordinator(t, f, func(o *Options) { o.Store = store })

	q1 := c.Open(contestsQuery(defaultFilters))
	waitSnapshot(t, q1)
	q1.FetchNextPage()
	waitSnapshot(t, q1)
	q1.Close()

	q2 := c.Open(contestsQuery(defaultFilters))
	defer q2.Close()
	s := waitSnapshot(t, q2)

	if s.Status != StatusSuccess || len(s.Pages) != 2 {
		t.Fatalf("restored: status=%q pages=%d", s.Status, len(s.Pages))
	}
	if got := len(f.pagesRequested()); got != 2 {
		t.Errorf("requests = %d, want 2 (no refetch on restore)", got)
	}

	q3 := c.Open(contestsQuery(Filters{"search": "x", "status": "all", "type": "all"}))
	defer q3.Close()
	waitSnapshot(t, q3)
	if got := len(f.pagesRequested()); got != 3 {
		t.Errorf("requests = %d, want 3 (different identity fetches)", got)
	}

	if err := c.Invalidate(context.Background(), "/api/contests"); err != nil {
		t.Fatalf("Invalidate() failed: %v", err)
	}
	q4 := c.Open(contestsQuery(defaultFilters))
	defer q4.Close()
	waitSnapshot(t, q4)
	if got := len(f.pagesRequested()); got != 4 {
		t.Errorf("requests = %d, want 4 (invalidated)", got)
	}
}

func TestDefaultOptions_ReopenRestoresPages(t *testing.T) {
	f := newFakeFetcher(25)
	logger := zerolog.Nop()
	opts := DefaultOptions()
	opts.Logger = &logger
	c := NewCoordinator(f, opts)
	defer c.Close()

	for i := 0; i < 2; i++ {
		q := c.Open(contestsQuery(defaultFilters))
		s := waitSnapshot(t, q)
		q.Close()
		if s.Status != StatusSuccess || len(s.Pages) != 1 {
			t.Fatalf("open %d: status=%q pages=%d", i+1, s.Status, len(s.Pages))
		}
	}

	if got := f.pagesRequested(); len(got) != 1 {
		t.Errorf("pages requested = %v, want [1] (reopen within stale time)", got)
	}
}

func TestDefaultOptions_NilStoreDisablesReuse(t *testing.T) {
	f := newFakeFetcher(5)
	c := newTestCoordinator(t, f, nil)

	for i := 0; i < 2; i++ {
		q := c.Open(contestsQuery(defaultFilters))
		waitSnapshot(t, q)
		q.Close()
	}

	if got := len(f.pagesRequested()); got != 2 {
		t.Errorf("requests = %d, want 2 without a store", got)
	}
}

func TestMemoryStore_StaleEntriesAreIgnored(t *testing.T) {
	f := newFakeFetcher(5)
	c := newTestCoordinator(t, f, func(o *Options) {
		o.Store = NewMemoryStore()
		o.StaleTime = 20 * time.Millisecond
	})

	q1 := c.Open(contestsQuery(defaultFilters))
	waitSnapshot(t, q1)
	q1.Close()

	time.Sleep(40 * time.Millisecond)

	q2 := c.Open(contestsQuery(defaultFilters))
	defer q2.Close()
	waitSnapshot(t, q2)
	if got := len(f.pagesRequested()); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestRedisStore_RestoresAndExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	f := newFakeFetcher(15)
	store := NewRedisStore(cache.NewManager(rdb), "user-1")
	c := newTestCoordinator(t, f, func(o *Options) { o.Store = store })

	q1 := c.Open(contestsQuery(defaultFilters))
	waitSnapshot(t, q1)
	q1.Close()

	q2 := c.Open(contestsQuery(defaultFilters))
	s := waitSnapshot(t, q2)
	q2.Close()
	if s.Status != StatusSuccess || len(s.Records()) != 10 {
		t.Fatalf("restored: status=%q records=%d", s.Status, len(s.Records()))
	}
	if got := len(f.pagesRequested()); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}

	mr.FastForward(DefaultStaleTime + time.Second)

	q3 := c.Open(contestsQuery(defaultFilters))
	defer q3.Close()
	waitSnapshot(t, q3)
	if got := len(f.pagesRequested()); got != 2 {
		t.Errorf("requests = %d, want 2 after expiry", got)
	}
}

func TestOnUpdate_ReceivesQuery(t *testing.T) {
	f := newFakeFetcher(5)
	var mu sync.Mutex
	seen := map[*Query]int{}
	c := newTestCoordinator(t, f, func(o *Options) {
		o.OnUpdate = func(q *Query, _ Snapshot) {
			mu.Lock()
			seen[q]++
			mu.Unlock()
		}
	})

	q := c.Open(contestsQuery(defaultFilters))
	defer q.Close()
	waitSnapshot(t, q)

	mu.Lock()
	defer mu.Unlock()
	if seen[q] < 2 {
		t.Errorf("OnUpdate calls = %d, want >= 2 (pending and success)", seen[q])
	}
}

func TestDecode(t *testing.T) {
	pages := []Page{
		{Items: []json.RawMessage{[]byte(`{"id":1}`), []byte(`{"id":2}`)}, Page: 1, TotalPages: 2},
		{Items: []json.RawMessage{[]byte(`{"id":3}`)}, Page: 2, TotalPages: 2},
	}

	type rec struct {
		ID int `json:"id"`
	}
	got, err := Decode[rec](pages)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if len(got) != 3 || got[0].ID != 1 || got[2].ID != 3 {
		t.Errorf("Decode() = %+v", got)
	}

	if _, err := Decode[rec]([]Page{{Items: []json.RawMessage{[]byte(`"nope"`)}, Page: 1}}); err == nil {
		t.Error("Decode() should fail on mismatched items")
	}
}

func TestSnapshot_SeqOrdersStateChanges(t *testing.T) {
	f := newFakeFetcher(25)
	c := newTestCoordinator(t, f, nil)

	var mu sync.Mutex
	var seqs []uint64
	q := c.Open(contestsQuery(defaultFilters), WithObserver(func(s Snapshot) {
		mu.Lock()
		seqs = append(seqs, s.Seq)
		mu.Unlock()
	}))
	defer q.Close()

	loaded := waitSnapshot(t, q)
	if !q.FetchNextPage() {
		t.Fatal("FetchNextPage() should start a fetch")
	}
	fetching := q.Snapshot()
	if !fetching.IsFetching || fetching.Seq <= loaded.Seq {
		t.Errorf("fetching snapshot seq=%d fetching=%v, loaded seq=%d", fetching.Seq, fetching.IsFetching, loaded.Seq)
	}
	done := waitSnapshot(t, q)
	if done.Seq <= fetching.Seq {
		t.Errorf("done seq=%d, want > %d", done.Seq, fetching.Seq)
	}

	mu.Lock()
	defer mu.Unlock()
	seen := map[uint64]bool{}
	for _, s := range seqs {
		if seen[s] {
			t.Errorf("seq %d delivered twice: %v", s, seqs)
		}
		seen[s] = true
	}
	if len(seqs) != 4 {
		t.Errorf("observer calls = %v, want 4 (two begins, two finishes)", seqs)
	}
}
