package listview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/Sternrassler/contesthub-client/pkg/debounce"
	"github.com/Sternrassler/contesthub-client/pkg/logging"
	"github.com/Sternrassler/contesthub-client/pkg/pagination"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Wait after Close.
var ErrClosed = errors.New("list controller closed")

// Options configures a Controller.
type Options struct {
	// Debounce is the settle time of debounced fields (default 500ms)
	Debounce time.Duration

	// OnChange receives the view after every change. It may be called from
	// any goroutine and must not call back into the controller synchronously.
	OnChange func(View)

	// Logger defaults to the "listview" component logger
	Logger *zerolog.Logger
}

// View is what a list screen renders.
type View struct {
	// Values are the form inputs as typed
	Values map[string]string

	// Applied are the filter values of the current query
	Applied map[string]string

	// Typing is true while a debounced input has not settled
	Typing bool

	// Err is the last rejected input, cleared by the next accepted one
	Err error

	// Suspended is true after a rejected input until the next accepted one
	Suspended bool

	Snapshot pagination.Snapshot
}

// Controller drives one list screen: it turns form input into queries on a
// coordinator and forwards the current query's state. Only the most recently
// opened query can change the view.
type Controller struct {
	coord  *pagination.Coordinator
	schema Schema
	opts   Options
	logger zerolog.Logger
	inputs map[string]*debounce.Value[string]

	mu        sync.Mutex
	values    map[string]string
	applied   map[string]string
	query     *pagination.Query
	gen       uint64
	snap      pagination.Snapshot
	verr      error
	suspended bool
	started   bool
	closed    bool
}

// NewController creates a controller for schema. Nothing is fetched before
// Start.
func NewController(coord *pagination.Coordinator, schema Schema, opts Options) (*Controller, error) {
	if coord == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = debounce.DefaultDelay
	}

	logger := logging.NewLogger("listview")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	c := &Controller{
		coord:   coord,
		schema:  schema,
		opts:    opts,
		logger:  logger.With().Str("resource", schema.Resource).Logger(),
		inputs:  make(map[string]*debounce.Value[string]),
		values:  schema.Defaults(),
		applied: schema.Defaults(),
		snap:    pagination.Snapshot{Status: pagination.StatusIdle},
	}
	for _, f := range schema.Fields {
		if f.Debounced {
			name := f.Name
			c.inputs[name] = debounce.NewValue(f.Default, opts.Debounce, func(v string) {
				c.settled(name, v)
			})
		}
	}
	return c, nil
}

// Start opens the first query with the default filter values.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.reopen()
}

// Set changes one filter input. A rejected value resets every field to its
// default, closes the current query and suspends fetching until the next
// accepted input; the returned error is a *ValidationError. Debounced fields
// open a new query once the input settles, all others at once.
func (c *Controller) Set(name, value string) error {
	f, ok := c.schema.Field(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}

	if err := CheckField(f, value); err != nil {
		c.suspend(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.values[name] = value
	c.verr = nil
	resume := c.suspended

	if f.Debounced {
		input := c.inputs[name]
		c.mu.Unlock()

		// A settled value equal to the new input never propagates, so a
		// suspended view resumes here.
		if resume && input.Get() == value {
			input.Reset(value)
			c.reopen()
			return nil
		}
		input.Set(value)
		c.emit()
		return nil
	}

	changed := c.applied[name] != value
	c.applied[name] = value
	c.mu.Unlock()

	if changed || resume {
		c.reopen()
	}
	return nil
}

// ClearFilters puts every clearable field back to AllValue. The search text
// is left alone.
func (c *Controller) ClearFilters() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	changed := c.suspended
	for _, f := range c.schema.Fields {
		if !f.Clearable {
			continue
		}
		if c.applied[f.Name] != AllValue {
			changed = true
		}
		c.values[f.Name] = AllValue
		c.applied[f.Name] = AllValue
	}
	c.verr = nil
	c.mu.Unlock()

	if changed {
		c.reopen()
	}
}

// ClearSearch empties the search input immediately, without waiting for it
// to settle.
func (c *Controller) ClearSearch() {
	f, ok := c.schema.Field(FieldSearch)
	if !ok {
		return
	}
	if input := c.inputs[f.Name]; input != nil {
		input.Reset("")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	changed := c.applied[f.Name] != "" || c.suspended
	c.values[f.Name] = ""
	c.applied[f.Name] = ""
	c.verr = nil
	c.mu.Unlock()

	if changed {
		c.reopen()
	} else {
		c.emit()
	}
}

// SentinelVisible is called when the end-of-list marker scrolls into view.
// It loads the next page when there is one and nothing is in flight, and
// reports whether a fetch started.
func (c *Controller) SentinelVisible() bool {
	q := c.current()
	if q == nil {
		return false
	}
	s := q.Snapshot()
	if !s.HasNextPage || s.IsFetching {
		return false
	}
	return q.FetchNextPage()
}

// Retry refetches the current query after a failure.
func (c *Controller) Retry() bool {
	q := c.current()
	if q == nil {
		return false
	}
	return q.Refetch()
}

// Reconnect tells the current query that connectivity returned.
func (c *Controller) Reconnect() {
	if q := c.current(); q != nil {
		q.Notify(pagination.EventReconnect)
	}
}

// Focus tells the current query that the screen regained focus.
func (c *Controller) Focus() {
	if q := c.current(); q != nil {
		q.Notify(pagination.EventFocus)
	}
}

// Flush settles every debounced input now.
func (c *Controller) Flush() {
	for _, input := range c.inputs {
		input.Flush()
	}
}

// View returns the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Records returns the accumulated records of the current query.
func (c *Controller) Records() []json.RawMessage {
	return c.View().Snapshot.Records()
}

// Wait blocks until the current query has no fetch in flight. A query
// superseded while waiting is followed by its replacement.
func (c *Controller) Wait(ctx context.Context) (pagination.Snapshot, error) {
	for {
		c.mu.Lock()
		if c.closed {
			s := c.snap
			c.mu.Unlock()
			return s, ErrClosed
		}
		q, gen, s := c.query, c.gen, c.snap
		c.mu.Unlock()

		if q == nil {
			return s, nil
		}
		s, err := q.Wait(ctx)
		if errors.Is(err, pagination.ErrQueryClosed) {
			c.mu.Lock()
			superseded := c.gen != gen
			c.mu.Unlock()
			if superseded {
				continue
			}
		}
		return s, err
	}
}

// Close tears the screen down. The current query is closed and no OnChange
// call happens afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	q := c.query
	c.query = nil
	c.mu.Unlock()

	for _, input := range c.inputs {
		input.Close()
	}
	if q != nil {
		q.Close()
	}
}

func (c *Controller) current() *pagination.Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

func (c *Controller) settled(name, value string) {
	c.mu.Lock()
	if c.closed || c.values[name] != value {
		c.mu.Unlock()
		return
	}
	c.applied[name] = value
	c.mu.Unlock()

	c.reopen()
}

func (c *Controller) suspend(err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		c.logger.Warn().Str("field", verr.Field).Str("reason", verr.Message).Msg("Rejected filter input, resetting filters")
	}

	for _, f := range c.schema.Fields {
		if input := c.inputs[f.Name]; input != nil {
			input.Reset(f.Default)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.values = c.schema.Defaults()
	c.applied = c.schema.Defaults()
	c.verr = err
	c.suspended = true
	c.gen++
	q := c.query
	c.query = nil
	c.snap = pagination.Snapshot{Status: pagination.StatusIdle}
	c.mu.Unlock()

	if q != nil {
		q.Close()
	}
	c.emit()
}

// reopen replaces the current query with one for the applied values.
// Open reports the first snapshot synchronously, so c.mu must not be held
// across it.
func (c *Controller) reopen() {
	c.mu.Lock()
	if c.closed || !c.started {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	old := c.query
	c.query = nil
	c.suspended = false
	c.snap = pagination.Snapshot{Status: pagination.StatusIdle}
	d := c.descriptorLocked()
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	q := c.coord.Open(d, pagination.WithObserver(func(s pagination.Snapshot) {
		c.observe(gen, s)
	}))

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		q.Close()
		return
	}
	c.query = q
	if s := q.Snapshot(); s.Seq >= c.snap.Seq {
		c.snap = s
	}
	c.mu.Unlock()

	c.logger.Debug().Str("identity", q.Identity()).Uint64("generation", gen).Msg("Opened list query")
	c.emit()
}

func (c *Controller) descriptorLocked() pagination.Descriptor {
	filters := make(pagination.Filters, len(c.schema.Fields))
	for _, f := range c.schema.Fields {
		filters[f.Name] = c.applied[f.Name]
	}
	return pagination.Descriptor{
		Resource: c.schema.Resource,
		Filters:  filters,
		PageSize: c.schema.PageSize,
	}
}

func (c *Controller) observe(gen uint64, s pagination.Snapshot) {
	c.mu.Lock()
	if c.closed || c.gen != gen || s.Seq < c.snap.Seq {
		c.mu.Unlock()
		return
	}
	c.snap = s
	v := c.viewLocked()
	c.mu.Unlock()

	if c.opts.OnChange != nil {
		c.opts.OnChange(v)
	}
}

func (c *Controller) emit() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	v := c.viewLocked()
	c.mu.Unlock()

	if c.opts.OnChange != nil {
		c.opts.OnChange(v)
	}
}

func (c *Controller) viewLocked() View {
	v := View{
		Values:    maps.Clone(c.values),
		Applied:   maps.Clone(c.applied),
		Err:       c.verr,
		Suspended: c.suspended,
		Snapshot:  c.snap,
	}
	for name := range c.inputs {
		if c.values[name] != c.applied[name] {
			v.Typing = true
		}
	}
	return v
}
