// Package engine runs one dataset session: it owns the record store and
// chunk loader, dispatches host commands, and posts events back. A session
// runs in its own goroutine, isolated from the host's interactive thread;
// all communication is message passing over the command and event channels.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civiclens/spendengine/internal/aggregate"
	engerr "github.com/civiclens/spendengine/internal/errors"
	"github.com/civiclens/spendengine/internal/export"
	"github.com/civiclens/spendengine/internal/fetch"
	"github.com/civiclens/spendengine/internal/loader"
	"github.com/civiclens/spendengine/internal/manifest"
	"github.com/civiclens/spendengine/internal/protocol"
	"github.com/civiclens/spendengine/internal/query"
	"github.com/civiclens/spendengine/internal/store"
)

// Options configures one engine session.
type Options struct {
	// Fetcher overrides scheme-based fetcher selection; used by tests and
	// by hosts that already hold a configured client. When set, the Init
	// URL is passed to it verbatim.
	Fetcher fetch.Fetcher
	// S3 configures fetching for s3:// dataset roots.
	S3 fetch.S3Config
	// FetchTimeout bounds each individual chunk or index fetch.
	FetchTimeout time.Duration
	// EventBuffer sizes the outbound event channel.
	EventBuffer int
}

// Engine is one engine session. Create with New, drive with Post, consume
// Events, and run the loop via Run.
type Engine struct {
	opts     Options
	commands chan protocol.Command
	events   chan protocol.Event

	// Session state, owned by the Run goroutine. The store and loader are
	// internally synchronized, so load goroutines may touch them too.
	fetcher fetch.Fetcher
	dataset *manifest.Dataset
	store   *store.Store
	loads   *loader.Loader
	ready   bool
	fatal   bool

	wg sync.WaitGroup
}

// New creates an idle session.
func New(opts Options) *Engine {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	return &Engine{
		opts:     opts,
		commands: make(chan protocol.Command),
		events:   make(chan protocol.Event, opts.EventBuffer),
	}
}

// Post submits a command to the session.
func (e *Engine) Post(cmd protocol.Command) {
	e.commands <- cmd
}

// PostCtx submits a command unless ctx is cancelled first. Use this when the
// session may be shut down concurrently with the submitting goroutine.
func (e *Engine) PostCtx(ctx context.Context, cmd protocol.Command) error {
	select {
	case e.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals that no further commands will arrive. Run drains in-flight
// loads and then closes the event channel.
func (e *Engine) Close() {
	close(e.commands)
}

// Events is the outbound event stream. It closes when Run returns.
func (e *Engine) Events() <-chan protocol.Event {
	return e.events
}

// Run processes commands one at a time until the command channel closes or
// ctx is cancelled. Queries and exports are answered inline against the
// current store; chunk loads run on their own goroutines so a query is
// never blocked behind an in-flight fetch.
func (e *Engine) Run(ctx context.Context) {
	defer func() {
		e.wg.Wait()
		close(e.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-e.commands:
			if !ok {
				return
			}
			e.dispatch(ctx, cmd)
		}
	}
}

// dispatch is the router: the command variant set is closed, so this switch
// is exhaustive by construction.
func (e *Engine) dispatch(ctx context.Context, cmd protocol.Command) {
	switch c := cmd.(type) {
	case protocol.Init:
		e.handleInit(ctx, c)
	case protocol.Query:
		e.handleQuery(c)
	case protocol.Export:
		e.handleExport(c)
	case protocol.LoadYear:
		if !e.requireReady("") {
			return
		}
		e.async(func() {
			if err := e.loads.LoadYear(ctx, c.Year); err != nil {
				e.emitError("", err)
			}
		})
	case protocol.LoadMonth:
		if !e.requireReady("") {
			return
		}
		e.async(func() {
			if err := e.loads.LoadMonth(ctx, c.Year, c.Month); err != nil {
				e.emitError("", err)
			}
		})
	case protocol.LoadAllYears:
		if !e.requireReady("") {
			return
		}
		e.async(func() {
			if err := e.loads.LoadAllYears(ctx); err != nil {
				e.emitError("", err)
			}
		})
	default:
		e.emitError("", engerr.NewInternalError("unhandled command", nil))
	}
}

func (e *Engine) async(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

func (e *Engine) emit(ev protocol.Event) {
	e.events <- ev
}

// handleInit resolves the dataset layout, announces readiness, then eagerly
// loads the most recent period so the first query already has data. A
// resolution failure is the one fatal error: no READY, session unusable.
func (e *Engine) handleInit(ctx context.Context, c protocol.Init) {
	if e.ready || e.fatal {
		e.emitError("", engerr.NewInternalError("session already initialized", nil))
		return
	}
	e.emit(protocol.Loading{})

	fetcher := e.opts.Fetcher
	rootPath := c.URL
	if fetcher == nil {
		var err error
		fetcher, rootPath, err = fetch.ForRoot(ctx, c.URL, e.opts.S3)
		if err != nil {
			e.failInit(err)
			return
		}
	}
	fetcher = fetch.WithTimeout(fetcher, e.opts.FetchTimeout)

	ds, err := manifest.Resolve(ctx, fetcher, rootPath)
	if err != nil {
		e.failInit(err)
		return
	}

	e.fetcher = fetcher
	e.dataset = ds
	e.store = store.New(ds.Options)
	if ds.Mode == manifest.ModeSingle {
		e.store.Append(ds.Records)
	}
	e.loads = loader.New(fetcher, ds, e.store, e.emit)
	e.ready = true

	e.emit(e.readyEvent())

	// Eager load of the latest period, synchronous within init handling:
	// a query posted after READY is answered against a non-empty store.
	if err := e.loads.LoadLatest(ctx); err != nil {
		e.emitError("", err)
	}
}

func (e *Engine) failInit(err error) {
	e.fatal = true
	log.Printf("[engine] fatal init failure: %v", err)
	e.events <- protocol.Error{
		Code:    engerr.GetCode(err),
		Message: err.Error(),
		Fatal:   true,
	}
}

func (e *Engine) readyEvent() protocol.Ready {
	ds := e.dataset
	total := ds.RecordCount
	if total == 0 {
		total = e.store.Len()
	}

	ev := protocol.Ready{
		FilterOptions: e.store.Options(),
		TotalRecords:  total,
		Chunked:       ds.Mode != manifest.ModeSingle,
		Monthly:       ds.Mode == manifest.ModeMonthly,
		LoadedYears:   e.loads.LoadedYears(),
	}
	if ds.Manifest != nil {
		ev.LatestYear = ds.Manifest.LatestYear
		ev.LatestMonth = ds.Manifest.LatestMonth
		ev.YearManifest = make(map[string][]string, len(ds.Manifest.Years))
		for _, year := range ds.Manifest.YearKeys() {
			ev.YearManifest[year] = ds.Manifest.MonthKeys(year)
		}
	}
	return ev
}

func (e *Engine) handleQuery(c protocol.Query) {
	if !e.requireReady(c.QueryID) {
		return
	}
	res, err := query.Run(e.store.Records(), query.Params{
		Filters:   c.Filters,
		Search:    c.Search,
		SortField: c.SortField,
		SortDir:   c.SortDir,
		Page:      c.Page,
		PageSize:  c.PageSize,
	})
	if err != nil {
		e.emitError(c.QueryID, err)
		return
	}

	stats, charts := aggregate.Aggregate(res.Filtered)
	e.emit(protocol.Results{
		QueryID:       c.QueryID,
		PaginatedData: res.Page,
		FilteredCount: res.FilteredCount,
		TotalPages:    res.TotalPages,
		Stats:         stats,
		ChartData:     charts,
	})
}

func (e *Engine) handleExport(c protocol.Export) {
	if !e.requireReady("") {
		return
	}
	filtered := query.Filter(e.store.Records(), c.Filters, c.Search)
	if err := query.Sort(filtered, c.SortField, c.SortDir); err != nil {
		e.emitError("", err)
		return
	}
	e.emit(protocol.ExportResult{
		RequestID: uuid.New().String(),
		CSV:       export.CSV(filtered),
	})
}

// Snapshot reports the session's loaded state, for hosts rendering a
// partial-data indicator outside the event flow.
type Snapshot struct {
	Ready         bool
	LoadedYears   []string
	TotalInMemory int
}

// State returns the current snapshot. Safe only from the Run goroutine's
// side of the protocol (i.e. between commands), which is how the host
// bridge uses it.
func (e *Engine) State() Snapshot {
	if !e.ready {
		return Snapshot{}
	}
	return Snapshot{
		Ready:         true,
		LoadedYears:   e.loads.LoadedYears(),
		TotalInMemory: e.store.Len(),
	}
}

func (e *Engine) requireReady(queryID string) bool {
	if e.ready {
		return true
	}
	e.emitError(queryID, engerr.NewInternalError("engine not initialized", nil))
	return false
}

// emitError posts exactly one ERROR event for a failure, tagged with the
// originating correlation id when the request carried one and a generated id
// otherwise, so the host can always deduplicate.
func (e *Engine) emitError(queryID string, err error) {
	if queryID == "" {
		queryID = uuid.New().String()
	}
	ev := protocol.Error{
		QueryID: queryID,
		Message: err.Error(),
	}
	var ee *engerr.EngineError
	if errors.As(err, &ee) {
		ev.Code = ee.Code
		ev.Retryable = ee.Retryable
	}
	e.emit(ev)
}
