// Package loader tracks per-chunk load state and merges fetched chunks into
// the record store. Loads are idempotent: a loaded chunk is acknowledged
// without network activity, and overlapping requests for an in-flight chunk
// share the single fetch, each still receiving its own completion event.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	engerr "github.com/civiclens/spendengine/internal/errors"
	"github.com/civiclens/spendengine/internal/fetch"
	"github.com/civiclens/spendengine/internal/manifest"
	"github.com/civiclens/spendengine/internal/protocol"
	"github.com/civiclens/spendengine/internal/record"
	"github.com/civiclens/spendengine/internal/store"
)

// Notify delivers an engine event to the host.
type Notify func(protocol.Event)

// Loader owns chunk load state for one dataset session.
type Loader struct {
	fetcher fetch.Fetcher
	dataset *manifest.Dataset
	store   *store.Store
	notify  Notify

	mu     sync.Mutex
	chunks map[string]*chunkEntry
}

type chunkEntry struct {
	state   ChunkState
	waiters []chan error
}

// New creates a loader over a resolved dataset.
func New(f fetch.Fetcher, ds *manifest.Dataset, st *store.Store, notify Notify) *Loader {
	return &Loader{
		fetcher: f,
		dataset: ds,
		store:   st,
		notify:  notify,
		chunks:  make(map[string]*chunkEntry),
	}
}

func monthChunkKey(year, month string) string { return year + "/" + month }

// acquire decides what a load request must do for one chunk and applies the
// state transition for a genuine load. Exactly one of the returns is set:
// already true (acknowledge, no fetch), wait non-nil (another request is
// fetching; receive its outcome), or neither (this request owns the fetch).
func (l *Loader) acquire(key string) (already bool, wait chan error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ent, ok := l.chunks[key]
	if !ok {
		ent = &chunkEntry{}
		l.chunks[key] = ent
	}
	switch ent.state {
	case Loaded:
		return true, nil
	case Loading:
		ch := make(chan error, 1)
		ent.waiters = append(ent.waiters, ch)
		return false, ch
	default:
		if err := transition(ent.state, Loading); err != nil {
			// Unreachable with the enum above; kept so a future state
			// cannot silently bypass the guard.
			panic(err)
		}
		ent.state = Loading
		return false, nil
	}
}

// release completes a fetch, moving the chunk to loaded on success or back
// to unloaded (retry-eligible) on failure, and wakes every waiter.
func (l *Loader) release(key string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ent := l.chunks[key]
	to := Loaded
	if err != nil {
		to = Unloaded
	}
	if terr := transition(ent.state, to); terr != nil {
		panic(terr)
	}
	ent.state = to
	for _, ch := range ent.waiters {
		ch <- err
	}
	ent.waiters = nil
}

func (l *Loader) stateOf(key string) ChunkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ent, ok := l.chunks[key]; ok {
		return ent.state
	}
	return Unloaded
}

// fetchChunk retrieves and decodes one chunk file. Every record passes the
// hydration boundary here, whether or not the dataset is stripped; hydration
// is idempotent, so fully-populated records pass through unchanged.
func (l *Loader) fetchChunk(ctx context.Context, path string) ([]record.Record, error) {
	data, err := fetch.Get(ctx, l.fetcher, path)
	if err != nil {
		return nil, engerr.NewChunkError(engerr.CodeFetchFailed,
			fmt.Sprintf("fetching chunk %s", path), err)
	}
	var recs []record.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, engerr.NewChunkError(engerr.CodeDecodeFailed,
			fmt.Sprintf("decoding chunk %s", path), err)
	}
	return record.HydrateAll(recs, l.dataset.DatasetID), nil
}

// LoadMonth loads one month chunk. Safe to call repeatedly or overlappingly:
// at most one fetch happens per chunk, and every call still produces a
// MONTH_LOADED event on success.
func (l *Loader) LoadMonth(ctx context.Context, year, month string) error {
	if l.dataset.Mode != manifest.ModeMonthly {
		return engerr.New(engerr.ErrCategoryChunk, engerr.CodeUnknownChunk,
			"dataset is not month-chunked")
	}
	path, ok := l.dataset.MonthChunkPath(year, month)
	if !ok {
		return engerr.New(engerr.ErrCategoryChunk, engerr.CodeUnknownChunk,
			fmt.Sprintf("no chunk for %s %s in manifest", year, month))
	}

	key := monthChunkKey(year, month)
	already, wait := l.acquire(key)
	if already {
		l.notifyMonthLoaded(year, month)
		return nil
	}
	if wait != nil {
		select {
		case err := <-wait:
			if err != nil {
				return err
			}
			l.notifyMonthLoaded(year, month)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.notify(protocol.MonthLoading{Year: year, Month: month})
	recs, err := l.fetchChunk(ctx, path)
	if err != nil {
		l.release(key, err)
		log.Printf("[loader] month %s/%s failed: %v", year, month, err)
		return err
	}
	l.store.Append(recs)
	l.release(key, nil)
	log.Printf("[loader] month %s/%s loaded: %d records", year, month, len(recs))
	l.notifyMonthLoaded(year, month)
	return nil
}

func (l *Loader) notifyMonthLoaded(year, month string) {
	l.notify(protocol.MonthLoaded{
		Year:          year,
		Month:         month,
		LoadedMonths:  l.LoadedMonths(year),
		LoadedYears:   l.LoadedYears(),
		TotalInMemory: l.store.Len(),
	})
}

// LoadYear loads one financial year. In yearly mode this is a single chunk;
// in monthly mode it is composite: every month chunk beneath the year loads
// sequentially, the year counts as loaded only once all of them confirm, and
// one year-level event follows the per-month ones.
func (l *Loader) LoadYear(ctx context.Context, year string) error {
	switch l.dataset.Mode {
	case manifest.ModeMonthly:
		return l.loadYearMonthly(ctx, year)
	case manifest.ModeYearly:
		return l.loadYearDirect(ctx, year)
	default:
		return engerr.New(engerr.ErrCategoryChunk, engerr.CodeUnknownChunk,
			"dataset is not chunked")
	}
}

func (l *Loader) loadYearDirect(ctx context.Context, year string) error {
	path, ok := l.dataset.YearChunkPath(year)
	if !ok {
		return engerr.New(engerr.ErrCategoryChunk, engerr.CodeUnknownChunk,
			fmt.Sprintf("no chunk for year %s in manifest", year))
	}

	already, wait := l.acquire(year)
	if already {
		l.notifyYearLoaded(year)
		return nil
	}
	if wait != nil {
		select {
		case err := <-wait:
			if err != nil {
				return err
			}
			l.notifyYearLoaded(year)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.notify(protocol.YearLoading{Year: year})
	recs, err := l.fetchChunk(ctx, path)
	if err != nil {
		l.release(year, err)
		log.Printf("[loader] year %s failed: %v", year, err)
		return err
	}
	l.store.Append(recs)
	l.release(year, nil)
	log.Printf("[loader] year %s loaded: %d records", year, len(recs))
	l.notifyYearLoaded(year)
	return nil
}

func (l *Loader) loadYearMonthly(ctx context.Context, year string) error {
	months := l.dataset.Manifest.MonthKeys(year)
	if months == nil {
		return engerr.New(engerr.ErrCategoryChunk, engerr.CodeUnknownChunk,
			fmt.Sprintf("no months for year %s in manifest", year))
	}

	if l.yearFullyLoaded(year) {
		l.notifyYearLoaded(year)
		return nil
	}

	l.notify(protocol.YearLoading{Year: year})
	for _, month := range months {
		if l.stateOf(monthChunkKey(year, month)) == Loaded {
			continue
		}
		if err := l.LoadMonth(ctx, year, month); err != nil {
			return err
		}
	}
	l.notifyYearLoaded(year)
	return nil
}

func (l *Loader) notifyYearLoaded(year string) {
	l.notify(protocol.YearLoaded{
		Year:          year,
		LoadedYears:   l.LoadedYears(),
		TotalInMemory: l.store.Len(),
	})
}

// LoadAllYears loads every year in key order, skipping years already in
// memory, then emits one completion event with the final loaded set.
func (l *Loader) LoadAllYears(ctx context.Context) error {
	if l.dataset.Manifest == nil {
		return engerr.New(engerr.ErrCategoryChunk, engerr.CodeUnknownChunk,
			"dataset is not chunked")
	}
	for _, year := range l.dataset.Manifest.YearKeys() {
		if l.yearFullyLoaded(year) {
			continue
		}
		if err := l.LoadYear(ctx, year); err != nil {
			return err
		}
	}
	l.notify(protocol.AllYearsLoaded{
		LoadedYears:   l.LoadedYears(),
		TotalInMemory: l.store.Len(),
	})
	return nil
}

// LoadLatest eagerly loads the most recent period after init so the host
// has a non-empty initial view without an explicit request.
func (l *Loader) LoadLatest(ctx context.Context) error {
	switch l.dataset.Mode {
	case manifest.ModeMonthly:
		year, month := l.dataset.Manifest.LatestYear, l.dataset.Manifest.LatestMonth
		if year == "" || month == "" {
			return nil
		}
		return l.LoadMonth(ctx, year, month)
	case manifest.ModeYearly:
		year := l.dataset.Manifest.LatestYear
		if year == "" {
			if keys := l.dataset.Manifest.YearKeys(); len(keys) > 0 {
				year = keys[len(keys)-1]
			}
		}
		if year == "" {
			return nil
		}
		return l.LoadYear(ctx, year)
	default:
		// Single-payload datasets arrive fully loaded.
		return nil
	}
}

// yearFullyLoaded reports whether every chunk beneath a year is loaded.
func (l *Loader) yearFullyLoaded(year string) bool {
	if l.dataset.Mode == manifest.ModeYearly {
		return l.stateOf(year) == Loaded
	}
	months := l.dataset.Manifest.MonthKeys(year)
	if len(months) == 0 {
		return false
	}
	for _, m := range months {
		if l.stateOf(monthChunkKey(year, m)) != Loaded {
			return false
		}
	}
	return true
}

// LoadedYears returns the years whose every chunk is in memory, ascending.
func (l *Loader) LoadedYears() []string {
	if l.dataset.Manifest == nil {
		return []string{}
	}
	out := []string{}
	for _, year := range l.dataset.Manifest.YearKeys() {
		if l.yearFullyLoaded(year) {
			out = append(out, year)
		}
	}
	return out
}

// LoadedMonths returns the loaded month keys under one year, ascending.
func (l *Loader) LoadedMonths(year string) []string {
	out := []string{}
	if l.dataset.Manifest == nil {
		return out
	}
	for _, m := range l.dataset.Manifest.MonthKeys(year) {
		if l.stateOf(monthChunkKey(year, m)) == Loaded {
			out = append(out, m)
		}
	}
	return out
}
