package loader

import (
	"context"
	"fmt"
	"sync"
	"testing"

	engerr "github.com/civiclens/spendengine/internal/errors"
	"github.com/civiclens/spendengine/internal/fetch"
	"github.com/civiclens/spendengine/internal/manifest"
	"github.com/civiclens/spendengine/internal/protocol"
	"github.com/civiclens/spendengine/internal/store"
)

type countingFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	calls map[string]int
	fail  map[string]int // path -> remaining failures before success
}

func newCountingFetcher(files map[string]string) *countingFetcher {
	f := &countingFetcher{
		files: make(map[string][]byte),
		calls: make(map[string]int),
		fail:  make(map[string]int),
	}
	for k, v := range files {
		f.files[k] = []byte(v)
	}
	return f
}

func (f *countingFetcher) Fetch(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	if f.fail[path] > 0 {
		f.fail[path]--
		return nil, fmt.Errorf("%w: synthetic outage", fetch.ErrFetchFailed)
	}
	if b, ok := f.files[path]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", fetch.ErrNotFound, path)
}

func (f *countingFetcher) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

type eventLog struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (e *eventLog) notify(ev protocol.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) count(match func(protocol.Event) bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func monthlyDataset() *manifest.Dataset {
	return &manifest.Dataset{
		Mode:      manifest.ModeMonthly,
		DatasetID: "exampleshire",
		Stripped:  true,
		RootPath:  "data/spending.json",
		Manifest: &manifest.Manifest{
			Monthly:     true,
			Stripped:    true,
			DatasetID:   "exampleshire",
			LatestYear:  "2025-26",
			LatestMonth: "2026-01",
			Years: map[string]manifest.YearEntry{
				"2024-25": {Months: map[string]manifest.MonthEntry{
					"2024-04": {File: "2024-25/2024-04.json"},
					"2024-05": {File: "2024-25/2024-05.json"},
				}},
				"2025-26": {Months: map[string]manifest.MonthEntry{
					"2026-01": {File: "2025-26/2026-01.json"},
				}},
			},
		},
	}
}

func monthlyFiles() map[string]string {
	return map[string]string{
		"data/2024-25/2024-04.json": `[{"date":"2024-04-10","supplier":"A","amount":1},{"date":"2024-04-11","supplier":"B","amount":2}]`,
		"data/2024-25/2024-05.json": `[{"date":"2024-05-10","supplier":"C","amount":3}]`,
		"data/2025-26/2026-01.json": `[{"date":"2026-01-10","supplier":"D","amount":4}]`,
	}
}

func newMonthlyLoader(files map[string]string) (*Loader, *countingFetcher, *eventLog, *store.Store) {
	f := newCountingFetcher(files)
	st := store.New(store.FilterOptions{})
	ev := &eventLog{}
	l := New(f, monthlyDataset(), st, ev.notify)
	return l, f, ev, st
}

func TestLoadMonth_Idempotent(t *testing.T) {
	l, f, _, st := newMonthlyLoader(monthlyFiles())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.LoadMonth(ctx, "2025-26", "2026-01"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := f.callCount("data/2025-26/2026-01.json"); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}
	if st.Len() != 1 {
		t.Errorf("record count after redundant loads = %d, want 1", st.Len())
	}
}

func TestLoadMonth_OverlappingRequests(t *testing.T) {
	l, f, ev, _ := newMonthlyLoader(monthlyFiles())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.LoadMonth(ctx, "2025-26", "2026-01"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := f.callCount("data/2025-26/2026-01.json"); got != 1 {
		t.Errorf("fetch count = %d, want exactly 1", got)
	}
	loaded := ev.count(func(e protocol.Event) bool {
		_, ok := e.(protocol.MonthLoaded)
		return ok
	})
	if loaded != 2 {
		t.Errorf("MonthLoaded events = %d, want one per request", loaded)
	}
}

func TestLoadMonth_FailureRevertsAndRetries(t *testing.T) {
	l, f, _, st := newMonthlyLoader(monthlyFiles())
	f.fail["data/2025-26/2026-01.json"] = 1
	ctx := context.Background()

	err := l.LoadMonth(ctx, "2025-26", "2026-01")
	if err == nil {
		t.Fatal("expected first load to fail")
	}
	if st.Len() != 0 {
		t.Errorf("failed load merged records: %d", st.Len())
	}

	// Chunk reverted to unloaded: retry fetches again and succeeds.
	if err := l.LoadMonth(ctx, "2025-26", "2026-01"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := f.callCount("data/2025-26/2026-01.json"); got != 2 {
		t.Errorf("fetch count = %d, want 2 (fail then retry)", got)
	}
	if st.Len() != 1 {
		t.Errorf("record count after retry = %d, want 1", st.Len())
	}
}

func TestLoadMonth_UnknownChunk(t *testing.T) {
	l, _, _, _ := newMonthlyLoader(monthlyFiles())
	if err := l.LoadMonth(context.Background(), "2025-26", "1999-01"); err == nil {
		t.Fatal("expected error for a month absent from the manifest")
	}
}

func TestLoadYear_MonthlyComposite(t *testing.T) {
	l, _, ev, st := newMonthlyLoader(monthlyFiles())
	ctx := context.Background()

	if got := l.LoadedYears(); len(got) != 0 {
		t.Fatalf("loaded years before any load = %v", got)
	}

	if err := l.LoadYear(ctx, "2024-25"); err != nil {
		t.Fatal(err)
	}
	if st.Len() != 3 {
		t.Errorf("records = %d, want 3", st.Len())
	}

	yearLoaded := ev.count(func(e protocol.Event) bool {
		_, ok := e.(protocol.YearLoaded)
		return ok
	})
	monthLoaded := ev.count(func(e protocol.Event) bool {
		_, ok := e.(protocol.MonthLoaded)
		return ok
	})
	if yearLoaded != 1 || monthLoaded != 2 {
		t.Errorf("events: %d YearLoaded (want 1), %d MonthLoaded (want 2)", yearLoaded, monthLoaded)
	}

	if got := l.LoadedYears(); len(got) != 1 || got[0] != "2024-25" {
		t.Errorf("loaded years = %v, want [2024-25]", got)
	}
}

func TestYearLoadedOnlyWhenAllMonthsLoaded(t *testing.T) {
	l, _, _, _ := newMonthlyLoader(monthlyFiles())
	ctx := context.Background()

	if err := l.LoadMonth(ctx, "2024-25", "2024-04"); err != nil {
		t.Fatal(err)
	}
	if got := l.LoadedYears(); len(got) != 0 {
		t.Errorf("year marked loaded with a month missing: %v", got)
	}
	if err := l.LoadMonth(ctx, "2024-25", "2024-05"); err != nil {
		t.Fatal(err)
	}
	if got := l.LoadedYears(); len(got) != 1 {
		t.Errorf("year not marked loaded after all months: %v", got)
	}
}

func TestLoadAllYears(t *testing.T) {
	l, f, ev, st := newMonthlyLoader(monthlyFiles())
	ctx := context.Background()

	// Preload one month; LoadAllYears must not refetch it.
	if err := l.LoadMonth(ctx, "2025-26", "2026-01"); err != nil {
		t.Fatal(err)
	}

	if err := l.LoadAllYears(ctx); err != nil {
		t.Fatal(err)
	}
	if st.Len() != 4 {
		t.Errorf("records = %d, want 4", st.Len())
	}
	if got := f.callCount("data/2025-26/2026-01.json"); got != 1 {
		t.Errorf("already-loaded chunk refetched: %d calls", got)
	}
	done := ev.count(func(e protocol.Event) bool {
		_, ok := e.(protocol.AllYearsLoaded)
		return ok
	})
	if done != 1 {
		t.Errorf("AllYearsLoaded events = %d, want 1", done)
	}
	if got := l.LoadedYears(); len(got) != 2 {
		t.Errorf("loaded years = %v, want both", got)
	}
}

func TestLoadLatest_Monthly(t *testing.T) {
	l, f, _, st := newMonthlyLoader(monthlyFiles())

	if err := l.LoadLatest(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st.Len() != 1 {
		t.Errorf("records = %d, want just the latest month", st.Len())
	}
	if got := f.callCount("data/2024-25/2024-04.json"); got != 0 {
		t.Errorf("older chunk fetched eagerly: %d calls", got)
	}
}

func TestLoadYear_YearlyMode(t *testing.T) {
	f := newCountingFetcher(map[string]string{
		"data/2024-25.json": `[{"date":"2024-06-01","supplier":"A","amount":7}]`,
	})
	ds := &manifest.Dataset{
		Mode:     manifest.ModeYearly,
		RootPath: "data/spending.json",
		Manifest: &manifest.Manifest{
			Years:      map[string]manifest.YearEntry{"2024-25": {File: "2024-25.json"}},
			LatestYear: "2024-25",
		},
	}
	st := store.New(store.FilterOptions{})
	ev := &eventLog{}
	l := New(f, ds, st, ev.notify)

	if err := l.LoadYear(context.Background(), "2024-25"); err != nil {
		t.Fatal(err)
	}
	if err := l.LoadYear(context.Background(), "2024-25"); err != nil {
		t.Fatal(err)
	}
	if got := f.callCount("data/2024-25.json"); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}
	// Hydration applies in yearly mode too.
	if recs := st.Records(); len(recs) != 1 || recs[0].FinancialYear != "2024-25" {
		t.Errorf("records = %+v", st.Records())
	}
}

func TestLoadMonth_DecodeFailureNotRetryable(t *testing.T) {
	l, _, _, _ := newMonthlyLoader(map[string]string{
		"data/2025-26/2026-01.json": `{not an array`,
	})
	err := l.LoadMonth(context.Background(), "2025-26", "2026-01")
	if err == nil {
		t.Fatal("expected decode error")
	}
	if engerr.GetCode(err) != engerr.CodeDecodeFailed {
		t.Errorf("code = %q, want %q", engerr.GetCode(err), engerr.CodeDecodeFailed)
	}
	if engerr.IsRetryable(err) {
		t.Error("decode failures are not retryable")
	}
}
