// Package protocol defines the message contract between a host and one
// engine session. Commands flow host -> engine, events engine -> host; the
// two variant sets are closed, so the engine's dispatch switch is exhaustive
// and an unhandled message is a compile-time hole, not a silent default.
package protocol

import (
	"github.com/civiclens/spendengine/internal/aggregate"
	"github.com/civiclens/spendengine/internal/query"
	"github.com/civiclens/spendengine/internal/record"
	"github.com/civiclens/spendengine/internal/store"
)

// Command is a host -> engine request.
type Command interface {
	isCommand()
}

// Init opens a dataset. It must be the first command of a session.
type Init struct {
	URL string `json:"url"`
}

// Query asks for one page of a filtered, sorted view plus its aggregates.
// QueryID is a caller-supplied correlation id echoed on the result so the
// host can discard responses to superseded queries.
type Query struct {
	QueryID   string        `json:"query_id"`
	Filters   query.Filters `json:"filters"`
	Search    string        `json:"search,omitempty"`
	SortField string        `json:"sort_field,omitempty"`
	SortDir   string        `json:"sort_dir,omitempty"`
	Page      int           `json:"page,omitempty"`
	PageSize  int           `json:"page_size,omitempty"`
}

// Export asks for the full filtered, sorted view as delimited text.
type Export struct {
	Filters   query.Filters `json:"filters"`
	Search    string        `json:"search,omitempty"`
	SortField string        `json:"sort_field,omitempty"`
	SortDir   string        `json:"sort_dir,omitempty"`
}

// LoadYear requests one financial year's chunk(s).
type LoadYear struct {
	Year string `json:"year"`
}

// LoadMonth requests one month chunk (monthly datasets only).
type LoadMonth struct {
	Year  string `json:"year"`
	Month string `json:"month"`
}

// LoadAllYears requests every remaining chunk, in year order.
type LoadAllYears struct{}

func (Init) isCommand()         {}
func (Query) isCommand()        {}
func (Export) isCommand()       {}
func (LoadYear) isCommand()     {}
func (LoadMonth) isCommand()    {}
func (LoadAllYears) isCommand() {}

// Event is an engine -> host notification or response.
type Event interface {
	isEvent()
}

// Loading is posted as soon as Init begins resolving the dataset.
type Loading struct{}

// Ready announces a usable session: whatever filter options, counts and
// layout facts are known before any explicit load request.
type Ready struct {
	FilterOptions store.FilterOptions `json:"filter_options"`
	TotalRecords  int                 `json:"total_records"`
	Chunked       bool                `json:"chunked"`
	Monthly       bool                `json:"monthly,omitempty"`
	// YearManifest maps each year key to its month keys (nil per year in
	// yearly mode) so the host can offer load controls.
	YearManifest map[string][]string `json:"year_manifest,omitempty"`
	LatestYear   string              `json:"latest_year,omitempty"`
	LatestMonth  string              `json:"latest_month,omitempty"`
	LoadedYears  []string            `json:"loaded_years"`
}

// Results answers one Query.
type Results struct {
	QueryID       string              `json:"query_id"`
	PaginatedData []record.Record     `json:"paginated_data"`
	FilteredCount int                 `json:"filtered_count"`
	TotalPages    int                 `json:"total_pages"`
	Stats         aggregate.Stats     `json:"stats"`
	ChartData     aggregate.ChartData `json:"chart_data"`
}

// ExportResult answers one Export.
type ExportResult struct {
	RequestID string `json:"request_id"`
	CSV       string `json:"csv"`
}

// YearLoading marks the start of a genuine (non-cached) year load.
type YearLoading struct {
	Year string `json:"year"`
}

// YearLoaded marks a year fully in memory: every chunk beneath it loaded.
type YearLoaded struct {
	Year          string   `json:"year"`
	LoadedYears   []string `json:"loaded_years"`
	TotalInMemory int      `json:"total_in_memory"`
}

// MonthLoading marks the start of a genuine month chunk fetch.
type MonthLoading struct {
	Year  string `json:"year"`
	Month string `json:"month"`
}

// MonthLoaded marks one month chunk merged into the store.
type MonthLoaded struct {
	Year          string   `json:"year"`
	Month         string   `json:"month"`
	LoadedMonths  []string `json:"loaded_months"`
	LoadedYears   []string `json:"loaded_years"`
	TotalInMemory int      `json:"total_in_memory"`
}

// AllYearsLoaded marks the completion of LoadAllYears.
type AllYearsLoaded struct {
	LoadedYears   []string `json:"loaded_years"`
	TotalInMemory int      `json:"total_in_memory"`
}

// Error reports any failure. Fatal is true only for initialization
// failures, after which the session is unusable without a fresh Init.
// QueryID tags errors back to the originating request when one carried a
// correlation id.
type Error struct {
	QueryID   string `json:"query_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	Fatal     bool   `json:"fatal,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (Loading) isEvent()        {}
func (Ready) isEvent()          {}
func (Results) isEvent()        {}
func (ExportResult) isEvent()   {}
func (YearLoading) isEvent()    {}
func (YearLoaded) isEvent()     {}
func (MonthLoading) isEvent()   {}
func (MonthLoaded) isEvent()    {}
func (AllYearsLoaded) isEvent() {}
func (Error) isEvent()          {}
