// Package manifest resolves how a dataset is physically published: a single
// payload, an enriched monolith with precomputed filter options, year chunks
// (format v3), or month chunks with field-stripping (format v4).
package manifest

import (
	"sort"

	"github.com/civiclens/spendengine/internal/record"
	"github.com/civiclens/spendengine/internal/store"
)

// Mode is the physical layout a dataset resolved to.
type Mode string

const (
	// ModeSingle: no index published; the root payload holds every record.
	ModeSingle Mode = "single"
	// ModeYearly: format v3, one chunk file per financial year.
	ModeYearly Mode = "yearly"
	// ModeMonthly: format v4, one chunk file per month, possibly stripped.
	ModeMonthly Mode = "monthly"
)

// Manifest is the index document describing a chunked dataset. It is fetched
// once and immutable thereafter; chunk load state lives in the loader, not
// here.
type Manifest struct {
	FormatVersion int                  `json:"format_version"`
	RecordCount   int                  `json:"record_count"`
	Monthly       bool                 `json:"monthly"`
	Stripped      bool                 `json:"stripped"`
	DatasetID     string               `json:"dataset_id"`
	Years         map[string]YearEntry `json:"years"`
	LatestYear    string               `json:"latest_year"`
	LatestMonth   string               `json:"latest_month"`

	// FilterOptions may be partial; the store grows it as chunks load.
	// Quarter and month values may use legacy numeric encodings, hence
	// the loose typing; the resolver normalizes them to label form.
	FilterOptions *wireFilterOptions `json:"filter_options"`
}

// YearEntry is either a direct chunk file reference (v3) or a map of month
// key ("YYYY-MM") to month entries (v4).
type YearEntry struct {
	File   string                `json:"file,omitempty"`
	Months map[string]MonthEntry `json:"months,omitempty"`
}

// MonthEntry is a chunk file reference for one month.
type MonthEntry struct {
	File string `json:"file"`
}

// YearKeys returns the manifest's financial-year keys in ascending order.
// Financial-year keys ("2019-20") order correctly as strings.
func (m *Manifest) YearKeys() []string {
	keys := make([]string, 0, len(m.Years))
	for k := range m.Years {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MonthKeys returns the month keys under one year in ascending order, or
// nil for a v3 year entry.
func (m *Manifest) MonthKeys(year string) []string {
	entry, ok := m.Years[year]
	if !ok || entry.Months == nil {
		return nil
	}
	keys := make([]string, 0, len(entry.Months))
	for k := range entry.Months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dataset is the resolver's outcome: the classified layout plus everything
// the engine needs to start serving.
type Dataset struct {
	Mode      Mode
	Manifest  *Manifest // nil in single mode
	DatasetID string
	Stripped  bool

	// RecordCount is the manifest's declared total. Informational only;
	// never trusted for allocation.
	RecordCount int

	Options store.FilterOptions

	// Records holds the full payload in single mode, already hydrated.
	Records []record.Record

	// RootPath is the dataset root in the fetcher's path space; chunk
	// references resolve relative to it.
	RootPath string
}
