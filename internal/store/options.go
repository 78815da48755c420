package store

import (
	"sort"
	"time"

	"github.com/civiclens/spendengine/internal/record"
)

// FilterOptions holds the distinct value sets the host offers as filter
// choices. Sets only ever grow as chunks load; values are never removed
// once observed.
type FilterOptions struct {
	Years                 []string `json:"years"`
	Quarters              []string `json:"quarters"`
	Months                []string `json:"months"`
	Types                 []string `json:"types"`
	ServiceDivisions      []string `json:"service_divisions"`
	ExpenditureCategories []string `json:"expenditure_categories"`
	CapitalRevenue        []string `json:"capital_revenue"`
	Suppliers             []string `json:"suppliers"`
}

// optionIndex accumulates distinct values as records enter the store.
type optionIndex struct {
	years      map[string]struct{}
	months     map[string]struct{}
	types      map[string]struct{}
	services   map[string]struct{}
	categories map[string]struct{}
	capRev     map[string]struct{}
	suppliers  map[string]struct{}
}

func newOptionIndex() *optionIndex {
	return &optionIndex{
		years:      make(map[string]struct{}),
		months:     make(map[string]struct{}),
		types:      make(map[string]struct{}),
		services:   make(map[string]struct{}),
		categories: make(map[string]struct{}),
		capRev:     make(map[string]struct{}),
		suppliers:  make(map[string]struct{}),
	}
}

func (ix *optionIndex) observe(r record.Record) {
	addNonEmpty(ix.years, r.FinancialYear)
	addNonEmpty(ix.months, record.MonthLabel(r.Month))
	addNonEmpty(ix.types, string(r.Type))
	addNonEmpty(ix.services, r.ServiceDivision)
	addNonEmpty(ix.categories, r.ExpenditureCategory)
	addNonEmpty(ix.capRev, r.CapitalRevenue)
	addNonEmpty(ix.suppliers, r.Supplier)
}

// seed unions manifest-supplied options into the index so values from
// not-yet-loaded chunks remain offered.
func (ix *optionIndex) seed(opts FilterOptions) {
	for _, v := range opts.Years {
		addNonEmpty(ix.years, v)
	}
	for _, v := range opts.Months {
		addNonEmpty(ix.months, v)
	}
	for _, v := range opts.Types {
		addNonEmpty(ix.types, v)
	}
	for _, v := range opts.ServiceDivisions {
		addNonEmpty(ix.services, v)
	}
	for _, v := range opts.ExpenditureCategories {
		addNonEmpty(ix.categories, v)
	}
	for _, v := range opts.CapitalRevenue {
		addNonEmpty(ix.capRev, v)
	}
	for _, v := range opts.Suppliers {
		addNonEmpty(ix.suppliers, v)
	}
}

// snapshot renders the accumulated sets as the sorted slices the protocol
// exposes. Quarters are always the fixed four labels regardless of what has
// loaded.
func (ix *optionIndex) snapshot() FilterOptions {
	return FilterOptions{
		Years:                 sortedKeys(ix.years),
		Quarters:              record.QuarterLabels(),
		Months:                sortedMonths(ix.months),
		Types:                 sortedKeys(ix.types),
		ServiceDivisions:      sortedKeys(ix.services),
		ExpenditureCategories: sortedKeys(ix.categories),
		CapitalRevenue:        sortedKeys(ix.capRev),
		Suppliers:             sortedKeys(ix.suppliers),
	}
}

// OptionsFromRecords derives filter options by one scan, used for bare
// record-array datasets that carry no precomputed options.
func OptionsFromRecords(recs []record.Record) FilterOptions {
	ix := newOptionIndex()
	for _, r := range recs {
		ix.observe(r)
	}
	return ix.snapshot()
}

func addNonEmpty(set map[string]struct{}, v string) {
	if v != "" {
		set[v] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// sortedMonths orders month labels by calendar month, with any label that is
// not a month name sorted after, alphabetically.
func sortedMonths(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, aok := monthNumber(out[i])
		b, bok := monthNumber(out[j])
		switch {
		case aok && bok:
			return a < b
		case aok != bok:
			return aok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

func monthNumber(label string) (int, bool) {
	for m := time.January; m <= time.December; m++ {
		if m.String() == label {
			return int(m), true
		}
	}
	return 0, false
}
