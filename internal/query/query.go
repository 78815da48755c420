// Package query filters, searches, sorts and paginates whatever subset of
// the dataset is currently in the store. Queries are read-only: they never
// trigger loads, and unloaded periods simply contribute no matching records.
package query

import (
	"math"
	"sort"
	"strings"

	engerr "github.com/civiclens/spendengine/internal/errors"
	"github.com/civiclens/spendengine/internal/record"
)

// Filters is the conjunction of per-dimension predicates. Zero values mean
// "no constraint" on that dimension.
type Filters struct {
	FinancialYear       string   `json:"financial_year,omitempty"`
	Quarter             string   `json:"quarter,omitempty"`
	Month               string   `json:"month,omitempty"`
	Type                string   `json:"type,omitempty"`
	ServiceDivision     string   `json:"service_division,omitempty"`
	ExpenditureCategory string   `json:"expenditure_category,omitempty"`
	CapitalRevenue      string   `json:"capital_revenue,omitempty"`
	Supplier            string   `json:"supplier,omitempty"`
	MinAmount           *float64 `json:"min_amount,omitempty"`
	MaxAmount           *float64 `json:"max_amount,omitempty"`
}

// Params is one query request, minus the correlation id the router owns.
type Params struct {
	Filters   Filters
	Search    string
	SortField string
	SortDir   string
	Page      int
	PageSize  int
}

// Result is ephemeral: recomputed per query, never cached.
type Result struct {
	// Page is the requested slice of the sorted, filtered set.
	Page []record.Record
	// Filtered is the full sorted, filtered set feeding aggregation,
	// so charts reflect the filter rather than the visible page.
	Filtered      []record.Record
	FilteredCount int
	TotalPages    int
}

// Sort directions and query defaults.
const (
	SortAsc  = "asc"
	SortDesc = "desc"

	DefaultSortField = "date"
	DefaultPageSize  = 50
)

// Run executes one query over a point-in-time view of the store.
func Run(recs []record.Record, p Params) (Result, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize < 1 {
		return Result{}, engerr.NewQueryError(engerr.CodeBadPagination, "page size must be positive")
	}

	filtered := Filter(recs, p.Filters, p.Search)
	if err := Sort(filtered, p.SortField, p.SortDir); err != nil {
		return Result{}, err
	}
	page, totalPages := Paginate(filtered, p.Page, p.PageSize)

	return Result{
		Page:          page,
		Filtered:      filtered,
		FilteredCount: len(filtered),
		TotalPages:    totalPages,
	}, nil
}

// Filter returns a new slice of records matching every set predicate plus,
// when search text is present, a case-insensitive substring match across
// supplier, organisational unit, service division, expenditure category and
// transaction reference.
func Filter(recs []record.Record, f Filters, search string) []record.Record {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]record.Record, 0)
	for _, r := range recs {
		if !matches(r, f) {
			continue
		}
		if needle != "" && !searchMatch(r, needle) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matches(r record.Record, f Filters) bool {
	if f.FinancialYear != "" && r.FinancialYear != f.FinancialYear {
		return false
	}
	if f.Quarter != "" && record.QuarterLabel(r.Quarter) != f.Quarter {
		return false
	}
	if f.Month != "" && record.MonthLabel(r.Month) != f.Month {
		return false
	}
	if f.Type != "" && string(r.Type) != f.Type {
		return false
	}
	if f.ServiceDivision != "" && r.ServiceDivision != f.ServiceDivision {
		return false
	}
	if f.ExpenditureCategory != "" && r.ExpenditureCategory != f.ExpenditureCategory {
		return false
	}
	if f.CapitalRevenue != "" && r.CapitalRevenue != f.CapitalRevenue {
		return false
	}
	if f.Supplier != "" && r.Supplier != f.Supplier {
		return false
	}
	if f.MinAmount != nil && r.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && r.Amount > *f.MaxAmount {
		return false
	}
	return true
}

func searchMatch(r record.Record, needle string) bool {
	for _, field := range []string{
		r.Supplier,
		r.OrganisationalUnit,
		r.ServiceDivision,
		r.ExpenditureCategory,
		r.TransactionRef,
	} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// Sort orders records in place, stably. Amount sorts numerically, date
// chronologically with unparsable or missing dates first ascending; other
// fields sort as strings. The caller passes a filtered copy, so the store
// itself is never reordered.
func Sort(recs []record.Record, field, dir string) error {
	if field == "" {
		field = DefaultSortField
	}
	desc := false
	switch dir {
	case "", SortAsc:
	case SortDesc:
		desc = true
	default:
		return engerr.NewQueryError(engerr.CodeBadQuery, "sort direction must be asc or desc")
	}

	var less func(a, b record.Record) bool
	switch field {
	case "amount":
		less = func(a, b record.Record) bool { return a.Amount < b.Amount }
	case "date":
		less = func(a, b record.Record) bool { return dateRank(a.Date) < dateRank(b.Date) }
	case "supplier":
		less = func(a, b record.Record) bool { return a.Supplier < b.Supplier }
	case "financial_year":
		less = func(a, b record.Record) bool { return a.FinancialYear < b.FinancialYear }
	case "type":
		less = func(a, b record.Record) bool { return a.Type < b.Type }
	case "service_division":
		less = func(a, b record.Record) bool { return a.ServiceDivision < b.ServiceDivision }
	case "expenditure_category":
		less = func(a, b record.Record) bool { return a.ExpenditureCategory < b.ExpenditureCategory }
	default:
		return engerr.New(engerr.ErrCategoryQuery, engerr.CodeBadSortField, "unknown sort field: "+field)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if desc {
			return less(recs[j], recs[i])
		}
		return less(recs[i], recs[j])
	})
	return nil
}

// dateRank maps a date string to a sortable integer. Unparsable and missing
// dates rank below every valid date, so they sort earliest ascending.
func dateRank(s string) int64 {
	t, ok := record.ParseDate(s)
	if !ok {
		return math.MinInt64
	}
	return t.Unix()
}

// Paginate slices one page out of the sorted, filtered set.
// Pages are 1-based; a page past the end yields an empty slice.
func Paginate(recs []record.Record, page, pageSize int) ([]record.Record, int) {
	totalPages := (len(recs) + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start >= len(recs) {
		return []record.Record{}, totalPages
	}
	end := start + pageSize
	if end > len(recs) {
		end = len(recs)
	}
	return recs[start:end], totalPages
}
