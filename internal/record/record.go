// Package record defines the canonical transaction record and the hydration
// boundary that restores stripped wire encodings. Everything downstream of
// Hydrate sees fully-populated records and never asks whether a field was
// present on the wire.
package record

import (
	"fmt"
	"time"
)

// Type classifies a transaction.
type Type string

const (
	TypeSpend    Type = "spend"
	TypeContract Type = "contract"
	TypeCard     Type = "purchase-card"
)

// ParseType normalizes a wire type value. Unknown values pass through
// unchanged so bad source data stays visible rather than being folded
// into a known bucket.
func ParseType(s string) Type {
	switch s {
	case "", string(TypeSpend), "expenditure":
		return TypeSpend
	case string(TypeContract):
		return TypeContract
	case string(TypeCard), "card":
		return TypeCard
	default:
		return Type(s)
	}
}

// Record is one public-body transaction. Chunk files decode directly into
// this type; stripped encodings simply leave fields at their zero value,
// which Hydrate then resolves.
type Record struct {
	Date                string  `json:"date"`
	Supplier            string  `json:"supplier"`
	CanonicalSupplier   string  `json:"canonical_supplier,omitempty"`
	Amount              float64 `json:"amount"`
	Type                Type    `json:"type,omitempty"`
	FinancialYear       string  `json:"financial_year,omitempty"`
	Quarter             int     `json:"quarter,omitempty"`
	Month               int     `json:"month,omitempty"`
	ServiceDivision     string  `json:"service_division,omitempty"`
	ExpenditureCategory string  `json:"expenditure_category,omitempty"`
	OrganisationalUnit  string  `json:"organisational_unit,omitempty"`
	Department          string  `json:"department,omitempty"`
	CapitalRevenue      string  `json:"capital_revenue,omitempty"`
	TransactionRef      string  `json:"transaction_ref,omitempty"`
	Body                string  `json:"body,omitempty"`
}

// dateLayouts are tried in order when parsing record dates. Council
// publications mix ISO and UK day-first forms.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// ParseDate parses a record date string. ok is false when the date is
// missing or in none of the known layouts.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FinancialYearOf returns the April–March financial year key for a date,
// e.g. January 2026 -> "2025-26".
func FinancialYearOf(t time.Time) string {
	y := t.Year()
	if t.Month() < time.April {
		y--
	}
	return fmt.Sprintf("%d-%02d", y, (y+1)%100)
}

// QuarterOf returns the financial-year quarter (1–4) for a calendar month,
// with Q1 starting in April. Returns 0 for an invalid month.
func QuarterOf(month int) int {
	if month < 1 || month > 12 {
		return 0
	}
	// Shift so April=0 ... March=11.
	return (month+8)%12/3 + 1
}

// QuarterLabel formats a quarter number as the label used in filter options.
func QuarterLabel(q int) string {
	return fmt.Sprintf("Q%d", q)
}

// QuarterLabels is the fixed label set every dataset exposes, loaded or not.
func QuarterLabels() []string {
	return []string{"Q1", "Q2", "Q3", "Q4"}
}

// MonthLabel formats a calendar month number as the label used in filter
// options and query predicates. Out-of-range months yield an empty label.
func MonthLabel(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return time.Month(m).String()
}

// MonthKey formats a date as the "YYYY-MM" key used for month chunks and
// the monthly chart series.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
