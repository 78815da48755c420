// Package aggregate computes the statistics and chart inputs for a filtered
// record set in a single linear pass, scaling from one month of data to the
// full history. Identical input multisets yield identical output.
package aggregate

import (
	"math"
	"sort"

	"github.com/civiclens/spendengine/internal/record"
)

// Stats summarizes the amounts of one filtered set.
type Stats struct {
	Total           float64            `json:"total"`
	Count           int                `json:"count"`
	UniqueSuppliers int                `json:"unique_suppliers"`
	ByType          map[string]float64 `json:"by_type"`
	Min             float64            `json:"min"`
	Max             float64            `json:"max"`
	Mean            float64            `json:"mean"`
	Median          float64            `json:"median"`
	P10             float64            `json:"p10"`
	P25             float64            `json:"p25"`
	P75             float64            `json:"p75"`
	P90             float64            `json:"p90"`
	StdDev          float64            `json:"std_dev"`
	Gini            float64            `json:"gini"`
}

// YearPoint is one bar of the spend-by-financial-year chart.
type YearPoint struct {
	Year    string  `json:"year"`
	Amount  float64 `json:"amount"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// LabelPoint is one bar of a label/amount chart.
type LabelPoint struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// SupplierPoint is one bar of the top-suppliers chart.
type SupplierPoint struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
	Count  int     `json:"count"`
}

// MonthPoint is one point of the monthly series.
type MonthPoint struct {
	Month         string  `json:"month"`
	Amount        float64 `json:"amount"`
	Count         int     `json:"count"`
	MovingAverage float64 `json:"moving_average"`
}

// ChartData holds every chart input derived from the same pass.
type ChartData struct {
	ByYear        []YearPoint     `json:"by_year"`
	TopCategories []LabelPoint    `json:"top_categories"`
	TopServices   []LabelPoint    `json:"top_services"`
	TopSuppliers  []SupplierPoint `json:"top_suppliers"`
	ByType        []LabelPoint    `json:"by_type"`
	Monthly       []MonthPoint    `json:"monthly"`
}

const (
	topN = 10
	// monthlyCap bounds the monthly series to the most recent 36 months.
	monthlyCap = 36
	// movingWindow is the trailing moving-average window on the series.
	movingWindow = 3
	// labelMax is where chart labels are cut for service divisions and
	// suppliers.
	labelMax = 32
)

type bucket struct {
	amount float64
	count  int
}

// Aggregate computes stats and chart data for a filtered set.
func Aggregate(recs []record.Record) (Stats, ChartData) {
	stats := Stats{ByType: make(map[string]float64)}
	if len(recs) == 0 {
		return stats, ChartData{
			ByYear:        []YearPoint{},
			TopCategories: []LabelPoint{},
			TopServices:   []LabelPoint{},
			TopSuppliers:  []SupplierPoint{},
			ByType:        []LabelPoint{},
			Monthly:       []MonthPoint{},
		}
	}

	amounts := make([]float64, 0, len(recs))
	supplierTotals := make(map[string]*bucket)
	byYear := make(map[string]*bucket)
	byCategory := make(map[string]float64)
	byService := make(map[string]float64)
	byType := make(map[string]float64)
	byMonth := make(map[string]*bucket)

	// Welford's online algorithm: numerically stable against the
	// cancellation a naive sum-of-squares suffers on large totals.
	var mean, m2 float64
	n := 0

	stats.Min = math.Inf(1)
	stats.Max = math.Inf(-1)

	for _, r := range recs {
		a := r.Amount
		amounts = append(amounts, a)
		stats.Total += a
		if a < stats.Min {
			stats.Min = a
		}
		if a > stats.Max {
			stats.Max = a
		}

		n++
		delta := a - mean
		mean += delta / float64(n)
		m2 += delta * (a - mean)

		accumulate(supplierTotals, r.Supplier, a)
		accumulate(byYear, r.FinancialYear, a)
		byCategory[r.ExpenditureCategory] += a
		byService[r.ServiceDivision] += a
		byType[string(r.Type)] += a
		if t, ok := record.ParseDate(r.Date); ok {
			accumulate(byMonth, record.MonthKey(t), a)
		}
	}

	stats.Count = n
	stats.Mean = mean
	stats.UniqueSuppliers = len(supplierTotals)
	stats.ByType = byType
	if n > 1 {
		stats.StdDev = math.Sqrt(m2 / float64(n-1)) // sample convention
	}

	sort.Float64s(amounts)
	stats.P10 = percentile(amounts, 0.10)
	stats.P25 = percentile(amounts, 0.25)
	stats.Median = percentile(amounts, 0.50)
	stats.P75 = percentile(amounts, 0.75)
	stats.P90 = percentile(amounts, 0.90)
	stats.Gini = gini(supplierTotals)

	charts := ChartData{
		ByYear:        yearSeries(byYear),
		TopCategories: topLabels(byCategory, 0),
		TopServices:   topLabels(byService, labelMax),
		TopSuppliers:  topSuppliers(supplierTotals),
		ByType:        typeSeries(byType),
		Monthly:       monthlySeries(byMonth),
	}
	return stats, charts
}

func accumulate(m map[string]*bucket, key string, amount float64) {
	b, ok := m[key]
	if !ok {
		b = &bucket{}
		m[key] = b
	}
	b.amount += amount
	b.count++
}

// percentile interpolates linearly between order statistics (the common
// "R-7" definition). amounts must be sorted ascending and non-empty.
func percentile(amounts []float64, p float64) float64 {
	if len(amounts) == 1 {
		return amounts[0]
	}
	pos := p * float64(len(amounts)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return amounts[lo]
	}
	frac := pos - float64(lo)
	return amounts[lo]*(1-frac) + amounts[hi]*frac
}

// gini measures supplier concentration over per-supplier totals restricted
// to positive spend, by the rank-weighted sum on sorted totals:
//
//	G = (2 * Σ i·xᵢ) / (n * Σ xᵢ) − (n+1)/n    (i = 1..n, x ascending)
//
// This is the population convention (no n/(n−1) correction); 0 means spend
// spread evenly across suppliers, values near 1 mean one supplier dominates.
func gini(supplierTotals map[string]*bucket) float64 {
	totals := make([]float64, 0, len(supplierTotals))
	for _, b := range supplierTotals {
		if b.amount > 0 {
			totals = append(totals, b.amount)
		}
	}
	n := len(totals)
	if n == 0 {
		return 0
	}
	sort.Float64s(totals)

	var sum, weighted float64
	for i, x := range totals {
		sum += x
		weighted += float64(i+1) * x
	}
	if sum == 0 {
		return 0
	}
	g := (2*weighted)/(float64(n)*sum) - float64(n+1)/float64(n)
	return math.Min(1, math.Max(0, g))
}

func yearSeries(byYear map[string]*bucket) []YearPoint {
	keys := sortedMapKeys(byYear)
	out := make([]YearPoint, 0, len(keys))
	for _, k := range keys {
		b := byYear[k]
		avg := 0.0
		if b.count > 0 {
			avg = b.amount / float64(b.count)
		}
		out = append(out, YearPoint{Year: k, Amount: b.amount, Count: b.count, Average: avg})
	}
	return out
}

// topLabels returns the top-10 labels by amount, ties broken by label so the
// output is deterministic. maxLen > 0 shortens labels for chart axes.
func topLabels(totals map[string]float64, maxLen int) []LabelPoint {
	points := make([]LabelPoint, 0, len(totals))
	for label, amount := range totals {
		if label == "" {
			continue
		}
		points = append(points, LabelPoint{Label: label, Amount: amount})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Amount != points[j].Amount {
			return points[i].Amount > points[j].Amount
		}
		return points[i].Label < points[j].Label
	})
	if len(points) > topN {
		points = points[:topN]
	}
	if maxLen > 0 {
		for i := range points {
			points[i].Label = truncateLabel(points[i].Label, maxLen)
		}
	}
	return points
}

func topSuppliers(totals map[string]*bucket) []SupplierPoint {
	points := make([]SupplierPoint, 0, len(totals))
	for label, b := range totals {
		if label == "" {
			continue
		}
		points = append(points, SupplierPoint{Label: label, Amount: b.amount, Count: b.count})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Amount != points[j].Amount {
			return points[i].Amount > points[j].Amount
		}
		return points[i].Label < points[j].Label
	})
	if len(points) > topN {
		points = points[:topN]
	}
	for i := range points {
		points[i].Label = truncateLabel(points[i].Label, labelMax)
	}
	return points
}

func typeSeries(byType map[string]float64) []LabelPoint {
	keys := make([]string, 0, len(byType))
	for k := range byType {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]LabelPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, LabelPoint{Label: k, Amount: byType[k]})
	}
	return out
}

// monthlySeries renders the most recent 36 months with a trailing 3-month
// moving average; the window shortens at the start of the slice.
func monthlySeries(byMonth map[string]*bucket) []MonthPoint {
	keys := sortedMapKeys(byMonth)
	if len(keys) > monthlyCap {
		keys = keys[len(keys)-monthlyCap:]
	}
	out := make([]MonthPoint, 0, len(keys))
	for i, k := range keys {
		b := byMonth[k]
		lo := i - movingWindow + 1
		if lo < 0 {
			lo = 0
		}
		var window float64
		for j := lo; j <= i; j++ {
			window += byMonth[keys[j]].amount
		}
		out = append(out, MonthPoint{
			Month:         k,
			Amount:        b.amount,
			Count:         b.count,
			MovingAverage: window / float64(i-lo+1),
		})
	}
	return out
}

func truncateLabel(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}

func sortedMapKeys(m map[string]*bucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
