package record

// Stripped chunk files omit any field whose value equals a known default or
// duplicates another field on the same record. The zero value therefore means
// "stripped" for every field below, and Hydrate resolves it:
//
//	type                -> ordinary spend
//	capital_revenue     -> "Revenue"
//	canonical_supplier  -> same as supplier
//	department          -> same as organisational unit (legacy alias)
//	month               -> derived from the date string
//	quarter             -> derived from the month
//	financial_year      -> derived from the date string
//	body                -> the dataset-wide publishing body (always stripped)
//
// Hydrate is pure and idempotent: it never mutates its input, and hydrating
// an already-hydrated record returns it unchanged.
func Hydrate(r Record, datasetID string) Record {
	if r.Type == "" {
		r.Type = TypeSpend
	} else {
		r.Type = ParseType(string(r.Type))
	}
	if r.CapitalRevenue == "" {
		r.CapitalRevenue = "Revenue"
	}
	if r.CanonicalSupplier == "" {
		r.CanonicalSupplier = r.Supplier
	}
	if r.Department == "" {
		r.Department = r.OrganisationalUnit
	}
	if r.Body == "" {
		r.Body = datasetID
	}

	if r.Month == 0 || r.FinancialYear == "" {
		if t, ok := ParseDate(r.Date); ok {
			if r.Month == 0 {
				r.Month = int(t.Month())
			}
			if r.FinancialYear == "" {
				r.FinancialYear = FinancialYearOf(t)
			}
		}
	}
	if r.Quarter == 0 {
		r.Quarter = QuarterOf(r.Month)
	}
	return r
}

// HydrateAll hydrates a decoded chunk in place-order, returning a new slice.
func HydrateAll(recs []Record, datasetID string) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = Hydrate(r, datasetID)
	}
	return out
}
