package record

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestHydrate_Defaults(t *testing.T) {
	stripped := Record{
		Date:     "2026-01-15",
		Supplier: "ACME LTD",
		Amount:   120.50,
	}

	got := Hydrate(stripped, "exampleshire")

	if got.Type != TypeSpend {
		t.Errorf("type = %q, want %q", got.Type, TypeSpend)
	}
	if got.CapitalRevenue != "Revenue" {
		t.Errorf("capital_revenue = %q, want Revenue", got.CapitalRevenue)
	}
	if got.CanonicalSupplier != "ACME LTD" {
		t.Errorf("canonical_supplier = %q, want supplier value", got.CanonicalSupplier)
	}
	if got.Body != "exampleshire" {
		t.Errorf("body = %q, want dataset id", got.Body)
	}
	if got.Month != 1 {
		t.Errorf("month = %d, want 1 (derived from date)", got.Month)
	}
	if got.Quarter != 4 {
		t.Errorf("quarter = %d, want 4 (January)", got.Quarter)
	}
	if got.FinancialYear != "2025-26" {
		t.Errorf("financial_year = %q, want 2025-26", got.FinancialYear)
	}
}

func TestHydrate_PreservesExplicitFields(t *testing.T) {
	full := Record{
		Date:                "2024-07-01",
		Supplier:            "ACME LTD",
		CanonicalSupplier:   "Acme Limited",
		Amount:              -55,
		Type:                TypeContract,
		FinancialYear:       "2024-25",
		Quarter:             2,
		Month:               7,
		ServiceDivision:     "Adult Services",
		ExpenditureCategory: "Equipment",
		OrganisationalUnit:  "Social Care",
		Department:          "Social Services",
		CapitalRevenue:      "Capital",
		TransactionRef:      "TX-1",
		Body:                "exampleshire",
	}

	if got := Hydrate(full, "otherset"); got != full {
		t.Errorf("hydrating a full record changed it:\n got %+v\nwant %+v", got, full)
	}
}

func TestHydrate_DoesNotMutateInput(t *testing.T) {
	in := Record{Date: "2026-01-15", Supplier: "A"}
	before := in
	_ = Hydrate(in, "ds")
	if in != before {
		t.Error("Hydrate mutated its input")
	}
}

func TestHydrate_UnparsableDate(t *testing.T) {
	got := Hydrate(Record{Date: "not-a-date", Supplier: "A"}, "ds")
	if got.Month != 0 || got.Quarter != 0 || got.FinancialYear != "" {
		t.Errorf("unparsable date should leave derived fields empty, got %+v", got)
	}
}

// Hydration idempotence: hydrate(hydrate(r)) == hydrate(r) field-for-field,
// for arbitrary partially-stripped records.
func TestProperty_HydrateIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("double hydration equals single hydration", prop.ForAll(
		func(supplier, canonical, date string, amount float64, month int, typ string) bool {
			r := Record{
				Date:              date,
				Supplier:          supplier,
				CanonicalSupplier: canonical,
				Amount:            amount,
				Month:             month,
				Type:              Type(typ),
			}
			once := Hydrate(r, "exampleshire")
			twice := Hydrate(once, "exampleshire")
			return once == twice
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.OneConstOf("2026-01-15", "2024-07-01", "31/03/2025", "garbage", ""),
		gen.Float64Range(-1e6, 1e6),
		gen.IntRange(0, 12),
		gen.OneConstOf("", "spend", "contract", "purchase-card", "oddball"),
	))

	properties.TestingRun(t)
}

func TestQuarterOf(t *testing.T) {
	tests := []struct {
		month int
		want  int
	}{
		{4, 1}, {6, 1}, {7, 2}, {9, 2}, {10, 3}, {12, 3}, {1, 4}, {3, 4}, {0, 0}, {13, 0},
	}
	for _, tt := range tests {
		if got := QuarterOf(tt.month); got != tt.want {
			t.Errorf("QuarterOf(%d) = %d, want %d", tt.month, got, tt.want)
		}
	}
}

func TestFinancialYearOf(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2026-01-15", "2025-26"},
		{"2026-04-01", "2026-27"},
		{"2024-03-31", "2023-24"},
		{"31/12/2024", "2024-25"},
	}
	for _, tt := range tests {
		tm, ok := ParseDate(tt.date)
		if !ok {
			t.Fatalf("ParseDate(%q) failed", tt.date)
		}
		if got := FinancialYearOf(tm); got != tt.want {
			t.Errorf("FinancialYearOf(%s) = %q, want %q", tt.date, got, tt.want)
		}
	}
}
