// Package export serializes a filtered, sorted record set to flat delimited
// text for download. It works synchronously over the already-loaded store
// and never triggers new loads.
package export

import (
	"strconv"
	"strings"

	"github.com/civiclens/spendengine/internal/record"
)

// Columns is the fixed header row: eight canonical columns, in this order.
var Columns = []string{
	"Date",
	"Supplier",
	"Amount",
	"Type",
	"Financial Year",
	"Service Division",
	"Expenditure Category",
	"Transaction Ref",
}

// CSV renders records in the given order, one row each, every field
// individually quoted.
//
// Known limitation, kept for compatibility with the published exports this
// replaces: embedded quote characters inside a field are NOT escaped, so a
// field containing `"` produces a row some strict parsers will reject.
// Embedded commas are safe (fields are quoted); embedded quotes are not.
func CSV(recs []record.Record) string {
	var b strings.Builder
	b.Grow((len(recs) + 1) * 96)

	writeRow(&b, Columns)
	for _, r := range recs {
		writeRow(&b, []string{
			r.Date,
			r.Supplier,
			strconv.FormatFloat(r.Amount, 'f', 2, 64),
			string(r.Type),
			r.FinancialYear,
			r.ServiceDivision,
			r.ExpenditureCategory,
			r.TransactionRef,
		})
	}
	return b.String()
}

func writeRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(f)
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}
