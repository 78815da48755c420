package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	engerr "github.com/civiclens/spendengine/internal/errors"
	"github.com/civiclens/spendengine/internal/fetch"
	"github.com/civiclens/spendengine/internal/record"
	"github.com/civiclens/spendengine/internal/store"
)

// IndexPath derives the index-file path for a dataset root by convention:
// "spending.json" -> "spending.index.json". The snappy suffix, if present,
// is preserved on the root but never expected on the index.
func IndexPath(root string) string {
	base := strings.TrimSuffix(root, ".sz")
	base = strings.TrimSuffix(base, ".json")
	return base + ".index.json"
}

// enrichedPayload is the monolithic root form produced by the enrichment
// pipeline: records plus precomputed filter options under a format marker.
type enrichedPayload struct {
	Meta struct {
		Format      string `json:"format"`
		DatasetID   string `json:"dataset_id"`
		RecordCount int    `json:"record_count"`
	} `json:"meta"`
	Records       []record.Record    `json:"records"`
	FilterOptions *wireFilterOptions `json:"filter_options"`
}

const enrichedMarker = "enriched"

// Resolve classifies a dataset's physical layout. It probes for the index
// file first; when no index is published it falls back to fetching the root
// payload directly, distinguishing the enriched monolith from a bare record
// array. Only when both the index and the root payload are unreachable does
// resolution fail, and that failure is fatal to the session.
func Resolve(ctx context.Context, f fetch.Fetcher, rootPath string) (*Dataset, error) {
	indexPath := IndexPath(rootPath)

	data, err := fetch.Get(ctx, f, indexPath)
	if err != nil || len(data) == 0 {
		if err != nil {
			log.Printf("[manifest] no index at %s (%v), falling back to root payload", indexPath, err)
		}
		return resolveRoot(ctx, f, rootPath)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		log.Printf("[manifest] index at %s unparsable (%v), falling back to root payload", indexPath, err)
		return resolveRoot(ctx, f, rootPath)
	}

	mode := ModeYearly
	if m.Monthly {
		mode = ModeMonthly
	}
	log.Printf("[manifest] %s: format v%d, %s, %d years, stripped=%v",
		rootPath, m.FormatVersion, mode, len(m.Years), m.Stripped)

	ds := &Dataset{
		Mode:        mode,
		Manifest:    &m,
		DatasetID:   m.DatasetID,
		Stripped:    m.Stripped,
		RecordCount: m.RecordCount,
		Options:     normalizeOptions(m.FilterOptions),
		RootPath:    rootPath,
	}
	return ds, nil
}

// resolveRoot handles the non-chunked fallback: the root payload is either
// the enriched monolith or a bare record array.
func resolveRoot(ctx context.Context, f fetch.Fetcher, rootPath string) (*Dataset, error) {
	data, err := fetch.Get(ctx, f, rootPath)
	if err != nil {
		return nil, engerr.NewManifestError(engerr.CodeDatasetUnusable,
			fmt.Sprintf("neither index nor root payload fetchable for %s", rootPath), err)
	}

	var enriched enrichedPayload
	if err := json.Unmarshal(data, &enriched); err == nil && enriched.Meta.Format == enrichedMarker {
		recs := record.HydrateAll(enriched.Records, enriched.Meta.DatasetID)
		count := enriched.Meta.RecordCount
		if count == 0 {
			count = len(recs)
		}
		opts := normalizeOptions(enriched.FilterOptions)
		ensureDerivedOptions(&opts, recs)
		log.Printf("[manifest] %s: enriched monolith, %d records", rootPath, len(recs))
		return &Dataset{
			Mode:        ModeSingle,
			DatasetID:   enriched.Meta.DatasetID,
			RecordCount: count,
			Options:     opts,
			Records:     recs,
			RootPath:    rootPath,
		}, nil
	}

	var bare []record.Record
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, engerr.NewManifestError(engerr.CodeDatasetUnusable,
			fmt.Sprintf("root payload at %s is neither enriched nor a record array", rootPath), err)
	}
	recs := record.HydrateAll(bare, "")
	log.Printf("[manifest] %s: bare record array, %d records", rootPath, len(recs))
	return &Dataset{
		Mode:        ModeSingle,
		RecordCount: len(recs),
		Options:     store.OptionsFromRecords(recs),
		Records:     recs,
		RootPath:    rootPath,
	}, nil
}

// YearChunkPath resolves a v3 year chunk reference against the dataset root.
func (d *Dataset) YearChunkPath(year string) (string, bool) {
	if d.Manifest == nil {
		return "", false
	}
	entry, ok := d.Manifest.Years[year]
	if !ok || entry.File == "" {
		return "", false
	}
	return fetch.Sibling(d.RootPath, entry.File), true
}

// MonthChunkPath resolves a v4 month chunk reference against the dataset root.
func (d *Dataset) MonthChunkPath(year, month string) (string, bool) {
	if d.Manifest == nil {
		return "", false
	}
	entry, ok := d.Manifest.Years[year]
	if !ok {
		return "", false
	}
	me, ok := entry.Months[month]
	if !ok || me.File == "" {
		return "", false
	}
	return fetch.Sibling(d.RootPath, me.File), true
}

// wireFilterOptions tolerates the legacy numeric encodings of quarters and
// months that older enrichment runs emitted.
type wireFilterOptions struct {
	Years                 []string      `json:"years"`
	Quarters              []interface{} `json:"quarters"`
	Months                []interface{} `json:"months"`
	Types                 []string      `json:"types"`
	ServiceDivisions      []string      `json:"service_divisions"`
	ExpenditureCategories []string      `json:"expenditure_categories"`
	CapitalRevenue        []string      `json:"capital_revenue"`
	Suppliers             []string      `json:"suppliers"`
}

// normalizeOptions converts wire filter options into label form. Quarters
// are forced to the fixed four-label set and months are always present
// (possibly empty, to be grown from loaded records).
func normalizeOptions(w *wireFilterOptions) store.FilterOptions {
	opts := store.FilterOptions{
		Quarters: record.QuarterLabels(),
		Months:   []string{},
	}
	if w == nil {
		return opts
	}
	opts.Years = w.Years
	opts.Types = w.Types
	opts.ServiceDivisions = w.ServiceDivisions
	opts.ExpenditureCategories = w.ExpenditureCategories
	opts.CapitalRevenue = w.CapitalRevenue
	opts.Suppliers = w.Suppliers
	for _, v := range w.Months {
		if label := monthToLabel(v); label != "" {
			opts.Months = append(opts.Months, label)
		}
	}
	return opts
}

// monthToLabel maps either a month name or a legacy numeric month to the
// label form used everywhere downstream.
func monthToLabel(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64: // encoding/json decodes all numbers as float64
		return record.MonthLabel(int(x))
	default:
		return ""
	}
}

// ensureDerivedOptions fills option sets the enriched payload left out by
// scanning the records it carried.
func ensureDerivedOptions(opts *store.FilterOptions, recs []record.Record) {
	if len(opts.Months) > 0 && len(opts.Years) > 0 {
		return
	}
	derived := store.OptionsFromRecords(recs)
	if len(opts.Months) == 0 {
		opts.Months = derived.Months
	}
	if len(opts.Years) == 0 {
		opts.Years = derived.Years
	}
}
