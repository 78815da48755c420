package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Command
	}{
		{"init", `{"type":"INIT","url":"https://e.org/d.json"}`, Init{URL: "https://e.org/d.json"}},
		{"query", `{"type":"QUERY","query_id":"q1","page":2,"page_size":25}`, Query{QueryID: "q1", Page: 2, PageSize: 25}},
		{"export", `{"type":"EXPORT","sort_field":"amount"}`, Export{SortField: "amount"}},
		{"load year", `{"type":"LOAD_YEAR","year":"2024-25"}`, LoadYear{Year: "2024-25"}},
		{"load month", `{"type":"LOAD_MONTH","year":"2025-26","month":"2026-01"}`, LoadMonth{Year: "2025-26", Month: "2026-01"}},
		{"load all", `{"type":"LOAD_ALL_YEARS"}`, LoadAllYears{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.in))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeCommand_QueryFilters(t *testing.T) {
	in := `{"type":"QUERY","query_id":"q9","filters":{"financial_year":"2024-25","min_amount":100}}`
	got, err := DecodeCommand([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	q, ok := got.(Query)
	if !ok {
		t.Fatalf("decoded %T, want Query", got)
	}
	if q.Filters.FinancialYear != "2024-25" {
		t.Errorf("financial year filter = %q", q.Filters.FinancialYear)
	}
	if q.Filters.MinAmount == nil || *q.Filters.MinAmount != 100 {
		t.Errorf("min amount filter = %v", q.Filters.MinAmount)
	}
}

func TestDecodeCommand_Unknown(t *testing.T) {
	if _, err := DecodeCommand([]byte(`{"type":"NOPE"}`)); err == nil {
		t.Fatal("expected error for unknown command type")
	}
	if _, err := DecodeCommand([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestEncodeEvent_RoundTripShape(t *testing.T) {
	events := []Event{
		Loading{},
		Ready{TotalRecords: 3, Chunked: true, Monthly: true, LoadedYears: []string{}},
		YearLoading{Year: "2024-25"},
		MonthLoaded{Year: "2025-26", Month: "2026-01", LoadedMonths: []string{"2026-01"}, LoadedYears: []string{}, TotalInMemory: 9},
		AllYearsLoaded{LoadedYears: []string{"2024-25"}, TotalInMemory: 100},
		Error{QueryID: "q1", Message: "boom"},
	}
	wantTags := []string{
		TagLoading, TagReady, TagYearLoading, TagMonthLoaded, TagAllYearsLoaded, TagError,
	}

	for i, e := range events {
		data, err := EncodeEvent(e)
		if err != nil {
			t.Fatalf("encode %T: %v", e, err)
		}
		var env map[string]interface{}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("envelope for %T is not valid JSON: %v\n%s", e, err, data)
		}
		if env["type"] != wantTags[i] {
			t.Errorf("tag for %T = %v, want %s", e, env["type"], wantTags[i])
		}
	}
}

func TestEncodeEvent_PayloadFieldsInlined(t *testing.T) {
	data, err := EncodeEvent(YearLoaded{Year: "2024-25", LoadedYears: []string{"2024-25"}, TotalInMemory: 42})
	if err != nil {
		t.Fatal(err)
	}
	var env struct {
		Type          string   `json:"type"`
		Year          string   `json:"year"`
		LoadedYears   []string `json:"loaded_years"`
		TotalInMemory int      `json:"total_in_memory"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TagYearLoaded || env.Year != "2024-25" || env.TotalInMemory != 42 {
		t.Errorf("decoded envelope = %+v", env)
	}
}
