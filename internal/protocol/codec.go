package protocol

import (
	"encoding/json"
	"fmt"
)

// Wire type tags. Commands and events share one envelope shape:
// {"type": "<TAG>", ...payload fields inlined...}.
const (
	TagInit         = "INIT"
	TagQuery        = "QUERY"
	TagExport       = "EXPORT"
	TagLoadYear     = "LOAD_YEAR"
	TagLoadMonth    = "LOAD_MONTH"
	TagLoadAllYears = "LOAD_ALL_YEARS"

	TagLoading        = "LOADING"
	TagReady          = "READY"
	TagResults        = "RESULTS"
	TagExportResult   = "EXPORT_RESULT"
	TagYearLoading    = "YEAR_LOADING"
	TagYearLoaded     = "YEAR_LOADED"
	TagMonthLoading   = "MONTH_LOADING"
	TagMonthLoaded    = "MONTH_LOADED"
	TagAllYearsLoaded = "ALL_YEARS_LOADED"
	TagError          = "ERROR"
)

type envelope struct {
	Type string `json:"type"`
}

// DecodeCommand parses one wire envelope into its command variant.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed command envelope: %w", err)
	}

	decode := func(cmd Command) (Command, error) {
		if err := json.Unmarshal(data, cmd); err != nil {
			return nil, fmt.Errorf("malformed %s command: %w", env.Type, err)
		}
		return cmd, nil
	}

	switch env.Type {
	case TagInit:
		c, err := decode(&Init{})
		return deref(c), err
	case TagQuery:
		c, err := decode(&Query{})
		return deref(c), err
	case TagExport:
		c, err := decode(&Export{})
		return deref(c), err
	case TagLoadYear:
		c, err := decode(&LoadYear{})
		return deref(c), err
	case TagLoadMonth:
		c, err := decode(&LoadMonth{})
		return deref(c), err
	case TagLoadAllYears:
		return LoadAllYears{}, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", env.Type)
	}
}

// deref unwraps the pointer DecodeCommand decoded into, so consumers always
// see value variants.
func deref(c Command) Command {
	switch v := c.(type) {
	case *Init:
		return *v
	case *Query:
		return *v
	case *Export:
		return *v
	case *LoadYear:
		return *v
	case *LoadMonth:
		return *v
	default:
		return c
	}
}

// EncodeEvent renders one event as a wire envelope.
func EncodeEvent(e Event) ([]byte, error) {
	tag, err := EventTag(e)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", tag, err)
	}

	// Splice the type tag into the payload object.
	if string(payload) == "{}" {
		return []byte(fmt.Sprintf(`{"type":%q}`, tag)), nil
	}
	out := append([]byte(fmt.Sprintf(`{"type":%q,`, tag)), payload[1:]...)
	return out, nil
}

// EventTag returns the wire tag for an event variant.
func EventTag(e Event) (string, error) {
	switch e.(type) {
	case Loading:
		return TagLoading, nil
	case Ready:
		return TagReady, nil
	case Results:
		return TagResults, nil
	case ExportResult:
		return TagExportResult, nil
	case YearLoading:
		return TagYearLoading, nil
	case YearLoaded:
		return TagYearLoaded, nil
	case MonthLoading:
		return TagMonthLoading, nil
	case MonthLoaded:
		return TagMonthLoaded, nil
	case AllYearsLoaded:
		return TagAllYearsLoaded, nil
	case Error:
		return TagError, nil
	default:
		return "", fmt.Errorf("unknown event variant %T", e)
	}
}
