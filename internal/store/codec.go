package store

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/payload"
)

func encodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	return b, eris.Wrap(err, "store: encode json")
}

// encodePayload returns nil for a null payload so the column stays NULL.
func encodePayload(v payload.Value) ([]byte, error) {
	if v.IsNull() {
		return nil, nil
	}
	return encodeJSON(v)
}

func decodePayload(b []byte) (payload.Value, error) {
	var v payload.Value
	if len(b) == 0 {
		return v, nil
	}
	err := json.Unmarshal(b, &v)
	return v, eris.Wrap(err, "store: decode payload")
}

func decodeStrings(b []byte) ([]string, error) {
	out := []string{}
	if len(b) == 0 {
		return out, nil
	}
	err := json.Unmarshal(b, &out)
	return out, eris.Wrap(err, "store: decode string list")
}

func decodeMap(b []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(b) == 0 {
		return out, nil
	}
	err := json.Unmarshal(b, &out)
	return out, eris.Wrap(err, "store: decode raw data")
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// sqliteTime is a fixed-width UTC layout so TEXT columns sort chronologically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	return t, eris.Wrapf(err, "store: parse time %q", s)
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
