package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// isoLayouts are tried in order for values containing a 'T'.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
}

const dateLayout = "2006-01-02"

// ParseTimestamp parses an ISO-8601 date-time (any value containing 'T',
// a trailing 'Z' meaning UTC) or a bare YYYY-MM-DD date. Values without
// a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if !strings.Contains(s, "T") {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		return t, nil
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}

// Timestamp is a post timestamp as received from a scraper or a stored
// document. It keeps the raw value when it could not be parsed so the
// document round-trips unchanged.
type Timestamp struct {
	t   time.Time
	raw string
}

// NewTimestamp wraps an already-typed instant.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t}
}

// TimestampFromString parses s, remembering it verbatim when it is invalid.
func TimestampFromString(s string) Timestamp {
	t, err := ParseTimestamp(s)
	if err != nil {
		return Timestamp{raw: s}
	}
	return Timestamp{t: t}
}

// Time returns the instant and whether the timestamp is usable.
func (ts Timestamp) Time() (time.Time, bool) {
	return ts.t, !ts.t.IsZero()
}

// IsZero reports whether no timestamp was provided at all.
func (ts Timestamp) IsZero() bool {
	return ts.t.IsZero() && ts.raw == ""
}

func (ts Timestamp) String() string {
	if !ts.t.IsZero() {
		return ts.t.Format(time.RFC3339Nano)
	}
	return ts.raw
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.String())
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	*ts = Timestamp{}

	if string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Wrong type: keep it so the filter can drop the post.
		ts.raw = string(data)
		return nil
	}
	if s == "" {
		return nil
	}

	*ts = TimestampFromString(s)
	return nil
}
