// Package timestamp turns the assorted time representations found in
// vendor payloads into time.Time. It never fails: anything it cannot read
// becomes "now".
package timestamp

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// secondsCutoff separates epoch seconds from epoch milliseconds.
const secondsCutoff = 100_000_000_000

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
}

// Normalizer converts loosely typed timestamps.
type Normalizer struct {
	now func() time.Time
}

// New returns a Normalizer using the wall clock.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewWithClock returns a Normalizer whose fallback time comes from now.
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Now returns the normalizer's current time in UTC.
func (n *Normalizer) Now() time.Time {
	return n.now().UTC()
}

// Normalize applies, in order: time values as-is, empty to now, calendar
// strings, numeric epochs (seconds below 1e11, milliseconds otherwise),
// and finally now.
func (n *Normalizer) Normalize(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return n.Now()
		}
		return t
	case *time.Time:
		if t == nil || t.IsZero() {
			return n.Now()
		}
		return *t
	case nil:
		return n.Now()
	case string:
		return n.fromString(t)
	case json.Number:
		return n.fromString(t.String())
	case float64:
		return n.fromFloat(t)
	case float32:
		return n.fromFloat(float64(t))
	case int:
		return fromEpoch(int64(t))
	case int32:
		return fromEpoch(int64(t))
	case int64:
		return fromEpoch(t)
	case uint:
		return fromEpoch(int64(t))
	case uint32:
		return fromEpoch(int64(t))
	case uint64:
		return fromEpoch(int64(t))
	}
	return n.Now()
}

func (n *Normalizer) fromString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return n.Now()
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromEpoch(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return n.fromFloat(f)
	}
	return n.Now()
}

func (n *Normalizer) fromFloat(f float64) time.Time {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return n.Now()
	}
	if f < secondsCutoff {
		return time.UnixMilli(int64(math.Round(f * 1000))).UTC()
	}
	return time.UnixMilli(int64(f)).UTC()
}

func fromEpoch(i int64) time.Time {
	if i < secondsCutoff {
		return time.Unix(i, 0).UTC()
	}
	return time.UnixMilli(i).UTC()
}
