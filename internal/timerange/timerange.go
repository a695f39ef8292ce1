// Package timerange parses the relative range tokens used by the read
// APIs ("15m", "last_1h", ...).
package timerange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Range is a resolved relative time range.
type Range struct {
	Token  string
	Window time.Duration
	Bucket time.Duration
}

// ErrInvalidRange is wrapped by every range parsing failure.
var ErrInvalidRange = errors.New("invalid time range")

var ranges = map[string]Range{
	"15m": {Token: "15m", Window: 15 * time.Minute, Bucket: time.Minute},
	"1h":  {Token: "1h", Window: time.Hour, Bucket: time.Minute},
	"24h": {Token: "24h", Window: 24 * time.Hour, Bucket: time.Hour},
	"7d":  {Token: "7d", Window: 7 * 24 * time.Hour, Bucket: 24 * time.Hour},
}

// Default is used for empty tokens.
var Default = ranges["24h"]

// Parse accepts "15m", "1h", "24h", "7d", optionally prefixed with "last_".
// An empty token yields Default.
func Parse(token string) (Range, error) {
	t := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(token)), "last_")
	if t == "" {
		return Default, nil
	}
	r, ok := ranges[t]
	if !ok {
		return Range{}, fmt.Errorf("%w %q (valid: 15m, 1h, 24h, 7d)", ErrInvalidRange, token)
	}
	return r, nil
}

// ParseOrDefault is Parse with unknown tokens mapped to Default.
func ParseOrDefault(token string) Range {
	r, err := Parse(token)
	if err != nil {
		return Default
	}
	return r
}

// Since returns the start of the range ending at now.
func (r Range) Since(now time.Time) time.Time {
	return now.Add(-r.Window)
}
