// Package syslog extracts the useful parts of BSD-style syslog fragments
// emitted by firewalls and network devices: the priority tag, the
// "Mon D HH:MM:SS host" prefix and any key=value tokens.
package syslog

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	priorityPattern = regexp.MustCompile(`^<\d+>`)
	prefixPattern   = regexp.MustCompile(`^(\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+`)
	kvPattern       = regexp.MustCompile(`(\w+)=([^\s]+)`)
)

// YearPolicy decides which year a yearless syslog timestamp belongs to.
type YearPolicy int

const (
	// YearCurrent always uses the current calendar year.
	YearCurrent YearPolicy = iota
	// YearRollback uses the current year unless that puts the timestamp
	// more than a day in the future, in which case the previous year is used.
	YearRollback
)

// ParseYearPolicy maps a config value to a YearPolicy.
func ParseYearPolicy(s string) (YearPolicy, error) {
	switch strings.ToLower(s) {
	case "", "current":
		return YearCurrent, nil
	case "rollback":
		return YearRollback, nil
	}
	return YearCurrent, fmt.Errorf("unknown syslog year policy %q (valid: current, rollback)", s)
}

// Fragment is the result of parsing one syslog line.
// Timestamp is nil when the line had no recognizable prefix.
type Fragment struct {
	Timestamp *time.Time
	Hostname  string
	Fields    map[string]string
}

// First returns the value of the first key present with a non-empty value.
func (f Fragment) First(keys ...string) string {
	for _, k := range keys {
		if v := f.Fields[k]; v != "" {
			return v
		}
	}
	return ""
}

// Parser parses syslog fragments. The zero value is not usable; call NewParser.
type Parser struct {
	policy YearPolicy
	now    func() time.Time
}

// NewParser returns a Parser using the wall clock.
func NewParser(policy YearPolicy) *Parser {
	return &Parser{policy: policy, now: time.Now}
}

// WithClock returns a copy of p using now as the current time.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	cp := *p
	cp.now = now
	return &cp
}

// Parse never fails. Lines without a prefix still yield their key=value
// fields; duplicate keys keep the last value.
func (p *Parser) Parse(text string) Fragment {
	frag := Fragment{Fields: make(map[string]string)}

	rest := priorityPattern.ReplaceAllString(text, "")

	if m := prefixPattern.FindStringSubmatch(rest); m != nil {
		frag.Hostname = m[2]
		if ts, err := p.parseTimestamp(m[1]); err == nil {
			frag.Timestamp = &ts
		}
		rest = rest[len(m[0]):]
	}

	for _, kv := range kvPattern.FindAllStringSubmatch(rest, -1) {
		frag.Fields[kv[1]] = kv[2]
	}

	return frag
}

func (p *Parser) parseTimestamp(prefix string) (time.Time, error) {
	now := p.now().UTC()
	compact := strings.Join(strings.Fields(prefix), " ")

	ts, err := time.ParseInLocation("Jan 2 15:04:05 2006", fmt.Sprintf("%s %d", compact, now.Year()), time.UTC)
	if err != nil {
		return time.Time{}, err
	}

	if p.policy == YearRollback && ts.After(now.Add(24*time.Hour)) {
		ts = ts.AddDate(-1, 0, 0)
	}
	return ts, nil
}
