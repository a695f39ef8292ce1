package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// lookup resolves a dotted path such as "userIdentity.userName".
func lookup(m map[string]any, path string) any {
	if v, ok := m[path]; ok {
		return v
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil
	}
	child, ok := m[head].(map[string]any)
	if !ok {
		return nil
	}
	return lookup(child, rest)
}

// present reports whether v carries a usable value. Empty strings, zero
// numbers, false and nil do not.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	}
	return true
}

// firstValue returns the first present value among keys.
func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v := lookup(m, k); present(v) {
			return v
		}
	}
	return nil
}

// firstString returns the first present value among keys rendered as text.
func firstString(m map[string]any, keys ...string) string {
	return toString(firstValue(m, keys...))
}

// firstInt returns the first value among keys that converts to an integer.
// Unlike firstValue, a numeric zero counts: severity 0 is a real severity.
func firstInt(m map[string]any, keys ...string) *int {
	for _, k := range keys {
		v := lookup(m, k)
		if v == nil || v == "" {
			continue
		}
		if n, ok := toInt(v); ok {
			return &n
		}
	}
	return nil
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case int32:
		return int(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), true
		}
		if f, err := x.Float64(); err == nil {
			return int(f), true
		}
	case string:
		return parseInt(x)
	}
	return 0, false
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f), true
	}
	return 0, false
}

// intField parses a syslog field value, returning nil when absent or not numeric.
func intField(s string) *int {
	n, ok := parseInt(s)
	if !ok {
		return nil
	}
	return &n
}

// tagsFor renders prefix:value tags, skipping absent values.
func tagsFor(pairs ...[2]string) []string {
	var tags []string
	for _, p := range pairs {
		if p[1] != "" {
			tags = append(tags, p[0]+":"+p[1])
		}
	}
	return tags
}
