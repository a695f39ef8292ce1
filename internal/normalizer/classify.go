package normalizer

import "strings"

// rule maps any of its substrings to a value. Rules are checked in order.
type rule[T any] struct {
	substrings []string
	value      T
}

func classify[T any](s string, rules []rule[T], fallback T) T {
	if s == "" {
		return fallback
	}
	s = strings.ToLower(s)
	for _, r := range rules {
		for _, sub := range r.substrings {
			if strings.Contains(s, sub) {
				return r.value
			}
		}
	}
	return fallback
}

func intp(n int) *int { return &n }
