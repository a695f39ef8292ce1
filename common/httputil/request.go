package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// DefaultMaxBodyBytes caps request bodies read by DecodeJSON.
const DefaultMaxBodyBytes = 10 << 20

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON decodes the request body into v. Numbers are kept as
// json.Number so large integers and epoch timestamps survive untouched.
func DecodeJSON(r *http.Request, v any, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return fmt.Errorf("request body exceeds %d bytes", maxBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseIntParam returns s as an int, or fallback when s is empty or not a number.
func ParseIntParam(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// ParseOptionalInt64 parses s as an int64. Empty input and the literal
// "all" yield nil.
func ParseOptionalInt64(s string) (*int64, error) {
	if s == "" || s == "all" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return &v, nil
}

// Pagination is the page window of a list response. Total is filled in by
// the handler once the result count is known.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// ParsePagination reads ?page and ?limit. A missing or non-positive limit
// becomes defLimit; anything above maxLimit is clamped. Pages start at 1.
func ParsePagination(r *http.Request, defLimit, maxLimit int) Pagination {
	q := r.URL.Query()
	p := Pagination{
		Page:  ParseIntParam(q.Get("page"), 1),
		Limit: ParseIntParam(q.Get("limit"), defLimit),
	}
	switch {
	case p.Limit < 1:
		p.Limit = defLimit
	case p.Limit > maxLimit:
		p.Limit = maxLimit
	}
	p.Page = max(p.Page, 1)
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}
