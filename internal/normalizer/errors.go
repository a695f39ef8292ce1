package normalizer

import (
	"fmt"
	"strings"

	"github.com/telhawk-systems/centrallog/internal/models"
)

// ValidationError reports envelope fields that are missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// UnsupportedSourceError reports a source tag with no normalizer.
type UnsupportedSourceError struct {
	Source    string
	Supported []models.Source
}

func (e *UnsupportedSourceError) Error() string {
	names := make([]string, len(e.Supported))
	for i, s := range e.Supported {
		names[i] = string(s)
	}
	return fmt.Sprintf("unsupported log source %q (supported: %s)", e.Source, strings.Join(names, ", "))
}

// NormalizationError reports a source-specific transform that could not
// produce a valid record.
type NormalizationError struct {
	Source models.Source
	Err    error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("failed to normalize %s event: %v", e.Source, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}
