package normalizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/telhawk-systems/centrallog/internal/models"
)

// Router dispatches raw events to the normalizer registered for their
// source tag and validates the result.
type Router struct {
	normalizers map[models.Source]Normalizer
	validate    *validator.Validate
}

func NewRouter(normalizers ...Normalizer) *Router {
	r := &Router{
		normalizers: make(map[models.Source]Normalizer, len(normalizers)),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, n := range normalizers {
		r.normalizers[n.Source()] = n
	}
	return r
}

// Supported lists the registered sources in canonical order.
func (r *Router) Supported() []models.Source {
	var out []models.Source
	for _, s := range models.Sources {
		if _, ok := r.normalizers[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Route normalizes one raw event.
func (r *Router) Route(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	tenant := toString(raw["tenant"])
	source := toString(raw["source"])

	var missing []string
	if tenant == "" {
		missing = append(missing, "tenant")
	}
	if source == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	n, ok := r.normalizers[models.Source(source)]
	if !ok {
		return nil, &UnsupportedSourceError{Source: source, Supported: r.Supported()}
	}

	rec, err := n.Normalize(ctx, raw)
	if err != nil {
		var ne *NormalizationError
		if errors.As(err, &ne) {
			return nil, err
		}
		return nil, &NormalizationError{Source: n.Source(), Err: err}
	}

	if err := r.validate.Struct(rec); err != nil {
		return nil, &NormalizationError{Source: n.Source(), Err: fmt.Errorf("invalid record: %w", err)}
	}
	return rec, nil
}
