// Package normalizer converts raw events from the supported sources into
// models.CentralLog records.
package normalizer

import (
	"context"
	"fmt"
	"time"

	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/syslog"
	"github.com/telhawk-systems/centrallog/internal/timestamp"
)

// Normalizer converts one source's raw events. The raw map is never
// modified.
type Normalizer interface {
	Source() models.Source
	Normalize(ctx context.Context, raw map[string]any) (*models.CentralLog, error)
}

// TenantResolver maps a tenant name to its id, creating it if needed.
type TenantResolver interface {
	Resolve(ctx context.Context, name string) (int64, error)
}

// base holds what every source normalizer shares.
type base struct {
	source  models.Source
	tenants TenantResolver
	clock   *timestamp.Normalizer
}

func (b base) Source() models.Source { return b.source }

// envelope resolves the tenant and returns a record with the envelope
// fields and raw set.
func (b base) envelope(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	name := toString(raw["tenant"])
	id, err := b.tenants.Resolve(ctx, name)
	if err != nil {
		return nil, &NormalizationError{Source: b.source, Err: fmt.Errorf("failed to resolve tenant: %w", err)}
	}
	return &models.CentralLog{
		Tenant:   name,
		TenantID: id,
		Source:   b.source,
		Raw:      raw,
	}, nil
}

// eventTime normalizes the first present value among keys.
func (b base) eventTime(raw map[string]any, keys ...string) time.Time {
	return b.clock.Normalize(firstValue(raw, keys...))
}

// All returns one normalizer per supported source.
func All(tenants TenantResolver, clock *timestamp.Normalizer, parser *syslog.Parser) []Normalizer {
	if clock == nil {
		clock = timestamp.New()
	}
	if parser == nil {
		parser = syslog.NewParser(syslog.YearCurrent)
	}
	mk := func(s models.Source) base {
		return base{source: s, tenants: tenants, clock: clock}
	}
	return []Normalizer{
		&API{base: mk(models.SourceAPI)},
		&Firewall{base: mk(models.SourceFirewall), parser: parser},
		&Network{base: mk(models.SourceNetwork), parser: parser},
		&CrowdStrike{base: mk(models.SourceCrowdStrike)},
		&AWS{base: mk(models.SourceAWS)},
		&M365{base: mk(models.SourceM365)},
		&AD{base: mk(models.SourceAD)},
	}
}
