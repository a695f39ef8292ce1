// Package tenant maps tenant names to stable numeric ids, creating tenants
// on first sight.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/storage"
)

// ErrInvalidInput is returned when the tenant name is empty.
var ErrInvalidInput = errors.New("tenant name is required")

// MaxKeyLength bounds the derived tenant key.
const MaxKeyLength = 10

// Resolver resolves tenant names against a TenantStore.
type Resolver struct {
	store  storage.TenantStore
	logger *slog.Logger
}

func NewResolver(store storage.TenantStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the id of the named tenant, creating it if needed.
func (r *Resolver) Resolve(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, ErrInvalidInput
	}

	t, err := r.store.GetTenantByName(ctx, name)
	if err == nil {
		return t.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("failed to look up tenant %q: %w", name, err)
	}

	t, err = r.store.CreateTenant(ctx, name, DeriveKey(name))
	if err != nil {
		return 0, fmt.Errorf("failed to create tenant %q: %w", name, err)
	}

	r.logger.InfoContext(ctx, "tenant created",
		logging.Tenant(t.Name),
		logging.TenantID(t.ID),
		slog.String("key", t.Key))
	return t.ID, nil
}

func (r *Resolver) List(ctx context.Context) ([]*models.Tenant, error) {
	tenants, err := r.store.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

func (r *Resolver) Get(ctx context.Context, id int64) (*models.Tenant, error) {
	return r.store.GetTenant(ctx, id)
}

// DeriveKey strips non-alphanumeric characters, upper-cases the rest and
// truncates to MaxKeyLength.
func DeriveKey(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() == MaxKeyLength {
			break
		}
	}
	return b.String()
}
