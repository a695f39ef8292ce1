package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/sequence"
	"github.com/telhawk-systems/centrallog/internal/storage"
)

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	t := &models.Tenant{}
	if err := row.Scan(&t.ID, &t.Name, &t.Key, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *Store) GetTenantByName(ctx context.Context, name string) (*models.Tenant, error) {
	query := `SELECT id, name, key, created_at FROM tenants WHERE name = $1`

	t, err := scanTenant(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		return nil, storage.Wrap("get tenant by name", err)
	}
	return t, nil
}

func (s *Store) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	query := `SELECT id, name, key, created_at FROM tenants WHERE id = $1`

	t, err := scanTenant(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, storage.Wrap("get tenant", err)
	}
	return t, nil
}

// CreateTenant inserts the tenant unless the name is taken, then reads back
// whichever row won. A losing concurrent caller burns one sequence value.
func (s *Store) CreateTenant(ctx context.Context, name, key string) (*models.Tenant, error) {
	id, err := s.ids.Next(ctx, sequence.Tenant)
	if err != nil {
		return nil, storage.Wrap("allocate tenant id", err)
	}

	insert := `
		INSERT INTO tenants (id, name, key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, insert, id, name, key, s.now().UTC()); err != nil {
		return nil, storage.Wrap("create tenant", fmt.Errorf("failed to insert tenant: %w", err))
	}

	return s.GetTenantByName(ctx, name)
}

func (s *Store) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, key, created_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, storage.Wrap("list tenants", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, storage.Wrap("list tenants", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list tenants", err)
	}
	return tenants, nil
}
