package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
)

// Repository persists shield locks and loads actors.
type Repository interface {
	Shields(ctx context.Context, companyID int64) (permissions.ShieldLockSet, error)
	SaveShields(ctx context.Context, companyID int64, locks permissions.ShieldLockSet) error
	Actor(ctx context.Context, memberID int64) (Actor, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Shields(ctx context.Context, companyID int64) (permissions.ShieldLockSet, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT acc FROM companies WHERE id = $1`, companyID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	locks := permissions.ShieldLockSet{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &locks); err != nil {
			return nil, fmt.Errorf("rbac: decode company acc: %w", err)
		}
	}
	return locks, nil
}

// SaveShields replaces the company acc map. Concurrent writers race; the
// last one wins.
func (r *repository) SaveShields(ctx context.Context, companyID int64, locks permissions.ShieldLockSet) error {
	raw, err := json.Marshal(locks)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE companies SET acc = $2, updated_at = NOW() WHERE id = $1`, companyID, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Actor(ctx context.Context, memberID int64) (Actor, error) {
	var actor Actor
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, role_template_id, is_super_admin, created_at FROM members WHERE id = $1 AND is_active`, memberID).
		Scan(&actor.MemberID, &actor.CompanyID, &actor.RoleTemplateID, &actor.SuperAdmin, &actor.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, err
	}
	return actor, nil
}
