package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/db"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const templateColumns = `id, company_id, name, acc, created_at, updated_at`

func scanTemplate(row pgx.Row) (RoleTemplate, error) {
	var (
		tpl RoleTemplate
		raw []byte
	)
	if err := row.Scan(&tpl.ID, &tpl.CompanyID, &tpl.Name, &raw, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleTemplate{}, ErrNotFound
		}
		return RoleTemplate{}, err
	}
	tpl.Acc = permissions.OverrideSet{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &tpl.Acc); err != nil {
			return RoleTemplate{}, fmt.Errorf("roles: decode acc: %w", err)
		}
	}
	return tpl, nil
}

// List returns the company's templates ordered by name.
func (r *Repository) List(ctx context.Context, companyID int64) ([]RoleTemplate, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM role_templates WHERE company_id = $1 ORDER BY LOWER(name), id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []RoleTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

// Get loads one template.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (RoleTemplate, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM role_templates WHERE company_id = $1 AND id = $2`, companyID, id)
	return scanTemplate(row)
}

// ExistsByName reports whether another template of the company already uses
// name, compared case-insensitively. excludeID skips the template being renamed.
func (r *Repository) ExistsByName(ctx context.Context, companyID int64, name string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM role_templates WHERE company_id = $1 AND LOWER(name) = LOWER($2) AND id <> $3)`, companyID, name, excludeID).Scan(&exists)
	return exists, err
}

// Create inserts a template with an empty override set.
func (r *Repository) Create(ctx context.Context, companyID int64, name string) (RoleTemplate, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO role_templates (company_id, name, acc) VALUES ($1, $2, '{}'::jsonb) RETURNING `+templateColumns, companyID, name)
	tpl, err := scanTemplate(row)
	return tpl, mapConstraint(err)
}

// Rename updates the template name.
func (r *Repository) Rename(ctx context.Context, companyID, id int64, name string) (RoleTemplate, error) {
	row := r.pool.QueryRow(ctx, `UPDATE role_templates SET name = $3, updated_at = NOW() WHERE company_id = $1 AND id = $2 RETURNING `+templateColumns, companyID, id, name)
	tpl, err := scanTemplate(row)
	return tpl, mapConstraint(err)
}

// SaveAcc replaces the complete override set of a template.
func (r *Repository) SaveAcc(ctx context.Context, companyID, id int64, acc permissions.OverrideSet) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE role_templates SET acc = $3, updated_at = NOW() WHERE company_id = $1 AND id = $2`, companyID, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a template and detaches every member that referenced it.
// It returns the number of detached members.
func (r *Repository) Delete(ctx context.Context, companyID, id int64) (int64, error) {
	var detached int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE members SET role_template_id = NULL, updated_at = NOW() WHERE company_id = $1 AND role_template_id = $2`, companyID, id)
		if err != nil {
			return err
		}
		detached = tag.RowsAffected()
		tag, err = tx.Exec(ctx, `DELETE FROM role_templates WHERE company_id = $1 AND id = $2`, companyID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return detached, nil
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
