package members

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const memberColumns = `id, company_id, name, email, role_template_id, acc, is_super_admin, is_active, created_at, updated_at`

func decodeAcc(raw []byte) (permissions.OverrideSet, error) {
	acc := permissions.OverrideSet{}
	if len(raw) == 0 {
		return acc, nil
	}
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("members: decode acc: %w", err)
	}
	return acc, nil
}

func scanMember(row pgx.Row) (Member, error) {
	var (
		m   Member
		raw []byte
	)
	err := row.Scan(&m.ID, &m.CompanyID, &m.Name, &m.Email, &m.RoleTemplateID, &raw, &m.SuperAdmin, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, err
	}
	m.Acc, err = decodeAcc(raw)
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// List returns the company's members ordered by name.
func (r *Repository) List(ctx context.Context, companyID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM members WHERE company_id = $1 ORDER BY LOWER(name), id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// Get loads one member.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (Member, error) {
	return scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE company_id = $1 AND id = $2`, companyID, id))
}

// TemplateAcc loads the override set of a company template.
func (r *Repository) TemplateAcc(ctx context.Context, companyID, templateID int64) (permissions.OverrideSet, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT acc FROM role_templates WHERE company_id = $1 AND id = $2`, companyID, templateID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return decodeAcc(raw)
}

// AssignTemplate points the member at templateID, or detaches it when nil.
func (r *Repository) AssignTemplate(ctx context.Context, companyID, id int64, templateID *int64) (Member, error) {
	row := r.pool.QueryRow(ctx, `UPDATE members SET role_template_id = $3, updated_at = NOW() WHERE company_id = $1 AND id = $2 RETURNING `+memberColumns, companyID, id, templateID)
	return scanMember(row)
}

// SaveAcc replaces the complete override set of a member.
func (r *Repository) SaveAcc(ctx context.Context, companyID, id int64, acc permissions.OverrideSet) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE members SET acc = $3, updated_at = NOW() WHERE company_id = $1 AND id = $2`, companyID, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
