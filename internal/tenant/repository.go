package tenant

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
)

// Repository reads the tenant data a catalog is extended with.
type Repository interface {
	CustomFields(ctx context.Context, companyID int64) ([]catalog.CustomField, error)
	TransactionTypes(ctx context.Context, companyID int64) ([]string, error)
	CompanyEmails(ctx context.Context, companyID int64) ([]catalog.CompanyEmail, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) CustomFields(ctx context.Context, companyID int64) ([]catalog.CustomField, error) {
	rows, err := r.pool.Query(ctx, `SELECT friendly_name, value, setting FROM company_custom_fields WHERE company_id = $1 ORDER BY id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var fields []catalog.CustomField
	for rows.Next() {
		var f catalog.CustomField
		if err := rows.Scan(&f.FriendlyName, &f.Value, &f.Setting); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (r *repository) TransactionTypes(ctx context.Context, companyID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM company_transaction_types WHERE company_id = $1 ORDER BY position, id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		types = append(types, name)
	}
	return types, rows.Err()
}

func (r *repository) CompanyEmails(ctx context.Context, companyID int64) ([]catalog.CompanyEmail, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email FROM company_emails WHERE company_id = $1 ORDER BY id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var emails []catalog.CompanyEmail
	for rows.Next() {
		var e catalog.CompanyEmail
		if err := rows.Scan(&e.ID, &e.Email); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
