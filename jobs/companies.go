package jobs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CompanyLister enumerates the companies jobs fan out over.
type CompanyLister interface {
	CompanyIDs(ctx context.Context) ([]int64, error)
}

// PoolCompanyLister lists companies from PostgreSQL.
type PoolCompanyLister struct {
	Pool *pgxpool.Pool
}

// CompanyIDs returns every company id in ascending order.
func (l PoolCompanyLister) CompanyIDs(ctx context.Context) ([]int64, error) {
	if l.Pool == nil {
		return nil, errors.New("jobs: pool not configured")
	}
	rows, err := l.Pool.Query(ctx, `SELECT id FROM companies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
