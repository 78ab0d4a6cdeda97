package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-crm/odyssey-crm/internal/jobs"
	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// CatalogCache is the tenant catalog cache the jobs rebuild.
type CatalogCache interface {
	Catalog(ctx context.Context, companyID int64) (catalog.Catalog, error)
	Invalidate(ctx context.Context, companyID int64) (int64, error)
}

// GrantInvalidator drops cached grant lists of a company.
type GrantInvalidator interface {
	InvalidateGrants(ctx context.Context, companyID int64) (int64, error)
}

// PermissionsRefreshJob invalidates and re-warms the catalog of a company
// after its dynamic fields or shields changed, then drops cached grants.
type PermissionsRefreshJob struct {
	Catalogs  CatalogCache
	Grants    GrantInvalidator
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewPermissionsRefreshJob wires dependencies for the refresh handler.
func NewPermissionsRefreshJob(catalogs CatalogCache, grants GrantInvalidator, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionsRefreshJob {
	return &PermissionsRefreshJob{
		Catalogs:  catalogs,
		Grants:    grants,
		Companies: companies,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskPermissionsRefresh tasks.
func (j *PermissionsRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Catalogs == nil {
		return errors.New("permissions refresh: dependencies not configured")
	}
	var payload PermissionsRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.CompanyID < 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskPermissionsRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	companies, err := j.resolveCompanies(ctx, payload.CompanyID)
	if err != nil {
		resultErr = err
		j.log().Error("resolve companies", slog.Int64("company_id", payload.CompanyID), slog.Any("error", err))
		return resultErr
	}

	start := j.now()
	refreshed := 0
	for _, companyID := range companies {
		if err := j.refresh(ctx, companyID); err != nil {
			resultErr = err
			j.log().Error("refresh permissions", slog.Int64("company_id", companyID), slog.Any("error", err))
			return resultErr
		}
		refreshed++
	}
	j.metrics().AddRefreshed(TaskPermissionsRefresh, refreshed)
	j.log().Info("refreshed permission caches", slog.Int("companies", refreshed), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *PermissionsRefreshJob) refresh(ctx context.Context, companyID int64) error {
	if _, err := j.Catalogs.Invalidate(ctx, companyID); err != nil {
		return err
	}
	if _, err := j.Catalogs.Catalog(ctx, companyID); err != nil {
		return err
	}
	if j.Grants != nil {
		if _, err := j.Grants.InvalidateGrants(ctx, companyID); err != nil {
			return err
		}
	}
	return nil
}

func (j *PermissionsRefreshJob) resolveCompanies(ctx context.Context, companyID int64) ([]int64, error) {
	if companyID > 0 {
		return []int64{companyID}, nil
	}
	if j.Companies == nil {
		return nil, errors.New("permissions refresh: company lister not configured")
	}
	return j.Companies.CompanyIDs(ctx)
}

func (j *PermissionsRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PermissionsRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPermissionsRefresh))
	}
	return slog.Default().With(slog.String("job", TaskPermissionsRefresh))
}

func (j *PermissionsRefreshJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
