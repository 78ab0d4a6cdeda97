package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-crm/odyssey-crm/internal/jobs"
)

// CatalogWarmupJob pre-populates the extended catalog cache of every company
// so the first request after a cache expiry does not pay for the rebuild.
type CatalogWarmupJob struct {
	Catalogs  CatalogCache
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// NewCatalogWarmupJob wires dependencies for the warmup handler.
func NewCatalogWarmupJob(catalogs CatalogCache, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogWarmupJob {
	return &CatalogWarmupJob{
		Catalogs:  catalogs,
		Companies: companies,
		Logger:    logger,
		Metrics:   metrics,
		Timeout:   10 * time.Second,
	}
}

// Handle processes TaskCatalogWarmup tasks. A failing company does not stop
// the others; every failure is reported in the returned error.
func (j *CatalogWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Catalogs == nil || j.Companies == nil {
		return errors.New("catalog warmup: dependencies not configured")
	}

	tracker := j.metrics().Track(TaskCatalogWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	companies, err := j.Companies.CompanyIDs(ctx)
	if err != nil {
		resultErr = err
		logger.Error("load warmup companies", slog.Any("error", err))
		return resultErr
	}
	if len(companies) == 0 {
		logger.Info("no companies discovered for warmup")
		return resultErr
	}

	start := time.Now()
	warmed := 0
	var errs []error
	for _, companyID := range companies {
		if err := j.warm(ctx, companyID); err != nil {
			logger.Error("warm catalog", slog.Int64("company_id", companyID), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		warmed++
	}
	j.metrics().AddRefreshed(TaskCatalogWarmup, warmed)
	logger.Info("completed catalog warmup", slog.Int("companies", warmed), slog.Int("failed", len(errs)), slog.Duration("duration", time.Since(start)))
	resultErr = errors.Join(errs...)
	return resultErr
}

func (j *CatalogWarmupJob) warm(ctx context.Context, companyID int64) error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	scopeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := j.Catalogs.Catalog(scopeCtx, companyID)
	return err
}

func (j *CatalogWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCatalogWarmup))
	}
	return slog.Default().With(slog.String("job", TaskCatalogWarmup))
}

func (j *CatalogWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
