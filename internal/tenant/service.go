// Package tenant builds the per-company permission catalog: the base catalog
// extended with the company's custom fields, transaction types and mailboxes.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/cache"
)

// Service resolves extended catalogs with caching.
type Service struct {
	repo   Repository
	base   catalog.Catalog
	cache  *cache.Versioned
	logger *slog.Logger
	group  singleflight.Group
}

// NewService builds Service instance. cache may be nil.
func NewService(repo Repository, base catalog.Catalog, cache *cache.Versioned, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, base: base, cache: cache, logger: logger}
}

// Base returns a copy of the catalog before tenant extension.
func (s *Service) Base() catalog.Catalog {
	return s.base.Clone()
}

// DynamicFields loads the tenant data used to extend the catalog.
func (s *Service) DynamicFields(ctx context.Context, companyID int64) (catalog.DynamicFields, error) {
	var fields catalog.DynamicFields
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fields.CustomFields, err = s.repo.CustomFields(gctx, companyID)
		return err
	})
	g.Go(func() error {
		var err error
		fields.TransactionTypes, err = s.repo.TransactionTypes(gctx, companyID)
		return err
	})
	g.Go(func() error {
		var err error
		fields.CompanyEmails, err = s.repo.CompanyEmails(gctx, companyID)
		return err
	})
	if err := g.Wait(); err != nil {
		return catalog.DynamicFields{}, fmt.Errorf("tenant: load dynamic fields: %w", err)
	}
	return fields, nil
}

// Catalog returns the base catalog extended for companyID. Concurrent calls
// for the same company share one load.
func (s *Service) Catalog(ctx context.Context, companyID int64) (catalog.Catalog, error) {
	scope := strconv.FormatInt(companyID, 10)
	key, err := s.cache.Key(ctx, scope, "catalog", s.base.Version)
	if err != nil {
		s.logger.Warn("tenant catalog cache key", slog.Int64("company_id", companyID), slog.Any("error", err))
		return s.build(ctx, companyID)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var c catalog.Catalog
		err := s.cache.FetchJSON(ctx, key, &c, func(ctx context.Context) (any, error) {
			return s.build(ctx, companyID)
		})
		return c, err
	})
	if err != nil {
		return catalog.Catalog{}, err
	}
	return v.(catalog.Catalog).Clone(), nil
}

// Version reports the company's permission cache version.
func (s *Service) Version(ctx context.Context, companyID int64) (int64, error) {
	return s.cache.Version(ctx, strconv.FormatInt(companyID, 10))
}

// Invalidate drops cached catalogs and effective grants for companyID.
func (s *Service) Invalidate(ctx context.Context, companyID int64) (int64, error) {
	ver, err := s.cache.Bump(ctx, strconv.FormatInt(companyID, 10))
	if err != nil {
		return 0, err
	}
	s.logger.Info("permission cache bumped", slog.Int64("company_id", companyID), slog.Int64("version", ver))
	return ver, nil
}

func (s *Service) build(ctx context.Context, companyID int64) (catalog.Catalog, error) {
	fields, err := s.DynamicFields(ctx, companyID)
	if err != nil {
		return catalog.Catalog{}, err
	}
	return catalog.Extend(s.base, fields), nil
}
