package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-crm/odyssey-crm/internal/shared"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = fmt.Errorf("rbac: %w", httpx.ErrNotFound)

// CatalogSource returns the extended catalog of a company.
type CatalogSource interface {
	Catalog(ctx context.Context, companyID int64) (catalog.Catalog, error)
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ShieldObserver receives shield change outcomes for metrics.
type ShieldObserver interface {
	RecordShieldChange(locked bool, err error)
}

// Service coordinates company shield locks.
type Service struct {
	repo     Repository
	catalogs CatalogSource
	versions *cache.Versioned
	audit    AuditRecorder
	observer ShieldObserver
	refresh  RefreshEnqueuer
	logger   *slog.Logger
}

// ServiceConfig groups Service dependencies. Everything but Repo and
// Catalogs is optional.
type ServiceConfig struct {
	Repo      Repository
	Catalogs  CatalogSource
	Versions  *cache.Versioned
	Audit     AuditRecorder
	Observer  ShieldObserver
	Refresher RefreshEnqueuer
	Logger    *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     cfg.Repo,
		catalogs: cfg.Catalogs,
		versions: cfg.Versions,
		audit:    cfg.Audit,
		observer: cfg.Observer,
		refresh:  cfg.Refresher,
		logger:   logger,
	}
}

// Actor loads the acting member.
func (s *Service) Actor(ctx context.Context, memberID int64) (Actor, error) {
	return s.repo.Actor(ctx, memberID)
}

// Shields returns the company's shield locks.
func (s *Service) Shields(ctx context.Context, companyID int64) (permissions.ShieldLockSet, error) {
	return s.repo.Shields(ctx, companyID)
}

// SetShield locks or unlocks param for the actor's company and returns the
// complete, persisted lock map. Non super admins are rejected before any
// storage access. Every resolved tree of the company is stale afterwards;
// the grants version is bumped so cached grant lists are not reused.
func (s *Service) SetShield(ctx context.Context, actor Actor, param string, locked bool) (locks permissions.ShieldLockSet, err error) {
	defer func() {
		if s.observer != nil {
			s.observer.RecordShieldChange(locked, err)
		}
	}()
	if !actor.SuperAdmin {
		return nil, permissions.ErrPermissionDenied
	}
	c, err := s.catalogs.Catalog(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	if !c.Has(param) {
		return nil, fmt.Errorf("%w: param %q", permissions.ErrNotFound, param)
	}
	current, err := s.repo.Shields(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	next, err := permissions.SetShield(current, param, locked, actor.SuperAdmin)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveShields(ctx, actor.CompanyID, next); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &permissions.PersistenceError{Err: err}
	}
	s.record(ctx, actor, param, locked)
	if _, err := s.InvalidateGrants(ctx, actor.CompanyID); err != nil {
		s.logger.Warn("bump grants after shield change", slog.Int64("company_id", actor.CompanyID), slog.Any("error", err))
	}
	if s.refresh != nil {
		if err := s.refresh.EnqueuePermissionsRefresh(ctx, actor.CompanyID); err != nil {
			s.logger.Warn("enqueue permissions refresh", slog.Int64("company_id", actor.CompanyID), slog.Any("error", err))
		}
	}
	return next, nil
}

func (s *Service) record(ctx context.Context, actor Actor, param string, locked bool) {
	if s.audit == nil {
		return
	}
	action := "permissions.shield.unlock"
	if locked {
		action = "permissions.shield.lock"
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: actor.CompanyID,
		ActorID:   actor.MemberID,
		Action:    action,
		Entity:    "company",
		EntityID:  strconv.FormatInt(actor.CompanyID, 10),
		Meta:      map[string]any{"param": param, "locked": locked},
	})
	if err != nil {
		s.logger.Warn("audit shield change", slog.Any("error", err))
	}
}

func grantsScope(companyID int64) string {
	return "grants:" + strconv.FormatInt(companyID, 10)
}

// GrantsVersion returns the version resolved grants of companyID are cached under.
func (s *Service) GrantsVersion(ctx context.Context, companyID int64) (int64, error) {
	return s.versions.Version(ctx, grantsScope(companyID))
}

// InvalidateGrants marks every cached grant list of companyID as stale.
func (s *Service) InvalidateGrants(ctx context.Context, companyID int64) (int64, error) {
	return s.versions.Bump(ctx, grantsScope(companyID))
}
