package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-crm/odyssey-crm/internal/rbac"
	"github.com/odyssey-crm/odyssey-crm/internal/shared"
)

const maxNameLength = 120

var (
	// ErrNotFound indicates the template does not exist in the company.
	ErrNotFound = fmt.Errorf("roles: template %w", httpx.ErrNotFound)
	// ErrDuplicate indicates another template already uses the name.
	ErrDuplicate = fmt.Errorf("roles: template name %w", httpx.ErrDuplicate)
	// ErrInvalidName indicates an empty or oversized name.
	ErrInvalidName = fmt.Errorf("roles: name must be 1-%d characters: %w", maxNameLength, httpx.ErrValidation)
)

// RepositoryPort defines data access methods for role templates.
type RepositoryPort interface {
	List(ctx context.Context, companyID int64) ([]RoleTemplate, error)
	Get(ctx context.Context, companyID, id int64) (RoleTemplate, error)
	ExistsByName(ctx context.Context, companyID int64, name string, excludeID int64) (bool, error)
	Create(ctx context.Context, companyID int64, name string) (RoleTemplate, error)
	Rename(ctx context.Context, companyID, id int64, name string) (RoleTemplate, error)
	SaveAcc(ctx context.Context, companyID, id int64, acc permissions.OverrideSet) error
	Delete(ctx context.Context, companyID, id int64) (int64, error)
}

// ShieldSource loads company shield locks.
type ShieldSource interface {
	Shields(ctx context.Context, companyID int64) (permissions.ShieldLockSet, error)
}

// GrantInvalidator drops cached grant lists of a company.
type GrantInvalidator interface {
	InvalidateGrants(ctx context.Context, companyID int64) (int64, error)
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo     RepositoryPort
	Catalogs rbac.CatalogSource
	Shields  ShieldSource
	Grants   GrantInvalidator
	Audit    rbac.AuditRecorder
	Observer permissions.MutationObserver
	Resolver permissions.Resolver
	Logger   *slog.Logger
}

// Service handles role template business logic.
type Service struct {
	repo     RepositoryPort
	catalogs rbac.CatalogSource
	shields  ShieldSource
	grants   GrantInvalidator
	audit    rbac.AuditRecorder
	observer permissions.MutationObserver
	resolver permissions.Resolver
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     cfg.Repo,
		catalogs: cfg.Catalogs,
		shields:  cfg.Shields,
		grants:   cfg.Grants,
		audit:    cfg.Audit,
		observer: cfg.Observer,
		resolver: cfg.Resolver,
		logger:   logger,
	}
}

// List returns the templates of the actor's company.
func (s *Service) List(ctx context.Context, actor rbac.Actor) ([]RoleTemplate, error) {
	return s.repo.List(ctx, actor.CompanyID)
}

// Get returns one template with its effective tree as seen by the actor.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (Detail, error) {
	tpl, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return Detail{}, err
	}
	tree, err := s.Effective(ctx, actor, tpl)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Template: tpl, Effective: tree}, nil
}

// Effective resolves tpl against the company's extended catalog and shields.
func (s *Service) Effective(ctx context.Context, actor rbac.Actor, tpl RoleTemplate) (permissions.EffectiveTree, error) {
	c, err := s.catalogs.Catalog(ctx, actor.CompanyID)
	if err != nil {
		return permissions.EffectiveTree{}, err
	}
	locks, err := s.shields.Shields(ctx, actor.CompanyID)
	if err != nil {
		return permissions.EffectiveTree{}, err
	}
	return s.resolver.Resolve(c, permissions.Input{
		Overrides:        tpl.Acc,
		Shields:          locks,
		SuperAdmin:       actor.SuperAdmin,
		SubjectCreatedAt: tpl.CreatedAt,
	}), nil
}

// Create adds an empty template. Names are unique per company, ignoring case.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, name string) (RoleTemplate, error) {
	name, err := s.checkName(ctx, actor.CompanyID, name, 0)
	if err != nil {
		return RoleTemplate{}, err
	}
	tpl, err := s.repo.Create(ctx, actor.CompanyID, name)
	if err != nil {
		return RoleTemplate{}, err
	}
	s.record(ctx, actor, "roles.template.create", tpl.ID, map[string]any{"name": name})
	return tpl, nil
}

// Rename changes the template name.
func (s *Service) Rename(ctx context.Context, actor rbac.Actor, id int64, name string) (RoleTemplate, error) {
	name, err := s.checkName(ctx, actor.CompanyID, name, id)
	if err != nil {
		return RoleTemplate{}, err
	}
	tpl, err := s.repo.Rename(ctx, actor.CompanyID, id, name)
	if err != nil {
		return RoleTemplate{}, err
	}
	s.record(ctx, actor, "roles.template.rename", id, map[string]any{"name": name})
	return tpl, nil
}

func (s *Service) checkName(ctx context.Context, companyID int64, name string, excludeID int64) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	exists, err := s.repo.ExistsByName(ctx, companyID, name, excludeID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrDuplicate
	}
	return name, nil
}

// Mutate applies m to the template and saves the complete override set.
// Resetting a template clears every override.
func (s *Service) Mutate(ctx context.Context, actor rbac.Actor, id int64, m permissions.Mutation) (result MutationResult, err error) {
	var changes int
	defer func() {
		if s.observer != nil {
			s.observer.RecordMutation("role_template", m.Op, changes, err)
		}
	}()
	tpl, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return MutationResult{}, err
	}
	c, err := s.catalogs.Catalog(ctx, actor.CompanyID)
	if err != nil {
		return MutationResult{}, err
	}
	store := permissions.StoreFunc(func(ctx context.Context, acc permissions.OverrideSet) error {
		return s.repo.SaveAcc(ctx, actor.CompanyID, id, acc)
	})
	editor := permissions.NewEditor(c, store, permissions.EditorConfig{})
	editor.Hydrate(tpl.Acc, permissions.OverrideSet{})
	proposal, err := editor.Apply(ctx, m)
	if err != nil {
		var perr *permissions.PersistenceError
		if errors.As(err, &perr) && errors.Is(perr.Err, ErrNotFound) {
			return MutationResult{}, ErrNotFound
		}
		if perr != nil {
			s.logger.Error("persist overrides", slog.Int64("template_id", id), slog.String("op", string(m.Op)), slog.Any("error", perr.Err))
		}
		return MutationResult{}, err
	}
	changes = len(proposal.Changes)
	tpl.Acc = editor.Current()
	if !proposal.Empty() {
		s.record(ctx, actor, "roles.template.mutate", id, map[string]any{
			"proposal_id": proposal.ID.String(),
			"op":          string(m.Op),
			"changes":     proposal.Changes,
		})
		s.invalidate(ctx, actor.CompanyID)
	}
	return MutationResult{Template: tpl, Proposal: proposal}, nil
}

// Delete removes the template. Members using it fall back to their own
// overrides and catalog defaults.
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	detached, err := s.repo.Delete(ctx, actor.CompanyID, id)
	if err != nil {
		return err
	}
	s.record(ctx, actor, "roles.template.delete", id, map[string]any{"detached_members": detached})
	s.invalidate(ctx, actor.CompanyID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, companyID int64) {
	if s.grants == nil {
		return
	}
	if _, err := s.grants.InvalidateGrants(ctx, companyID); err != nil {
		s.logger.Warn("invalidate grants", slog.Int64("company_id", companyID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor rbac.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: actor.CompanyID,
		ActorID:   actor.MemberID,
		Action:    action,
		Entity:    "role_template",
		EntityID:  strconv.FormatInt(id, 10),
		Meta:      meta,
	})
	if err != nil {
		s.logger.Warn("audit role template", slog.String("action", action), slog.Any("error", err))
	}
}
