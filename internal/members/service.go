// Package members manages company members and their personal permission
// overrides layered on top of an optional role template.
package members

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-crm/odyssey-crm/internal/rbac"
	"github.com/odyssey-crm/odyssey-crm/internal/shared"
)

var (
	// ErrNotFound indicates the member does not exist in the company.
	ErrNotFound = fmt.Errorf("members: member %w", httpx.ErrNotFound)
	// ErrTemplateNotFound indicates the referenced role template does not exist.
	ErrTemplateNotFound = fmt.Errorf("members: role template %w", httpx.ErrNotFound)
)

// RepositoryPort defines data access methods for members.
type RepositoryPort interface {
	List(ctx context.Context, companyID int64) ([]Member, error)
	Get(ctx context.Context, companyID, id int64) (Member, error)
	TemplateAcc(ctx context.Context, companyID, templateID int64) (permissions.OverrideSet, error)
	AssignTemplate(ctx context.Context, companyID, id int64, templateID *int64) (Member, error)
	SaveAcc(ctx context.Context, companyID, id int64, acc permissions.OverrideSet) error
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
	Editor   permissions.EditorConfig
	Logger   *slog.Logger
}

// Service handles member permission business logic.
type Service struct {
	repo      RepositoryPort
	catalogs  rbac.CatalogSource
	shields   ShieldSource
	grants    GrantInvalidator
	audit     rbac.AuditRecorder
	observer  permissions.MutationObserver
	resolver  permissions.Resolver
	editorCfg permissions.EditorConfig
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      cfg.Repo,
		catalogs:  cfg.Catalogs,
		shields:   cfg.Shields,
		grants:    cfg.Grants,
		audit:     cfg.Audit,
		observer:  cfg.Observer,
		resolver:  cfg.Resolver,
		editorCfg: cfg.Editor,
		logger:    logger,
	}
}

// List returns the members of the actor's company.
func (s *Service) List(ctx context.Context, actor rbac.Actor) ([]Member, error) {
	return s.repo.List(ctx, actor.CompanyID)
}

// Get returns a member with its effective tree as seen by the actor.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (Detail, error) {
	m, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return Detail{}, err
	}
	templateAcc, err := s.templateAcc(ctx, m)
	if err != nil {
		return Detail{}, err
	}
	tree, err := s.resolve(ctx, m, templateAcc, actor.SuperAdmin)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Member: m, TemplateAcc: templateAcc, Effective: tree}, nil
}

// Effective resolves member id: member overrides, then template overrides,
// then catalog defaults, with shields applied unless the actor is a super admin.
func (s *Service) Effective(ctx context.Context, actor rbac.Actor, id int64) (permissions.EffectiveTree, error) {
	d, err := s.Get(ctx, actor, id)
	if err != nil {
		return permissions.EffectiveTree{}, err
	}
	return d.Effective, nil
}

// Granted returns the params the actor itself currently holds.
func (s *Service) Granted(ctx context.Context, actor rbac.Actor) ([]string, error) {
	m, err := s.repo.Get(ctx, actor.CompanyID, actor.MemberID)
	if err != nil {
		return nil, err
	}
	templateAcc, err := s.templateAcc(ctx, m)
	if err != nil {
		return nil, err
	}
	tree, err := s.resolve(ctx, m, templateAcc, actor.SuperAdmin)
	if err != nil {
		return nil, err
	}
	return tree.Granted(), nil
}

func (s *Service) resolve(ctx context.Context, m Member, templateAcc permissions.OverrideSet, superAdmin bool) (permissions.EffectiveTree, error) {
	c, err := s.catalogs.Catalog(ctx, m.CompanyID)
	if err != nil {
		return permissions.EffectiveTree{}, err
	}
	locks, err := s.shields.Shields(ctx, m.CompanyID)
	if err != nil {
		return permissions.EffectiveTree{}, err
	}
	return s.resolver.Resolve(c, permissions.Input{
		Overrides:        permissions.Layer(m.Acc, templateAcc),
		Shields:          locks,
		SuperAdmin:       superAdmin,
		SubjectCreatedAt: m.CreatedAt,
	}), nil
}

// templateAcc returns the overrides of the member's template, or an empty
// set when the member has none.
func (s *Service) templateAcc(ctx context.Context, m Member) (permissions.OverrideSet, error) {
	if m.RoleTemplateID == nil {
		return permissions.OverrideSet{}, nil
	}
	acc, err := s.repo.TemplateAcc(ctx, m.CompanyID, *m.RoleTemplateID)
	if errors.Is(err, ErrTemplateNotFound) {
		s.logger.Warn("member references missing template", slog.Int64("member_id", m.ID), slog.Int64("template_id", *m.RoleTemplateID))
		return permissions.OverrideSet{}, nil
	}
	return acc, err
}

// AssignTemplate sets or clears the member's role template. Personal
// overrides are kept.
func (s *Service) AssignTemplate(ctx context.Context, actor rbac.Actor, id int64, templateID *int64) (Member, error) {
	if templateID != nil {
		if _, err := s.repo.TemplateAcc(ctx, actor.CompanyID, *templateID); err != nil {
			return Member{}, err
		}
	}
	m, err := s.repo.AssignTemplate(ctx, actor.CompanyID, id, templateID)
	if err != nil {
		return Member{}, err
	}
	s.record(ctx, actor, "members.template.assign", id, map[string]any{"role_template_id": templateID})
	s.invalidate(ctx, actor.CompanyID)
	return m, nil
}

// Mutate applies mutation to the member's overrides and saves the complete set.
func (s *Service) Mutate(ctx context.Context, actor rbac.Actor, id int64, mutation permissions.Mutation) (result MutationResult, err error) {
	var changes int
	defer func() {
		if s.observer != nil {
			s.observer.RecordMutation("member", mutation.Op, changes, err)
		}
	}()
	m, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return MutationResult{}, err
	}
	templateAcc, err := s.templateAcc(ctx, m)
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
	editor := permissions.NewEditor(c, store, s.editorCfg)
	editor.Hydrate(m.Acc, templateAcc)
	proposal, err := editor.Apply(ctx, mutation)
	if err != nil {
		var perr *permissions.PersistenceError
		if errors.As(err, &perr) && errors.Is(perr.Err, ErrNotFound) {
			return MutationResult{}, ErrNotFound
		}
		if perr != nil {
			s.logger.Error("persist overrides", slog.Int64("member_id", id), slog.String("op", string(mutation.Op)), slog.Any("error", perr.Err))
		}
		return MutationResult{}, err
	}
	changes = len(proposal.Changes)
	m.Acc = editor.Current()
	if !proposal.Empty() {
		s.record(ctx, actor, "members.acc.mutate", id, map[string]any{
			"proposal_id": proposal.ID.String(),
			"op":          string(mutation.Op),
			"changes":     proposal.Changes,
		})
		s.invalidate(ctx, actor.CompanyID)
	}
	return MutationResult{Member: m, Proposal: proposal}, nil
}

// ResetToTemplate replaces the member's overrides with a copy of its
// template's overrides, or clears them when no template is assigned.
func (s *Service) ResetToTemplate(ctx context.Context, actor rbac.Actor, id int64) (MutationResult, error) {
	return s.Mutate(ctx, actor, id, permissions.Mutation{Op: permissions.OpResetToTemplate})
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
		Entity:    "member",
		EntityID:  strconv.FormatInt(id, 10),
		Meta:      meta,
	})
	if err != nil {
		s.logger.Warn("audit member", slog.String("action", action), slog.Any("error", err))
	}
}
