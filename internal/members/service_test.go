package members

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
	"github.com/odyssey-crm/odyssey-crm/internal/rbac"
	"github.com/odyssey-crm/odyssey-crm/internal/shared"
)

type memoryRepo struct {
	members   map[int64]Member
	templates map[int64]permissions.OverrideSet
	saveErr   error
	saves     int
}

func (m *memoryRepo) List(ctx context.Context, companyID int64) ([]Member, error) {
	var out []Member
	for _, mem := range m.members {
		if mem.CompanyID == companyID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memoryRepo) Get(ctx context.Context, companyID, id int64) (Member, error) {
	mem, ok := m.members[id]
	if !ok || mem.CompanyID != companyID {
		return Member{}, ErrNotFound
	}
	mem.Acc = mem.Acc.Clone()
	return mem, nil
}

func (m *memoryRepo) TemplateAcc(ctx context.Context, companyID, templateID int64) (permissions.OverrideSet, error) {
	acc, ok := m.templates[templateID]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return acc.Clone(), nil
}

func (m *memoryRepo) AssignTemplate(ctx context.Context, companyID, id int64, templateID *int64) (Member, error) {
	mem, err := m.Get(ctx, companyID, id)
	if err != nil {
		return Member{}, err
	}
	mem.RoleTemplateID = templateID
	m.members[id] = mem
	return mem, nil
}

func (m *memoryRepo) SaveAcc(ctx context.Context, companyID, id int64, acc permissions.OverrideSet) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	mem, err := m.Get(ctx, companyID, id)
	if err != nil {
		return err
	}
	mem.Acc = acc.Clone()
	m.members[id] = mem
	return nil
}

type staticCatalogs struct{}

func (staticCatalogs) Catalog(ctx context.Context, companyID int64) (catalog.Catalog, error) {
	return catalog.Default(), nil
}

type shieldStub struct{ locks permissions.ShieldLockSet }

func (s *shieldStub) Shields(ctx context.Context, companyID int64) (permissions.ShieldLockSet, error) {
	return s.locks.Clone(), nil
}

type grantSpy struct{ bumps int }

func (g *grantSpy) InvalidateGrants(ctx context.Context, companyID int64) (int64, error) {
	g.bumps++
	return int64(g.bumps), nil
}

type auditSpy struct{ actions []string }

func (a *auditSpy) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

type fixture struct {
	repo    *memoryRepo
	shields *shieldStub
	grants  *grantSpy
	audit   *auditSpy
	svc     *Service
}

const companyID = 3

var (
	agent = rbac.Actor{MemberID: 20, CompanyID: companyID}
	owner = rbac.Actor{MemberID: 21, CompanyID: companyID, SuperAdmin: true}
)

func newFixture(cfg permissions.EditorConfig) fixture {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := fixture{
		repo: &memoryRepo{
			members: map[int64]Member{
				20: {ID: 20, CompanyID: companyID, Name: "Agent", RoleTemplateID: int64Ptr(5), Acc: permissions.OverrideSet{"acc_e_client": false}, CreatedAt: created},
				21: {ID: 21, CompanyID: companyID, Name: "Owner", SuperAdmin: true, Acc: permissions.OverrideSet{}, CreatedAt: created},
				22: {ID: 22, CompanyID: companyID, Name: "Fresh", Acc: permissions.OverrideSet{"acc_v_chat": true}, CreatedAt: created},
			},
			templates: map[int64]permissions.OverrideSet{
				5: {"acc_v_client": true, "acc_e_client": true, "acc_v_chat": true},
				6: {"acc_v_analytics": true},
			},
		},
		shields: &shieldStub{locks: permissions.ShieldLockSet{}},
		grants:  &grantSpy{},
		audit:   &auditSpy{},
	}
	f.svc = NewService(ServiceConfig{
		Repo:     f.repo,
		Catalogs: staticCatalogs{},
		Shields:  f.shields,
		Grants:   f.grants,
		Audit:    f.audit,
		Resolver: permissions.NewResolver(permissions.DefaultOff()),
		Editor:   cfg,
	})
	return f
}

func TestEffectiveLayersMemberOverTemplate(t *testing.T) {
	f := newFixture(permissions.EditorConfig{})
	tree, err := f.svc.Effective(context.Background(), agent, 20)
	require.NoError(t, err)

	v, _ := tree.ValueOf("acc_v_client")
	assert.True(t, v, "inherited from template")
	v, _ = tree.ValueOf("acc_e_client")
	assert.False(t, v, "member override wins over template")
	v, _ = tree.ValueOf("acc_v_client_export")
	assert.False(t, v, "default-off params stay off")
}

func TestGrantedRespectsShields(t *testing.T) {
	f := newFixture(permissions.EditorConfig{})
	ctx := context.Background()

	granted, err := f.svc.Granted(ctx, agent)
	require.NoError(t, err)
	assert.Contains(t, granted, "acc_v_chat")

	f.shields.locks["acc_v_chat"] = true
	granted, err = f.svc.Granted(ctx, agent)
	require.NoError(t, err)
	assert.NotContains(t, granted, "acc_v_chat")
	assert.IsIncreasing(t, granted)
}

func TestGetSuperAdminSeesUnderlyingValue(t *testing.T) {
	f := newFixture(permissions.EditorConfig{})
	f.shields.locks["acc_v_chat"] = true

	d, err := f.svc.Get(context.Background(), owner, 20)
	require.NoError(t, err)
	slot, ok := d.Effective.Slot("acc_v_chat")
	require.True(t, ok)
	assert.True(t, slot.Value)
	assert.True(t, slot.Locked)
	assert.Equal(t, permissions.OverrideSet{"acc_v_client": true, "acc_e_client": true, "acc_v_chat": true}, d.TemplateAcc)
}

func TestMutateSetSubtree(t *testing.T) {
	f := newFixture(permissions.EditorConfig{})
	res, err := f.svc.Mutate(context.Background(), agent, 22, permissions.Mutation{Op: permissions.OpSetSubtree, Node: "Chat", Value: false})
	require.NoError(t, err)
	assert.Equal(t, permissions.OverrideSet{"acc_v_chat": false, "acc_e_chat": false, "acc_v_chat_history": false}, res.Member.Acc)
	assert.Equal(t, res.Member.Acc, f.repo.members[22].Acc)
	assert.Equal(t, []string{"members.acc.mutate"}, f.audit.actions)
	assert.Equal(t, 1, f.grants.bumps)
}

func TestResetToTemplate(t *testing.T) {
	f := newFixture(permissions.EditorConfig{})
	ctx := context.Background()

	res, err := f.svc.ResetToTemplate(ctx, agent, 20)
	require.NoError(t, err)
	assert.Equal(t, f.repo.templates[5], res.Member.Acc)

	// The copy is independent of the template.
	res.Member.Acc["acc_v_client"] = false
	assert.True(t, f.repo.templates[5]["acc_v_client"])
	assert.True(t, f.repo.members[20].Acc["acc_v_client"])

	res, err = f.svc.ResetToTemplate(ctx, agent, 22)
	require.NoError(t, err)
	assert.Empty(t, res.Member.Acc, "no template resets to an empty set")
}

func TestAssignTemplate(t *testing.T) {
	f := newFixture(permissions.EditorConfig{})
	ctx := context.Background()

	m, err := f.svc.AssignTemplate(ctx, agent, 22, int64Ptr(6))
	require.NoError(t, err)
	require.NotNil(t, m.RoleTemplateID)
	assert.Equal(t, int64(6), *m.RoleTemplateID)
	assert.Equal(t, permissions.OverrideSet{"acc_v_chat": true}, m.Acc, "personal overrides are kept")

	_, err = f.svc.AssignTemplate(ctx, agent, 22, int64Ptr(99))
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	m, err = f.svc.AssignTemplate(ctx, agent, 22, nil)
	require.NoError(t, err)
	assert.Nil(t, m.RoleTemplateID)
	assert.Equal(t, 2, f.grants.bumps)
}

func TestMutateRollbackAndKeepOnFailure(t *testing.T) {
	for _, keep := range []bool{false, true} {
		f := newFixture(permissions.EditorConfig{KeepOnFailure: keep})
		f.repo.saveErr = errors.New("write timeout")

		_, err := f.svc.Mutate(context.Background(), agent, 22, permissions.Mutation{Op: permissions.OpSetAll, Value: true})
		var perr *permissions.PersistenceError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, permissions.OverrideSet{"acc_v_chat": true}, perr.Proposal.Before)
		assert.Equal(t, permissions.OverrideSet{"acc_v_chat": true}, f.repo.members[22].Acc)
		assert.Zero(t, f.grants.bumps)
	}
}

func TestMutateUnknownMember(t *testing.T) {
	f := newFixture(permissions.EditorConfig{})
	_, err := f.svc.Mutate(context.Background(), agent, 404, permissions.Mutation{Op: permissions.OpSetAll, Value: true})
	assert.ErrorIs(t, err, ErrNotFound)

	other := rbac.Actor{MemberID: 1, CompanyID: 99}
	_, err = f.svc.Get(context.Background(), other, 20)
	assert.ErrorIs(t, err, ErrNotFound, "members of other companies are invisible")
}
