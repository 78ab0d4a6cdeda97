package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-crm/odyssey-crm/internal/shared"
)

type stubRepo struct {
	shields   map[int64]permissions.ShieldLockSet
	actors    map[int64]Actor
	saveErr   error
	saveCalls int
	readCalls int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		shields: map[int64]permissions.ShieldLockSet{1: {"acc_v_chat": true}},
		actors: map[int64]Actor{
			10: {MemberID: 10, CompanyID: 1},
			11: {MemberID: 11, CompanyID: 1, SuperAdmin: true},
		},
	}
}

func (s *stubRepo) Shields(ctx context.Context, companyID int64) (permissions.ShieldLockSet, error) {
	s.readCalls++
	locks, ok := s.shields[companyID]
	if !ok {
		return nil, ErrNotFound
	}
	return locks.Clone(), nil
}

func (s *stubRepo) SaveShields(ctx context.Context, companyID int64, locks permissions.ShieldLockSet) error {
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.shields[companyID] = locks.Clone()
	return nil
}

func (s *stubRepo) Actor(ctx context.Context, memberID int64) (Actor, error) {
	a, ok := s.actors[memberID]
	if !ok {
		return Actor{}, ErrNotFound
	}
	return a, nil
}

type staticCatalogs struct{}

func (staticCatalogs) Catalog(ctx context.Context, companyID int64) (catalog.Catalog, error) {
	return catalog.Default(), nil
}

type auditSpy struct{ logs []shared.AuditLog }

func (a *auditSpy) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type observerSpy struct{ errs []error }

func (o *observerSpy) RecordShieldChange(locked bool, err error) { o.errs = append(o.errs, err) }

func newVersions(t *testing.T) *cache.Versioned {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewVersioned(client, "permissions", time.Minute)
}

func newTestService(t *testing.T, repo Repository) (*Service, *auditSpy, *observerSpy) {
	t.Helper()
	audit := &auditSpy{}
	obs := &observerSpy{}
	svc := NewService(ServiceConfig{
		Repo:     repo,
		Catalogs: staticCatalogs{},
		Versions: newVersions(t),
		Audit:    audit,
		Observer: obs,
	})
	return svc, audit, obs
}

func TestSetShieldRejectsNonSuperAdminBeforeIO(t *testing.T) {
	repo := newStubRepo()
	svc, audit, obs := newTestService(t, repo)

	_, err := svc.SetShield(context.Background(), repo.actors[10], "acc_v_client", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, permissions.ErrPermissionDenied)
	assert.ErrorIs(t, err, httpx.ErrForbidden)
	assert.Zero(t, repo.readCalls)
	assert.Zero(t, repo.saveCalls)
	assert.Empty(t, audit.logs)
	require.Len(t, obs.errs, 1)
	assert.Error(t, obs.errs[0])
}

func TestSetShieldPersistsCompleteMap(t *testing.T) {
	repo := newStubRepo()
	svc, audit, _ := newTestService(t, repo)
	ctx := context.Background()

	before, err := svc.GrantsVersion(ctx, 1)
	require.NoError(t, err)

	locks, err := svc.SetShield(ctx, repo.actors[11], "acc_v_client", true)
	require.NoError(t, err)
	assert.Equal(t, permissions.ShieldLockSet{"acc_v_chat": true, "acc_v_client": true}, locks)
	assert.Equal(t, locks, repo.shields[1])

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "permissions.shield.lock", audit.logs[0].Action)
	assert.Equal(t, "1", audit.logs[0].EntityID)

	after, err := svc.GrantsVersion(ctx, 1)
	require.NoError(t, err)
	assert.Greater(t, after, before, "shield change must invalidate cached grants")

	locks, err = svc.SetShield(ctx, repo.actors[11], "acc_v_chat", false)
	require.NoError(t, err)
	assert.False(t, locks["acc_v_chat"])
	assert.Equal(t, "permissions.shield.unlock", audit.logs[1].Action)
}

func TestSetShieldUnknownParam(t *testing.T) {
	repo := newStubRepo()
	svc, _, _ := newTestService(t, repo)
	_, err := svc.SetShield(context.Background(), repo.actors[11], "acc_v_missing", true)
	assert.ErrorIs(t, err, permissions.ErrNotFound)
	assert.Zero(t, repo.saveCalls)
}

func TestSetShieldPersistenceFailure(t *testing.T) {
	repo := newStubRepo()
	repo.saveErr = errors.New("connection reset")
	svc, audit, _ := newTestService(t, repo)

	_, err := svc.SetShield(context.Background(), repo.actors[11], "acc_v_client", true)
	require.Error(t, err)
	var perr *permissions.PersistenceError
	assert.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, httpx.ErrPersistence)
	assert.Empty(t, audit.logs)
	assert.False(t, repo.shields[1]["acc_v_client"])
}

type refreshSpy struct{ companies []int64 }

func (r *refreshSpy) EnqueuePermissionsRefresh(ctx context.Context, companyID int64) error {
	r.companies = append(r.companies, companyID)
	return nil
}

func TestSetShieldEnqueuesRefresh(t *testing.T) {
	repo := newStubRepo()
	refresh := &refreshSpy{}
	svc := NewService(ServiceConfig{Repo: repo, Catalogs: staticCatalogs{}, Refresher: refresh})

	_, err := svc.SetShield(context.Background(), repo.actors[11], "acc_e_client", true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, refresh.companies)

	_, err = svc.SetShield(context.Background(), repo.actors[10], "acc_e_client", false)
	require.Error(t, err)
	assert.Len(t, refresh.companies, 1)
}
