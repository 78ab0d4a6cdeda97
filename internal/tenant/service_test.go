package tenant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions/catalog"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/cache"
)

type stubRepo struct {
	calls  atomic.Int32
	fields []catalog.CustomField
	types  []string
	emails []catalog.CompanyEmail
	err    error
}

func (s *stubRepo) CustomFields(ctx context.Context, companyID int64) ([]catalog.CustomField, error) {
	s.calls.Add(1)
	return s.fields, s.err
}

func (s *stubRepo) TransactionTypes(ctx context.Context, companyID int64) ([]string, error) {
	return s.types, nil
}

func (s *stubRepo) CompanyEmails(ctx context.Context, companyID int64) ([]catalog.CompanyEmail, error) {
	return s.emails, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, catalog.Default(), cache.NewVersioned(client, "permissions", time.Minute), nil)
}

func TestCatalogExtendsAndCaches(t *testing.T) {
	repo := &stubRepo{
		fields: []catalog.CustomField{{FriendlyName: "Passport", Value: "passport"}},
		types:  []string{"Wire"},
		emails: []catalog.CompanyEmail{{ID: 3, Email: "ops@example.com"}},
	}
	svc := newTestService(t, repo)
	ctx := context.Background()

	c, err := svc.Catalog(ctx, 1)
	require.NoError(t, err)
	assert.True(t, c.Has("acc_custom_v_passport"))
	assert.True(t, c.Has("acc_trx_v_wire"))
	assert.True(t, c.Has("acc_email_v_3"))
	assert.EqualValues(t, 1, repo.calls.Load())

	_, err = svc.Catalog(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, repo.calls.Load(), "second load should come from cache")

	_, err = svc.Invalidate(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Catalog(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, repo.calls.Load())

	assert.False(t, svc.Base().Has("acc_trx_v_wire"))
}

func TestCatalogPropagatesRepositoryErrors(t *testing.T) {
	boom := errors.New("db down")
	svc := newTestService(t, &stubRepo{err: boom})
	_, err := svc.Catalog(context.Background(), 9)
	assert.ErrorIs(t, err, boom)
}

func TestCatalogConcurrentLoads(t *testing.T) {
	repo := &stubRepo{types: []string{"Cash"}}
	svc := newTestService(t, repo)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := svc.Catalog(context.Background(), 4)
			assert.NoError(t, err)
			assert.True(t, c.Has("acc_trx_v_cash"))
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, repo.calls.Load(), int32(8))
}

func TestCatalogWithoutCache(t *testing.T) {
	svc := NewService(&stubRepo{types: []string{"Cash"}}, catalog.Default(), nil, nil)
	c, err := svc.Catalog(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, c.Has("acc_trx_v_cash"))
}
