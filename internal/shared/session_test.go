package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "sid", time.Hour, false), mr
}

func commit(t *testing.T, sm *SessionManager, req *http.Request, sess *Session) *http.Response {
	t.Helper()
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rr, req, sess))
	return rr.Result()
}

func TestSessionRoundTrip(t *testing.T) {
	sm, mr := newSessions(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUser("42")
	sess.Set("k", "v")
	cookies := commit(t, sm, req, sess).Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, mr.Exists("session:"+sess.ID))

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "42", loaded.User())
	assert.Equal(t, "v", loaded.Get("k"))
}

func TestAnonymousUntouchedSessionIsNotStored(t *testing.T) {
	sm, mr := newSessions(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)

	resp := commit(t, sm, req, sess)
	assert.Empty(t, resp.Cookies())
	assert.Empty(t, mr.Keys())
}

func TestUnknownSessionIDIsNotAdopted(t *testing.T) {
	sm, _ := newSessions(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "forged"})

	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "forged", sess.ID)
	assert.Empty(t, sess.User())
}

func TestCommitExtendsExpiry(t *testing.T) {
	sm, mr := newSessions(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUser("1")
	cookie := commit(t, sm, req, sess).Cookies()[0]

	mr.FastForward(50 * time.Minute)
	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookie)
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	commit(t, sm, next, loaded)
	assert.Equal(t, time.Hour, mr.TTL("session:"+sess.ID))
}

func TestDestroyRemovesSession(t *testing.T) {
	sm, mr := newSessions(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUser("1")
	commit(t, sm, req, sess)

	sm.Destroy(sess)
	resp := commit(t, sm, req, sess)
	assert.False(t, mr.Exists("session:"+sess.ID))
	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, -1, resp.Cookies()[0].MaxAge)
}

func TestCSRFTokens(t *testing.T) {
	m := NewCSRFManager("secret")
	ctx := context.Background()
	sess := &Session{ID: "s1"}

	token, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, m.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, m.VerifyToken(ctx, sess, "nope"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(ctx, &Session{ID: "s2"}, token), ErrCSRFTokenMissing)
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	m := NewCSRFManager("secret")
	ctx := context.Background()
	owner := &Session{ID: "s1"}
	token, err := m.EnsureToken(ctx, owner)
	require.NoError(t, err)

	thief := &Session{ID: "s2"}
	thief.Set(CSRFSessionKey, token)
	assert.ErrorIs(t, m.VerifyToken(ctx, thief, token), ErrCSRFTokenMismatch)

	reissued, err := m.EnsureToken(ctx, thief)
	require.NoError(t, err)
	assert.NotEqual(t, token, reissued)
	assert.NoError(t, m.VerifyToken(ctx, thief, reissued))
}

func TestCSRFTokenRejectsOtherSecret(t *testing.T) {
	ctx := context.Background()
	sess := &Session{ID: "s1"}
	token, err := NewCSRFManager("a").EnsureToken(ctx, sess)
	require.NoError(t, err)

	assert.ErrorIs(t, NewCSRFManager("b").VerifyToken(ctx, sess, token), ErrCSRFTokenMismatch)
}
