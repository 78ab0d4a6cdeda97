package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-crm/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-crm/odyssey-crm/internal/shared"
)

// GrantSource resolves the params an actor currently holds.
type GrantSource interface {
	Granted(ctx context.Context, actor Actor) ([]string, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Grants  GrantSource
	Cache   *GrantCache
	Logger  *slog.Logger
}

// Authenticate resolves the session user into an Actor.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		memberID, ok := m.currentUserID(r)
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		actor, err := m.Service.Actor(r.Context(), memberID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			m.logError("rbac load actor", err)
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}

// RequireAny ensures the current actor holds at least one of the params.
func (m Middleware) RequireAny(params ...string) func(http.Handler) http.Handler {
	return m.require(normalizeParams(params), hasAnyParam)
}

// RequireAll ensures the current actor holds every param.
func (m Middleware) RequireAll(params ...string) func(http.Handler) http.Handler {
	return m.require(normalizeParams(params), hasAllParams)
}

func (m Middleware) require(required []string, check func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			granted, err := m.Granted(r.Context(), actor)
			if err != nil {
				m.logError("rbac resolve grants", err)
				httpx.RespondError(w, err)
				return
			}
			if check(granted, required) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

// Granted returns the actor's params, served from the in-process cache while
// the company's grants version is unchanged.
func (m Middleware) Granted(ctx context.Context, actor Actor) ([]string, error) {
	var version int64
	if m.Service != nil && m.Cache != nil {
		v, err := m.Service.GrantsVersion(ctx, actor.CompanyID)
		if err != nil {
			m.logError("rbac grants version", err)
		} else {
			version = v
		}
	}
	if version > 0 {
		if granted, ok := m.Cache.Get(actor.CompanyID, actor.MemberID, version); ok {
			return granted, nil
		}
	}
	granted, err := m.Grants.Granted(ctx, actor)
	if err != nil {
		return nil, err
	}
	if version > 0 {
		m.Cache.Add(actor.CompanyID, actor.MemberID, version, granted)
	}
	return granted, nil
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}

func normalizeParams(params []string) []string {
	unique := make(map[string]struct{}, len(params))
	normalized := make([]string, 0, len(params))
	for _, p := range params {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func grantedSet(granted []string) map[string]struct{} {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	return set
}

func hasAnyParam(granted, required []string) bool {
	set := grantedSet(granted)
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllParams(granted, required []string) bool {
	set := grantedSet(granted)
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
