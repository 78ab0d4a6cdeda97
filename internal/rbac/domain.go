// Package rbac owns the company wide shield locks, identifies the acting
// member and guards HTTP routes with resolved capability params.
package rbac

import (
	"context"
	"time"
)

// Actor describes the authenticated member.
type Actor struct {
	MemberID       int64
	CompanyID      int64
	RoleTemplateID *int64
	SuperAdmin     bool
	CreatedAt      time.Time
}

// Principal is implemented by anything that can act on the permission API.
type Principal interface {
	GetID() int64
	IsSuperUser() bool
}

// GetID returns the member ID.
func (a Actor) GetID() int64 { return a.MemberID }

// IsSuperUser reports whether the actor bypasses shield locks.
func (a Actor) IsSuperUser() bool { return a.SuperAdmin }

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
