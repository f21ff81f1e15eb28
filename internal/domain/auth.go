package domain

import "context"

// Role is the closed set of actor roles the rule table understands.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleAdmin, RoleCustomer:
		return true
	}
	return false
}

// IsStaff reports whether r belongs to support staff.
func (r Role) IsStaff() bool {
	return r == RoleAgent || r == RoleAdmin
}

// Actor is a verified identity supplied by the authentication collaborator.
type Actor struct {
	ID   string
	Role Role
}

type actorKey struct{}

// ContextWithActor attaches the acting identity to ctx for audit records.
func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor attached to ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
