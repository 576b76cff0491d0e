package model

import "context"

// Principal is the authenticated-or-anonymous value attached to a request.
// It is either Identity or Anonymous.
type Principal interface {
	principal()
}

// Identity is the principal snapshot embedded in access and refresh tokens.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	RoleID   int    `json:"roleId"`
	StateID  int    `json:"stateId"`
}

func (Identity) principal() {}

func (i Identity) DisplayName() string {
	return i.Username
}

func (i Identity) Role() Role {
	return Role(i.RoleID)
}

func (i Identity) State() UserState {
	return UserState(i.StateID)
}

// Anonymous marks a request that carries no usable credentials.
type Anonymous struct{}

func (Anonymous) principal() {}

// IdentityFromUser builds a fresh payload from the authoritative user record.
func IdentityFromUser(u *User) Identity {
	return Identity{
		ID:       u.ID,
		Username: u.Username,
		RoleID:   int(u.RoleID),
		StateID:  int(u.StateID),
	}
}

type principalKey struct{}
type verdictKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns Anonymous when nothing was attached.
func PrincipalFromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Anonymous{}
	}
	if p, ok := ctx.Value(principalKey{}).(Principal); ok && p != nil {
		return p
	}
	return Anonymous{}
}

// IdentityFromContext reports the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := PrincipalFromContext(ctx).(Identity)
	return id, ok
}

func WithVerdict(ctx context.Context, v Verdict) context.Context {
	return context.WithValue(ctx, verdictKey{}, v)
}

// VerdictFromContext exposes the raw verdict for audit logging.
func VerdictFromContext(ctx context.Context) (Verdict, bool) {
	if ctx == nil {
		return VerdictUnauthenticated, false
	}
	v, ok := ctx.Value(verdictKey{}).(Verdict)
	return v, ok
}
