// Package authz holds the closed role set, the authenticated caller
// identity, and the authorization rules applied by services.
package authz

import (
	"context"

	"covoiturage/pkg/apperr"
	"covoiturage/pkg/jwt"
)

// Role is a user's account type.
type Role string

const (
	RoleAdmin     Role = "admin"
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
)

// DefaultRole is assigned when an account is created without a role.
const DefaultRole = RolePassenger

// RoleNames lists every valid role, the allowed set of the role field.
func RoleNames() []string {
	return []string{string(RoleAdmin), string(RolePassenger), string(RoleDriver)}
}

// Identity is the caller of a request, resolved once at the boundary.
type Identity struct {
	UserID string
	Role   Role
	Token  *jwt.Claims
}

// IsAdmin reports whether the caller holds the admin role.
func (id Identity) IsAdmin() bool {
	switch id.Role {
	case RoleAdmin:
		return true
	case RolePassenger, RoleDriver:
		return false
	default:
		return false
	}
}

type ctxKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Require returns the caller on ctx, or an authentication error when the
// request never passed the auth middleware.
func Require(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, apperr.Unauthenticated("")
	}
	return id, nil
}

// CanUpdateUser allows the account owner and admins.
func CanUpdateUser(caller Identity, targetID string) error {
	if caller.UserID == targetID || caller.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("")
}

// CanChangeRole allows admins only.
func CanChangeRole(caller Identity) error {
	if caller.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("Unauthorized - only administrators can change roles")
}

// CanDeleteUser requires an admin who is not deleting their own account.
func CanDeleteUser(caller Identity, targetID string) error {
	if err := RequireAdmin(caller); err != nil {
		return err
	}
	if caller.UserID == targetID {
		return apperr.Rejected("You cannot delete your own account")
	}
	return nil
}

// RequireAdmin allows admins only.
func RequireAdmin(caller Identity) error {
	if caller.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("Unauthorized - administrator rights required")
}
