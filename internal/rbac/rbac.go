package rbac

import (
	"errors"

	"github.com/jason25840/nrg-server/internal/auth"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var ErrForbidden = errors.New("forbidden")

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}

func IsAdmin(identity auth.Identity) bool {
	return Normalize(identity.Role) == RoleAdmin
}

// RequireAdmin fails with ErrForbidden unless the caller is an admin.
func RequireAdmin(identity auth.Identity) error {
	if !IsAdmin(identity) {
		return ErrForbidden
	}
	return nil
}

// RequireOwnerOrAdmin fails with ErrForbidden unless the caller owns the
// resource or is an admin. An empty owner is never matched.
func RequireOwnerOrAdmin(identity auth.Identity, ownerID string) error {
	if IsAdmin(identity) {
		return nil
	}
	if ownerID != "" && identity.UserID == ownerID {
		return nil
	}
	return ErrForbidden
}
