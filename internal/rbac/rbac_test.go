package rbac

import (
	"errors"
	"testing"

	"github.com/jason25840/nrg-server/internal/auth"
)

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		name  string
		role  string
		allow bool
	}{
		{name: "admin", role: "admin", allow: true},
		{name: "user", role: "user", allow: false},
		{name: "unknown", role: "superuser", allow: false},
		{name: "empty", role: "", allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := RequireAdmin(auth.Identity{UserID: "u1", Role: tc.role})
			if tc.allow && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
			if !tc.allow && !errors.Is(err, ErrForbidden) {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
		})
	}
}

func TestRequireOwnerOrAdmin(t *testing.T) {
	cases := []struct {
		name     string
		identity auth.Identity
		owner    string
		allow    bool
	}{
		{name: "owner", identity: auth.Identity{UserID: "u1", Role: "user"}, owner: "u1", allow: true},
		{name: "admin non owner", identity: auth.Identity{UserID: "a1", Role: "admin"}, owner: "u1", allow: true},
		{name: "other user", identity: auth.Identity{UserID: "u2", Role: "user"}, owner: "u1", allow: false},
		{name: "ownerless record", identity: auth.Identity{UserID: "", Role: "user"}, owner: "", allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := RequireOwnerOrAdmin(tc.identity, tc.owner)
			if got := err == nil; got != tc.allow {
				t.Fatalf("RequireOwnerOrAdmin(%+v, %q) allow = %v, want %v", tc.identity, tc.owner, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin {
		t.Fatal("expected admin")
	}
	if Normalize("editor") != RoleUser {
		t.Fatal("expected unknown roles to collapse to user")
	}
}
