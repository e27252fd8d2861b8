package app

import (
	"context"

	"github.com/jason25840/nrg-server/internal/auth"
	"github.com/jason25840/nrg-server/internal/rbac"
	"github.com/jason25840/nrg-server/internal/store"
	"go.uber.org/zap"
)

func (s *Service) ListUsers(ctx context.Context, identity auth.Identity) ([]store.User, error) {
	if err := rbac.RequireAdmin(identity); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

// MakeAdmin promotes userID. The promoted user's existing tokens keep the old
// role until they expire.
func (s *Service) MakeAdmin(ctx context.Context, identity auth.Identity, userID string) (store.User, error) {
	if err := rbac.RequireAdmin(identity); err != nil {
		return store.User{}, err
	}
	user, err := s.store.SetUserRole(ctx, userID, string(rbac.RoleAdmin))
	if err != nil {
		return store.User{}, userErr(err)
	}
	s.logger.Info("user promoted to admin", zap.String("user_id", user.ID), zap.String("by", identity.UserID))
	return user, nil
}
