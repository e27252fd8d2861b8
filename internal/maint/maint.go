// Package maint holds one-off data maintenance tasks run from nrgctl.
package maint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason25840/nrg-server/internal/authpw"
	"github.com/jason25840/nrg-server/internal/rbac"
	"github.com/jason25840/nrg-server/internal/store"
	"github.com/jason25840/nrg-server/internal/validate"
	"go.uber.org/zap"
)

// PlaceholderImages are legacy image values that mark seeded demo events.
var PlaceholderImages = []string{
	"/images/NRG_Image_Placeholder.png",
	"https://via.placeholder.com/300",
}

var ErrNoAdmin = errors.New("no admin user exists")

type Store interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	SetUserRole(ctx context.Context, id, role string) (store.User, error)
	UsersWithoutValidUsername(ctx context.Context) ([]store.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	SetUsername(ctx context.Context, id, username string) error
	DeleteEventsWithImages(ctx context.Context, images []string) (int64, error)
	FirstAdmin(ctx context.Context) (store.User, error)
	AssignArticleOwner(ctx context.Context, ownerID string) (int64, error)
}

type Runner struct {
	store  Store
	logger *zap.Logger
	suffix func() int
}

func NewRunner(st Store, logger *zap.Logger, suffix func() int) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{store: st, logger: logger, suffix: suffix}
}

// MakeAdmin promotes the user with email to admin.
func (r *Runner) MakeAdmin(ctx context.Context, email string) (store.User, error) {
	user, err := r.store.GetUserByEmail(ctx, authpw.NormalizeEmail(email))
	if err != nil {
		return store.User{}, fmt.Errorf("find %s: %w", email, err)
	}
	if user.Role == string(rbac.RoleAdmin) {
		r.logger.Info("user already admin", zap.String("user_id", user.ID))
		return user, nil
	}
	updated, err := r.store.SetUserRole(ctx, user.ID, string(rbac.RoleAdmin))
	if err != nil {
		return store.User{}, err
	}
	r.logger.Info("promoted user to admin", zap.String("user_id", updated.ID))
	return updated, nil
}

// BackfillUsernames gives every user without a valid username one derived
// from their name. It returns the number of users updated.
func (r *Runner) BackfillUsernames(ctx context.Context) (int, error) {
	users, err := r.store.UsersWithoutValidUsername(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, user := range users {
		username, err := r.freeUsername(ctx, user.Name)
		if err != nil {
			return updated, fmt.Errorf("user %s: %w", user.ID, err)
		}
		if err := r.store.SetUsername(ctx, user.ID, username); err != nil {
			if errors.Is(err, store.ErrConflict) {
				r.logger.Warn("username taken concurrently, skipping", zap.String("user_id", user.ID))
				continue
			}
			return updated, fmt.Errorf("user %s: %w", user.ID, err)
		}
		r.logger.Info("assigned username", zap.String("user_id", user.ID), zap.String("username", username))
		updated++
	}
	return updated, nil
}

func (r *Runner) freeUsername(ctx context.Context, name string) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		candidate := authpw.DeriveUsername(name, r.suffix())
		if !validate.IsUsername(candidate) {
			continue
		}
		taken, err := r.store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", authpw.ErrUsernameTaken
}

// CleanPlaceholderEvents deletes events still carrying a placeholder image.
func (r *Runner) CleanPlaceholderEvents(ctx context.Context) (int64, error) {
	n, err := r.store.DeleteEventsWithImages(ctx, PlaceholderImages)
	if err != nil {
		return 0, err
	}
	r.logger.Info("removed placeholder events", zap.Int64("count", n))
	return n, nil
}

// AssignArticleOwner sets the creator of unowned articles to the first admin.
func (r *Runner) AssignArticleOwner(ctx context.Context) (int64, error) {
	admin, err := r.store.FirstAdmin(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrNoAdmin
		}
		return 0, err
	}
	n, err := r.store.AssignArticleOwner(ctx, admin.ID)
	if err != nil {
		return 0, err
	}
	r.logger.Info("assigned article owner", zap.String("admin_id", admin.ID), zap.Int64("count", n))
	return n, nil
}
