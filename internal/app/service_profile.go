package app

import (
	"context"
	"errors"

	"github.com/jason25840/nrg-server/internal/auth"
	"github.com/jason25840/nrg-server/internal/rbac"
	"github.com/jason25840/nrg-server/internal/store"
	"github.com/jason25840/nrg-server/internal/util"
	"github.com/jason25840/nrg-server/internal/validate"
)

// ProfileRequest is used for both create and update. Omitted lists and link
// maps are left untouched on update.
type ProfileRequest struct {
	Pursuits         []store.Pursuit        `json:"pursuits" validate:"dive"`
	Accomplishments  []store.Accomplishment `json:"accomplishments" validate:"dive"`
	SocialMediaLinks map[string]string      `json:"socialMediaLinks" validate:"dive,keys,oneof=instagram tiktok strava youtube,endkeys"`
}

func (s *Service) MyProfile(ctx context.Context, identity auth.Identity) (store.Profile, error) {
	return s.ProfileByUser(ctx, identity.UserID)
}

func (s *Service) ProfileByUser(ctx context.Context, userID string) (store.Profile, error) {
	profile, err := s.store.GetProfileByUser(ctx, userID)
	if err != nil {
		return store.Profile{}, profileErr(err)
	}
	return profile, nil
}

// CreateProfile creates the caller's profile; a user has at most one.
func (s *Service) CreateProfile(ctx context.Context, identity auth.Identity, req ProfileRequest) (store.Profile, error) {
	if err := validate.Struct(req); err != nil {
		return store.Profile{}, err
	}
	profile := store.Profile{
		ID:               util.NewID(""),
		UserID:           identity.UserID,
		Pursuits:         req.Pursuits,
		Accomplishments:  req.Accomplishments,
		SocialMediaLinks: req.SocialMediaLinks,
	}
	if profile.Pursuits == nil {
		profile.Pursuits = []store.Pursuit{}
	}
	if profile.Accomplishments == nil {
		profile.Accomplishments = []store.Accomplishment{}
	}
	if profile.SocialMediaLinks == nil {
		profile.SocialMediaLinks = map[string]string{}
	}

	created, err := s.store.CreateProfile(ctx, profile)
	if errors.Is(err, store.ErrConflict) {
		return store.Profile{}, conflict("Profile already exists")
	}
	return created, err
}

func (s *Service) UpdateProfile(ctx context.Context, identity auth.Identity, userID string, req ProfileRequest) (store.Profile, error) {
	if err := rbac.RequireOwnerOrAdmin(identity, userID); err != nil {
		return store.Profile{}, err
	}
	if err := validate.Struct(req); err != nil {
		return store.Profile{}, err
	}
	var patch store.ProfilePatch
	if req.Pursuits != nil {
		patch.Pursuits = &req.Pursuits
	}
	if req.Accomplishments != nil {
		patch.Accomplishments = &req.Accomplishments
	}
	if req.SocialMediaLinks != nil {
		patch.SocialMediaLinks = &req.SocialMediaLinks
	}
	profile, err := s.store.UpdateProfile(ctx, userID, patch)
	if err != nil {
		return store.Profile{}, profileErr(err)
	}
	return profile, nil
}

func (s *Service) DeleteProfile(ctx context.Context, identity auth.Identity, userID string) error {
	if err := rbac.RequireOwnerOrAdmin(identity, userID); err != nil {
		return err
	}
	return profileErr(s.store.DeleteProfile(ctx, userID))
}

func profileErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Profile")
	}
	return err
}
