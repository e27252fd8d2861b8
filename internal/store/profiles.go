package store

import (
	"context"
	"fmt"
)

const profileColumns = `id, user_id, pursuits, accomplishments, social_media_links, created_at, updated_at`

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.UserID, asJSON(&p.Pursuits), asJSON(&p.Accomplishments),
		asJSON(&p.SocialMediaLinks), &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Profile{}, err
	}
	if p.Pursuits == nil {
		p.Pursuits = []Pursuit{}
	}
	if p.Accomplishments == nil {
		p.Accomplishments = []Accomplishment{}
	}
	if p.SocialMediaLinks == nil {
		p.SocialMediaLinks = map[string]string{}
	}
	return p, nil
}

func (s *PostgresStore) GetProfileByUser(ctx context.Context, userID string) (Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1`, userID))
	if err != nil {
		return Profile{}, classify("get profile", err)
	}
	return p, nil
}

// CreateProfile fails with ErrConflict when the user already has a profile.
func (s *PostgresStore) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	pursuits, err := marshalJSON(p.Pursuits)
	if err != nil {
		return Profile{}, err
	}
	accomplishments, err := marshalJSON(p.Accomplishments)
	if err != nil {
		return Profile{}, err
	}
	links, err := marshalJSON(p.SocialMediaLinks)
	if err != nil {
		return Profile{}, err
	}
	created, err := scanProfile(s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, user_id, pursuits, accomplishments, social_media_links)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5::jsonb)
		RETURNING `+profileColumns,
		p.ID, p.UserID, pursuits, accomplishments, links))
	if err != nil {
		return Profile{}, classify("insert profile", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (Profile, error) {
	var pursuits, accomplishments, links *string
	if patch.Pursuits != nil {
		raw, err := marshalJSON(*patch.Pursuits)
		if err != nil {
			return Profile{}, err
		}
		pursuits = &raw
	}
	if patch.Accomplishments != nil {
		raw, err := marshalJSON(*patch.Accomplishments)
		if err != nil {
			return Profile{}, err
		}
		accomplishments = &raw
	}
	if patch.SocialMediaLinks != nil {
		raw, err := marshalJSON(*patch.SocialMediaLinks)
		if err != nil {
			return Profile{}, err
		}
		links = &raw
	}

	updated, err := scanProfile(s.db.QueryRowContext(ctx, `
		UPDATE profiles SET
			pursuits           = COALESCE($2::jsonb, pursuits),
			accomplishments    = COALESCE($3::jsonb, accomplishments),
			social_media_links = COALESCE($4::jsonb, social_media_links),
			updated_at = NOW()
		WHERE user_id=$1
		RETURNING `+profileColumns,
		userID, pursuits, accomplishments, links))
	if err != nil {
		return Profile{}, classify("update profile", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteProfile(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return requireAffected(result, "delete profile")
}
