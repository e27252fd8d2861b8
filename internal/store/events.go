package store

import (
	"context"
	"fmt"
)

const eventColumns = `id, title, description, date, location, genre, image, website, created_by,
	to_json(likes), to_json(bookmarks), created_at, updated_at`

func scanEvent(row rowScanner) (Event, error) {
	var e Event
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Date, &e.Location, &e.Genre, &e.Image, &e.Website,
		&e.CreatedBy, asJSON(&e.Likes), asJSON(&e.Bookmarks), &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return Event{}, err
	}
	e.Likes = nonNilStrings(e.Likes)
	e.Bookmarks = nonNilStrings(e.Bookmarks)
	return e, nil
}

// ListEvents returns all events, soonest first.
func (s *PostgresStore) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1`, id))
	if err != nil {
		return Event{}, classify("get event", err)
	}
	return e, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, e Event) (Event, error) {
	created, err := scanEvent(s.db.QueryRowContext(ctx, `
		INSERT INTO events (id, title, description, date, location, genre, image, website, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+eventColumns,
		e.ID, e.Title, e.Description, e.Date, e.Location, e.Genre, e.Image, e.Website, e.CreatedBy))
	if err != nil {
		return Event{}, classify("insert event", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, id string, patch EventPatch) (Event, error) {
	updated, err := scanEvent(s.db.QueryRowContext(ctx, `
		UPDATE events SET
			title       = COALESCE($2, title),
			description = COALESCE($3, description),
			date        = COALESCE($4, date),
			location    = COALESCE($5, location),
			genre       = COALESCE($6, genre),
			image       = COALESCE($7, image),
			website     = COALESCE($8, website),
			updated_at  = NOW()
		WHERE id=$1
		RETURNING `+eventColumns,
		id, patch.Title, patch.Description, patch.Date, patch.Location, patch.Genre, patch.Image, patch.Website))
	if err != nil {
		return Event{}, classify("update event", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return requireAffected(result, "delete event")
}

func (s *PostgresStore) ToggleEventLike(ctx context.Context, id, userID string) (Event, bool, error) {
	var liked bool
	row := s.db.QueryRowContext(ctx, `
		UPDATE events SET
			likes = CASE WHEN $2::text = ANY(likes) THEN array_remove(likes, $2::text) ELSE array_append(likes, $2::text) END,
			updated_at = NOW()
		WHERE id=$1
		RETURNING `+eventColumns+`, $2::text = ANY(likes)`, id, userID)
	e, err := scanEvent(scanExtra{row: row, extra: &liked})
	if err != nil {
		return Event{}, false, classify("toggle event like", err)
	}
	return e, liked, nil
}

func (s *PostgresStore) ToggleEventBookmark(ctx context.Context, id, userID string) (Event, bool, error) {
	var bookmarked bool
	row := s.db.QueryRowContext(ctx, `
		UPDATE events SET
			bookmarks = CASE WHEN $2::text = ANY(bookmarks) THEN array_remove(bookmarks, $2::text) ELSE array_append(bookmarks, $2::text) END,
			updated_at = NOW()
		WHERE id=$1
		RETURNING `+eventColumns+`, $2::text = ANY(bookmarks)`, id, userID)
	e, err := scanEvent(scanExtra{row: row, extra: &bookmarked})
	if err != nil {
		return Event{}, false, classify("toggle event bookmark", err)
	}
	return e, bookmarked, nil
}

// DeleteEventsWithImages removes events whose image is one of images.
func (s *PostgresStore) DeleteEventsWithImages(ctx context.Context, images []string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE image = ANY($1)`, images)
	if err != nil {
		return 0, fmt.Errorf("delete events by image: %w", err)
	}
	return result.RowsAffected()
}
