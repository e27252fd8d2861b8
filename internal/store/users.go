package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const userColumns = `id, name, username, email, password_hash, avatar, role, is_verified,
	COALESCE(reset_token_hash, ''), reset_expires_at,
	to_json(bookmarked_events), to_json(bookmarked_articles), created_at, updated_at`

func scanUser(row rowScanner) (User, error) {
	var user User
	var resetExpires sql.NullTime
	err := row.Scan(
		&user.ID, &user.Name, &user.Username, &user.Email, &user.PasswordHash, &user.Avatar,
		&user.Role, &user.IsVerified, &user.ResetTokenHash, &resetExpires,
		asJSON(&user.BookmarkedEvents), asJSON(&user.BookmarkedArticles),
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	if resetExpires.Valid {
		t := resetExpires.Time
		user.ResetExpiresAt = &t
	}
	user.BookmarkedEvents = nonNilStrings(user.BookmarkedEvents)
	user.BookmarkedArticles = nonNilStrings(user.BookmarkedArticles)
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, username, email, password_hash, avatar, role, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Name, user.Username, user.Email, user.PasswordHash, user.Avatar, user.Role, user.IsVerified)
	return classify("insert user", err)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return User{}, classify("get user", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
	if err != nil {
		return User{}, classify("get user by email", err)
	}
	return user, nil
}

func (s *PostgresStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE lower(username)=lower($1))`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetUserRole updates the role and returns the updated user.
func (s *PostgresStore) SetUserRole(ctx context.Context, id, role string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users SET role=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+userColumns, id, role))
	if err != nil {
		return User{}, classify("set user role", err)
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireAffected(result, "update password")
}

func (s *PostgresStore) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET reset_token_hash=$2, reset_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, id, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return requireAffected(result, "set reset token")
}

// ConsumePasswordReset swaps in a new password hash for the user holding an
// unexpired reset token and clears the token in the same statement.
func (s *PostgresStore) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET password_hash=$2, reset_token_hash=NULL, reset_expires_at=NULL, updated_at=NOW()
		WHERE reset_token_hash=$1 AND reset_expires_at > NOW()
		RETURNING id
	`, tokenHash, passwordHash).Scan(&userID)
	if err != nil {
		return "", classify("consume reset token", err)
	}
	return userID, nil
}

// SetEventBookmark adds or removes eventID from the user's bookmarked events.
func (s *PostgresStore) SetEventBookmark(ctx context.Context, userID, eventID string, bookmarked bool) error {
	return s.setUserBookmark(ctx, "bookmarked_events", userID, eventID, bookmarked)
}

func (s *PostgresStore) SetArticleBookmark(ctx context.Context, userID, articleID string, bookmarked bool) error {
	return s.setUserBookmark(ctx, "bookmarked_articles", userID, articleID, bookmarked)
}

func (s *PostgresStore) setUserBookmark(ctx context.Context, column, userID, itemID string, bookmarked bool) error {
	// column is one of two fixed identifiers, never caller input.
	query := fmt.Sprintf(`
		UPDATE users SET %[1]s = CASE
			WHEN $3::boolean THEN (CASE WHEN $2::text = ANY(%[1]s) THEN %[1]s ELSE array_append(%[1]s, $2::text) END)
			ELSE array_remove(%[1]s, $2::text)
		END, updated_at=NOW()
		WHERE id=$1
	`, column)
	if _, err := s.db.ExecContext(ctx, query, userID, itemID, bookmarked); err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}

// UsersWithoutValidUsername returns users whose username is missing or too short.
func (s *PostgresStore) UsersWithoutValidUsername(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE username !~ '^[a-zA-Z0-9_]{3,20}$'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users without username: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) SetUsername(ctx context.Context, id, username string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET username=$2, updated_at=NOW() WHERE id=$1`, id, username)
	if err != nil {
		return classify("set username", err)
	}
	return requireAffected(result, "set username")
}

// FirstAdmin returns the earliest-created admin.
func (s *PostgresStore) FirstAdmin(ctx context.Context) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE role='admin' ORDER BY created_at ASC LIMIT 1
	`))
	if err != nil {
		return User{}, classify("first admin", err)
	}
	return user, nil
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
