package store

import (
	"context"
	"fmt"
)

const articleColumns = `id, title, content, author, category, image, COALESCE(created_by, ''), likes,
	to_json(liked_by), to_json(bookmarked_by), created_at, updated_at`

func scanArticle(row rowScanner) (Article, error) {
	var a Article
	err := row.Scan(
		&a.ID, &a.Title, &a.Content, &a.Author, &a.Category, &a.Image, &a.CreatedBy, &a.Likes,
		asJSON(&a.LikedBy), asJSON(&a.BookmarkedBy), &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Article{}, err
	}
	a.LikedBy = nonNilStrings(a.LikedBy)
	a.BookmarkedBy = nonNilStrings(a.BookmarkedBy)
	return a, nil
}

func (s *PostgresStore) ListArticles(ctx context.Context) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	articles := make([]Article, 0)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func (s *PostgresStore) GetArticle(ctx context.Context, id string) (Article, error) {
	a, err := scanArticle(s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1`, id))
	if err != nil {
		return Article{}, classify("get article", err)
	}
	return a, nil
}

func (s *PostgresStore) CreateArticle(ctx context.Context, a Article) (Article, error) {
	created, err := scanArticle(s.db.QueryRowContext(ctx, `
		INSERT INTO articles (id, title, content, author, category, image, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+articleColumns,
		a.ID, a.Title, a.Content, a.Author, a.Category, a.Image, nullIfEmpty(a.CreatedBy)))
	if err != nil {
		return Article{}, classify("insert article", err)
	}
	return created, nil
}

// UpdateArticle applies the non-nil fields of patch.
func (s *PostgresStore) UpdateArticle(ctx context.Context, id string, patch ArticlePatch) (Article, error) {
	updated, err := scanArticle(s.db.QueryRowContext(ctx, `
		UPDATE articles SET
			title    = COALESCE($2, title),
			content  = COALESCE($3, content),
			author   = COALESCE($4, author),
			category = COALESCE($5, category),
			image    = COALESCE($6, image),
			updated_at = NOW()
		WHERE id=$1
		RETURNING `+articleColumns,
		id, patch.Title, patch.Content, patch.Author, patch.Category, patch.Image))
	if err != nil {
		return Article{}, classify("update article", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteArticle(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return requireAffected(result, "delete article")
}

// ToggleArticleLike flips userID's membership in liked_by and recomputes the
// like count from the same row image. It reports whether the user now likes it.
func (s *PostgresStore) ToggleArticleLike(ctx context.Context, id, userID string) (Article, bool, error) {
	var liked bool
	row := s.db.QueryRowContext(ctx, `
		UPDATE articles SET
			liked_by = CASE WHEN $2::text = ANY(liked_by) THEN array_remove(liked_by, $2::text) ELSE array_append(liked_by, $2::text) END,
			likes = cardinality(CASE WHEN $2::text = ANY(liked_by) THEN array_remove(liked_by, $2::text) ELSE array_append(liked_by, $2::text) END),
			updated_at = NOW()
		WHERE id=$1
		RETURNING `+articleColumns+`, $2::text = ANY(liked_by)`, id, userID)
	a, err := scanArticle(scanExtra{row: row, extra: &liked})
	if err != nil {
		return Article{}, false, classify("toggle article like", err)
	}
	return a, liked, nil
}

func (s *PostgresStore) ToggleArticleBookmark(ctx context.Context, id, userID string) (Article, bool, error) {
	var bookmarked bool
	row := s.db.QueryRowContext(ctx, `
		UPDATE articles SET
			bookmarked_by = CASE WHEN $2::text = ANY(bookmarked_by) THEN array_remove(bookmarked_by, $2::text) ELSE array_append(bookmarked_by, $2::text) END,
			updated_at = NOW()
		WHERE id=$1
		RETURNING `+articleColumns+`, $2::text = ANY(bookmarked_by)`, id, userID)
	a, err := scanArticle(scanExtra{row: row, extra: &bookmarked})
	if err != nil {
		return Article{}, false, classify("toggle article bookmark", err)
	}
	return a, bookmarked, nil
}

// AssignArticleOwner sets created_by on every article that has none.
func (s *PostgresStore) AssignArticleOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE articles SET created_by=$1, updated_at=NOW()
		WHERE created_by IS NULL OR created_by = ''
	`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("assign article owner: %w", err)
	}
	return result.RowsAffected()
}

// scanExtra appends trailing scan targets to a row scan.
type scanExtra struct {
	row   rowScanner
	extra any
}

func (s scanExtra) Scan(dest ...any) error {
	return s.row.Scan(append(dest, s.extra)...)
}
