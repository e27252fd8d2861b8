package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches with PostgreSQL full-text search.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Search runs a UNION ALL over articles and events ranked by ts_rank, with
// ts_headline snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "websearch_to_tsquery('english', $1)"
	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultArticle {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'article'::text AS type, a.id, a.title,
				ts_headline('english', a.content, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				a.image, ts_rank(a.fts, %[1]s) AS rank
			FROM articles a
			WHERE a.fts @@ %[1]s`, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultEvent {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'event'::text AS type, e.id, e.title,
				ts_headline('english', e.description, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				e.image, ts_rank(e.fts, %[1]s) AS rank
			FROM events e
			WHERE e.fts @@ %[1]s`, tsQuery))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+union+") sub", q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, title, snippet, image
		FROM (%s) sub
		ORDER BY rank DESC, id ASC
		LIMIT %d OFFSET %d`, union, normalizeLimit(q.Limit), offset), q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Image); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ArticleRecord, []EventRecord, error) {
	articleRows, err := p.db.QueryContext(ctx, `SELECT id, title, content, author, category, image FROM articles`)
	if err != nil {
		return nil, nil, fmt.Errorf("load articles: %w", err)
	}
	defer articleRows.Close()

	articles := make([]ArticleRecord, 0)
	for articleRows.Next() {
		var a ArticleRecord
		if err := articleRows.Scan(&a.ID, &a.Title, &a.Content, &a.Author, &a.Category, &a.Image); err != nil {
			return nil, nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := articleRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate articles: %w", err)
	}

	eventRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, location, genre, image, (extract(epoch FROM date) * 1000)::bigint
		FROM events
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load events: %w", err)
	}
	defer eventRows.Close()

	events := make([]EventRecord, 0)
	for eventRows.Next() {
		var e EventRecord
		if err := eventRows.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Genre, &e.Image, &e.Date); err != nil {
			return nil, nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := eventRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate events: %w", err)
	}

	return articles, events, nil
}
