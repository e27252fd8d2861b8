package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Index is a search engine that can also accept writes. *Meili implements it.
type Index interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexArticles(articles ...ArticleRecord) error
	IndexEvents(events ...EventRecord) error
	DeleteArticle(id string) error
	DeleteEvent(id string) error
}

// Fallback is the database search used when the index is unavailable.
// *PgFTS implements it.
type Fallback interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	LoadAllRecords(ctx context.Context) ([]ArticleRecord, []EventRecord, error)
}

var ErrIndexUnavailable = errors.New("search index unavailable")

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	index    Index
	fallback Fallback
	logger   *zap.Logger
}

// NewService creates a search service. index may be nil if Meilisearch is not configured.
func NewService(index Index, fallback Fallback, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, fallback: fallback, logger: logger}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", zap.Error(err))
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexArticle indexes an article (fire-and-forget).
func (s *Service) IndexArticle(a ArticleRecord) {
	s.async("index article", a.ID, func() error { return s.index.IndexArticles(a) })
}

// IndexEvent indexes an event (fire-and-forget).
func (s *Service) IndexEvent(e EventRecord) {
	s.async("index event", e.ID, func() error { return s.index.IndexEvents(e) })
}

func (s *Service) DeleteArticle(id string) {
	s.async("delete article", id, func() error { return s.index.DeleteArticle(id) })
}

func (s *Service) DeleteEvent(id string) {
	s.async("delete event", id, func() error { return s.index.DeleteEvent(id) })
}

func (s *Service) async(op, id string, fn func() error) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := fn(); err != nil {
			s.logger.Warn("search "+op+" failed", zap.String("id", id), zap.Error(err))
		}
	}()
}

// Reindex reads every article and event from PostgreSQL and pushes them to
// the index. It returns the number of records sent.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if !s.indexReady() {
		return 0, ErrIndexUnavailable
	}
	if s.fallback == nil {
		return 0, fmt.Errorf("reindex: no record source")
	}
	articles, events, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex load: %w", err)
	}
	if err := s.index.IndexArticles(articles...); err != nil {
		return 0, fmt.Errorf("reindex articles: %w", err)
	}
	if err := s.index.IndexEvents(events...); err != nil {
		return len(articles), fmt.Errorf("reindex events: %w", err)
	}
	return len(articles) + len(events), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
