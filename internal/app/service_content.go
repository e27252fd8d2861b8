package app

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jason25840/nrg-server/internal/auth"
	"github.com/jason25840/nrg-server/internal/rbac"
	"github.com/jason25840/nrg-server/internal/search"
	"github.com/jason25840/nrg-server/internal/store"
	"github.com/jason25840/nrg-server/internal/util"
	"github.com/jason25840/nrg-server/internal/validate"
)

const (
	defaultArticleImage = "https://images.unsplash.com/photo-1594322436404-5a0526db4d13?w=800&auto=format&fit=crop&q=60"
	defaultEventImage   = "https://plus.unsplash.com/premium_photo-1681437096333-64bc0ab6133b?w=800&auto=format&fit=crop&q=60"

	snippetLength   = 100
	snippetFallback = "No description available."
)

// Snippet returns the first 100 characters of content followed by "...".
func Snippet(content string) string {
	if strings.TrimSpace(content) == "" {
		return snippetFallback
	}
	if utf8.RuneCountInString(content) <= snippetLength {
		return content + "..."
	}
	return string([]rune(content)[:snippetLength]) + "..."
}

// BookmarkResult reports the new bookmark state of an article or event.
type BookmarkResult[T any] struct {
	Item   T
	Action string
}

func bookmarkAction(bookmarked bool) string {
	if bookmarked {
		return "bookmarked"
	}
	return "unbookmarked"
}

type ArticleRequest struct {
	Title    string `json:"title" validate:"required"`
	Content  string `json:"content" validate:"required"`
	Category string `json:"category" validate:"required"`
	Author   string `json:"author"`
	Image    string `json:"image"`
}

// ArticleUpdate applies only the non-empty fields.
type ArticleUpdate struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Author   string `json:"author"`
	Image    string `json:"image"`
}

func (s *Service) ListArticles(ctx context.Context) ([]store.Article, error) {
	articles, err := s.store.ListArticles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range articles {
		articles[i].Snippet = Snippet(articles[i].Content)
	}
	return articles, nil
}

func (s *Service) GetArticle(ctx context.Context, id string) (store.Article, error) {
	article, err := s.store.GetArticle(ctx, id)
	if err != nil {
		return store.Article{}, articleErr(err)
	}
	article.Snippet = Snippet(article.Content)
	return article, nil
}

func (s *Service) CreateArticle(ctx context.Context, identity auth.Identity, req ArticleRequest) (store.Article, error) {
	if err := rbac.RequireAdmin(identity); err != nil {
		return store.Article{}, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Category = strings.TrimSpace(req.Category)
	if err := validate.Struct(req); err != nil {
		return store.Article{}, err
	}

	author := strings.TrimSpace(req.Author)
	if author == "" {
		author = "Anonymous"
	}
	image := strings.TrimSpace(req.Image)
	if image == "" {
		image = defaultArticleImage
	}

	article, err := s.store.CreateArticle(ctx, store.Article{
		ID:        util.NewID(""),
		Title:     req.Title,
		Content:   req.Content,
		Author:    author,
		Category:  req.Category,
		Image:     image,
		CreatedBy: identity.UserID,
	})
	if err != nil {
		return store.Article{}, err
	}
	s.search.IndexArticle(articleRecord(article))
	article.Snippet = Snippet(article.Content)
	return article, nil
}

func (s *Service) UpdateArticle(ctx context.Context, identity auth.Identity, id string, req ArticleUpdate) (store.Article, error) {
	if err := rbac.RequireAdmin(identity); err != nil {
		return store.Article{}, err
	}
	article, err := s.store.UpdateArticle(ctx, id, store.ArticlePatch{
		Title:    nonEmpty(req.Title),
		Content:  nonEmpty(req.Content),
		Category: nonEmpty(req.Category),
		Author:   nonEmpty(req.Author),
		Image:    nonEmpty(req.Image),
	})
	if err != nil {
		return store.Article{}, articleErr(err)
	}
	s.search.IndexArticle(articleRecord(article))
	article.Snippet = Snippet(article.Content)
	return article, nil
}

func (s *Service) DeleteArticle(ctx context.Context, identity auth.Identity, id string) error {
	if err := rbac.RequireAdmin(identity); err != nil {
		return err
	}
	if err := s.store.DeleteArticle(ctx, id); err != nil {
		return articleErr(err)
	}
	s.search.DeleteArticle(id)
	return nil
}

func (s *Service) ToggleArticleLike(ctx context.Context, identity auth.Identity, id string) (store.Article, error) {
	article, _, err := s.store.ToggleArticleLike(ctx, id, identity.UserID)
	if err != nil {
		return store.Article{}, articleErr(err)
	}
	return article, nil
}

// ToggleArticleBookmark flips the caller's bookmark on the article and
// mirrors the new state into the caller's bookmarkedArticles.
func (s *Service) ToggleArticleBookmark(ctx context.Context, identity auth.Identity, id string) (BookmarkResult[store.Article], error) {
	article, bookmarked, err := s.store.ToggleArticleBookmark(ctx, id, identity.UserID)
	if err != nil {
		return BookmarkResult[store.Article]{}, articleErr(err)
	}
	if err := s.store.SetArticleBookmark(ctx, identity.UserID, id, bookmarked); err != nil {
		return BookmarkResult[store.Article]{}, userErr(err)
	}
	return BookmarkResult[store.Article]{Item: article, Action: bookmarkAction(bookmarked)}, nil
}

type EventRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Genre       string `json:"genre" validate:"required"`
	Image       string `json:"image"`
	Website     string `json:"website" validate:"omitempty,url"`
}

// EventUpdate applies only the non-empty fields.
type EventUpdate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Location    string `json:"location"`
	Genre       string `json:"genre"`
	Image       string `json:"image"`
	Website     string `json:"website" validate:"omitempty,url"`
}

var eventDateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func parseEventDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, validate.Fields("date", "must be a valid date")
}

func (s *Service) ListEvents(ctx context.Context) ([]store.Event, error) {
	return s.store.ListEvents(ctx)
}

func (s *Service) GetEvent(ctx context.Context, id string) (store.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return store.Event{}, eventErr(err)
	}
	return event, nil
}

func (s *Service) CreateEvent(ctx context.Context, identity auth.Identity, req EventRequest) (store.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	req.Genre = strings.TrimSpace(req.Genre)
	if err := validate.Struct(req); err != nil {
		return store.Event{}, err
	}
	date, err := parseEventDate(req.Date)
	if err != nil {
		return store.Event{}, err
	}
	image := strings.TrimSpace(req.Image)
	if image == "" {
		image = defaultEventImage
	}

	event, err := s.store.CreateEvent(ctx, store.Event{
		ID:          util.NewID(""),
		Title:       req.Title,
		Description: req.Description,
		Date:        date,
		Location:    req.Location,
		Genre:       req.Genre,
		Image:       image,
		Website:     strings.TrimSpace(req.Website),
		CreatedBy:   identity.UserID,
	})
	if err != nil {
		return store.Event{}, err
	}
	s.search.IndexEvent(eventRecord(event))
	return event, nil
}

// UpdateEvent is allowed for the event's creator and admins.
func (s *Service) UpdateEvent(ctx context.Context, identity auth.Identity, id string, req EventUpdate) (store.Event, error) {
	existing, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return store.Event{}, eventErr(err)
	}
	if err := rbac.RequireOwnerOrAdmin(identity, existing.CreatedBy); err != nil {
		return store.Event{}, err
	}
	if err := validate.Struct(req); err != nil {
		return store.Event{}, err
	}

	patch := store.EventPatch{
		Title:       nonEmpty(req.Title),
		Description: nonEmpty(req.Description),
		Location:    nonEmpty(req.Location),
		Genre:       nonEmpty(req.Genre),
		Image:       nonEmpty(req.Image),
		Website:     nonEmpty(req.Website),
	}
	if strings.TrimSpace(req.Date) != "" {
		date, err := parseEventDate(req.Date)
		if err != nil {
			return store.Event{}, err
		}
		patch.Date = &date
	}

	event, err := s.store.UpdateEvent(ctx, id, patch)
	if err != nil {
		return store.Event{}, eventErr(err)
	}
	s.search.IndexEvent(eventRecord(event))
	return event, nil
}

func (s *Service) DeleteEvent(ctx context.Context, identity auth.Identity, id string) error {
	existing, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return eventErr(err)
	}
	if err := rbac.RequireOwnerOrAdmin(identity, existing.CreatedBy); err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return eventErr(err)
	}
	s.search.DeleteEvent(id)
	return nil
}

func (s *Service) ToggleEventLike(ctx context.Context, identity auth.Identity, id string) (store.Event, error) {
	event, _, err := s.store.ToggleEventLike(ctx, id, identity.UserID)
	if err != nil {
		return store.Event{}, eventErr(err)
	}
	return event, nil
}

func (s *Service) ToggleEventBookmark(ctx context.Context, identity auth.Identity, id string) (BookmarkResult[store.Event], error) {
	event, bookmarked, err := s.store.ToggleEventBookmark(ctx, id, identity.UserID)
	if err != nil {
		return BookmarkResult[store.Event]{}, eventErr(err)
	}
	if err := s.store.SetEventBookmark(ctx, identity.UserID, id, bookmarked); err != nil {
		return BookmarkResult[store.Event]{}, userErr(err)
	}
	return BookmarkResult[store.Event]{Item: event, Action: bookmarkAction(bookmarked)}, nil
}

func nonEmpty(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func articleErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Article")
	}
	return err
}

func eventErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Event")
	}
	return err
}

func userErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound("User")
	}
	return err
}

func articleRecord(a store.Article) search.ArticleRecord {
	return search.ArticleRecord{
		ID:       a.ID,
		Title:    a.Title,
		Content:  a.Content,
		Author:   a.Author,
		Category: a.Category,
		Image:    a.Image,
	}
}

func eventRecord(e store.Event) search.EventRecord {
	return search.EventRecord{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Genre:       e.Genre,
		Image:       e.Image,
		Date:        e.Date.UnixMilli(),
	}
}
