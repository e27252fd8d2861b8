package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jason25840/nrg-server/internal/auth"
	"github.com/jason25840/nrg-server/internal/authpw"
	"github.com/jason25840/nrg-server/internal/chat"
	"github.com/jason25840/nrg-server/internal/config"
	"github.com/jason25840/nrg-server/internal/search"
	"github.com/jason25840/nrg-server/internal/store"
	"go.uber.org/zap"
)

type dataStore interface {
	authpw.UserStore
	chat.Store

	Ping(ctx context.Context) error

	ListUsers(ctx context.Context) ([]store.User, error)
	SetUserRole(ctx context.Context, id, role string) (store.User, error)
	SetEventBookmark(ctx context.Context, userID, eventID string, bookmarked bool) error
	SetArticleBookmark(ctx context.Context, userID, articleID string, bookmarked bool) error

	ListArticles(ctx context.Context) ([]store.Article, error)
	GetArticle(ctx context.Context, id string) (store.Article, error)
	CreateArticle(ctx context.Context, a store.Article) (store.Article, error)
	UpdateArticle(ctx context.Context, id string, patch store.ArticlePatch) (store.Article, error)
	DeleteArticle(ctx context.Context, id string) error
	ToggleArticleLike(ctx context.Context, id, userID string) (store.Article, bool, error)
	ToggleArticleBookmark(ctx context.Context, id, userID string) (store.Article, bool, error)

	ListEvents(ctx context.Context) ([]store.Event, error)
	GetEvent(ctx context.Context, id string) (store.Event, error)
	CreateEvent(ctx context.Context, e store.Event) (store.Event, error)
	UpdateEvent(ctx context.Context, id string, patch store.EventPatch) (store.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ToggleEventLike(ctx context.Context, id, userID string) (store.Event, bool, error)
	ToggleEventBookmark(ctx context.Context, id, userID string) (store.Event, bool, error)

	GetProfileByUser(ctx context.Context, userID string) (store.Profile, error)
	CreateProfile(ctx context.Context, p store.Profile) (store.Profile, error)
	UpdateProfile(ctx context.Context, userID string, patch store.ProfilePatch) (store.Profile, error)
	DeleteProfile(ctx context.Context, userID string) error
}

// Mailer delivers account mail.
type Mailer interface {
	IsConfigured() bool
	SendPasswordResetEmail(to, userName, resetURL string) error
}

// Dependencies are the collaborators wired in by cmd/api.
type Dependencies struct {
	Chat   *chat.Service
	Search *search.Service
	Mailer Mailer
	Logger *zap.Logger
	// Checks are extra readiness probes keyed by name, such as "redis".
	Checks map[string]func(context.Context) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	auth   *authpw.Service
	chat   *chat.Service
	search *search.Service
	mailer Mailer
	logger *zap.Logger
	checks map[string]func(context.Context) error
	now    func() time.Time
}

func New(cfg config.Config, dataStore dataStore, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	searchSvc := deps.Search
	if searchSvc == nil {
		searchSvc = search.NewService(nil, nil, logger)
	}
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		auth:   authpw.NewService(dataStore),
		chat:   deps.Chat,
		search: searchSvc,
		mailer: deps.Mailer,
		logger: logger,
		checks: deps.Checks,
		now:    time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness runs the database ping and every extra check. A nil entry means
// the dependency is healthy.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	results := map[string]error{"database": s.Ping(ctx)}
	for name, check := range s.checks {
		results[name] = check(ctx)
	}
	return results
}

// Session is an issued token together with the identity it carries.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      store.User
}

func (s *Service) issueSession(user store.User) (Session, error) {
	now := s.now()
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.NewClaims(user.ID, user.Role, now, s.cfg.AccessTTL))
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: now.Add(s.cfg.AccessTTL), User: user}, nil
}

// Identify resolves a raw token to the caller identity.
func (s *Service) Identify(token string) (auth.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return auth.Identity{}, errUnauthorized
	}
	return auth.ParseToken([]byte(s.cfg.JWTSecret), token)
}

// IdentifyRequest resolves the caller of r, returning an empty user id for
// anonymous or invalid tokens.
func (s *Service) IdentifyRequest(r *http.Request) string {
	identity, err := s.Identify(auth.TokenFromRequest(r))
	if err != nil {
		return ""
	}
	return identity.UserID
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.auth.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.auth.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(user)
}

func (s *Service) CurrentUser(ctx context.Context, identity auth.Identity) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, identity.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, notFound("User")
	}
	return user, err
}

func (s *Service) ChangePassword(ctx context.Context, identity auth.Identity, req authpw.ChangePasswordRequest) error {
	err := s.auth.ChangePassword(ctx, identity.UserID, req)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("User")
	}
	return err
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// RequestPasswordReset mails a reset link when SMTP is configured. Without
// SMTP the raw token is returned outside production so development clients
// can finish the flow. In production it is never returned.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, user, err := s.auth.RequestPasswordReset(ctx, email)
	if err != nil || token == "" {
		return "", err
	}
	if !s.SMTPConfigured() {
		if s.cfg.IsProduction() {
			s.logger.Warn("password reset requested but SMTP is not configured", zap.String("user_id", user.ID))
			return "", nil
		}
		return token, nil
	}
	if err := s.mailer.SendPasswordResetEmail(user.Email, user.Name, s.resetURL(token)); err != nil {
		s.logger.Error("password reset email failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return "", nil
}

func (s *Service) resetURL(token string) string {
	base := strings.TrimRight(s.cfg.ClientURL, "/")
	if base == "" {
		base = "http://localhost:3000"
	}
	return fmt.Sprintf("%s/reset-password?token=%s", base, url.QueryEscape(token))
}

func (s *Service) ResetPassword(ctx context.Context, req authpw.ResetPasswordRequest) error {
	return s.auth.ResetPassword(ctx, req)
}
