// Package authpw provides email/password account management.
package authpw

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/jason25840/nrg-server/internal/auth"
	"github.com/jason25840/nrg-server/internal/store"
	"github.com/jason25840/nrg-server/internal/util"
	"github.com/jason25840/nrg-server/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

const resetTokenTTL = time.Hour

// Service provides email/password authentication
type Service struct {
	store  UserStore
	cost   int
	suffix func() int
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string) (string, error)
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost, suffix: RandomSuffix}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
	Username  string `json:"username" validate:"omitempty,username"`
}

// SignUp creates a new user account with the "user" role.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = NormalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(req); err != nil {
		return store.User{}, err
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return store.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("lookup email: %w", err)
	}

	username, err := s.pickUsername(ctx, req.Name, req.Username)
	if err != nil {
		return store.User{}, err
	}

	hash, err := s.hashPassword("password", req.Password)
	if err != nil {
		return store.User{}, err
	}

	user := store.User{
		ID:           util.NewID(""),
		Name:         req.Name,
		Username:     username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Avatar:       Gravatar(req.Email),
		Role:         "user",
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) && strings.Contains(conflict.Constraint, "username") {
			return store.User{}, ErrUsernameTaken
		}
		if errors.Is(err, store.ErrConflict) {
			return store.User{}, ErrEmailTaken
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Service) pickUsername(ctx context.Context, name, requested string) (string, error) {
	if requested != "" {
		taken, err := s.store.UsernameExists(ctx, requested)
		if err != nil {
			return "", err
		}
		if taken {
			return "", ErrUsernameTaken
		}
		return requested, nil
	}
	for attempt := 0; attempt < 5; attempt++ {
		candidate := DeriveUsername(name, s.suffix())
		taken, err := s.store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrUsernameTaken
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn authenticates a user. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// hashPassword reports bcrypt's 72-byte input limit as a field error.
// max=72 counts runes, so multibyte passwords can still exceed it.
func (s *Service) hashPassword(field, password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, validate.Fields(field, "must be at most 72 bytes")
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// ChangePasswordRequest contains password change parameters
type ChangePasswordRequest struct {
	OldPassword  string `json:"oldPassword" validate:"required"`
	NewPassword  string `json:"newPassword" validate:"required,min=6,max=72"`
	NewPassword2 string `json:"newPassword2" validate:"required,eqfield=NewPassword"`
}

// ChangePassword replaces the password after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.hashPassword("newPassword", req.NewPassword)
	if err != nil {
		return err
	}
	return s.store.UpdateUserPassword(ctx, user.ID, string(hash))
}

// RequestPasswordReset creates a password reset token. It returns an empty
// token, not an error, when the email is unknown.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", store.User{}, nil
		}
		return "", store.User{}, err
	}

	token, err := generateToken()
	if err != nil {
		return "", store.User{}, err
	}
	if err := s.store.SetPasswordResetToken(ctx, user.ID, auth.HashToken(token), time.Now().Add(resetTokenTTL)); err != nil {
		return "", store.User{}, err
	}
	return token, user, nil
}

// ResetPasswordRequest contains password reset parameters
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

// ResetPassword resets a user's password using a reset token
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	hash, err := s.hashPassword("newPassword", req.NewPassword)
	if err != nil {
		return err
	}
	if _, err := s.store.ConsumePasswordReset(ctx, auth.HashToken(req.Token), string(hash)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var nonWord = regexp.MustCompile(`[^a-z0-9_]+`)

// DeriveUsername builds a username from a display name: lowercased, stripped
// to word characters, capped so that the numeric suffix fits in 20 characters.
func DeriveUsername(name string, suffix int) string {
	base := nonWord.ReplaceAllString(strings.ToLower(name), "")
	if base == "" {
		base = "user"
	}
	if len(base) > 16 {
		base = base[:16]
	}
	username := fmt.Sprintf("%s%d", base, suffix%1000)
	for len(username) < 3 {
		username += "0"
	}
	return username
}

// Gravatar returns the avatar URL for email (200px, pg rating, mystery-man fallback).
func Gravatar(email string) string {
	sum := md5.Sum([]byte(NormalizeEmail(email)))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?s=200&r=pg&d=mm"
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomSuffix returns a random number in [0, 1000) for derived usernames.
func RandomSuffix() int {
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
