package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jason25840/nrg-server/internal/auth"
	"github.com/jason25840/nrg-server/internal/store"
	"github.com/jason25840/nrg-server/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

type resetEntry struct {
	userID    string
	expiresAt time.Time
}

// mockUserStore is an in-memory UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> userID
	resets     map[string]resetEntry
	createErr  error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
		resets:     make(map[string]resetEntry),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) SetPasswordResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.resets[tokenHash] = resetEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *mockUserStore) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string) (string, error) {
	entry, ok := m.resets[tokenHash]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", store.ErrNotFound
	}
	delete(m.resets, tokenHash)
	return entry.userID, m.UpdateUserPassword(ctx, entry.userID, passwordHash)
}

func newTestService(st *mockUserStore) *Service {
	svc := NewService(st)
	svc.cost = bcrypt.MinCost
	svc.suffix = func() int { return 42 }
	return svc
}

func validSignUp() SignUpRequest {
	return SignUpRequest{
		Name:      "Alex Honnold",
		Email:     "  Alex@Example.com ",
		Password:  "secret1",
		Password2: "secret1",
	}
}

func TestSignUp(t *testing.T) {
	st := newMockUserStore()
	svc := newTestService(st)

	user, err := svc.SignUp(context.Background(), validSignUp())
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.Email != "alex@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
	if user.Role != "user" {
		t.Errorf("expected role user, got %q", user.Role)
	}
	if user.Username != "alexhonnold42" {
		t.Errorf("expected derived username, got %q", user.Username)
	}
	if !strings.HasPrefix(user.Avatar, "https://www.gravatar.com/avatar/") {
		t.Errorf("expected gravatar avatar, got %q", user.Avatar)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")) != nil {
		t.Error("expected stored hash to match password")
	}

	if _, err := svc.SignUp(context.Background(), validSignUp()); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := newTestService(newMockUserStore())

	req := validSignUp()
	req.Password2 = "other"
	req.Email = "not-an-email"
	_, err := svc.SignUp(context.Background(), req)

	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	if !fields["email"] || !fields["password2"] {
		t.Fatalf("expected email and password2 errors, got %+v", verr.Fields)
	}
}

func TestSignUpExplicitUsername(t *testing.T) {
	st := newMockUserStore()
	svc := newTestService(st)

	req := validSignUp()
	req.Username = "crux_master"
	user, err := svc.SignUp(context.Background(), req)
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.Username != "crux_master" {
		t.Fatalf("expected requested username, got %q", user.Username)
	}

	other := validSignUp()
	other.Email = "other@example.com"
	other.Username = "CRUX_MASTER"
	if _, err := svc.SignUp(context.Background(), other); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	bad := validSignUp()
	bad.Email = "bad@example.com"
	bad.Username = "no spaces!"
	var verr *validate.Error
	if _, err := svc.SignUp(context.Background(), bad); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for username, got %v", err)
	}
}

func TestSignUpConflictFromStore(t *testing.T) {
	st := newMockUserStore()
	st.createErr = &store.ConflictError{Constraint: "users_email_key"}
	svc := newTestService(st)

	if _, err := svc.SignUp(context.Background(), validSignUp()); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignIn(t *testing.T) {
	st := newMockUserStore()
	svc := newTestService(st)
	if _, err := svc.SignUp(context.Background(), validSignUp()); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	user, err := svc.SignIn(context.Background(), SignInRequest{Email: "ALEX@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if user.Email != "alex@example.com" {
		t.Errorf("unexpected user %+v", user)
	}

	cases := []SignInRequest{
		{Email: "alex@example.com", Password: "wrong"},
		{Email: "nobody@example.com", Password: "secret1"},
		{Email: "", Password: ""},
	}
	for _, tc := range cases {
		if _, err := svc.SignIn(context.Background(), tc); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("SignIn(%+v): expected ErrInvalidCredentials, got %v", tc, err)
		}
	}
}

func TestChangePassword(t *testing.T) {
	st := newMockUserStore()
	svc := newTestService(st)
	user, err := svc.SignUp(context.Background(), validSignUp())
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	err = svc.ChangePassword(context.Background(), user.ID, ChangePasswordRequest{
		OldPassword: "wrong", NewPassword: "newpass", NewPassword2: "newpass",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	err = svc.ChangePassword(context.Background(), user.ID, ChangePasswordRequest{
		OldPassword: "secret1", NewPassword: "newpass", NewPassword2: "newpass",
	})
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := svc.SignIn(context.Background(), SignInRequest{Email: "alex@example.com", Password: "newpass"}); err != nil {
		t.Fatalf("expected sign in with new password, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	st := newMockUserStore()
	svc := newTestService(st)
	user, err := svc.SignUp(context.Background(), validSignUp())
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	token, target, err := svc.RequestPasswordReset(context.Background(), "alex@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token == "" || target.ID != user.ID {
		t.Fatalf("expected token for %s, got %q for %s", user.ID, token, target.ID)
	}
	if _, ok := st.resets[auth.HashToken(token)]; !ok {
		t.Fatal("expected only the token hash to be stored")
	}

	if err := svc.ResetPassword(context.Background(), ResetPasswordRequest{Token: token, NewPassword: "brandnew"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if err := svc.ResetPassword(context.Background(), ResetPasswordRequest{Token: token, NewPassword: "brandnew"}); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected token reuse to fail, got %v", err)
	}
	if _, err := svc.SignIn(context.Background(), SignInRequest{Email: "alex@example.com", Password: "brandnew"}); err != nil {
		t.Fatalf("expected sign in after reset, got %v", err)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	svc := newTestService(newMockUserStore())
	token, _, err := svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	if err != nil || token != "" {
		t.Fatalf("expected silent no-op, got token=%q err=%v", token, err)
	}
}

func TestOverlongPasswordsAreFieldErrors(t *testing.T) {
	st := newMockUserStore()
	svc := newTestService(st)
	user, err := svc.SignUp(context.Background(), validSignUp())
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	// 73 runes trips the validator; 40 two-byte runes passes it but is 80 bytes.
	for _, long := range []string{strings.Repeat("a", 73), strings.Repeat("é", 40)} {
		signUp := validSignUp()
		signUp.Email = "long@example.com"
		signUp.Password, signUp.Password2 = long, long
		_, err := svc.SignUp(context.Background(), signUp)
		assertFieldError(t, err, "password")

		err = svc.ChangePassword(context.Background(), user.ID, ChangePasswordRequest{
			OldPassword: "secret1", NewPassword: long, NewPassword2: long,
		})
		assertFieldError(t, err, "newPassword")

		err = svc.ResetPassword(context.Background(), ResetPasswordRequest{Token: "any-token", NewPassword: long})
		assertFieldError(t, err, "newPassword")
	}
}

func assertFieldError(t *testing.T, err error, field string) {
	t.Helper()
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error on %s, got %v", field, err)
	}
	for _, f := range verr.Fields {
		if f.Field == field {
			return
		}
	}
	t.Fatalf("expected field %s, got %+v", field, verr.Fields)
}

func TestDeriveUsername(t *testing.T) {
	tests := []struct {
		name   string
		suffix int
		want   string
	}{
		{"Alex Honnold", 7, "alexhonnold7"},
		{"!!!", 5, "user5"},
		{"Ünïcode Name", 1234, "ncodename234"},
		{"averyveryverylongdisplayname", 999, "averyveryverylon999"},
		{"a", 0, "a00"},
	}
	for _, tt := range tests {
		got := DeriveUsername(tt.name, tt.suffix)
		if got != tt.want {
			t.Errorf("DeriveUsername(%q, %d) = %q, want %q", tt.name, tt.suffix, got, tt.want)
		}
		if !validate.IsUsername(got) {
			t.Errorf("DeriveUsername(%q) = %q is not a valid username", tt.name, got)
		}
	}
}

func TestGravatar(t *testing.T) {
	got := Gravatar(" MyEmailAddress@example.com ")
	want := "https://www.gravatar.com/avatar/0bc83cb571cd1c50ba6f3e8a78ef1346?s=200&r=pg&d=mm"
	if got != want {
		t.Fatalf("Gravatar = %q, want %q", got, want)
	}
}
