package app

import (
	"net/http"
	"time"

	"github.com/jason25840/nrg-server/internal/auth"
	"github.com/jason25840/nrg-server/internal/authpw"
	"github.com/jason25840/nrg-server/internal/logging"
	"go.uber.org/zap"
)

func setSessionCookie(w http.ResponseWriter, session Session, production bool) {
	cookie := &http.Cookie{
		Name:     auth.CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if production {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, cookie)
}

func clearSessionCookie(w http.ResponseWriter, production bool) {
	cookie := &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if production {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, cookie)
}

func (s *HTTPServer) writeSession(w http.ResponseWriter, status int, session Session) {
	setSessionCookie(w, session, s.service.cfg.IsProduction())
	writeJSON(w, status, map[string]any{
		"token": session.Token,
		"user":  session.User,
	})
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body authpw.SignUpRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignUp(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeSession(w, http.StatusCreated, session)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body authpw.SignInRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeSession(w, http.StatusOK, session)
}

func (s *HTTPServer) handleAuthUpdatePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body authpw.ChangePasswordRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ChangePassword(r.Context(), identity, body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		// The response never reveals whether the account exists.
		logging.FromContext(r.Context()).Error("password reset request failed", zap.Error(err))
	}

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	// Only set when SMTP is not configured.
	if token != "" {
		response["devResetToken"] = token
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body authpw.ResetPasswordRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.ResetPassword(r.Context(), body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}
