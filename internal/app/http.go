package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jason25840/nrg-server/internal/auth"
	"github.com/jason25840/nrg-server/internal/authpw"
	"github.com/jason25840/nrg-server/internal/chat"
	"github.com/jason25840/nrg-server/internal/logging"
	"github.com/jason25840/nrg-server/internal/media"
	"github.com/jason25840/nrg-server/internal/rbac"
	"github.com/jason25840/nrg-server/internal/search"
	"github.com/jason25840/nrg-server/internal/store"
	"github.com/jason25840/nrg-server/internal/validate"
	"go.uber.org/zap"
)

// RequestObserver records per-request metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

type HTTPServer struct {
	service        *Service
	allowedOrigins []string
	logger         *zap.Logger
	observer       RequestObserver
}

func NewHTTPServer(service *Service, allowedOrigins []string, logger *zap.Logger, observer RequestObserver) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, allowedOrigins: allowedOrigins, logger: logger, observer: observer}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}

		for name, err := range s.service.Readiness(ctx) {
			if err == nil {
				checks[name] = map[string]any{"status": "ok"}
				continue
			}
			// Details stay in the log.
			logging.FromContext(r.Context()).Error("readiness check failed", zap.String("check", name), zap.Error(err))
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request" {
		s.handleAuthRequestReset(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password" {
		s.handleAuthResetPassword(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signout" {
		if _, ok := s.requireSession(w, r); !ok {
			return
		}
		clearSessionCookie(w, s.service.cfg.IsProduction())
		writeJSON(w, http.StatusOK, map[string]string{"message": "Signed out"})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/user" {
		identity, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		user, err := s.service.CurrentUser(r.Context(), identity)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
		return
	}

	if r.Method == http.MethodPut && r.URL.Path == "/api/auth/update-password" {
		s.handleAuthUpdatePassword(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" {
		switch parts[1] {
		case "articles":
			s.handleArticles(w, r, parts[2:])
			return
		case "events":
			s.handleEvents(w, r, parts[2:])
			return
		case "profile":
			s.handleProfile(w, r, parts[2:])
			return
		case "chat":
			s.handleChat(w, r, parts[2:])
			return
		case "admin":
			s.handleAdmin(w, r, parts[2:])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, ok := search.ParseResultType(query.Get("type"))
	if !ok {
		s.writeServiceError(w, r, validate.Fields("type", "must be one of article event"))
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), search.Query{
		Text:       strings.TrimSpace(query.Get("q")),
		FilterType: filter,
		Limit:      limit,
		Offset:     offset,
	}))
}

// requireSession resolves the caller or writes a 401.
func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, err := s.service.Identify(auth.TokenFromRequest(r))
	if err != nil {
		if errors.Is(err, auth.ErrMalformedToken) {
			logging.FromContext(r.Context()).Warn("token carries no user id")
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized", nil)
		return auth.Identity{}, false
	}
	return identity, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		logger := s.logger.With(zap.String("request_id", requestID))
		r = r.WithContext(logging.WithContext(r.Context(), logger))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), r.Header.Get("Origin"), s.allowedOrigins)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
		if s.observer != nil {
			s.observer.ObserveRequest(r.Method, routeLabel(r.URL.Path), writer.status, elapsed)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// setCORSHeaders echoes origin back only when it is on the allow-list, since
// credentialed requests cannot use a wildcard.
func setCORSHeaders(header http.Header, origin string, allowed []string) {
	header.Add("Vary", "Origin")
	if origin != "" && slices.Contains(allowed, strings.TrimRight(origin, "/")) {
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

// staticSegments are path segments that are part of a route rather than ids.
var staticSegments = map[string]bool{
	"auth": true, "signup": true, "signin": true, "signout": true, "user": true,
	"update-password": true, "reset-password": true, "request": true,
	"articles": true, "events": true, "profile": true, "chat": true, "admin": true,
	"search": true, "health": true, "ready": true,
	"like": true, "bookmark": true, "top": true, "users": true, "make-admin": true,
}

// routeLabel collapses ids in path so metric labels stay bounded.
func routeLabel(path string) string {
	parts := splitPath(path)
	if len(parts) == 0 || parts[0] != "api" {
		return "other"
	}
	for i := 1; i < len(parts); i++ {
		if !staticSegments[parts[i]] {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeServiceError maps err and logs anything that surfaces as a 500.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *validate.Error
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validationErr.Fields
	}
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrMalformedToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized", nil
	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusBadRequest, "INVALID_CREDENTIALS", "Invalid credentials", nil
	case errors.Is(err, authpw.ErrEmailTaken), errors.Is(err, authpw.ErrUsernameTaken):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	case errors.Is(err, authpw.ErrInvalidResetToken):
		return http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed",
			[]validate.FieldError{{Field: "token", Message: "is invalid or expired"}}
	case errors.Is(err, chat.ErrInappropriateContent):
		return http.StatusBadRequest, "INAPPROPRIATE_CONTENT", "Message contains inappropriate content", nil
	case errors.Is(err, media.ErrUnsupportedType), errors.Is(err, media.ErrTooLarge):
		return http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed",
			[]validate.FieldError{{Field: "media", Message: err.Error()}}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "CONFLICT", "Already exists", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
