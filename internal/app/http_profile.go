package app

import "net/http"

// handleProfile serves /api/profile and /api/profile/:userId. Every profile
// route requires a session.
func (s *HTTPServer) handleProfile(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) > 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	identity, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			profile, err := s.service.MyProfile(ctx, identity)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, profile)
		case http.MethodPost:
			var body ProfileRequest
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			profile, err := s.service.CreateProfile(ctx, identity, body)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, profile)
		default:
			methodNotAllowed(w)
		}
		return
	}

	userID := parts[0]
	switch r.Method {
	case http.MethodGet:
		profile, err := s.service.ProfileByUser(ctx, userID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodPut:
		var body ProfileRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		profile, err := s.service.UpdateProfile(ctx, identity, userID, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodDelete:
		if err := s.service.DeleteProfile(ctx, identity, userID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Profile deleted successfully"})
	default:
		methodNotAllowed(w)
	}
}
