package app

import "net/http"

// handleAdmin serves /api/admin/users and /api/admin/make-admin/:id.
func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, parts []string) {
	identity, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if len(parts) == 1 && parts[0] == "users" && r.Method == http.MethodGet {
		users, err := s.service.ListUsers(r.Context(), identity)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
		return
	}

	if len(parts) == 2 && parts[0] == "make-admin" && r.Method == http.MethodPut {
		user, err := s.service.MakeAdmin(r.Context(), identity, parts[1])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "User promoted to admin", "user": user})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
