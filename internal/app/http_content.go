package app

import (
	"net/http"
)

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

// handleArticles serves /api/articles[/:id[/like|/bookmark]].
func (s *HTTPServer) handleArticles(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()
	switch len(parts) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			articles, err := s.service.ListArticles(ctx)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, articles)
		case http.MethodPost:
			identity, ok := s.requireSession(w, r)
			if !ok {
				return
			}
			var body ArticleRequest
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			article, err := s.service.CreateArticle(ctx, identity, body)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, article)
		default:
			methodNotAllowed(w)
		}
		return

	case 1:
		articleID := parts[0]
		switch r.Method {
		case http.MethodGet:
			article, err := s.service.GetArticle(ctx, articleID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, article)
		case http.MethodPut:
			identity, ok := s.requireSession(w, r)
			if !ok {
				return
			}
			var body ArticleUpdate
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			article, err := s.service.UpdateArticle(ctx, identity, articleID, body)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, article)
		case http.MethodDelete:
			identity, ok := s.requireSession(w, r)
			if !ok {
				return
			}
			if err := s.service.DeleteArticle(ctx, identity, articleID); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "Article deleted successfully"})
		default:
			methodNotAllowed(w)
		}
		return

	case 2:
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		identity, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		switch parts[1] {
		case "like":
			article, err := s.service.ToggleArticleLike(ctx, identity, parts[0])
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, article)
			return
		case "bookmark":
			result, err := s.service.ToggleArticleBookmark(ctx, identity, parts[0])
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"article": result.Item, "action": result.Action})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleEvents serves /api/events[/:id[/like|/bookmark]].
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()
	switch len(parts) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			events, err := s.service.ListEvents(ctx)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, events)
		case http.MethodPost:
			identity, ok := s.requireSession(w, r)
			if !ok {
				return
			}
			var body EventRequest
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			event, err := s.service.CreateEvent(ctx, identity, body)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, event)
		default:
			methodNotAllowed(w)
		}
		return

	case 1:
		eventID := parts[0]
		switch r.Method {
		case http.MethodGet:
			event, err := s.service.GetEvent(ctx, eventID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, event)
		case http.MethodPut:
			identity, ok := s.requireSession(w, r)
			if !ok {
				return
			}
			var body EventUpdate
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			event, err := s.service.UpdateEvent(ctx, identity, eventID, body)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, event)
		case http.MethodDelete:
			identity, ok := s.requireSession(w, r)
			if !ok {
				return
			}
			if err := s.service.DeleteEvent(ctx, identity, eventID); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "Event deleted successfully"})
		default:
			methodNotAllowed(w)
		}
		return

	case 2:
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		identity, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		switch parts[1] {
		case "like":
			event, err := s.service.ToggleEventLike(ctx, identity, parts[0])
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, event)
			return
		case "bookmark":
			result, err := s.service.ToggleEventBookmark(ctx, identity, parts[0])
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"event": result.Item, "action": result.Action})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
