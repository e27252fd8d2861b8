package app

import (
	"errors"
	"io"
	"net/http"

	"github.com/jason25840/nrg-server/internal/chat"
	"github.com/jason25840/nrg-server/internal/media"
)

// multipartOverhead covers form fields and part headers on top of the media cap.
const multipartOverhead = 1 << 20

// handleChat serves /api/chat, /api/chat/top and /api/chat/:room.
func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		s.handleChatPost(w, r)
	case len(parts) == 1 && parts[0] == "top" && r.Method == http.MethodGet:
		messages, err := s.service.TopMedia(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messages)
	case len(parts) == 1 && r.Method == http.MethodGet:
		messages, err := s.service.ListMessages(r.Context(), parts[0])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messages)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleChatPost(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	maxBytes := s.service.MaxMediaBytes()
	if maxBytes <= 0 {
		maxBytes = media.DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeServiceError(w, r, media.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := chat.PostInput{
		Text: r.FormValue("text"),
		Room: r.FormValue("room"),
	}

	file, header, err := r.FormFile("media")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read media", nil)
			return
		}
		in.Media = &chat.Upload{Filename: header.Filename, Data: data}
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid media part", nil)
		return
	}

	msg, err := s.service.PostMessage(r.Context(), identity, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
