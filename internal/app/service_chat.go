package app

import (
	"context"
	"errors"

	"github.com/jason25840/nrg-server/internal/auth"
	"github.com/jason25840/nrg-server/internal/chat"
	"github.com/jason25840/nrg-server/internal/search"
	"github.com/jason25840/nrg-server/internal/store"
)

func (s *Service) PostMessage(ctx context.Context, identity auth.Identity, in chat.PostInput) (store.Message, error) {
	in.SenderID = identity.UserID
	msg, err := s.chat.PostMessage(ctx, in)
	if errors.Is(err, store.ErrNotFound) {
		return store.Message{}, notFound("User")
	}
	return msg, err
}

func (s *Service) ListMessages(ctx context.Context, room string) ([]store.Message, error) {
	return s.chat.ListMessages(ctx, room)
}

func (s *Service) TopMedia(ctx context.Context) ([]store.Message, error) {
	return s.chat.TopMedia(ctx)
}

func (s *Service) MaxMediaBytes() int64 {
	return s.cfg.MediaMaxBytes
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}
