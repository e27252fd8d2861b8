// Package chat implements room messages, mentions, moderation and reactions.
package chat

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jason25840/nrg-server/internal/media"
	"github.com/jason25840/nrg-server/internal/store"
	"github.com/jason25840/nrg-server/internal/util"
	"github.com/jason25840/nrg-server/internal/validate"
	"go.uber.org/zap"
)

// DefaultRoom is used when a message names no room.
const DefaultRoom = "general"

// Store is the persistence the chat service needs.
type Store interface {
	GetUserByID(ctx context.Context, id string) (store.User, error)
	InsertMessage(ctx context.Context, m store.Message) (store.Message, error)
	GetMessage(ctx context.Context, id string) (store.Message, error)
	ListMessagesByRoom(ctx context.Context, room string) ([]store.Message, error)
	ListMediaMessages(ctx context.Context) ([]store.Message, error)
	AddReaction(ctx context.Context, messageID, emoji, userID string) (bool, error)
}

// Publisher fans a new reaction out to connected clients.
type Publisher interface {
	PublishReaction(ctx context.Context, messageID, emoji, userID string) error
}

// Recorder observes chat activity.
type Recorder interface {
	MessagePosted(withMedia bool)
	ReactionAdded()
}

type nopRecorder struct{}

func (nopRecorder) MessagePosted(bool) {}
func (nopRecorder) ReactionAdded()     {}

type Service struct {
	store         Store
	media         media.Store
	screener      Screener
	publisher     Publisher
	recorder      Recorder
	logger        *zap.Logger
	maxMediaBytes int64
	now           func() time.Time
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithMaxMediaBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxMediaBytes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st Store, mediaStore media.Store, screener Screener, publisher Publisher, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:         st,
		media:         mediaStore,
		screener:      screener,
		publisher:     publisher,
		recorder:      nopRecorder{},
		logger:        logger,
		maxMediaBytes: media.DefaultMaxBytes,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload is a media attachment buffered in memory.
type Upload struct {
	Filename string
	Data     []byte
}

type PostInput struct {
	SenderID string
	Text     string
	Room     string
	Media    *Upload
}

// PostMessage screens, stores and persists a room message. Rejected uploads
// and flagged text never reach storage.
func (s *Service) PostMessage(ctx context.Context, in PostInput) (store.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Media == nil {
		return store.Message{}, validate.Fields("text", "is required")
	}

	var contentType string
	if in.Media != nil {
		var err error
		if contentType, err = media.Validate(in.Media.Data, s.maxMediaBytes); err != nil {
			return store.Message{}, err
		}
	}

	if text != "" && s.screener != nil && s.screener.IsProfane(text) {
		return store.Message{}, ErrInappropriateContent
	}

	sender, err := s.store.GetUserByID(ctx, in.SenderID)
	if err != nil {
		return store.Message{}, err
	}

	var mediaURL string
	if in.Media != nil {
		name := media.ObjectName(s.now(), in.Media.Filename)
		mediaURL, err = s.media.Save(ctx, name, contentType, bytes.NewReader(in.Media.Data), int64(len(in.Media.Data)))
		if err != nil {
			return store.Message{}, err
		}
	}

	room := strings.TrimSpace(in.Room)
	if room == "" {
		room = DefaultRoom
	}

	msg, err := s.store.InsertMessage(ctx, store.Message{
		ID:             util.NewID(""),
		SenderID:       sender.ID,
		SenderName:     sender.Name,
		SenderUsername: sender.Username,
		Text:           text,
		Mentions:       ExtractMentions(text),
		Room:           room,
		Kind:           store.KindMessage,
		Media:          mediaURL,
	})
	if err != nil {
		return store.Message{}, err
	}
	s.recorder.MessagePosted(mediaURL != "")
	return msg, nil
}

// ListMessages returns the room's full history, oldest first.
func (s *Service) ListMessages(ctx context.Context, room string) ([]store.Message, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		room = DefaultRoom
	}
	return s.store.ListMessagesByRoom(ctx, room)
}

// TopMedia returns the highest scoring media messages.
func (s *Service) TopMedia(ctx context.Context) ([]store.Message, error) {
	messages, err := s.store.ListMediaMessages(ctx)
	if err != nil {
		return nil, err
	}
	return RankMedia(messages, TopMediaLimit), nil
}

// React records userID's emoji on a message and broadcasts it the first time.
// Failures are logged and otherwise ignored; the caller gets no reply.
func (s *Service) React(ctx context.Context, userID, messageID, emoji string) {
	emoji = strings.TrimSpace(emoji)
	if userID == "" || messageID == "" || emoji == "" {
		return
	}
	logger := s.logger.With(zap.String("message_id", messageID), zap.String("user_id", userID))

	if _, err := s.store.GetMessage(ctx, messageID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("reaction lookup failed", zap.Error(err))
		}
		return
	}

	added, err := s.store.AddReaction(ctx, messageID, emoji, userID)
	if err != nil {
		logger.Warn("reaction persist failed", zap.Error(err))
		return
	}
	if !added {
		return
	}
	s.recorder.ReactionAdded()

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishReaction(ctx, messageID, emoji, userID); err != nil {
		logger.Warn("reaction broadcast failed", zap.Error(err))
	}
}
