package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"`
	Avatar             string     `json:"avatar"`
	Role               string     `json:"role"`
	IsVerified         bool       `json:"isVerified"`
	ResetTokenHash     string     `json:"-"`
	ResetExpiresAt     *time.Time `json:"-"`
	BookmarkedEvents   []string   `json:"bookmarkedEvents"`
	BookmarkedArticles []string   `json:"bookmarkedArticles"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type Article struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Snippet      string    `json:"snippet,omitempty"`
	Author       string    `json:"author"`
	Category     string    `json:"category"`
	Image        string    `json:"image"`
	CreatedBy    string    `json:"createdBy"`
	Likes        int       `json:"likes"`
	LikedBy      []string  `json:"likedBy"`
	BookmarkedBy []string  `json:"bookmarkedBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ArticlePatch carries the fields of a partial article update; nil fields are left untouched.
type ArticlePatch struct {
	Title    *string
	Content  *string
	Author   *string
	Category *string
	Image    *string
}

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Genre       string    `json:"genre"`
	Image       string    `json:"image"`
	Website     string    `json:"website,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	Likes       []string  `json:"likes"`
	Bookmarks   []string  `json:"bookmarks"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type EventPatch struct {
	Title       *string
	Description *string
	Date        *time.Time
	Location    *string
	Genre       *string
	Image       *string
	Website     *string
}

type Pursuit struct {
	Pursuit string `json:"pursuit" validate:"required"`
	Level   string `json:"level" validate:"required"`
}

type Accomplishment struct {
	Type    string `json:"type" validate:"required"`
	Details string `json:"details" validate:"required"`
}

type Profile struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user"`
	Pursuits         []Pursuit         `json:"pursuits"`
	Accomplishments  []Accomplishment  `json:"accomplishments"`
	SocialMediaLinks map[string]string `json:"socialMediaLinks"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

type ProfilePatch struct {
	Pursuits         *[]Pursuit
	Accomplishments  *[]Accomplishment
	SocialMediaLinks *map[string]string
}

// Message kinds.
const (
	KindMessage     = "message"
	KindDM          = "dm"
	KindConnection  = "connection"
	KindEventInvite = "event_invite"
)

type Message struct {
	ID             string     `json:"id"`
	SenderID       string     `json:"sender"`
	SenderName     string     `json:"senderName"`
	SenderUsername string     `json:"senderUsername"`
	Text           string     `json:"text"`
	Mentions       []string   `json:"mentions"`
	Room           string     `json:"room"`
	RecipientID    string     `json:"recipient,omitempty"`
	Kind           string     `json:"type"`
	ReplyTo        string     `json:"replyTo,omitempty"`
	IsEdited       bool       `json:"isEdited"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
	Media          string     `json:"media,omitempty"`
	Reactions      Reactions  `json:"reactions"`
	IsSystem       bool       `json:"isSystem"`
	Pinned         bool       `json:"pinned"`
	IsDeleted      bool       `json:"isDeleted"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Reactions maps emoji to reacting user ids. Emoji iterate in the order they
// were first added and each user appears at most once per emoji.
type Reactions struct {
	order []string
	users map[string][]string
}

// Add records userID under emoji and reports whether it was new.
func (r *Reactions) Add(emoji, userID string) bool {
	if r.users == nil {
		r.users = make(map[string][]string)
	}
	existing, ok := r.users[emoji]
	if !ok {
		r.order = append(r.order, emoji)
	}
	for _, id := range existing {
		if id == userID {
			return false
		}
	}
	r.users[emoji] = append(existing, userID)
	return true
}

func (r Reactions) Count(emoji string) int {
	return len(r.users[emoji])
}

func (r Reactions) Users(emoji string) []string {
	return append([]string(nil), r.users[emoji]...)
}

func (r Reactions) Emojis() []string {
	return append([]string(nil), r.order...)
}

func (r Reactions) Len() int {
	return len(r.order)
}

func (r Reactions) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, emoji := range r.order {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(emoji)
		if err != nil {
			return nil, err
		}
		users, err := json.Marshal(r.users[emoji])
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, users...)
	}
	return append(buf, '}'), nil
}
