package models

import "time"

type JokeStatus string

const (
	StatusDraft     JokeStatus = "draft"
	StatusPending   JokeStatus = "pending"
	StatusPublished JokeStatus = "published"
)

// MinJokeLength is the minimum content length (in runes) a joke must
// have before it can leave the draft state.
const MinJokeLength = 30

// DefaultLanguage is the language code used for new chats and drafts.
const DefaultLanguage = "en"

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Chat struct {
	ID            int64  `json:"id"`
	Type          string `json:"type"`
	Username      string `json:"username"`
	UserID        int64  `json:"user_id"`
	LastMessageID int    `json:"last_message_id"`
	LastSentAt    int64  `json:"last_sent_at"`
}

// Setting holds the per-chat delivery preferences. Exactly one Setting
// exists per Chat; it is created lazily with defaults on first access.
type Setting struct {
	ChatID         int64  `json:"chat_id"`
	Language       string `json:"language"`
	Interval       int64  `json:"interval"` // seconds between deliveries
	SendingJokes   bool   `json:"sending_jokes"`
	DeleteLastJoke bool   `json:"delete_last_joke"`
	Tags           []Tag  `json:"tags"`
}

func DefaultSetting(chatID int64) Setting {
	return Setting{
		ChatID:         chatID,
		Language:       DefaultLanguage,
		Interval:       600,
		SendingJokes:   false,
		DeleteLastJoke: true,
	}
}

func (s Setting) TagIDs() []int64 {
	ids := make([]int64, 0, len(s.Tags))
	for _, t := range s.Tags {
		ids = append(ids, t.ID)
	}
	return ids
}

type Joke struct {
	ID           int64      `json:"id"`
	AuthorID     int64      `json:"author_id"`
	Content      string     `json:"content"`
	LanguageCode string     `json:"language_code"`
	Status       JokeStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Hydrated separately from the base row.
	Tags      []Tag           `json:"tags,omitempty"`
	Reactions []ReactionCount `json:"reactions,omitempty"`
	Author    *User           `json:"author,omitempty"`
	Language  *Language       `json:"language,omitempty"`
}

type Tag struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedBy int64  `json:"created_by"`
}

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Reaction struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

type ReactionCount struct {
	Reaction
	Count int `json:"count"`
}

// DeliveryCandidate is one row of the per-tick eligibility scan: a chat
// with delivery enabled plus the two numbers needed to decide whether
// its interval has elapsed.
type DeliveryCandidate struct {
	ChatID     int64 `json:"chat_id"`
	Interval   int64 `json:"interval"`
	LastSentAt int64 `json:"last_sent_at"`
}
