package domain

import (
	"strconv"
	"time"
)

// Step identifies where a user is in the report intake conversation.
type Step string

const (
	StepStart       Step = "start"
	StepCountry     Step = "awaiting_country"
	StepCity        Step = "awaiting_city"
	StepGuestName   Step = "awaiting_name"
	StepPhone       Step = "awaiting_phone"
	StepDescription Step = "awaiting_description"
	StepPhotos      Step = "awaiting_photos"
)

// Session holds the in-progress intake conversation of one user.
type Session struct {
	UserID        int64     `json:"user_id"`
	Step          Step      `json:"step"`
	Country       string    `json:"country,omitempty"`
	CustomCountry bool      `json:"custom_country,omitempty"` // country is typed instead of picked
	City          string    `json:"city,omitempty"`
	GuestName     string    `json:"guest_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Description   string    `json:"description,omitempty"`
	PhotoIDs      []string  `json:"photo_ids,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Submitter identifies the user who filed a report.
type Submitter struct {
	ID          int64
	DisplayName string
}

// Label renders the submitter for moderators.
func (s Submitter) Label() string {
	id := strconv.FormatInt(s.ID, 10)
	if s.DisplayName == "" {
		return id
	}
	return s.DisplayName + " (" + id + ")"
}

// Report is a completed submission waiting for a moderation decision.
// It is never mutated after creation.
type Report struct {
	ID          string
	Submitter   Submitter
	Country     string
	City        string
	GuestName   string
	Phone       string
	Description string
	PhotoIDs    []string
	CreatedAt   time.Time
}

// Decision is a moderator's verdict on a report.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Chat addresses a private chat by numeric ID or a public channel by @username.
type Chat struct {
	ID       int64
	Username string
}

// UserChat addresses the private chat with a user.
func UserChat(id int64) Chat {
	return Chat{ID: id}
}

// ChannelChat addresses a channel by its @username.
func ChannelChat(username string) Chat {
	return Chat{Username: username}
}

// Value returns the chat identifier in the form the Bot API expects.
func (c Chat) Value() any {
	if c.Username != "" {
		return c.Username
	}
	return c.ID
}

func (c Chat) String() string {
	if c.Username != "" {
		return c.Username
	}
	return strconv.FormatInt(c.ID, 10)
}

// Button is an inline button carrying callback data.
type Button struct {
	Text string
	Data string
}

// Keyboard is a set of inline button rows.
type Keyboard [][]Button

// Message is a transport neutral outbound message.
type Message struct {
	Text       string
	HTML       bool
	Inline     Keyboard
	Menu       []string // persistent reply keyboard, one row
	RemoveMenu bool
}
