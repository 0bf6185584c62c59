package common

import (
	"time"
)

// Live channel event names.
const (
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventSubmitMessage = "submit-message"
	EventTyping        = "typing"

	EventMessageBroadcast   = "message-broadcast"
	EventMessageAck         = "message-ack"
	EventTagged             = "tagged"
	EventUnreadCountUpdated = "unread-count-updated"
	EventTypingRelayed      = "typing-relayed"
	EventUserStatusChanged  = "user-status-changed"
	EventError              = "error"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// MaxMessageLength is counted in characters after trimming.
const MaxMessageLength = 2000

// Identity is a verified caller, trusted for the lifetime of a connection.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Handle string `json:"handle"`
}

func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Candidate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is immutable once persisted. Stores assign ID and CreatedAt.
type Message struct {
	ID            string    `json:"id"`
	CandidateID   string    `json:"candidateId"`
	AuthorID      string    `json:"userId"`
	Content       string    `json:"content"`
	TaggedUserIDs []string  `json:"taggedUsers"`
	CreatedAt     time.Time `json:"createdAt"`
}

// MessageView is a message with author and tagged users resolved.
type MessageView struct {
	ID          string    `json:"id"`
	CandidateID string    `json:"candidateId"`
	Author      UserRef   `json:"user"`
	Content     string    `json:"content"`
	TaggedUsers []UserRef `json:"taggedUsers"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Notification struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	MessageID   string    `json:"messageId"`
	CandidateID string    `json:"candidateId"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Submission is the inbound submit-message payload.
type Submission struct {
	CandidateID string   `json:"entityId" validate:"required"`
	Content     string   `json:"text" validate:"required,max=2000"`
	TaggedUsers []string `json:"taggedUsers,omitempty" validate:"omitempty,dive,required"`
}

// TagEvent is produced once per (tagged user, message) after the
// notification is persisted and the unread count recomputed. UnreadCount
// is nil when the recount failed.
type TagEvent struct {
	Notification *Notification
	Message      *MessageView
	Candidate    *Candidate
	UnreadCount  *int64
}

type TaggedPayload struct {
	Notification *Notification `json:"notification"`
	Message      *MessageView  `json:"message"`
	Entity       *Candidate    `json:"entity"`
}

type UnreadCountPayload struct {
	Count int64 `json:"count"`
}

type AckPayload struct {
	MessageID string `json:"messageId"`
}

type TypingPayload struct {
	CandidateID string `json:"entityId" validate:"required"`
	IsTyping    bool   `json:"isTyping"`
}

type TypingRelayedPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	CandidateID string `json:"entityId"`
	IsTyping    bool   `json:"isTyping"`
}

type RoomPayload struct {
	CandidateID string `json:"entityId" validate:"required"`
}

type UserStatusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type ErrorPayload struct {
	Reason    string `json:"reason"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// HistoryCursor marks where an older page of history starts. BeforeID
// breaks ties between messages sharing the Before timestamp; empty means
// every message at Before is excluded.
type HistoryCursor struct {
	Before   time.Time
	BeforeID string
}

// NotificationPage is one page of a user's notifications.
type NotificationPage struct {
	Notifications []*Notification `json:"notifications"`
	UnreadCount   int64           `json:"unreadCount"`
	Page          int             `json:"page"`
	Limit         int             `json:"limit"`
}
