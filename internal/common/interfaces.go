//go:generate mockgen -destination=../mocks/store_mock.go -package=mocks candidnotes/internal/common MessageStore,NotificationStore,Directory,Publisher

package common

import (
	"context"
)

// Observer receives every delivered tag notification.
type Observer interface {
	Update(event TagEvent) error
	Name() string
}

type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	Notify(event TagEvent)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	// MessagesByCandidate returns up to limit messages ordered before the
	// cursor (zero cursor means now), newest first.
	MessagesByCandidate(ctx context.Context, candidateID string, limit int, cursor HistoryCursor) ([]*Message, error)
}

type NotificationStore interface {
	// CreateNotification fails with a Conflict error when the
	// (UserID, MessageID) pair already exists.
	CreateNotification(ctx context.Context, n *Notification) error
	NotificationsByUser(ctx context.Context, userID string, limit, offset int, unreadOnly bool) ([]*Notification, error)
	// MarkRead reports whether the notification changed from unread to read.
	MarkRead(ctx context.Context, id, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, id, userID string) error
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// Directory answers entity-existence and user-resolution lookups.
type Directory interface {
	CandidateByID(ctx context.Context, id string) (*Candidate, error)
	UserByID(ctx context.Context, id string) (*User, error)
	// ResolveUsers matches tokens against handles, then ids. Unknown
	// tokens are dropped; order follows the first matching token.
	ResolveUsers(ctx context.Context, tokens []string) ([]*User, error)
}

type Store interface {
	MessageStore
	NotificationStore
	Directory
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Authenticator verifies a bearer credential and returns the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// Publisher forwards domain events to external consumers.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
	Close() error
}
