package dbmysql

import (
	"sync"
	"time"

	"candidnotes/internal/common"

	"github.com/google/uuid"
)

type User struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:255;not null"`
	Email     string    `gorm:"size:255;uniqueIndex;not null"`
	Handle    *string   `gorm:"size:50;uniqueIndex"`
	CreatedAt time.Time `gorm:"precision:3"`
}

func (u *User) toUser() *common.User {
	out := &common.User{ID: u.ID, Name: u.Name, Email: u.Email}
	if u.Handle != nil {
		out.Handle = *u.Handle
	}
	return out
}

type Candidate struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:255;not null"`
	Email     string    `gorm:"size:255"`
	CreatedBy string    `gorm:"size:36;index:idx_candidates_creator,priority:1"`
	CreatedAt time.Time `gorm:"precision:3;index:idx_candidates_creator,priority:2"`
}

func (c *Candidate) toCandidate() *common.Candidate {
	return &common.Candidate{ID: c.ID, Name: c.Name, Email: c.Email, CreatedBy: c.CreatedBy, CreatedAt: c.CreatedAt}
}

type Message struct {
	ID          string    `gorm:"primaryKey;size:36"`
	CandidateID string    `gorm:"size:36;not null;index:idx_messages_candidate,priority:1"`
	AuthorID    string    `gorm:"size:36;not null;index"`
	Content     string    `gorm:"type:text;not null"`
	TaggedUsers []string  `gorm:"serializer:json;type:json"`
	CreatedAt   time.Time `gorm:"precision:3;index:idx_messages_candidate,priority:2"`
}

func (m *Message) toMessage() *common.Message {
	tagged := m.TaggedUsers
	if tagged == nil {
		tagged = []string{}
	}
	return &common.Message{
		ID:            m.ID,
		CandidateID:   m.CandidateID,
		AuthorID:      m.AuthorID,
		Content:       m.Content,
		TaggedUserIDs: tagged,
		CreatedAt:     m.CreatedAt,
	}
}

// Notification rows are unique per (user, message).
type Notification struct {
	ID          string    `gorm:"primaryKey;size:36"`
	UserID      string    `gorm:"size:36;not null;uniqueIndex:idx_notifications_user_message,priority:1;index:idx_notifications_user_read,priority:1"`
	MessageID   string    `gorm:"size:36;not null;uniqueIndex:idx_notifications_user_message,priority:2"`
	CandidateID string    `gorm:"size:36;not null"`
	IsRead      bool      `gorm:"not null;default:false;index:idx_notifications_user_read,priority:2"`
	CreatedAt   time.Time `gorm:"precision:3;index:idx_notifications_user_read,priority:3"`
	UpdatedAt   time.Time `gorm:"precision:3"`
}

func (n *Notification) toNotification() *common.Notification {
	return &common.Notification{
		ID:          n.ID,
		UserID:      n.UserID,
		MessageID:   n.MessageID,
		CandidateID: n.CandidateID,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// newID returns a time-ordered id. Ids from one process sort in the order
// they were generated, which breaks created_at ties within a millisecond.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// stampClock never hands out a time earlier than one it already returned.
type stampClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *stampClock) stamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
