// Package memstore is an in-process implementation of common.Store used by
// tests and by STORE_DRIVER=memory development runs.
package memstore

import (
	"context"
	"sync"
	"time"

	"candidnotes/internal/common"

	"github.com/google/uuid"
)

var _ common.Store = (*Store)(nil)

type Store struct {
	mu            sync.RWMutex
	users         map[string]*common.User
	handles       map[string]string // handle -> user id
	candidates    map[string]*common.Candidate
	messages      map[string][]*common.Message // candidate id -> insertion order
	notifications map[string]*common.Notification
	byUser        map[string][]string // user id -> notification ids, insertion order
	pairs         map[string]string   // user|message -> notification id
	faults        map[string]error
	lastCreated   time.Time
	now           func() time.Time
}

func New() *Store {
	return &Store{
		users:         make(map[string]*common.User),
		handles:       make(map[string]string),
		candidates:    make(map[string]*common.Candidate),
		messages:      make(map[string][]*common.Message),
		notifications: make(map[string]*common.Notification),
		byUser:        make(map[string][]string),
		pairs:         make(map[string]string),
		faults:        make(map[string]error),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// AddUser seeds the directory.
func (s *Store) AddUser(u common.User) *common.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	stored := u
	s.users[u.ID] = &stored
	if u.Handle != "" {
		s.handles[u.Handle] = u.ID
	}
	return &stored
}

func (s *Store) AddCandidate(c common.Candidate) *common.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	stored := c
	s.candidates[c.ID] = &stored
	return &stored
}

// InjectFault makes op fail with err for the given key until cleared with
// a nil err. Ops: CreateMessage (candidate id), CreateNotification and
// CountUnread (user id).
func (s *Store) InjectFault(op, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.faults, op+":"+key)
		return
	}
	s.faults[op+":"+key] = err
}

func (s *Store) fault(op, key string) error {
	return s.faults[op+":"+key]
}

func (s *Store) CreateMessage(ctx context.Context, msg *common.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fault("CreateMessage", msg.CandidateID); err != nil {
		return err
	}

	created := s.now()
	if created.Before(s.lastCreated) {
		created = s.lastCreated
	}
	s.lastCreated = created

	msg.ID = uuid.NewString()
	msg.CreatedAt = created

	stored := *msg
	stored.TaggedUserIDs = append([]string(nil), msg.TaggedUserIDs...)
	s.messages[msg.CandidateID] = append(s.messages[msg.CandidateID], &stored)
	return nil
}

// MessagesByCandidate walks the insertion-ordered slice backwards. Within
// one createdAt, insertion order is the tie-break, so a cursor id matches
// everything stored before that message.
func (s *Store) MessagesByCandidate(ctx context.Context, candidateID string, limit int, cursor common.HistoryCursor) ([]*common.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[candidateID]
	if limit <= 0 {
		limit = len(all)
	}
	start, found := len(all)-1, false
	if cursor.BeforeID != "" {
		for i, m := range all {
			if m.ID == cursor.BeforeID && m.CreatedAt.Equal(cursor.Before) {
				start, found = i-1, true
				break
			}
		}
	}

	out := make([]*common.Message, 0, limit)
	for i := start; i >= 0 && len(out) < limit; i-- {
		if !cursor.Before.IsZero() {
			created := all[i].CreatedAt
			if created.After(cursor.Before) || (created.Equal(cursor.Before) && !found) {
				continue
			}
		}
		m := *all[i]
		out = append(out, &m)
	}
	return out, nil
}

func (s *Store) CreateNotification(ctx context.Context, n *common.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fault("CreateNotification", n.UserID); err != nil {
		return err
	}

	pair := n.UserID + "|" + n.MessageID
	if _, exists := s.pairs[pair]; exists {
		return common.ConflictError("notification already exists for user %s and message %s", n.UserID, n.MessageID)
	}

	now := s.now()
	n.ID = uuid.NewString()
	n.IsRead = false
	n.CreatedAt = now
	n.UpdatedAt = now

	stored := *n
	s.notifications[n.ID] = &stored
	s.byUser[n.UserID] = append(s.byUser[n.UserID], n.ID)
	s.pairs[pair] = n.ID
	return nil
}

func (s *Store) NotificationsByUser(ctx context.Context, userID string, limit, offset int, unreadOnly bool) ([]*common.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]*common.Notification, 0)
	skipped := 0
	for i := len(ids) - 1; i >= 0; i-- {
		n := s.notifications[ids[i]]
		if unreadOnly && n.IsRead {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return false, common.NotFoundError("notification not found: %s", id)
	}
	if n.IsRead {
		return false, nil
	}
	n.IsRead = true
	n.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	now := s.now()
	for _, id := range s.byUser[userID] {
		n := s.notifications[id]
		if !n.IsRead {
			n.IsRead = true
			n.UpdatedAt = now
			changed++
		}
	}
	return changed, nil
}

func (s *Store) DeleteNotification(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return common.NotFoundError("notification not found: %s", id)
	}

	delete(s.notifications, id)
	delete(s.pairs, n.UserID+"|"+n.MessageID)
	ids := s.byUser[userID]
	for i, nid := range ids {
		if nid == id {
			s.byUser[userID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fault("CountUnread", userID); err != nil {
		return 0, err
	}

	var count int64
	for _, id := range s.byUser[userID] {
		if !s.notifications[id].IsRead {
			count++
		}
	}
	return count, nil
}

func (s *Store) CandidateByID(ctx context.Context, id string) (*common.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return nil, common.NotFoundError("candidate not found")
	}
	cp := *c
	return &cp, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*common.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, common.NotFoundError("user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ResolveUsers(ctx context.Context, tokens []string) ([]*common.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	out := make([]*common.User, 0, len(tokens))
	for _, token := range tokens {
		id, ok := s.handles[token]
		if !ok {
			id = token
		}
		u, ok := s.users[id]
		if !ok || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}
