// Package realtime keeps track of live connections and delivers events to
// candidate rooms and personal channels.
package realtime

import (
	"errors"
	"strings"
	"sync"

	"candidnotes/internal/common"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var ErrRegistryClosed = errors.New("connection registry closed")

// Client is one live connection as seen by the registry.
type Client interface {
	ID() string
	UserID() string
	// Send must not block; a full or closed connection returns an error.
	Send(event string, payload interface{}) error
	Close() error
}

// RoomID derives the subscription group name for a candidate.
func RoomID(candidateID string) string {
	return roomPrefix + candidateID
}

const roomPrefix = "candidate_"

type member struct {
	client Client
	rooms  map[string]struct{}
}

// Registry maps connections to rooms and users. Every mutation happens
// under one lock so the room and identity indexes never disagree.
type Registry struct {
	mu      sync.RWMutex
	members map[string]*member           // connID -> member
	rooms   map[string]map[string]Client // roomID -> connID -> client
	users   map[string]map[string]Client // userID -> connID -> client
	closed  bool
	log     *logrus.Entry
}

func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		members: make(map[string]*member),
		rooms:   make(map[string]map[string]Client),
		users:   make(map[string]map[string]Client),
		log:     logger.WithField("component", "registry"),
	}
}

// Register records a live connection. first reports whether it is the
// user's only connection.
func (r *Registry) Register(c Client) (first bool, err error) {
	if c.UserID() == "" {
		return false, common.AuthenticationError(nil, "connection has no verified identity")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrRegistryClosed
	}
	if _, exists := r.members[c.ID()]; exists {
		return false, common.ValidationError("connection %s already registered", c.ID())
	}

	r.members[c.ID()] = &member{client: c, rooms: make(map[string]struct{})}

	conns, ok := r.users[c.UserID()]
	if !ok {
		conns = make(map[string]Client)
		r.users[c.UserID()] = conns
	}
	conns[c.ID()] = c

	r.log.WithFields(logrus.Fields{"conn_id": c.ID(), "user_id": c.UserID()}).Debug("connection registered")
	return len(conns) == 1, nil
}

// Join is idempotent.
func (r *Registry) Join(connID, candidateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[connID]
	if !ok {
		return common.NotFoundError("connection %s not registered", connID)
	}

	room := RoomID(candidateID)
	if _, joined := m.rooms[room]; joined {
		return nil
	}
	m.rooms[room] = struct{}{}

	conns, ok := r.rooms[room]
	if !ok {
		conns = make(map[string]Client)
		r.rooms[room] = conns
	}
	conns[connID] = m.client
	return nil
}

// Leave is idempotent; leaving a room never joined is a no-op.
func (r *Registry) Leave(connID, candidateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[connID]
	if !ok {
		return common.NotFoundError("connection %s not registered", connID)
	}

	room := RoomID(candidateID)
	if _, joined := m.rooms[room]; !joined {
		return nil
	}
	delete(m.rooms, room)
	r.removeFromRoom(room, connID)
	return nil
}

// Unregister drops the connection from every room and from the identity
// index in one step. last reports whether the user has no connections
// left. Calling it again for the same id is a no-op.
func (r *Registry) Unregister(connID string) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[connID]
	if !ok {
		return "", false
	}
	delete(r.members, connID)

	for room := range m.rooms {
		r.removeFromRoom(room, connID)
	}

	userID = m.client.UserID()
	if conns, ok := r.users[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.users, userID)
			last = true
		}
	}

	r.log.WithFields(logrus.Fields{"conn_id": connID, "user_id": userID, "rooms": len(m.rooms)}).Debug("connection unregistered")
	return userID, last
}

func (r *Registry) removeFromRoom(room, connID string) {
	conns, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.rooms, room)
	}
}

// ConnectionsForCandidate returns a point-in-time snapshot of the room.
func (r *Registry) ConnectionsForCandidate(candidateID string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.rooms[RoomID(candidateID)])
}

// ConnectionsForUser returns a snapshot of the user's personal channel.
func (r *Registry) ConnectionsForUser(userID string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.users[userID])
}

// AllConnections returns a snapshot of every live connection.
func (r *Registry) AllConnections() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.MapToSlice(r.members, func(_ string, m *member) Client {
		return m.client
	})
}

// RoomsOf returns the candidate ids the connection has joined.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[connID]
	if !ok {
		return nil
	}
	return lo.MapToSlice(m.rooms, func(room string, _ struct{}) string {
		return strings.TrimPrefix(room, roomPrefix)
	})
}

func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.users)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Close rejects further registrations and closes every live connection.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	clients := lo.MapToSlice(r.members, func(_ string, m *member) Client {
		return m.client
	})
	r.members = make(map[string]*member)
	r.rooms = make(map[string]map[string]Client)
	r.users = make(map[string]map[string]Client)
	r.mu.Unlock()

	for _, c := range clients {
		if err := c.Close(); err != nil {
			r.log.WithError(err).WithField("conn_id", c.ID()).Debug("close failed")
		}
	}
	r.log.WithField("connections", len(clients)).Info("connection registry closed")
}
