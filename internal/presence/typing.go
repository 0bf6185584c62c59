// Package presence relays ephemeral signals: typing state inside a
// candidate room and online/offline status of users.
package presence

import (
	"sync"
	"time"

	"candidnotes/internal/common"

	"github.com/sirupsen/logrus"
)

// Relayer is the room-except-sender half of the realtime broadcaster.
type Relayer interface {
	ToCandidateExcept(candidateID, senderConnID, event string, payload interface{}) int
}

type typingKey struct {
	connID      string
	candidateID string
}

type typingState struct {
	identity common.Identity
	timer    *time.Timer
}

// TypingRelay forwards typing signals to the rest of the room. Nothing is
// stored or acknowledged. With a timeout > 0 a typing=true signal that is
// not renewed within the timeout is followed by a relayed typing=false.
type TypingRelay struct {
	relayer Relayer
	timeout time.Duration
	mu      sync.Mutex
	active  map[typingKey]*typingState
	log     *logrus.Entry
}

func NewTypingRelay(relayer Relayer, timeout time.Duration, logger *logrus.Logger) *TypingRelay {
	return &TypingRelay{
		relayer: relayer,
		timeout: timeout,
		active:  make(map[typingKey]*typingState),
		log:     logger.WithField("component", "typing_relay"),
	}
}

func (t *TypingRelay) Relay(identity common.Identity, connID, candidateID string, isTyping bool) {
	if t.timeout > 0 {
		t.track(identity, typingKey{connID: connID, candidateID: candidateID}, isTyping)
	}
	t.send(identity, connID, candidateID, isTyping)
}

func (t *TypingRelay) send(identity common.Identity, connID, candidateID string, isTyping bool) {
	sent := t.relayer.ToCandidateExcept(candidateID, connID, common.EventTypingRelayed, common.TypingRelayedPayload{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		CandidateID: candidateID,
		IsTyping:    isTyping,
	})
	t.log.WithFields(logrus.Fields{
		"conn_id":      connID,
		"candidate_id": candidateID,
		"is_typing":    isTyping,
		"delivered":    sent,
	}).Debug("typing relayed")
}

func (t *TypingRelay) track(identity common.Identity, key typingKey, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.active[key]; ok {
		state.timer.Stop()
		delete(t.active, key)
	}
	if !isTyping {
		return
	}

	state := &typingState{identity: identity}
	state.timer = time.AfterFunc(t.timeout, func() { t.expire(key, state) })
	t.active[key] = state
}

func (t *TypingRelay) expire(key typingKey, state *typingState) {
	t.mu.Lock()
	current, ok := t.active[key]
	if !ok || current != state {
		t.mu.Unlock()
		return
	}
	delete(t.active, key)
	t.mu.Unlock()

	t.send(state.identity, key.connID, key.candidateID, false)
}

// Forget cancels a pending expiry for one room, used on leave.
func (t *TypingRelay) Forget(connID, candidateID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{connID: connID, candidateID: candidateID}
	if state, ok := t.active[key]; ok {
		state.timer.Stop()
		delete(t.active, key)
	}
}

// ForgetConnection cancels every pending expiry of a disconnected
// connection.
func (t *TypingRelay) ForgetConnection(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, state := range t.active {
		if key.connID == connID {
			state.timer.Stop()
			delete(t.active, key)
		}
	}
}

// Pending reports how many typing states are waiting to expire.
func (t *TypingRelay) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

func (t *TypingRelay) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, state := range t.active {
		state.timer.Stop()
		delete(t.active, key)
	}
}
