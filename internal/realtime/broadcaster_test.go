package realtime

import (
	"errors"
	"testing"

	"candidnotes/internal/logging"
	"candidnotes/internal/realtime/realtimetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roomFixture struct {
	registry    *Registry
	broadcaster *Broadcaster
	alicePhone  *realtimetest.Recorder
	aliceLaptop *realtimetest.Recorder
	bob         *realtimetest.Recorder
	carol       *realtimetest.Recorder
}

func newRoomFixture(t *testing.T) *roomFixture {
	t.Helper()
	f := &roomFixture{
		registry:    NewRegistry(logging.Discard()),
		alicePhone:  realtimetest.NewRecorder("a1", "alice"),
		aliceLaptop: realtimetest.NewRecorder("a2", "alice"),
		bob:         realtimetest.NewRecorder("b1", "bob"),
		carol:       realtimetest.NewRecorder("c1", "carol"),
	}
	f.broadcaster = NewBroadcaster(f.registry, logging.Discard())

	for _, c := range []*realtimetest.Recorder{f.alicePhone, f.aliceLaptop, f.bob, f.carol} {
		_, err := f.registry.Register(c)
		require.NoError(t, err)
	}
	require.NoError(t, f.registry.Join("a1", "E1"))
	require.NoError(t, f.registry.Join("b1", "E1"))
	require.NoError(t, f.registry.Join("c1", "E2"))
	return f
}

func TestBroadcaster_ToCandidate(t *testing.T) {
	f := newRoomFixture(t)

	sent := f.broadcaster.ToCandidate("E1", "message-broadcast", map[string]string{"id": "m1"})

	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"message-broadcast"}, f.alicePhone.Events())
	assert.Equal(t, []string{"message-broadcast"}, f.bob.Events())
	assert.Empty(t, f.aliceLaptop.Events(), "not in the room")
	assert.Empty(t, f.carol.Events(), "different room")
}

func TestBroadcaster_ToCandidateExcept(t *testing.T) {
	f := newRoomFixture(t)

	sent := f.broadcaster.ToCandidateExcept("E1", "b1", "typing-relayed", map[string]bool{"isTyping": true})

	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, f.alicePhone.Count("typing-relayed"))
	assert.Empty(t, f.bob.Events())
}

func TestBroadcaster_ToUserReachesEveryDevice(t *testing.T) {
	f := newRoomFixture(t)

	sent := f.broadcaster.ToUser("alice", "unread-count-updated", map[string]int{"count": 3})

	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, f.alicePhone.Count("unread-count-updated"))
	assert.Equal(t, 1, f.aliceLaptop.Count("unread-count-updated"))
	assert.Empty(t, f.bob.Events())
}

func TestBroadcaster_ToAllExcept(t *testing.T) {
	f := newRoomFixture(t)

	sent := f.broadcaster.ToAllExcept("alice", "user-status-changed", map[string]string{"status": "online"})

	assert.Equal(t, 2, sent)
	assert.Empty(t, f.alicePhone.Events())
	assert.Empty(t, f.aliceLaptop.Events())
	assert.Equal(t, 1, f.bob.Count("user-status-changed"))
	assert.Equal(t, 1, f.carol.Count("user-status-changed"))
}

func TestBroadcaster_FailureDoesNotStopOthers(t *testing.T) {
	f := newRoomFixture(t)
	f.alicePhone.FailWith(errors.New("send buffer full"))

	sent := f.broadcaster.ToCandidate("E1", "message-broadcast", map[string]string{"id": "m1"})

	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, f.bob.Count("message-broadcast"))
}

func TestBroadcaster_UnregisteredNeverReached(t *testing.T) {
	f := newRoomFixture(t)
	f.registry.Unregister("b1")

	f.broadcaster.ToCandidate("E1", "message-broadcast", map[string]string{"id": "m1"})
	f.broadcaster.ToUser("bob", "tagged", map[string]string{"id": "n1"})

	assert.Empty(t, f.bob.Events())
	assert.Equal(t, 1, f.alicePhone.Count("message-broadcast"))
}

func TestBroadcaster_EmptyRoom(t *testing.T) {
	f := newRoomFixture(t)
	assert.Equal(t, 0, f.broadcaster.ToCandidate("nobody-here", "message-broadcast", nil))
}
