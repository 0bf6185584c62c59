package notif

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"candidnotes/internal/common"
	"candidnotes/internal/config"
	"candidnotes/internal/logging"
	"candidnotes/internal/memstore"
	"candidnotes/internal/realtime"
	"candidnotes/internal/realtime/realtimetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	args := m.Called(ctx, subject, payload)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

type fanoutFixture struct {
	store    *memstore.Store
	registry *realtime.Registry
	service  *NotificationService
	alice    *realtimetest.Recorder
	bob      *realtimetest.Recorder
	carol    *realtimetest.Recorder
}

func testConfig() *config.Config {
	return &config.Config{
		Notification: config.NotificationConfig{Workers: 3, QueueSize: 16},
	}
}

func newFanoutFixture(t *testing.T, publisher common.Publisher) *fanoutFixture {
	t.Helper()
	logger := logging.Discard()

	f := &fanoutFixture{
		store:    memstore.New(),
		registry: realtime.NewRegistry(logger),
		alice:    realtimetest.NewRecorder("a1", "alice"),
		bob:      realtimetest.NewRecorder("b1", "bob"),
		carol:    realtimetest.NewRecorder("c1", "carol"),
	}
	for _, c := range []*realtimetest.Recorder{f.alice, f.bob, f.carol} {
		_, err := f.registry.Register(c)
		require.NoError(t, err)
	}

	f.service = NewNotificationService(testConfig(), f.store, realtime.NewBroadcaster(f.registry, logger), publisher, logger)
	t.Cleanup(func() { _ = f.service.Shutdown(context.Background()) })
	return f
}

// drain waits for every queued job by shutting the manager down.
func (f *fanoutFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.service.Shutdown(ctx))
}

func message(id string, author string, tagged ...string) *common.MessageView {
	view := &common.MessageView{
		ID:          id,
		CandidateID: "E1",
		Author:      common.UserRef{ID: author, Name: author},
		Content:     "hello",
		TaggedUsers: []common.UserRef{},
	}
	for _, u := range tagged {
		view.TaggedUsers = append(view.TaggedUsers, common.UserRef{ID: u, Name: u})
	}
	return view
}

var candidate = &common.Candidate{ID: "E1", Name: "Jane Doe"}

func unreadCount(t *testing.T, r *realtimetest.Recorder) int64 {
	t.Helper()
	frame, ok := r.Last(common.EventUnreadCountUpdated)
	require.True(t, ok, "no unread-count-updated for %s", r.UserID())
	var payload common.UnreadCountPayload
	require.NoError(t, frame.Decode(&payload))
	return payload.Count
}

func TestNotificationService_FanOut(t *testing.T) {
	f := newFanoutFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.service.FanOut(ctx, message("m1", "bob", "alice", "bob", "carol"), candidate))
	f.drain(t)

	assert.Equal(t, []string{common.EventTagged, common.EventUnreadCountUpdated}, f.alice.Events())
	assert.Equal(t, []string{common.EventTagged, common.EventUnreadCountUpdated}, f.carol.Events())
	assert.Empty(t, f.bob.Events(), "author is never notified")
	assert.Equal(t, int64(1), unreadCount(t, f.alice))

	frame, ok := f.alice.Last(common.EventTagged)
	require.True(t, ok)
	var tagged common.TaggedPayload
	require.NoError(t, frame.Decode(&tagged))
	assert.Equal(t, "m1", tagged.Message.ID)
	assert.Equal(t, "E1", tagged.Entity.ID)
	assert.Equal(t, "alice", tagged.Notification.UserID)
	assert.False(t, tagged.Notification.IsRead)

	count, err := f.store.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNotificationService_DuplicateFanOutIsNoop(t *testing.T) {
	f := newFanoutFixture(t, nil)
	ctx := context.Background()

	msg := message("m1", "bob", "alice")
	require.NoError(t, f.service.FanOut(ctx, msg, candidate))
	require.NoError(t, f.service.FanOut(ctx, msg, candidate))
	f.drain(t)

	assert.Equal(t, 1, f.alice.Count(common.EventTagged))
	notifications, err := f.store.NotificationsByUser(ctx, "alice", 0, 0, false)
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestNotificationService_CountsStayAccurate(t *testing.T) {
	f := newFanoutFixture(t, nil)
	ctx := context.Background()

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, f.service.FanOut(ctx, message(id, "bob", "alice"), candidate))
	}
	f.drain(t)

	var counts []int64
	for _, frame := range f.alice.Frames() {
		if frame.Event != common.EventUnreadCountUpdated {
			continue
		}
		var payload common.UnreadCountPayload
		require.NoError(t, frame.Decode(&payload))
		counts = append(counts, payload.Count)
	}
	assert.Equal(t, []int64{1, 2, 3}, counts)
}

func TestNotificationService_FailureIsolatedPerUser(t *testing.T) {
	f := newFanoutFixture(t, nil)
	f.store.InjectFault("CreateNotification", "alice", errors.New("disk full"))

	require.NoError(t, f.service.FanOut(context.Background(), message("m1", "bob", "alice", "carol"), candidate))
	f.drain(t)

	assert.Empty(t, f.alice.Events())
	assert.Equal(t, 1, f.carol.Count(common.EventTagged))
	assert.Equal(t, int64(1), unreadCount(t, f.carol))
}

func TestNotificationService_RecountFailureStillPushesTag(t *testing.T) {
	f := newFanoutFixture(t, nil)
	f.store.InjectFault("CountUnread", "alice", errors.New("timeout"))

	require.NoError(t, f.service.FanOut(context.Background(), message("m1", "bob", "alice"), candidate))
	f.drain(t)

	assert.Equal(t, []string{common.EventTagged}, f.alice.Events())
}

func TestNotificationService_OfflineUserStillGetsNotification(t *testing.T) {
	f := newFanoutFixture(t, nil)
	ctx := context.Background()
	f.registry.Unregister("a1")

	require.NoError(t, f.service.FanOut(ctx, message("m1", "bob", "alice"), candidate))
	f.drain(t)

	count, err := f.store.CountUnread(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func seedNotifications(t *testing.T, store *memstore.Store, userID string, n int) []*common.Notification {
	t.Helper()
	out := make([]*common.Notification, 0, n)
	for i := 0; i < n; i++ {
		notification := &common.Notification{UserID: userID, MessageID: string(rune('a' + i)), CandidateID: "E1"}
		require.NoError(t, store.CreateNotification(context.Background(), notification))
		out = append(out, notification)
	}
	return out
}

func TestNotificationService_MarkAsRead(t *testing.T) {
	f := newFanoutFixture(t, nil)
	ctx := context.Background()
	seeded := seedNotifications(t, f.store, "alice", 2)

	count, err := f.service.MarkAsRead(ctx, "alice", seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int64(1), unreadCount(t, f.alice))
	assert.Equal(t, 1, f.alice.Count(common.EventUnreadCountUpdated))

	count, err = f.service.MarkAsRead(ctx, "alice", seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, f.alice.Count(common.EventUnreadCountUpdated), "repeat is a no-op")

	notifications, err := f.store.NotificationsByUser(ctx, "alice", 0, 0, true)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, seeded[1].ID, notifications[0].ID)
}

func TestNotificationService_MarkAsReadForeignOrUnknown(t *testing.T) {
	f := newFanoutFixture(t, nil)
	ctx := context.Background()
	seeded := seedNotifications(t, f.store, "alice", 1)

	_, err := f.service.MarkAsRead(ctx, "carol", seeded[0].ID)
	assert.True(t, common.IsKind(err, common.KindNotFound))

	_, err = f.service.MarkAsRead(ctx, "alice", "missing")
	assert.True(t, common.IsKind(err, common.KindNotFound))
	assert.Empty(t, f.alice.Events())
}

func TestNotificationService_MarkAllRead(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, "notification.read", mock.Anything).Return(nil).Once()

	f := newFanoutFixture(t, publisher)
	ctx := context.Background()
	seedNotifications(t, f.store, "alice", 3)

	count, err := f.service.MarkAllRead(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, int64(0), unreadCount(t, f.alice))

	count, err = f.service.MarkAllRead(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 1, f.alice.Count(common.EventUnreadCountUpdated))

	publisher.AssertExpectations(t)
}

func TestNotificationService_ListAndDelete(t *testing.T) {
	f := newFanoutFixture(t, nil)
	ctx := context.Background()
	seeded := seedNotifications(t, f.store, "alice", 5)

	page, err := f.service.List(ctx, "alice", 2, 2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.UnreadCount)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, seeded[2].ID, page.Notifications[0].ID)
	assert.Equal(t, seeded[1].ID, page.Notifications[1].ID)

	count, err := f.service.Delete(ctx, "alice", seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.Equal(t, int64(4), unreadCount(t, f.alice))

	_, err = f.service.Delete(ctx, "alice", seeded[0].ID)
	assert.True(t, common.IsKind(err, common.KindNotFound))
}

func TestNotificationService_ListDefaults(t *testing.T) {
	f := newFanoutFixture(t, nil)

	page, err := f.service.List(context.Background(), "nobody", 0, 1000, true)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)
	assert.Empty(t, page.Notifications)
	assert.NotNil(t, page.Notifications)
}

func TestNotificationService_PushUnreadCount(t *testing.T) {
	f := newFanoutFixture(t, nil)
	seedNotifications(t, f.store, "carol", 2)

	count, err := f.service.PushUnreadCount(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, int64(2), unreadCount(t, f.carol))
}

func TestNotificationService_StoreFailureIsPersistenceError(t *testing.T) {
	f := newFanoutFixture(t, nil)
	f.store.InjectFault("CountUnread", "alice", errors.New("connection reset"))

	_, err := f.service.UnreadCount(context.Background(), "alice")
	assert.True(t, common.IsKind(err, common.KindPersistence))
	assert.True(t, common.Retryable(err))
}

func TestNotificationManager_SameUserProcessedInOrder(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]string)

	nm := NewNotificationManager(4, 8, func(ctx context.Context, job Job) {
		mu.Lock()
		defer mu.Unlock()
		seen[job.UserID] = append(seen[job.UserID], job.Message.ID)
	}, logging.Discard())

	ctx := context.Background()
	want := []string{"m1", "m2", "m3", "m4", "m5", "m6"}
	for _, id := range want {
		for _, user := range []string{"alice", "carol", "dave"} {
			require.NoError(t, nm.Enqueue(ctx, Job{UserID: user, Message: message(id, "bob")}))
		}
	}
	require.NoError(t, nm.Shutdown(ctx))

	for _, user := range []string{"alice", "carol", "dave"} {
		assert.Equal(t, want, seen[user], user)
	}
}

func TestNotificationManager_EnqueueBlocksUntilContextDone(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	nm := NewNotificationManager(1, 1, func(ctx context.Context, job Job) {
		once.Do(func() { close(started) })
		<-release
	}, logging.Discard())

	ctx := context.Background()
	require.NoError(t, nm.Enqueue(ctx, Job{UserID: "alice", Message: message("m1", "bob")}))
	<-started
	require.NoError(t, nm.Enqueue(ctx, Job{UserID: "alice", Message: message("m2", "bob")}))

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := nm.Enqueue(timeoutCtx, Job{UserID: "alice", Message: message("m3", "bob")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, nm.Shutdown(ctx))
}

func TestNotificationManager_EnqueueAfterShutdown(t *testing.T) {
	nm := NewNotificationManager(2, 2, func(ctx context.Context, job Job) {}, logging.Discard())
	require.NoError(t, nm.Shutdown(context.Background()))
	require.NoError(t, nm.Shutdown(context.Background()))

	err := nm.Enqueue(context.Background(), Job{UserID: "alice", Message: message("m1", "bob")})
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestNotificationService_FanOutAfterShutdown(t *testing.T) {
	f := newFanoutFixture(t, nil)
	f.drain(t)

	err := f.service.FanOut(context.Background(), message("m1", "bob", "alice"), candidate)
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestStoreError_MessageKeptVerbatim(t *testing.T) {
	err := storeError(errors.New("disk 100% full"), "failed at 100% capacity")
	assert.True(t, common.IsKind(err, common.KindPersistence))
	assert.Equal(t, "failed at 100% capacity", common.PublicMessage(err))

	notFound := common.NotFoundError("notification not found")
	assert.Same(t, notFound, storeError(notFound, "ignored"))
}
