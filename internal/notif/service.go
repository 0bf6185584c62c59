package notif

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"candidnotes/internal/common"
	"candidnotes/internal/config"
	"candidnotes/internal/events"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var ErrManagerClosed = errors.New("notification manager is shut down")

// Job is one (tagged user, message) fan-out unit.
type Job struct {
	UserID    string
	Message   *common.MessageView
	Candidate *common.Candidate
}

// NotificationManager owns the observer set and a sharded worker pool.
// Jobs for the same user always land on the same shard, so one user's
// notifications are processed in enqueue order.
type NotificationManager struct {
	observers map[string]common.Observer
	shards    []chan Job
	handler   func(ctx context.Context, job Job)
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	lifecycle sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	log       *logrus.Entry
}

func NewNotificationManager(workerPoolSize, queueSize int, handler func(ctx context.Context, job Job), logger *logrus.Logger) *NotificationManager {
	if workerPoolSize < 1 {
		workerPoolSize = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	nm := &NotificationManager{
		observers: make(map[string]common.Observer),
		shards:    make([]chan Job, workerPoolSize),
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.WithField("component", "notification_manager"),
	}

	for i := range nm.shards {
		nm.shards[i] = make(chan Job, queueSize)
		nm.wg.Add(1)
		go nm.processJobs(nm.shards[i])
	}

	return nm
}

func (nm *NotificationManager) Subscribe(observer common.Observer) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.observers[observer.Name()] = observer
	nm.log.Infof("Observer %s subscribed", observer.Name())
}

func (nm *NotificationManager) Unsubscribe(observer common.Observer) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.observers, observer.Name())
	nm.log.Infof("Observer %s unsubscribed", observer.Name())
}

// Notify runs every observer; one failing observer does not stop the rest.
func (nm *NotificationManager) Notify(event common.TagEvent) {
	nm.mu.RLock()
	observers := lo.Values(nm.observers)
	nm.mu.RUnlock()

	for _, observer := range observers {
		if err := observer.Update(event); err != nil {
			nm.log.WithError(err).Warnf("Observer %s update failed", observer.Name())
		}
	}
}

// Enqueue blocks while the user's shard is full. It returns early only when
// ctx is done or the manager has been shut down.
func (nm *NotificationManager) Enqueue(ctx context.Context, job Job) error {
	nm.lifecycle.RLock()
	defer nm.lifecycle.RUnlock()

	if nm.closed {
		return ErrManagerClosed
	}

	select {
	case nm.shardFor(job.UserID) <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-nm.ctx.Done():
		return ErrManagerClosed
	}
}

func (nm *NotificationManager) shardFor(userID string) chan Job {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return nm.shards[h.Sum32()%uint32(len(nm.shards))]
}

func (nm *NotificationManager) processJobs(jobs <-chan Job) {
	defer nm.wg.Done()

	for job := range jobs {
		nm.handler(nm.ctx, job)
	}
}

// Shutdown stops accepting jobs and drains what is queued. If ctx expires
// first the in-flight store calls are cancelled.
func (nm *NotificationManager) Shutdown(ctx context.Context) error {
	nm.lifecycle.Lock()
	if nm.closed {
		nm.lifecycle.Unlock()
		return nil
	}
	nm.closed = true
	for _, shard := range nm.shards {
		close(shard)
	}
	nm.lifecycle.Unlock()

	done := make(chan struct{})
	go func() {
		nm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		nm.cancel()
		nm.log.Info("NotificationManager shutdown complete")
		return nil
	case <-ctx.Done():
		nm.cancel()
		<-done
		return ctx.Err()
	}
}

// UserPusher is the personal-channel half of the room broadcaster.
type UserPusher interface {
	ToUser(userID, event string, payload interface{}) int
}

type NotificationService struct {
	manager   *NotificationManager
	store     common.NotificationStore
	pusher    UserPusher
	publisher common.Publisher
	log       *logrus.Entry
}

func NewNotificationService(
	cfg *config.Config,
	store common.NotificationStore,
	pusher UserPusher,
	publisher common.Publisher,
	logger *logrus.Logger,
) *NotificationService {
	service := &NotificationService{
		store:     store,
		pusher:    pusher,
		publisher: publisher,
		log:       logger.WithField("component", "notification_service"),
	}

	manager := NewNotificationManager(cfg.Notification.Workers, cfg.Notification.QueueSize, service.deliver, logger)
	manager.Subscribe(NewPushObserver(pusher))
	if publisher != nil {
		manager.Subscribe(NewEventObserver(publisher, logger))
	}
	service.manager = manager

	return service
}

func (s *NotificationService) Manager() *NotificationManager {
	return s.manager
}

// FanOut queues one job per tagged user other than the author. It returns
// the first enqueue error; jobs queued before it still run.
func (s *NotificationService) FanOut(ctx context.Context, msg *common.MessageView, candidate *common.Candidate) error {
	for _, tagged := range msg.TaggedUsers {
		if tagged.ID == msg.Author.ID {
			continue
		}
		job := Job{UserID: tagged.ID, Message: msg, Candidate: candidate}
		if err := s.manager.Enqueue(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, job Job) {
	if job.UserID == job.Message.Author.ID {
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id":    job.UserID,
		"message_id": job.Message.ID,
	})

	notification := &common.Notification{
		UserID:      job.UserID,
		MessageID:   job.Message.ID,
		CandidateID: job.Message.CandidateID,
	}
	if err := s.store.CreateNotification(ctx, notification); err != nil {
		if common.IsKind(err, common.KindConflict) {
			log.Debug("notification already exists")
			return
		}
		log.WithError(err).Error("failed to create notification")
		return
	}

	event := common.TagEvent{
		Notification: notification,
		Message:      job.Message,
		Candidate:    job.Candidate,
	}
	if count, err := s.store.CountUnread(ctx, job.UserID); err != nil {
		log.WithError(err).Warn("failed to recount unread notifications")
	} else {
		event.UnreadCount = &count
	}

	s.manager.Notify(event)
}

// MarkAsRead returns the user's unread count after the change. A repeated
// call changes nothing and pushes nothing.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, notificationID string) (int64, error) {
	changed, err := s.store.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return 0, storeError(err, "failed to mark notification read")
	}
	if !changed {
		return s.UnreadCount(ctx, userID)
	}

	s.publish(ctx, events.SubjectNotificationRead, map[string]interface{}{
		"userId":          userID,
		"notificationIds": []string{notificationID},
	})
	return s.PushUnreadCount(ctx, userID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	changed, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, storeError(err, "failed to mark notifications read")
	}
	if changed == 0 {
		return s.UnreadCount(ctx, userID)
	}

	s.publish(ctx, events.SubjectNotificationRead, map[string]interface{}{
		"userId": userID,
		"all":    true,
	})
	return s.PushUnreadCount(ctx, userID)
}

func (s *NotificationService) List(ctx context.Context, userID string, page, limit int, unreadOnly bool) (*common.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	notifications, err := s.store.NotificationsByUser(ctx, userID, limit, (page-1)*limit, unreadOnly)
	if err != nil {
		return nil, storeError(err, "failed to list notifications")
	}

	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &common.NotificationPage{
		Notifications: notifications,
		UnreadCount:   count,
		Page:          page,
		Limit:         limit,
	}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, storeError(err, "failed to count unread notifications")
	}
	return count, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) (int64, error) {
	if err := s.store.DeleteNotification(ctx, notificationID, userID); err != nil {
		return 0, storeError(err, "failed to delete notification")
	}
	return s.PushUnreadCount(ctx, userID)
}

// PushUnreadCount recomputes the count and sends it on the user's personal
// channel.
func (s *NotificationService) PushUnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.pusher.ToUser(userID, common.EventUnreadCountUpdated, common.UnreadCountPayload{Count: count})
	return count, nil
}

func (s *NotificationService) publish(ctx context.Context, subject string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, subject, payload); err != nil {
		s.log.WithError(err).Warnf("failed to publish %s", subject)
	}
}

func (s *NotificationService) Shutdown(ctx context.Context) error {
	err := s.manager.Shutdown(ctx)
	s.log.Info("NotificationService shutdown complete")
	return err
}

func storeError(err error, msg string) error {
	if common.KindOf(err) != common.KindInternal {
		return err
	}
	return common.PersistenceError(err, "%s", msg)
}
