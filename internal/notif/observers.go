package notif

import (
	"context"
	"fmt"
	"time"

	"candidnotes/internal/common"
	"candidnotes/internal/events"

	"github.com/sirupsen/logrus"
)

// PushObserver delivers a tag event on the tagged user's personal channel.
type PushObserver struct {
	pusher UserPusher
}

func NewPushObserver(pusher UserPusher) *PushObserver {
	return &PushObserver{
		pusher: pusher,
	}
}

func (p *PushObserver) Name() string {
	return "push_observer"
}

// Update sends tagged and unread-count-updated independently. The count is
// skipped when the recount failed.
func (p *PushObserver) Update(event common.TagEvent) error {
	userID := event.Notification.UserID

	p.pusher.ToUser(userID, common.EventTagged, common.TaggedPayload{
		Notification: event.Notification,
		Message:      event.Message,
		Entity:       event.Candidate,
	})

	if event.UnreadCount != nil {
		p.pusher.ToUser(userID, common.EventUnreadCountUpdated, common.UnreadCountPayload{Count: *event.UnreadCount})
	}
	return nil
}

// EventObserver forwards created notifications to the domain event bus.
type EventObserver struct {
	publisher common.Publisher
	timeout   time.Duration
	log       *logrus.Entry
}

func NewEventObserver(publisher common.Publisher, logger *logrus.Logger) *EventObserver {
	return &EventObserver{
		publisher: publisher,
		timeout:   5 * time.Second,
		log:       logger.WithField("component", "event_observer"),
	}
}

func (e *EventObserver) Name() string {
	return "event_observer"
}

func (e *EventObserver) Update(event common.TagEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	payload := map[string]interface{}{
		"notification": event.Notification,
		"messageId":    event.Message.ID,
		"candidateId":  event.Notification.CandidateID,
		"authorId":     event.Message.Author.ID,
	}
	if err := e.publisher.Publish(ctx, events.SubjectNotificationCreated, payload); err != nil {
		return fmt.Errorf("failed to publish notification event: %w", err)
	}
	return nil
}
