// Package chat turns an inbound submission into a persisted message, a
// room broadcast and the tag notifications that follow from it.
package chat

import (
	"context"

	"candidnotes/internal/common"
	"candidnotes/internal/events"
	"candidnotes/internal/mention"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// RoomBroadcaster is the candidate-room half of the realtime broadcaster.
type RoomBroadcaster interface {
	ToCandidate(candidateID, event string, payload interface{}) int
}

// Notifier queues tag notifications for a persisted message.
type Notifier interface {
	FanOut(ctx context.Context, msg *common.MessageView, candidate *common.Candidate) error
}

type MessagePipeline struct {
	messages    common.MessageStore
	directory   common.Directory
	broadcaster RoomBroadcaster
	notifier    Notifier
	publisher   common.Publisher
	log         *logrus.Entry
}

func NewMessagePipeline(
	messages common.MessageStore,
	directory common.Directory,
	broadcaster RoomBroadcaster,
	notifier Notifier,
	publisher common.Publisher,
	logger *logrus.Logger,
) *MessagePipeline {
	return &MessagePipeline{
		messages:    messages,
		directory:   directory,
		broadcaster: broadcaster,
		notifier:    notifier,
		publisher:   publisher,
		log:         logger.WithField("component", "message_pipeline"),
	}
}

// Submit validates, persists, broadcasts and fans out one message. Nothing
// is written when validation fails, and nothing is broadcast when the write
// fails. Broadcast and fan-out problems never fail the submission.
func (p *MessagePipeline) Submit(ctx context.Context, identity common.Identity, sub common.Submission) (*common.MessageView, error) {
	if identity.UserID == "" {
		return nil, common.AuthenticationError(nil, "user not authenticated")
	}
	if err := common.ValidateSubmission(&sub); err != nil {
		return nil, err
	}

	candidate, err := p.directory.CandidateByID(ctx, sub.CandidateID)
	if err != nil {
		return nil, lookupError(err, "failed to look up candidate")
	}

	author, err := p.author(ctx, identity)
	if err != nil {
		return nil, err
	}

	tagged, err := p.resolveTagged(ctx, sub)
	if err != nil {
		return nil, err
	}

	msg := &common.Message{
		CandidateID: candidate.ID,
		AuthorID:    identity.UserID,
		Content:     sub.Content,
		TaggedUserIDs: lo.Map(tagged, func(u *common.User, _ int) string {
			return u.ID
		}),
	}
	if err := p.messages.CreateMessage(ctx, msg); err != nil {
		return nil, lookupError(err, "failed to save message")
	}

	view := &common.MessageView{
		ID:          msg.ID,
		CandidateID: msg.CandidateID,
		Author:      author,
		Content:     msg.Content,
		TaggedUsers: lo.Map(tagged, func(u *common.User, _ int) common.UserRef {
			return u.Ref()
		}),
		CreatedAt: msg.CreatedAt,
	}

	log := p.log.WithFields(logrus.Fields{
		"message_id":   view.ID,
		"candidate_id": view.CandidateID,
		"user_id":      identity.UserID,
	})

	sent := p.broadcaster.ToCandidate(candidate.ID, common.EventMessageBroadcast, view)
	log.WithField("delivered", sent).Debug("message broadcast")

	if err := p.notifier.FanOut(ctx, view, candidate); err != nil {
		log.WithError(err).Warn("failed to queue tag notifications")
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, events.SubjectMessageCreated, msg); err != nil {
			log.WithError(err).Warn("failed to publish message event")
		}
	}

	return view, nil
}

// History returns up to limit messages ordered before the cursor, oldest
// first.
func (p *MessagePipeline) History(ctx context.Context, candidateID string, limit int, cursor common.HistoryCursor) ([]*common.MessageView, error) {
	if _, err := p.directory.CandidateByID(ctx, candidateID); err != nil {
		return nil, lookupError(err, "failed to look up candidate")
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	messages, err := p.messages.MessagesByCandidate(ctx, candidateID, limit, cursor)
	if err != nil {
		return nil, lookupError(err, "failed to load messages")
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.AuthorID)
		ids = append(ids, m.TaggedUserIDs...)
	}
	ids = lo.Uniq(ids)

	users := map[string]*common.User{}
	if len(ids) > 0 {
		resolved, err := p.directory.ResolveUsers(ctx, ids)
		if err != nil {
			return nil, lookupError(err, "failed to resolve users")
		}
		users = lo.KeyBy(resolved, func(u *common.User) string { return u.ID })
	}

	ref := func(id string) common.UserRef {
		if u, ok := users[id]; ok {
			return u.Ref()
		}
		return common.UserRef{ID: id}
	}

	return lo.Map(messages, func(m *common.Message, _ int) *common.MessageView {
		return &common.MessageView{
			ID:          m.ID,
			CandidateID: m.CandidateID,
			Author:      ref(m.AuthorID),
			Content:     m.Content,
			TaggedUsers: lo.Map(m.TaggedUserIDs, func(id string, _ int) common.UserRef { return ref(id) }),
			CreatedAt:   m.CreatedAt,
		}
	}), nil
}

func (p *MessagePipeline) author(ctx context.Context, identity common.Identity) (common.UserRef, error) {
	user, err := p.directory.UserByID(ctx, identity.UserID)
	if err == nil {
		return user.Ref(), nil
	}
	if common.IsKind(err, common.KindNotFound) {
		return common.UserRef{ID: identity.UserID, Name: identity.DisplayName}, nil
	}
	return common.UserRef{}, lookupError(err, "failed to look up author")
}

// resolveTagged unions @-mentions with the explicit tagged ids and keeps
// only those the directory knows.
func (p *MessagePipeline) resolveTagged(ctx context.Context, sub common.Submission) ([]*common.User, error) {
	tokens := lo.Uniq(append(mention.Extract(sub.Content), sub.TaggedUsers...))
	if len(tokens) == 0 {
		return []*common.User{}, nil
	}

	users, err := p.directory.ResolveUsers(ctx, tokens)
	if err != nil {
		return nil, lookupError(err, "failed to resolve tagged users")
	}
	return lo.UniqBy(users, func(u *common.User) string { return u.ID }), nil
}

// lookupError keeps classified errors and treats the rest as transient
// store failures.
func lookupError(err error, msg string) error {
	if common.KindOf(err) != common.KindInternal {
		return err
	}
	return common.PersistenceError(err, "%s", msg)
}
