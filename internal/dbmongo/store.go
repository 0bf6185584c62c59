package dbmongo

import (
	"context"
	"errors"
	"fmt"

	"candidnotes/internal/common"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ common.Store = (*Store)(nil)

type Store struct {
	clock         *stampClock
	client        *MongoClient
	messages      *mongo.Collection
	notifications *mongo.Collection
	users         *mongo.Collection
	candidates    *mongo.Collection
}

func NewStore(client *MongoClient) *Store {
	return &Store{
		clock:         &stampClock{now: now},
		client:        client,
		messages:      client.Database.Collection(collMessages),
		notifications: client.Database.Collection(collNotifications),
		users:         client.Database.Collection(collUsers),
		candidates:    client.Database.Collection(collCandidates),
	}
}

func (s *Store) CreateMessage(ctx context.Context, msg *common.Message) error {
	candidateID, err := objectID(msg.CandidateID, "candidate")
	if err != nil {
		return err
	}
	authorID, err := primitive.ObjectIDFromHex(msg.AuthorID)
	if err != nil {
		return common.ValidationError("invalid author id: %s", msg.AuthorID)
	}
	tagged, err := objectIDs(msg.TaggedUserIDs)
	if err != nil {
		return err
	}

	created := s.clock.stamp()
	doc := messageDoc{
		CandidateID: candidateID,
		UserID:      authorID,
		Content:     msg.Content,
		TaggedUsers: tagged,
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	res, err := s.messages.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	msg.ID = res.InsertedID.(primitive.ObjectID).Hex()
	msg.CreatedAt = created
	return nil
}

func (s *Store) MessagesByCandidate(ctx context.Context, candidateID string, limit int, cursor common.HistoryCursor) ([]*common.Message, error) {
	oid, err := objectID(candidateID, "candidate")
	if err != nil {
		return []*common.Message{}, nil
	}

	filter := bson.M{"candidateId": oid}
	for k, v := range cursorFilter(cursor) {
		filter[k] = v
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}
	defer cur.Close(ctx)

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	out := make([]*common.Message, len(docs))
	for i := range docs {
		out[i] = docs[i].toMessage()
	}
	return out, nil
}

func (s *Store) CreateNotification(ctx context.Context, n *common.Notification) error {
	userID, err := objectID(n.UserID, "user")
	if err != nil {
		return err
	}
	messageID, err := objectID(n.MessageID, "message")
	if err != nil {
		return err
	}
	candidateID, err := objectID(n.CandidateID, "candidate")
	if err != nil {
		return err
	}

	created := s.clock.stamp()
	doc := notificationDoc{
		UserID:      userID,
		MessageID:   messageID,
		CandidateID: candidateID,
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	res, err := s.notifications.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return common.ConflictError("notification already exists for user %s and message %s", n.UserID, n.MessageID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	n.ID = res.InsertedID.(primitive.ObjectID).Hex()
	n.IsRead = false
	n.CreatedAt = created
	n.UpdatedAt = created
	return nil
}

func (s *Store) NotificationsByUser(ctx context.Context, userID string, limit, offset int, unreadOnly bool) ([]*common.Notification, error) {
	oid, err := objectID(userID, "user")
	if err != nil {
		return []*common.Notification{}, nil
	}

	filter := bson.M{"userId": oid}
	if unreadOnly {
		filter["isRead"] = false
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.notifications.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []notificationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}

	out := make([]*common.Notification, len(docs))
	for i := range docs {
		out[i] = docs[i].toNotification()
	}
	return out, nil
}

// MarkRead only matches unread rows, so concurrent calls flip the flag once.
func (s *Store) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	owned, err := ownedFilter(id, userID)
	if err != nil {
		return false, err
	}

	res, err := s.notifications.UpdateOne(ctx,
		bson.M{"_id": owned["_id"], "userId": owned["userId"], "isRead": false},
		bson.M{"$set": bson.M{"isRead": true, "updatedAt": now()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}

	count, err := s.notifications.CountDocuments(ctx, owned)
	if err != nil {
		return false, fmt.Errorf("failed to look up notification: %w", err)
	}
	if count == 0 {
		return false, common.NotFoundError("notification not found: %s", id)
	}
	return false, nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	uid, err := objectID(userID, "user")
	if err != nil {
		return 0, nil
	}

	res, err := s.notifications.UpdateMany(ctx,
		bson.M{"userId": uid, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true, "updatedAt": now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) DeleteNotification(ctx context.Context, id, userID string) error {
	owned, err := ownedFilter(id, userID)
	if err != nil {
		return err
	}

	res, err := s.notifications.DeleteOne(ctx, owned)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if res.DeletedCount == 0 {
		return common.NotFoundError("notification not found: %s", id)
	}
	return nil
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	uid, err := objectID(userID, "user")
	if err != nil {
		return 0, nil
	}

	count, err := s.notifications.CountDocuments(ctx, bson.M{"userId": uid, "isRead": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *Store) CandidateByID(ctx context.Context, id string) (*common.Candidate, error) {
	oid, err := objectID(id, "candidate")
	if err != nil {
		return nil, err
	}

	var doc candidateDoc
	err = s.candidates.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.NotFoundError("candidate not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find candidate: %w", err)
	}
	return doc.toCandidate(), nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*common.User, error) {
	oid, err := objectID(id, "user")
	if err != nil {
		return nil, err
	}

	var doc userDoc
	err = s.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.NotFoundError("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.toUser(), nil
}

// ResolveUsers runs one query for all tokens and then orders the result by
// the first token that matched each user.
func (s *Store) ResolveUsers(ctx context.Context, tokens []string) ([]*common.User, error) {
	if len(tokens) == 0 {
		return []*common.User{}, nil
	}

	var ids []primitive.ObjectID
	for _, token := range tokens {
		if oid, err := primitive.ObjectIDFromHex(token); err == nil {
			ids = append(ids, oid)
		}
	}

	or := bson.A{bson.M{"handle": bson.M{"$in": tokens}}}
	if len(ids) > 0 {
		or = append(or, bson.M{"_id": bson.M{"$in": ids}})
	}

	cursor, err := s.users.Find(ctx, bson.M{"$or": or})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve users: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	byHandle := make(map[string]*common.User, len(docs))
	byID := make(map[string]*common.User, len(docs))
	for i := range docs {
		u := docs[i].toUser()
		byID[u.ID] = u
		if u.Handle != "" {
			byHandle[u.Handle] = u
		}
	}

	seen := make(map[string]bool)
	out := make([]*common.User, 0, len(docs))
	for _, token := range tokens {
		u, ok := byHandle[token]
		if !ok {
			u, ok = byID[token]
		}
		if !ok || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
