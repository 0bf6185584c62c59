package dbmongo

import (
	"sync"
	"time"

	"candidnotes/internal/common"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type messageDoc struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	CandidateID primitive.ObjectID   `bson:"candidateId"`
	UserID      primitive.ObjectID   `bson:"userId"`
	Content     string               `bson:"content"`
	TaggedUsers []primitive.ObjectID `bson:"taggedUsers"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func (d *messageDoc) toMessage() *common.Message {
	tagged := make([]string, len(d.TaggedUsers))
	for i, id := range d.TaggedUsers {
		tagged[i] = id.Hex()
	}
	return &common.Message{
		ID:            d.ID.Hex(),
		CandidateID:   d.CandidateID.Hex(),
		AuthorID:      d.UserID.Hex(),
		Content:       d.Content,
		TaggedUserIDs: tagged,
		CreatedAt:     d.CreatedAt,
	}
}

type notificationDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      primitive.ObjectID `bson:"userId"`
	MessageID   primitive.ObjectID `bson:"messageId"`
	CandidateID primitive.ObjectID `bson:"candidateId"`
	IsRead      bool               `bson:"isRead"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d *notificationDoc) toNotification() *common.Notification {
	return &common.Notification{
		ID:          d.ID.Hex(),
		UserID:      d.UserID.Hex(),
		MessageID:   d.MessageID.Hex(),
		CandidateID: d.CandidateID.Hex(),
		IsRead:      d.IsRead,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type userDoc struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	Name   string             `bson:"name"`
	Email  string             `bson:"email"`
	Handle string             `bson:"handle,omitempty"`
}

func (d *userDoc) toUser() *common.User {
	return &common.User{ID: d.ID.Hex(), Name: d.Name, Email: d.Email, Handle: d.Handle}
}

type candidateDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	CreatedBy primitive.ObjectID `bson:"createdBy,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d *candidateDoc) toCandidate() *common.Candidate {
	c := &common.Candidate{ID: d.ID.Hex(), Name: d.Name, Email: d.Email, CreatedAt: d.CreatedAt}
	if !d.CreatedBy.IsZero() {
		c.CreatedBy = d.CreatedBy.Hex()
	}
	return c
}

// objectID parses a hex id; a malformed id cannot exist, so it is
// reported as not found.
func objectID(id, what string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, common.NotFoundError("%s not found", what)
	}
	return oid, nil
}

func objectIDs(ids []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, common.ValidationError("invalid user id: %s", id)
		}
		out = append(out, oid)
	}
	return out, nil
}

// ownedFilter matches one notification belonging to one user.
func ownedFilter(id, userID string) (bson.M, error) {
	oid, err := objectID(id, "notification")
	if err != nil {
		return nil, err
	}
	uid, err := objectID(userID, "user")
	if err != nil {
		return nil, err
	}
	return bson.M{"_id": oid, "userId": uid}, nil
}

// cursorFilter pages by (createdAt, _id). A BeforeID that is not an
// ObjectID cannot match any row, so only the timestamp applies.
func cursorFilter(cursor common.HistoryCursor) bson.M {
	if cursor.Before.IsZero() {
		return bson.M{}
	}
	bid, err := primitive.ObjectIDFromHex(cursor.BeforeID)
	if err != nil {
		return bson.M{"createdAt": bson.M{"$lt": cursor.Before}}
	}
	return bson.M{"$or": bson.A{
		bson.M{"createdAt": bson.M{"$lt": cursor.Before}},
		bson.M{"createdAt": cursor.Before, "_id": bson.M{"$lt": bid}},
	}}
}

// now is millisecond-truncated to match what BSON dates round-trip.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
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
