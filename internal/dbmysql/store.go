package dbmysql

import (
	"context"
	"errors"
	"fmt"

	"candidnotes/internal/common"

	"gorm.io/gorm"
)

var _ common.Store = (*Store)(nil)

type Store struct {
	db    *gorm.DB
	clock *stampClock
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, clock: &stampClock{now: now}}
}

func (s *Store) CreateMessage(ctx context.Context, msg *common.Message) error {
	id, err := newID()
	if err != nil {
		return fmt.Errorf("failed to generate message id: %w", err)
	}
	row := &Message{
		ID:          id,
		CandidateID: msg.CandidateID,
		AuthorID:    msg.AuthorID,
		Content:     msg.Content,
		TaggedUsers: msg.TaggedUserIDs,
		CreatedAt:   s.clock.stamp(),
	}
	if row.TaggedUsers == nil {
		row.TaggedUsers = []string{}
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	msg.ID = row.ID
	msg.CreatedAt = row.CreatedAt
	return nil
}

func (s *Store) MessagesByCandidate(ctx context.Context, candidateID string, limit int, cursor common.HistoryCursor) ([]*common.Message, error) {
	var rows []*Message

	query := s.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Order("created_at DESC").
		Order("id DESC")

	switch {
	case cursor.Before.IsZero():
	case cursor.BeforeID == "":
		query = query.Where("created_at < ?", cursor.Before)
	default:
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.Before, cursor.Before, cursor.BeforeID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get candidate messages: %w", err)
	}

	out := make([]*common.Message, len(rows))
	for i, row := range rows {
		out[i] = row.toMessage()
	}
	return out, nil
}

func (s *Store) CreateNotification(ctx context.Context, n *common.Notification) error {
	id, err := newID()
	if err != nil {
		return fmt.Errorf("failed to generate notification id: %w", err)
	}
	created := s.clock.stamp()
	row := &Notification{
		ID:          id,
		UserID:      n.UserID,
		MessageID:   n.MessageID,
		CandidateID: n.CandidateID,
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	err = s.db.WithContext(ctx).Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return common.ConflictError("notification already exists for user %s and message %s", n.UserID, n.MessageID)
	}
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	n.ID = row.ID
	n.IsRead = false
	n.CreatedAt = row.CreatedAt
	n.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) NotificationsByUser(ctx context.Context, userID string, limit, offset int, unreadOnly bool) ([]*common.Notification, error) {
	var rows []*Notification

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC")

	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get user notifications: %w", err)
	}

	out := make([]*common.Notification, len(rows))
	for i, row := range rows {
		out[i] = row.toNotification()
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", id, userID, false).
		Updates(map[string]interface{}{
			"is_read":    true,
			"updated_at": now(),
		})

	if result.Error != nil {
		return false, fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up notification: %w", err)
	}
	if count == 0 {
		return false, common.NotFoundError("notification not found: %s", id)
	}
	return false, nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read":    true,
			"updated_at": now(),
		})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) DeleteNotification(ctx context.Context, id, userID string) error {
	result := s.db.WithContext(ctx).Delete(&Notification{}, "id = ? AND user_id = ?", id, userID)

	if result.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NotFoundError("notification not found: %s", id)
	}
	return nil
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64

	err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}
	return count, nil
}

func (s *Store) CandidateByID(ctx context.Context, id string) (*common.Candidate, error) {
	var row Candidate
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundError("candidate not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return row.toCandidate(), nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*common.User, error) {
	var row User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundError("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toUser(), nil
}

func (s *Store) ResolveUsers(ctx context.Context, tokens []string) ([]*common.User, error) {
	if len(tokens) == 0 {
		return []*common.User{}, nil
	}

	var rows []*User
	err := s.db.WithContext(ctx).
		Where("handle IN ? OR id IN ?", tokens, tokens).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve users: %w", err)
	}

	byHandle := make(map[string]*common.User, len(rows))
	byID := make(map[string]*common.User, len(rows))
	for _, row := range rows {
		u := row.toUser()
		byID[u.ID] = u
		if u.Handle != "" {
			byHandle[u.Handle] = u
		}
	}

	seen := make(map[string]bool)
	out := make([]*common.User, 0, len(rows))
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
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
