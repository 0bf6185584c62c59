package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"candidnotes/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Tracker records which users currently hold at least one connection.
type Tracker interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
	// Touch renews a user's presence while their connection stays alive.
	Touch(ctx context.Context, userID string) error
	OnlineUsers(ctx context.Context) ([]string, error)
	Close() error
}

// OnlineLister is satisfied by the realtime registry.
type OnlineLister interface {
	OnlineUsers() []string
}

// LocalTracker answers from this process's live connections.
type LocalTracker struct {
	lister OnlineLister
}

func NewLocalTracker(lister OnlineLister) *LocalTracker {
	return &LocalTracker{lister: lister}
}

func (l *LocalTracker) Online(ctx context.Context, userID string) error  { return nil }
func (l *LocalTracker) Offline(ctx context.Context, userID string) error { return nil }
func (l *LocalTracker) Touch(ctx context.Context, userID string) error   { return nil }
func (l *LocalTracker) Close() error                                     { return nil }

func (l *LocalTracker) OnlineUsers(ctx context.Context) ([]string, error) {
	users := l.lister.OnlineUsers()
	sort.Strings(users)
	return users, nil
}

const onlineSetKey = "presence:online"

func heartbeatKey(userID string) string { return "presence:user:" + userID }

// RedisTracker keeps a set of online users plus one expiring heartbeat key
// per user. Members whose heartbeat expired (e.g. after a crash) are
// pruned on read.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Entry
}

func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return client, nil
}

func NewRedisTracker(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisTracker {
	return &RedisTracker{
		client: client,
		ttl:    ttl,
		log:    logger.WithField("component", "redis_presence"),
	}
}

func (r *RedisTracker) Online(ctx context.Context, userID string) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, onlineSetKey, userID)
	pipe.Set(ctx, heartbeatKey(userID), "1", r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark %s online: %w", userID, err)
	}
	return nil
}

func (r *RedisTracker) Offline(ctx context.Context, userID string) error {
	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, onlineSetKey, userID)
	pipe.Del(ctx, heartbeatKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark %s offline: %w", userID, err)
	}
	return nil
}

func (r *RedisTracker) Touch(ctx context.Context, userID string) error {
	if err := r.client.Expire(ctx, heartbeatKey(userID), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to renew presence for %s: %w", userID, err)
	}
	return nil
}

func (r *RedisTracker) OnlineUsers(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}
	if len(members) == 0 {
		return []string{}, nil
	}

	pipe := r.client.Pipeline()
	checks := make([]*redis.IntCmd, len(members))
	for i, userID := range members {
		checks[i] = pipe.Exists(ctx, heartbeatKey(userID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check presence heartbeats: %w", err)
	}

	online := make([]string, 0, len(members))
	var stale []interface{}
	for i, userID := range members {
		if checks[i].Val() > 0 {
			online = append(online, userID)
		} else {
			stale = append(stale, userID)
		}
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, onlineSetKey, stale...).Err(); err != nil {
			r.log.WithError(err).Warn("failed to prune stale presence entries")
		}
	}

	sort.Strings(online)
	return online, nil
}

func (r *RedisTracker) Close() error {
	return r.client.Close()
}
