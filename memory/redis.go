package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// listKV is the part of *redis.Client used by the redis store.
type listKV interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis stores each conversation as a JSON list under prefix+id. The key TTL
// is refreshed on every append.
type Redis struct {
	rdb         listKV
	prefix      string
	ttl         time.Duration
	maxMessages int
	now         func() time.Time
}

func NewRedis(rdb listKV, prefix string, ttl time.Duration, maxMessages int) *Redis {
	if prefix == "" {
		prefix = "newsrag:conversation:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxMessages <= 0 {
		maxMessages = 50
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl, maxMessages: maxMessages, now: time.Now}
}

func (s *Redis) key(id string) string { return s.prefix + id }

func (s *Redis) Append(ctx context.Context, msgs ...ConversationMessage) error {
	if err := validate(msgs); err != nil {
		return err
	}
	grouped := map[string][]interface{}{}
	var order []string
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message failed, err: %w", err)
		}
		if _, ok := grouped[m.ConversationID]; !ok {
			order = append(order, m.ConversationID)
		}
		grouped[m.ConversationID] = append(grouped[m.ConversationID], string(b))
	}
	for _, id := range order {
		key := s.key(id)
		if err := s.rdb.RPush(ctx, key, grouped[id]...).Err(); err != nil {
			return fmt.Errorf("redis rpush %s failed, err: %w", key, err)
		}
		if err := s.rdb.LTrim(ctx, key, int64(-s.maxMessages), -1).Err(); err != nil {
			return fmt.Errorf("redis ltrim %s failed, err: %w", key, err)
		}
		if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("redis expire %s failed, err: %w", key, err)
		}
	}
	return nil
}

func (s *Redis) History(ctx context.Context, conversationID string, limit int) ([]ConversationMessage, error) {
	key := s.key(conversationID)
	vals, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []ConversationMessage{}, nil
		}
		return nil, fmt.Errorf("redis lrange %s failed, err: %w", key, err)
	}
	now := s.now()
	out := make([]ConversationMessage, 0, len(vals))
	for _, v := range vals {
		var m ConversationMessage
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message failed, err: %w", err)
		}
		if !m.Expired(now) {
			out = append(out, m)
		}
	}
	return tail(out, limit), nil
}

func (s *Redis) Clear(ctx context.Context, conversationID string) error {
	return s.rdb.Del(ctx, s.key(conversationID)).Err()
}

// Close is a no-op; the redis client is owned by the caller.
func (s *Redis) Close() error { return nil }
