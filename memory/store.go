// Package memory persists conversation messages so follow-up questions can
// carry the previous turns.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/higress-group/newsrag/config"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultTTL is how long a message is retained.
const DefaultTTL = 180 * 24 * time.Hour

// ConversationMessage is one stored turn. ExpiresAt is Timestamp plus the
// store TTL and doubles as the Firestore TTL field.
type ConversationMessage struct {
	ConversationID     string    `json:"conversation_id" firestore:"conversation_id"`
	Timestamp          time.Time `json:"timestamp" firestore:"timestamp"`
	Role               Role      `json:"role" firestore:"role"`
	Content            string    `json:"content" firestore:"content"`
	TokenCountEstimate int       `json:"token_count_estimate" firestore:"token_count_estimate"`
	ExpiresAt          time.Time `json:"expires_at" firestore:"expires_at"`
}

// Expired reports whether the message is past its retention at now.
func (m ConversationMessage) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// Store is the conversation message store contract. History returns the
// most recent limit messages in chronological order; limit <= 0 returns all.
type Store interface {
	Append(ctx context.Context, msgs ...ConversationMessage) error
	History(ctx context.Context, conversationID string, limit int) ([]ConversationMessage, error)
	Clear(ctx context.Context, conversationID string) error
	Close() error
}

var ErrNoConversationID = errors.New("conversation id is required")

// Factory builds messages with token estimates and expiry.
type Factory struct {
	counter Counter
	ttl     time.Duration
}

func NewFactory(counter Counter, ttl time.Duration) *Factory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Factory{counter: counter, ttl: ttl}
}

func (f *Factory) New(conversationID string, role Role, content string, now time.Time) ConversationMessage {
	return ConversationMessage{
		ConversationID:     conversationID,
		Timestamp:          now,
		Role:               role,
		Content:            content,
		TokenCountEstimate: f.counter.Count(content),
		ExpiresAt:          now.Add(f.ttl),
	}
}

// TTL returns the configured retention, defaulting to 180 days.
func TTL(cfg config.MemoryConfig) time.Duration {
	if cfg.TTLDays <= 0 {
		return DefaultTTL
	}
	return time.Duration(cfg.TTLDays) * 24 * time.Hour
}

// New builds the store selected by cfg.Memory.Provider. rdb is required for
// the redis provider.
func New(ctx context.Context, cfg *config.Config, rdb *redis.Client) (Store, error) {
	mc := cfg.Memory
	switch strings.ToLower(mc.Provider) {
	case "", "memory":
		return NewInMemory(mc.MaxMessages), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("memory provider redis requires redis.address")
		}
		return NewRedis(rdb, mc.KeyPrefix, TTL(mc), mc.MaxMessages), nil
	case "firestore":
		return NewFirestore(ctx, mc.Firestore, mc.MaxMessages)
	default:
		return nil, fmt.Errorf("unknown memory provider %q", mc.Provider)
	}
}

func validate(msgs []ConversationMessage) error {
	for _, m := range msgs {
		if m.ConversationID == "" {
			return ErrNoConversationID
		}
	}
	return nil
}

func tail(msgs []ConversationMessage, limit int) []ConversationMessage {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]ConversationMessage, len(msgs))
	copy(out, msgs)
	return out
}
