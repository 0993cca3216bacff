package memory

import (
	"context"
	"sync"
	"time"
)

// InMemory keeps messages in process. Suitable for development and a
// single instance.
type InMemory struct {
	mu          sync.RWMutex
	messages    map[string][]ConversationMessage
	maxMessages int
	now         func() time.Time
}

func NewInMemory(maxMessages int) *InMemory {
	if maxMessages <= 0 {
		maxMessages = 50
	}
	return &InMemory{
		messages:    make(map[string][]ConversationMessage),
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

func (s *InMemory) Append(_ context.Context, msgs ...ConversationMessage) error {
	if err := validate(msgs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		list := append(s.messages[m.ConversationID], m)
		if len(list) > s.maxMessages {
			list = list[len(list)-s.maxMessages:]
		}
		s.messages[m.ConversationID] = list
	}
	return nil
}

func (s *InMemory) History(_ context.Context, conversationID string, limit int) ([]ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	live := make([]ConversationMessage, 0, len(s.messages[conversationID]))
	for _, m := range s.messages[conversationID] {
		if !m.Expired(now) {
			live = append(live, m)
		}
	}
	return tail(live, limit), nil
}

func (s *InMemory) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, conversationID)
	return nil
}

func (s *InMemory) Close() error { return nil }
