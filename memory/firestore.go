package memory

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/higress-group/newsrag/config"
)

const messagesCollection = "messages"

// Firestore stores messages under <collection>/<conversation id>/messages.
// A Firestore TTL policy on expires_at removes them server-side.
type Firestore struct {
	client      *firestore.Client
	collection  string
	maxMessages int
}

func NewFirestore(ctx context.Context, cfg config.FirestoreConfig, maxMessages int) (*Firestore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("memory.firestore.project_id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client failed, err: %w", err)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "conversations"
	}
	if maxMessages <= 0 {
		maxMessages = 50
	}
	return &Firestore{client: client, collection: collection, maxMessages: maxMessages}, nil
}

func (s *Firestore) messages(id string) *firestore.CollectionRef {
	return s.client.Collection(s.collection).Doc(id).Collection(messagesCollection)
}

func (s *Firestore) Append(ctx context.Context, msgs ...ConversationMessage) error {
	if err := validate(msgs); err != nil {
		return err
	}
	for _, m := range msgs {
		if _, _, err := s.messages(m.ConversationID).Add(ctx, m); err != nil {
			return fmt.Errorf("firestore add message failed, err: %w", err)
		}
	}
	return nil
}

func (s *Firestore) History(ctx context.Context, conversationID string, limit int) ([]ConversationMessage, error) {
	if limit <= 0 || limit > s.maxMessages {
		limit = s.maxMessages
	}
	iter := s.messages(conversationID).
		OrderBy("timestamp", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var newestFirst []ConversationMessage
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore query messages failed, err: %w", err)
		}
		var m ConversationMessage
		if err := doc.DataTo(&m); err != nil {
			return nil, fmt.Errorf("decode message %s failed, err: %w", doc.Ref.ID, err)
		}
		newestFirst = append(newestFirst, m)
	}
	return reverse(newestFirst), nil
}

func (s *Firestore) Clear(ctx context.Context, conversationID string) error {
	iter := s.messages(conversationID).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("firestore list messages failed, err: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("firestore delete message %s failed, err: %w", doc.Ref.ID, err)
		}
	}
	return nil
}

func (s *Firestore) Close() error {
	return s.client.Close()
}

func reverse(msgs []ConversationMessage) []ConversationMessage {
	out := make([]ConversationMessage, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}
