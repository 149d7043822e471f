package memory

import (
	"context"
	"sync"
	"time"
)

// Message is one chat message scoped to an order.
type Message struct {
	ID        string
	OrderID   string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// MessageStore is the in-memory messaging collaborator. The delivery flow
// only needs PurgeOrderMessages; Append and ListByOrder exist so the chat
// endpoints have something to talk to.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[string][]Message),
	}
}

func (s *MessageStore) Append(ctx context.Context, m Message) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[m.OrderID] = append(s.messages[m.OrderID], m)
	return nil
}

func (s *MessageStore) ListByOrder(ctx context.Context, orderID string) ([]Message, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Message(nil), s.messages[orderID]...), nil
}

// PurgeOrderMessages irreversibly deletes the order's chat history.
func (s *MessageStore) PurgeOrderMessages(ctx context.Context, orderID string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, orderID)
	return nil
}
