package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inklet/inklet/internal/domain"
)

// Oldest messages are evicted once a room's log exceeds capacity; the seq
// counter keeps climbing regardless, it is a separate namespace from the
// draw-event sequence.
type chatLog struct {
	messages map[string][]domain.ChatMessage // roomID -> messages
	nextSeq  map[string]int64
	capacity uint
	mu       sync.RWMutex
}

func NewChatLog(capacity uint) domain.ChatLog {
	if capacity == 0 {
		capacity = 100 // sane default
	}
	return &chatLog{
		messages: make(map[string][]domain.ChatMessage),
		nextSeq:  make(map[string]int64),
		capacity: capacity,
	}
}

func (c *chatLog) Append(ctx context.Context, roomID, author, text string) (domain.ChatMessage, error) {
	if roomID == "" || strings.TrimSpace(text) == "" {
		return domain.ChatMessage{}, domain.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSeq[roomID]++
	msg := domain.ChatMessage{
		Seq:       c.nextSeq[roomID],
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Author:    author,
		Text:      text,
		Timestamp: time.Now(),
	}

	msgs := append(c.messages[roomID], msg)
	if len(msgs) > int(c.capacity) {
		msgs = msgs[len(msgs)-int(c.capacity):] // drop oldest
	}
	c.messages[roomID] = msgs

	return msg, nil
}

func (c *chatLog) History(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	if roomID == "" {
		return nil, domain.ErrInvalidInput
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs, exists := c.messages[roomID]
	if !exists || len(msgs) == 0 {
		return []domain.ChatMessage{}, nil
	}

	// Return a copy to prevent external mutation
	cpy := make([]domain.ChatMessage, len(msgs))
	copy(cpy, msgs)

	return cpy, nil
}

func (c *chatLog) Drop(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.messages, roomID)
	delete(c.nextSeq, roomID)
	return nil
}
