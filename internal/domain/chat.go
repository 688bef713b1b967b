package domain

import (
	"context"
	"time"
)

// ChatMessage seq numbers live in their own namespace, independent of the
// draw-event sequence.
type ChatMessage struct {
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatLog interface {
	Append(ctx context.Context, roomID, author, text string) (ChatMessage, error)
	History(ctx context.Context, roomID string) ([]ChatMessage, error)
	Drop(ctx context.Context, roomID string) error
}
