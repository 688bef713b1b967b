package ws

import (
	"encoding/json"
	"time"

	"github.com/inklet/inklet/internal/domain"
)

// Envelope is the inbound frame: an operation type plus its raw payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WSMessage is the outbound frame.
type WSMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Data   any    `json:"data,omitempty"`
}

// Inbound payloads.

type joinRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type drawRequest struct {
	Kind    domain.EventKind `json:"kind"`
	Payload json.RawMessage  `json:"payload"`
}

type chatRequest struct {
	Text string `json:"text"`
}

type canvasUpload struct {
	CanvasData string `json:"canvasData"`
	Seq        int64  `json:"seq"`
}

// Outbound payloads.

type MemberPayload struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
	JoinedAt     string `json:"joinedAt"`
}

type RoomJoinedPayload struct {
	RoomID   string               `json:"roomId"`
	Users    []MemberPayload      `json:"users"`
	Messages []domain.ChatMessage `json:"messages"`
	Snapshot domain.Snapshot      `json:"snapshot"`
}

type RoomUsersPayload struct {
	Users []MemberPayload `json:"users"`
}

type TypingPayload struct {
	Username string `json:"username"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

func memberPayloads(members []domain.Member) []MemberPayload {
	out := make([]MemberPayload, len(members))
	for i, m := range members {
		out[i] = MemberPayload{
			ConnectionID: m.ConnectionID,
			Username:     m.Username,
			JoinedAt:     m.JoinedAt.Format(time.RFC3339),
		}
	}
	return out
}

func NewRoomJoined(roomID string, users []domain.Member, messages []domain.ChatMessage, snapshot domain.Snapshot) *WSMessage {
	return &WSMessage{
		Type:   RoomJoinedEvent,
		RoomID: roomID,
		Data: RoomJoinedPayload{
			RoomID:   roomID,
			Users:    memberPayloads(users),
			Messages: messages,
			Snapshot: snapshot,
		},
	}
}

func NewJoinError(roomID, message string) *WSMessage {
	return &WSMessage{
		Type:   JoinErrorEvent,
		RoomID: roomID,
		Data: ErrorPayload{
			Message: message,
			Retry:   true,
		},
	}
}

func NewRoomUsers(eventType, roomID string, users []domain.Member) *WSMessage {
	return &WSMessage{
		Type:   eventType,
		RoomID: roomID,
		Data:   RoomUsersPayload{Users: memberPayloads(users)},
	}
}

func NewDrawEvent(eventType, roomID string, event domain.DrawEvent) *WSMessage {
	return &WSMessage{
		Type:   eventType,
		RoomID: roomID,
		Data:   event,
	}
}

func NewClearCanvas(roomID string) *WSMessage {
	return &WSMessage{
		Type:   ClearCanvasEvent,
		RoomID: roomID,
	}
}

func NewCanvasData(roomID string, snapshot domain.Snapshot) *WSMessage {
	return &WSMessage{
		Type:   CanvasDataEvent,
		RoomID: roomID,
		Data:   snapshot,
	}
}

func NewMessageReceived(roomID string, msg domain.ChatMessage) *WSMessage {
	return &WSMessage{
		Type:   MessageReceived,
		RoomID: roomID,
		Data:   msg,
	}
}

func NewTyping(eventType, roomID, username string) *WSMessage {
	return &WSMessage{
		Type:   eventType,
		RoomID: roomID,
		Data:   TypingPayload{Username: username},
	}
}

func NewError(roomID, message string) *WSMessage {
	return &WSMessage{
		Type:   ErrorEvent,
		RoomID: roomID,
		Data: ErrorPayload{
			Message: message,
		},
	}
}
