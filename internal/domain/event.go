package domain

import (
	"encoding/json"
	"time"
)

type EventKind string

const (
	EventStroke EventKind = "stroke"
	EventShape  EventKind = "shape"
	EventText   EventKind = "text"
	EventClear  EventKind = "clear"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventStroke, EventShape, EventText, EventClear:
		return true
	}
	return false
}

// DrawEvent is one committed drawing operation. Seq is the authoritative
// order within a room: gap-free, starting at 1. Payload carries the tool
// parameters (color, width, path, geometry, text) verbatim; the core never
// inspects it.
type DrawEvent struct {
	Seq         int64           `json:"seq"`
	AuthorID    string          `json:"authorId"`
	Kind        EventKind       `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Active      bool            `json:"active"`
	CommittedAt time.Time       `json:"committedAt"`
}
