// Package canvas holds the per-room drawing history: an append-mostly event
// log with a movable undo boundary, plus the snapshot cache that
// fast-forwards late joiners.
package canvas

import (
	"fmt"
	"sync"
	"time"

	"github.com/inklet/inklet/internal/domain"
)

// Log owns every room's event history. Access to a single room is serialized
// by a per-room mutex, so submit/undo/redo/clear on the same room never
// interleave while different rooms proceed in parallel.
type Log struct {
	rooms map[string]*roomLog
	mu    sync.RWMutex
}

// roomLog is a linear history. events[:undoPointer] are active,
// events[undoPointer:] is the redo branch (inactive). Seq values are assigned
// at commit and always form 1..len(events) with no gaps.
type roomLog struct {
	events      []domain.DrawEvent
	undoPointer int
	mu          sync.Mutex
}

func NewLog() *Log {
	return &Log{
		rooms: make(map[string]*roomLog),
	}
}

func (l *Log) room(roomID string) *roomLog {
	l.mu.RLock()
	r, ok := l.rooms[roomID]
	l.mu.RUnlock()
	if ok {
		return r
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok = l.rooms[roomID]; ok {
		return r
	}
	r = &roomLog{}
	l.rooms[roomID] = r
	return r
}

// peek returns the room's log without creating it.
func (l *Log) peek(roomID string) (*roomLog, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.rooms[roomID]
	return r, ok
}

// Submit commits a drawing operation and assigns it the next sequence
// number. A submit after an undo discards the redo branch first: history is
// linear, there is no branching.
func (l *Log) Submit(roomID, authorID string, kind domain.EventKind, payload []byte) (domain.DrawEvent, error) {
	if roomID == "" || authorID == "" || !kind.Valid() {
		return domain.DrawEvent{}, domain.ErrInvalidInput
	}

	r := l.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	// Truncate the redo branch.
	r.events = r.events[:r.undoPointer]

	event := domain.DrawEvent{
		Seq:         int64(len(r.events)) + 1,
		AuthorID:    authorID,
		Kind:        kind,
		Payload:     append([]byte(nil), payload...),
		Active:      true,
		CommittedAt: time.Now(),
	}

	r.events = append(r.events, event)
	r.undoPointer = len(r.events)

	if event.Seq != int64(len(r.events)) {
		// The total-order guarantee is broken; nothing downstream can be
		// trusted, so fail loudly instead of papering over it.
		panic(fmt.Sprintf("canvas: seq discontinuity in room %s: seq=%d len=%d",
			roomID, event.Seq, len(r.events)))
	}

	return event, nil
}

// Undo retracts the most recent active event regardless of author. The undo
// stack is shared by the whole room: one canvas, one history. Returns false
// when there is nothing to undo.
func (l *Log) Undo(roomID string) (domain.DrawEvent, bool) {
	r, ok := l.peek(roomID)
	if !ok {
		return domain.DrawEvent{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.undoPointer == 0 {
		return domain.DrawEvent{}, false
	}

	r.undoPointer--
	r.events[r.undoPointer].Active = false
	return r.events[r.undoPointer], true
}

// Redo reactivates the event just past the undo boundary. Returns false when
// the redo branch is empty (including right after a submit, which truncates
// it).
func (l *Log) Redo(roomID string) (domain.DrawEvent, bool) {
	r, ok := l.peek(roomID)
	if !ok {
		return domain.DrawEvent{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.undoPointer >= len(r.events) {
		return domain.DrawEvent{}, false
	}

	r.events[r.undoPointer].Active = true
	r.undoPointer++
	return r.events[r.undoPointer-1], true
}

// Clear wipes the room's history and resets the undo boundary. It is
// destructive: neither undo nor redo can bring anything back afterwards.
func (l *Log) Clear(roomID string) {
	r, ok := l.peek(roomID)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.undoPointer = 0
}

// ActiveEvents returns the active history in commit order. Undone events are
// never included.
func (l *Log) ActiveEvents(roomID string) []domain.DrawEvent {
	r, ok := l.peek(roomID)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DrawEvent, r.undoPointer)
	copy(out, r.events[:r.undoPointer])
	return out
}

// ActiveHistory returns the active events and the commit frontier as one
// consistent read. Callers that need both must use this instead of pairing
// ActiveEvents with Seq, where a commit could land between the two calls.
func (l *Log) ActiveHistory(roomID string) ([]domain.DrawEvent, int64) {
	r, ok := l.peek(roomID)
	if !ok {
		return nil, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DrawEvent, r.undoPointer)
	copy(out, r.events[:r.undoPointer])
	return out, int64(r.undoPointer)
}

// Seq reports the commit frontier: the seq of the most recent active event,
// or 0 for an empty (or fully undone) history.
func (l *Log) Seq(roomID string) int64 {
	r, ok := l.peek(roomID)
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(r.undoPointer)
}

// Drop releases a room's history. Called when the room expires.
func (l *Log) Drop(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rooms, roomID)
}
