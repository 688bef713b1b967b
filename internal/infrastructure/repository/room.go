package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inklet/inklet/internal/domain"
)

// Room ids are short and URL-friendly; allocation is collision-checked
// against live rooms.
const roomIDLength = 8

const maxIDAllocationAttempts = 16

type roomStore struct {
	rooms    map[string]*domain.Room
	expiry   map[string]*time.Timer // roomID -> pending empty-room expiry
	capacity uint
	grace    time.Duration
	onExpire func(roomID string)
	mu       sync.Mutex
}

// NewRoomStore builds the in-memory room store. An empty room is kept alive
// for the grace period to tolerate brief reconnects; when it expires,
// onExpire runs so the other per-room state (event log, snapshots, chat) can
// be released.
func NewRoomStore(capacity uint, grace time.Duration, onExpire func(roomID string)) domain.RoomStore {
	if capacity == 0 {
		capacity = 100
	}
	if grace == 0 {
		grace = time.Minute
	}
	if onExpire == nil {
		onExpire = func(string) {}
	}

	return &roomStore{
		rooms:    make(map[string]*domain.Room),
		expiry:   make(map[string]*time.Timer),
		capacity: capacity,
		grace:    grace,
		onExpire: onExpire,
	}
}

func newRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:roomIDLength]
}

// Create allocates a fresh room with a collision-checked id.
func (s *roomStore) Create(ctx context.Context, isPrivate bool, password string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uint(len(s.rooms)) >= s.capacity {
		return nil, domain.ErrRoomSpaceExhausted
	}

	var id string
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAllocationAttempts {
			return nil, domain.ErrRoomSpaceExhausted
		}
		id = newRoomID()
		if _, exists := s.rooms[id]; !exists {
			break
		}
	}

	room, err := domain.NewRoom(id, isPrivate, password)
	if err != nil {
		return nil, err
	}

	s.rooms[id] = room
	s.scheduleExpiry(id)

	return room, nil
}

// Admit validates credentials and registers the connection as a member.
// Joining an unknown room id creates it implicitly as a public room, which
// is what makes the quick-join flow work; explicit creation and quick-join
// converge here.
func (s *roomStore) Admit(ctx context.Context, roomID, connectionID, username, password string) (*domain.Room, *domain.Member, error) {
	if roomID == "" {
		return nil, nil, domain.ErrInvalidInput
	}

	member, err := domain.NewMember(connectionID, username)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		if uint(len(s.rooms)) >= s.capacity {
			return nil, nil, domain.ErrRoomSpaceExhausted
		}
		room, err = domain.NewRoom(roomID, false, "")
		if err != nil {
			return nil, nil, err
		}
		s.rooms[roomID] = room
	}

	if err := room.Authenticate(password); err != nil {
		// Failed auth leaves the room untouched; the caller may retry on
		// the same connection.
		return nil, nil, err
	}

	room.AddMember(member)
	s.cancelExpiry(roomID)

	return room, room.FindMemberByConn(connectionID), nil
}

// Remove is idempotent: unknown rooms and non-members are no-ops. The last
// member leaving arms the expiry timer rather than deleting immediately.
func (s *roomStore) Remove(ctx context.Context, roomID, connectionID string) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return nil, nil
	}

	member := room.RemoveMember(connectionID)
	if member == nil {
		return nil, nil
	}

	if room.MemberCount() == 0 {
		s.scheduleExpiry(roomID)
	}

	return member, nil
}

func (s *roomStore) GetByID(ctx context.Context, roomID string) (*domain.Room, error) {
	if roomID == "" {
		return nil, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *roomStore) Members(ctx context.Context, roomID string) ([]domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}
	return room.MemberList(), nil
}

// scheduleExpiry arms (or re-arms) the empty-room grace timer. Caller holds
// the lock.
func (s *roomStore) scheduleExpiry(roomID string) {
	if timer, ok := s.expiry[roomID]; ok {
		timer.Stop()
	}
	s.expiry[roomID] = time.AfterFunc(s.grace, func() {
		s.expire(roomID)
	})
}

// cancelExpiry disarms a pending expiry, if any. Caller holds the lock.
func (s *roomStore) cancelExpiry(roomID string) {
	if timer, ok := s.expiry[roomID]; ok {
		timer.Stop()
		delete(s.expiry, roomID)
	}
}

func (s *roomStore) expire(roomID string) {
	s.mu.Lock()
	room, exists := s.rooms[roomID]
	if !exists || room.MemberCount() > 0 {
		// A member came back before the timer fired.
		delete(s.expiry, roomID)
		s.mu.Unlock()
		return
	}
	delete(s.rooms, roomID)
	delete(s.expiry, roomID)
	s.mu.Unlock()

	// The hook reaches into other components; run it outside the lock.
	s.onExpire(roomID)
}
