package domain

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Room struct {
	ID        string    `json:"roomId"`
	IsPrivate bool      `json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`

	// bcrypt hash, set iff IsPrivate. Never serialized.
	passwordHash []byte

	// Join order is preserved; the slice is owned by the room store and
	// only mutated under its lock.
	members []*Member
}

type Member struct {
	ConnectionID string    `json:"connectionId"`
	Username     string    `json:"username"`
	JoinedAt     time.Time `json:"joinedAt"`
	IsTyping     bool      `json:"-"` // ephemeral, never persisted
}

func NewRoom(id string, isPrivate bool, password string) (*Room, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	if isPrivate && password == "" {
		return nil, ErrPasswordRequired
	}

	room := &Room{
		ID:        id,
		IsPrivate: isPrivate,
		CreatedAt: time.Now(),
	}

	if isPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		room.passwordHash = hash
	}

	return room, nil
}

// Authenticate verifies the supplied password against the room's hash.
// Public rooms accept anything, including the empty string.
func (r *Room) Authenticate(password string) error {
	if !r.IsPrivate {
		return nil
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if err := bcrypt.CompareHashAndPassword(r.passwordHash, []byte(password)); err != nil {
		return ErrIncorrectPassword
	}
	return nil
}

func NewMember(connectionID, username string) (*Member, error) {
	if connectionID == "" || strings.TrimSpace(username) == "" {
		return nil, ErrInvalidInput
	}
	return &Member{
		ConnectionID: connectionID,
		Username:     strings.TrimSpace(username),
		JoinedAt:     time.Now(),
	}, nil
}

func (r *Room) FindMemberByConn(connectionID string) *Member {
	for _, m := range r.members {
		if m.ConnectionID == connectionID {
			return m
		}
	}
	return nil
}

// AddMember appends in join order. Re-adding an existing connection updates
// the username instead of duplicating the member, which keeps retried joins
// idempotent.
func (r *Room) AddMember(member *Member) {
	if existing := r.FindMemberByConn(member.ConnectionID); existing != nil {
		existing.Username = member.Username
		return
	}
	r.members = append(r.members, member)
}

// RemoveMember is idempotent; removing an unknown connection is a no-op.
func (r *Room) RemoveMember(connectionID string) *Member {
	for i, m := range r.members {
		if m.ConnectionID == connectionID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return m
		}
	}
	return nil
}

func (r *Room) MemberCount() int {
	return len(r.members)
}

// MemberList returns a copy in join order.
func (r *Room) MemberList() []Member {
	out := make([]Member, len(r.members))
	for i, m := range r.members {
		out[i] = *m
	}
	return out
}

type RoomStore interface {
	Create(ctx context.Context, isPrivate bool, password string) (*Room, error)
	Admit(ctx context.Context, roomID, connectionID, username, password string) (*Room, *Member, error)
	Remove(ctx context.Context, roomID, connectionID string) (*Member, error)
	GetByID(ctx context.Context, roomID string) (*Room, error)
	Members(ctx context.Context, roomID string) ([]Member, error)
}
