package rooms

import "time"

type createRoomRequest struct {
	// Name is accepted for client compatibility but rooms are addressed by
	// id only.
	Name      string `json:"name"`
	IsPrivate bool   `json:"isPrivate"`
	Password  string `json:"password"`
}

type createRoomResponse struct {
	RoomID    string    `json:"roomId"`
	IsPrivate bool      `json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`
}

type roomResponse struct {
	RoomID      string    `json:"roomId"`
	IsPrivate   bool      `json:"isPrivate"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}
