package domain

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomAlreadyExists  = errors.New("room already exists")
	ErrRoomSpaceExhausted = errors.New("room id space exhausted")
	ErrPasswordRequired   = errors.New("password required")
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrMemberNotFound     = errors.New("member not found")
)
