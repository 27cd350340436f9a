package trivia

import "errors"

var (
	ErrRoomNotFound          = errors.New("room not found")
	ErrNotHost               = errors.New("connection is not the room host")
	ErrRoomCreationExhausted = errors.New("no free room code after retries")
	ErrNotInRound            = errors.New("room has no round in progress")
	ErrUnknownConnection     = errors.New("unknown connection")
	ErrEmptyBank             = errors.New("question bank is empty")
	ErrMalformedMessage      = errors.New("malformed message")
	ErrUnknownMessage        = errors.New("unknown message type")
)
