package trivia

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Inbound message types.
const (
	TypeCreateRoom = "create_room"
	TypeJoinRoom   = "join_room"
	TypeLeaveRoom  = "leave_room"
	TypeSetName    = "setName"
	TypeStartGame  = "start_game"
	TypeAnswer     = "answer"
)

// Outbound message types.
const (
	TypeRanking      = "ranking"
	TypeQuestion     = "question"
	TypeTimer        = "timer"
	TypeRoundEnd     = "round_end"
	TypeEnd          = "end"
	TypeRoomCreated  = "room_created"
	TypeRoomJoined   = "room_joined"
	TypeRoomNotFound = "room_not_found"
	TypeRoomLeft     = "room_left"
	TypeYouAreHost   = "you_are_host"
	TypeError        = "error"
)

// InboundMessage is one of the client message structs below.
type InboundMessage interface {
	messageType() string
}

type CreateRoomMessage struct {
	Theme     string `json:"theme" validate:"max=64"`
	ScoreGoal int    `json:"scoreGoal" validate:"lte=1000000"` // <= 0 uses the default target
}

type JoinRoomMessage struct {
	Code string `json:"code" validate:"required,max=64"`
}

type LeaveRoomMessage struct{}

type SetNameMessage struct {
	Name string `json:"name" validate:"max=256"`
}

type StartGameMessage struct{}

type AnswerMessage struct {
	Answer string `json:"answer" validate:"required,max=256"`
}

func (CreateRoomMessage) messageType() string { return TypeCreateRoom }
func (JoinRoomMessage) messageType() string   { return TypeJoinRoom }
func (LeaveRoomMessage) messageType() string  { return TypeLeaveRoom }
func (SetNameMessage) messageType() string    { return TypeSetName }
func (StartGameMessage) messageType() string  { return TypeStartGame }
func (AnswerMessage) messageType() string     { return TypeAnswer }

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeInbound parses a client payload into its typed message. Unknown types
// yield ErrUnknownMessage; anything unparseable or invalid yields
// ErrMalformedMessage.
func DecodeInbound(payload []byte) (InboundMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var msg InboundMessage
	switch envelope.Type {
	case TypeCreateRoom:
		msg = &CreateRoomMessage{}
	case TypeJoinRoom:
		msg = &JoinRoomMessage{}
	case TypeLeaveRoom:
		msg = &LeaveRoomMessage{}
	case TypeSetName:
		msg = &SetNameMessage{}
	case TypeStartGame:
		msg = &StartGameMessage{}
	case TypeAnswer:
		msg = &AnswerMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, envelope.Type)
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, envelope.Type, err)
	}

	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, envelope.Type, err)
	}

	return msg, nil
}

// Messages sent to clients

type RankingMessage struct {
	Type    string         `json:"type"` // "ranking"
	Ranking []RankingEntry `json:"ranking"`
}

type QuestionMessage struct {
	Type     string  `json:"type"` // "question"
	Question string  `json:"question"`
	Image    *string `json:"image"` // null when the question has no image
	Time     int     `json:"time"`
}

type TimerMessage struct {
	Type string `json:"type"` // "timer"
	Time int    `json:"time"`
}

// RoomMessage carries a room code ("room_created", "room_joined").
type RoomMessage struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// SimpleMessage is for notifications without payload ("round_end", "end",
// "room_not_found", "room_left", "you_are_host").
type SimpleMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

func newQuestionMessage(q Question, seconds int) QuestionMessage {
	msg := QuestionMessage{
		Type:     TypeQuestion,
		Question: q.Prompt,
		Time:     seconds,
	}
	if q.Image != "" {
		image := q.Image
		msg.Image = &image
	}

	return msg
}
