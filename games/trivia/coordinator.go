// Package trivia runs timed multiplayer quiz rounds.
//
// The Coordinator receives connection events from a transport, serializes
// every mutation of a room under that room's lock and shares the lock with
// the room's round ticker, so answers, joins, departures and ticks of one
// room never interleave. Rooms are independent of each other.
//
// Two modes exist and a process runs exactly one of them:
//   - ModeRooms: players create and join rooms by code; the host starts each
//     round, which pauses at "round_end" until the host starts the next one.
//   - ModeContinuous: a single global quiz every connection joins on connect;
//     rounds follow each other forever and room messages are ignored.
package trivia

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Mode string

const (
	ModeRooms      Mode = "rooms"
	ModeContinuous Mode = "continuous"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRooms, ModeContinuous:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (must be %q or %q)", s, ModeRooms, ModeContinuous)
}

// Options tunes a Coordinator. Zero values fall back to defaults.
type Options struct {
	Mode           Mode
	QuestionTime   int
	MaxPoints      int
	TargetScore    int
	SessionTimeout time.Duration
	Clock          clockwork.Clock
	Intn           func(int) int
	Logger         *zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.Mode == "" {
		o.Mode = ModeRooms
	}
	if o.QuestionTime <= 0 {
		o.QuestionTime = DefaultQuestionTime
	}
	if o.MaxPoints <= 0 {
		o.MaxPoints = DefaultMaxPoints
	}
	if o.TargetScore <= 0 {
		o.TargetScore = DefaultTargetScore
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Intn == nil {
		o.Intn = rand.IntN
	}
	if o.Logger == nil {
		l := log.With().Str("component", "trivia").Logger()
		o.Logger = &l
	}
}

// Stats is a point-in-time count of live state.
type Stats struct {
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Mode        string `json:"mode"`
}

// Coordinator dispatches connection events to the room and round machinery.
type Coordinator struct {
	opts      Options
	registry  *Registry
	store     *RoomStore
	gateway   *Gateway
	scheduler *Scheduler
	global    *Room
	log       zerolog.Logger
}

func New(bank *Bank, transport Transport, opts Options) *Coordinator {
	opts.setDefaults()

	registry := NewRegistry()
	gateway := NewGateway(transport, registry, *opts.Logger)
	store := NewRoomStore(opts.Clock)

	c := &Coordinator{
		opts:     opts,
		registry: registry,
		store:    store,
		gateway:  gateway,
		scheduler: &Scheduler{
			clock:        opts.Clock,
			bank:         bank,
			gateway:      gateway,
			registry:     registry,
			questionTime: opts.QuestionTime,
			maxPoints:    opts.MaxPoints,
			targetScore:  opts.TargetScore,
			continuous:   opts.Mode == ModeContinuous,
			intn:         opts.Intn,
			log:          *opts.Logger,
		},
		log: *opts.Logger,
	}

	if opts.Mode == ModeContinuous {
		c.global = store.newGlobalRoom()
	}

	return c
}

func (c *Coordinator) Mode() Mode {
	return c.opts.Mode
}

// Connect registers a new connection under connID, which the transport must
// be ready to deliver to.
func (c *Coordinator) Connect(connID string) Player {
	p := c.registry.Register(connID)

	c.log.Debug().Str("connection", connID).Msg("connected")

	if c.global == nil {
		return p
	}

	c.global.mu.Lock()
	defer c.global.mu.Unlock()

	c.global.addMemberLocked(connID)
	c.global.lastActive = c.opts.Clock.Now()

	switch c.global.phase {
	case PhaseInRound:
		c.gateway.SendTo(connID, newQuestionMessage(*c.global.round.Question, c.global.round.TimeRemaining))
	default:
		c.scheduler.StartRoundLocked(c.global)
	}

	c.gateway.BroadcastRanking(c.global)

	return p
}

// Disconnect removes the connection from its room and forgets its player.
// Calling it twice is harmless.
func (c *Coordinator) Disconnect(connID string) {
	if _, ok := c.registry.Get(connID); !ok {
		return
	}

	if c.global != nil {
		c.leaveGlobal(connID)
	} else {
		c.leaveRoom(connID, false)
	}

	c.registry.Unregister(connID)

	c.log.Debug().Str("connection", connID).Msg("disconnected")
}

// Handle decodes and applies one inbound payload. Malformed or unknown
// payloads are dropped.
func (c *Coordinator) Handle(connID string, payload []byte) {
	msg, err := DecodeInbound(payload)
	if err != nil {
		c.log.Debug().Err(err).Str("connection", connID).Msg("dropped inbound message")
		return
	}

	if _, ok := c.registry.Get(connID); !ok {
		return
	}

	if c.global != nil {
		switch msg.(type) {
		case *CreateRoomMessage, *JoinRoomMessage, *LeaveRoomMessage, *StartGameMessage:
			c.log.Debug().
				Str("connection", connID).
				Str("event", msg.messageType()).
				Msg("room message ignored in continuous mode")
			return
		}
	}

	switch m := msg.(type) {
	case *CreateRoomMessage:
		c.createRoom(connID, m)
	case *JoinRoomMessage:
		c.joinRoom(connID, m)
	case *LeaveRoomMessage:
		c.leaveRoom(connID, true)
	case *SetNameMessage:
		c.setName(connID, m)
	case *StartGameMessage:
		c.startGame(connID)
	case *AnswerMessage:
		c.answer(connID, m)
	default:
		c.log.Debug().Str("connection", connID).Msg("unhandled message")
	}
}

func (c *Coordinator) createRoom(connID string, m *CreateRoomMessage) {
	c.leaveRoom(connID, false)

	room, err := c.store.CreateRoom(connID, strings.TrimSpace(m.Theme), m.ScoreGoal)
	if err != nil {
		c.log.Error().Err(err).Str("connection", connID).Msg("failed to create room")
		c.gateway.SendTo(connID, ErrorMessage{Type: TypeError, Message: "Unable to create a room, please try again."})
		return
	}
	defer room.Unlock()

	c.registry.SetRoom(connID, room.Code)

	c.gateway.SendTo(connID, RoomMessage{Type: TypeRoomCreated, Code: room.Code})
	c.gateway.SendTo(connID, SimpleMessage{Type: TypeYouAreHost})
	c.gateway.BroadcastRanking(room)

	c.log.Info().
		Str("room", room.Code).
		Str("connection", connID).
		Str("theme", room.theme).
		Int("score_goal", room.scoreGoal).
		Msg("room created")
}

func (c *Coordinator) joinRoom(connID string, m *JoinRoomMessage) {
	code := strings.ToUpper(strings.TrimSpace(m.Code))
	current := c.registry.RoomOf(connID)

	if current != "" && current == code {
		c.gateway.SendTo(connID, RoomMessage{Type: TypeRoomJoined, Code: code})
		return
	}

	// Unknown or closed codes must not cost the caller its current room, so
	// the old room is only left once the new one has accepted the member.
	if !validCode(code) {
		c.gateway.SendTo(connID, SimpleMessage{Type: TypeRoomNotFound})
		return
	}

	room, err := c.store.JoinRoom(connID, code)
	if err != nil {
		c.gateway.SendTo(connID, SimpleMessage{Type: TypeRoomNotFound})
		return
	}

	c.registry.SetRoom(connID, room.Code)

	c.gateway.SendTo(connID, RoomMessage{Type: TypeRoomJoined, Code: room.Code})
	if room.phase == PhaseInRound {
		c.gateway.SendTo(connID, newQuestionMessage(*room.round.Question, room.round.TimeRemaining))
	}
	c.gateway.BroadcastRanking(room)
	room.Unlock()

	c.log.Info().Str("room", code).Str("connection", connID).Msg("joined room")

	if current != "" {
		c.departRoom(connID, current)
	}
}

// leaveRoom detaches connID from its room. notify sends "room_left" to the
// leaver.
func (c *Coordinator) leaveRoom(connID string, notify bool) {
	code := c.registry.RoomOf(connID)
	if code == "" {
		return
	}

	c.registry.SetRoom(connID, "")
	if notify {
		defer c.gateway.SendTo(connID, SimpleMessage{Type: TypeRoomLeft})
	}

	c.departRoom(connID, code)
}

// departRoom removes connID from the room with code, migrating the host role
// or deleting the room as needed. Only one room lock is held at a time.
func (c *Coordinator) departRoom(connID, code string) {
	room, res, err := c.store.LeaveRoom(connID, code)
	if err != nil {
		return
	}
	defer room.Unlock()

	if res.Deleted {
		c.log.Info().Str("room", room.Code).Msg("room deleted")
		return
	}

	if res.NewHost != "" {
		c.gateway.SendTo(res.NewHost, SimpleMessage{Type: TypeYouAreHost})
		c.log.Info().Str("room", room.Code).Str("host", res.NewHost).Msg("host migrated")
	}

	c.gateway.BroadcastRanking(room)
}

func (c *Coordinator) leaveGlobal(connID string) {
	c.global.mu.Lock()
	defer c.global.mu.Unlock()

	c.global.removeMemberLocked(connID)
	c.global.lastActive = c.opts.Clock.Now()

	if len(c.global.members) == 0 {
		c.scheduler.StopLocked(c.global)
		return
	}

	c.gateway.Broadcast(c.global.members, c.gateway.ranking(c.global.members))
}

func (c *Coordinator) setName(connID string, m *SetNameMessage) {
	name, err := c.registry.SetName(connID, m.Name)
	if err != nil {
		return
	}

	c.log.Debug().Str("connection", connID).Str("name", name).Msg("name set")

	room, err := c.roomOf(connID)
	if err != nil {
		c.gateway.SendRanking(connID, []string{connID})
		return
	}
	defer room.Unlock()

	c.gateway.BroadcastRanking(room)
}

func (c *Coordinator) startGame(connID string) {
	code := c.registry.RoomOf(connID)
	if code == "" {
		return
	}

	room, err := c.store.StartGame(connID, code)
	if err != nil {
		if errors.Is(err, ErrNotHost) {
			c.log.Debug().Str("room", code).Str("connection", connID).Msg("start ignored from non-host")
		}
		return
	}
	defer room.Unlock()

	c.scheduler.StartRoundLocked(room)
}

func (c *Coordinator) answer(connID string, m *AnswerMessage) {
	room, err := c.roomOf(connID)
	if err != nil {
		return
	}
	defer room.Unlock()

	if !room.hasMember(connID) {
		return
	}
	room.lastActive = c.opts.Clock.Now()

	points, err := c.scheduler.AnswerLocked(room, connID, m.Answer)
	if err != nil {
		c.log.Debug().Err(err).Str("room", room.Code).Str("connection", connID).Msg("answer ignored")
		return
	}

	if points > 0 {
		c.log.Debug().Str("room", room.Code).Str("connection", connID).Int("points", points).Msg("correct answer")
	}
}

// roomOf returns the locked room connID belongs to.
func (c *Coordinator) roomOf(connID string) (*Room, error) {
	if c.global != nil {
		c.global.mu.Lock()
		return c.global, nil
	}

	code := c.registry.RoomOf(connID)
	if code == "" {
		return nil, ErrRoomNotFound
	}

	return c.store.Acquire(code)
}

// Run reaps idle rooms until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	if c.opts.SessionTimeout <= 0 || c.global != nil {
		<-ctx.Done()
		return
	}

	ticker := c.opts.Clock.NewTicker(c.opts.SessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.Reap()
		}
	}
}

// Reap closes every room idle for longer than the session timeout and
// returns how many were closed.
func (c *Coordinator) Reap() int {
	cutoff := c.opts.Clock.Now().Add(-c.opts.SessionTimeout)
	reaped := 0

	for _, room := range c.store.Snapshot() {
		room.mu.Lock()
		if room.closed || !room.lastActive.Before(cutoff) {
			room.mu.Unlock()
			continue
		}

		members := room.Members()
		c.store.closeLocked(room)
		room.mu.Unlock()

		for _, id := range members {
			c.registry.ClearRoom(id, room.Code)
		}
		c.gateway.Broadcast(members, SimpleMessage{Type: TypeRoomLeft})

		c.log.Info().Str("room", room.Code).Int("members", len(members)).Msg("reaped idle room")
		reaped++
	}

	return reaped
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Connections: c.registry.Len(),
		Rooms:       c.store.Len(),
		Mode:        string(c.opts.Mode),
	}
}
