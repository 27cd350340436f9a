package trivia

import (
	"crypto/rand"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength     = 5
	maxCodeRetries = 32
)

// Phase is the round state of a room.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInRound
	PhaseRoundEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInRound:
		return "in_round"
	case PhaseRoundEnded:
		return "round_ended"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// RoundState is reset at the start of every round.
type RoundState struct {
	Question      *Question
	TimeRemaining int
	Answered      map[string]struct{}
	Correct       map[string]struct{}
}

func newRoundState() RoundState {
	return RoundState{
		Answered: make(map[string]struct{}),
		Correct:  make(map[string]struct{}),
	}
}

// Room is an isolated match. Every field below mu is guarded by it, and the
// round ticker takes the same lock, so membership, round state and the
// scores of members never change concurrently.
type Room struct {
	Code string

	mu         sync.Mutex
	host       string
	members    []string // join order
	theme      string
	scoreGoal  int
	global     bool
	closed     bool
	phase      Phase
	round      RoundState
	timer      *roundTimer
	lastActive time.Time
}

func (r *Room) Unlock() {
	r.mu.Unlock()
}

func (r *Room) Host() string {
	return r.host
}

func (r *Room) Members() []string {
	return slices.Clone(r.members)
}

func (r *Room) Phase() Phase {
	return r.phase
}

func (r *Room) Round() RoundState {
	return r.round
}

func (r *Room) Theme() string {
	return r.theme
}

func (r *Room) ScoreGoal() int {
	return r.scoreGoal
}

func (r *Room) hasMember(connID string) bool {
	return slices.Contains(r.members, connID)
}

func (r *Room) addMemberLocked(connID string) {
	if r.hasMember(connID) {
		return
	}
	r.members = append(r.members, connID)
	if r.host == "" && !r.global {
		r.host = connID
	}
}

// removeMemberLocked drops connID and promotes the earliest remaining member
// when the host left. It reports whether the host changed.
func (r *Room) removeMemberLocked(connID string) bool {
	idx := slices.Index(r.members, connID)
	if idx < 0 {
		return false
	}
	r.members = slices.Delete(r.members, idx, idx+1)

	if r.global || r.host != connID {
		return false
	}

	r.host = ""
	if len(r.members) > 0 {
		r.host = r.members[0]
	}

	return r.host != ""
}

// stopTimerLocked cancels the active round ticker, if any.
func (r *Room) stopTimerLocked() {
	if r.timer == nil {
		return
	}
	r.timer.stop()
	r.timer = nil
}

// LeaveResult describes what a departure did to a room.
type LeaveResult struct {
	NewHost string // set when the host role moved
	Deleted bool
}

// RoomStore owns the live rooms. Methods that return a *Room return it
// locked; the caller must Unlock it. The store lock is never held while
// waiting for a room lock.
type RoomStore struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	clock   clockwork.Clock
	newCode func() (string, error)
}

func NewRoomStore(clock clockwork.Clock) *RoomStore {
	return &RoomStore{
		rooms:   make(map[string]*Room),
		clock:   clock,
		newCode: randomCode,
	}
}

// randomCode generates a crypto-random room code.
func randomCode() (string, error) {
	return readCode(rand.Reader)
}

// readCode draws a code from r by rejection sampling, so every character of
// the alphabet is equally likely.
func readCode(r io.Reader) (string, error) {
	const limit = 256 - 256%len(codeAlphabet)

	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength)

	for len(out) < codeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}

		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}

	return string(out), nil
}

// validCode reports whether code has the shape of a generated room code.
func validCode(code string) bool {
	return len(code) == codeLength && strings.Trim(code, codeAlphabet) == ""
}

// CreateRoom registers a new room hosted by hostID under a fresh code.
func (s *RoomStore) CreateRoom(hostID, theme string, scoreGoal int) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range maxCodeRetries {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		if _, exists := s.rooms[code]; exists {
			continue
		}

		room := &Room{
			Code:       code,
			theme:      theme,
			scoreGoal:  scoreGoal,
			round:      newRoundState(),
			lastActive: s.clock.Now(),
		}
		room.addMemberLocked(hostID)

		// Fresh room, nobody else can hold its lock yet.
		room.mu.Lock()
		s.rooms[code] = room

		return room, nil
	}

	return nil, ErrRoomCreationExhausted
}

// newGlobalRoom builds the single room used in continuous mode. It is never
// stored, so no code resolves to it.
func (s *RoomStore) newGlobalRoom() *Room {
	return &Room{
		global:     true,
		round:      newRoundState(),
		lastActive: s.clock.Now(),
	}
}

func (s *RoomStore) lookup(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[strings.ToUpper(code)]
	return room, ok
}

// Acquire returns the live room for code, locked.
func (s *RoomStore) Acquire(code string) (*Room, error) {
	room, ok := s.lookup(code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return nil, ErrRoomNotFound
	}

	return room, nil
}

// JoinRoom appends connID to the room's members.
func (s *RoomStore) JoinRoom(connID, code string) (*Room, error) {
	room, err := s.Acquire(code)
	if err != nil {
		return nil, err
	}

	room.addMemberLocked(connID)
	room.lastActive = s.clock.Now()

	return room, nil
}

// LeaveRoom removes connID from its room. When the last member leaves the
// room is closed, its ticker cancelled and its code released; the returned
// room is still locked and must be unlocked by the caller.
func (s *RoomStore) LeaveRoom(connID, code string) (*Room, LeaveResult, error) {
	room, err := s.Acquire(code)
	if err != nil {
		return nil, LeaveResult{}, err
	}

	var res LeaveResult
	if room.removeMemberLocked(connID) {
		res.NewHost = room.host
	}
	room.lastActive = s.clock.Now()

	if len(room.members) == 0 {
		s.closeLocked(room)
		res.Deleted = true
	}

	return room, res, nil
}

// StartGame checks that connID hosts the room. The room is returned locked
// so the caller can start the round under the same lock.
func (s *RoomStore) StartGame(connID, code string) (*Room, error) {
	room, err := s.Acquire(code)
	if err != nil {
		return nil, err
	}

	if room.host != connID {
		room.mu.Unlock()
		return nil, ErrNotHost
	}
	room.lastActive = s.clock.Now()

	return room, nil
}

// closeLocked tears down a room whose lock is held.
func (s *RoomStore) closeLocked(room *Room) {
	room.stopTimerLocked()
	room.closed = true
	room.phase = PhaseIdle
	room.members = nil
	room.host = ""

	s.mu.Lock()
	if s.rooms[room.Code] == room {
		delete(s.rooms, room.Code)
	}
	s.mu.Unlock()
}

// Snapshot returns the live rooms without locking them.
func (s *RoomStore) Snapshot() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}

	return rooms
}

func (s *RoomStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.rooms)
}
