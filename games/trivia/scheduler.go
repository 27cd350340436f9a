package trivia

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	DefaultQuestionTime = 15
	DefaultMaxPoints    = 20
	DefaultTargetScore  = 120

	tickInterval = time.Second
)

// roundTimer is the cancellable tick source of one round. A room holds at
// most one; ticks from a timer that is no longer the room's are dropped.
type roundTimer struct {
	ticker clockwork.Ticker
	done   chan struct{}
}

func (t *roundTimer) stop() {
	t.ticker.Stop()
	close(t.done)
}

// Scheduler drives the question cycle of every room.
type Scheduler struct {
	clock        clockwork.Clock
	bank         *Bank
	gateway      *Gateway
	registry     *Registry
	questionTime int
	maxPoints    int
	targetScore  int
	continuous   bool
	intn         func(int) int
	log          zerolog.Logger
}

// StartRoundLocked cancels any running round of room, picks a question and
// starts a fresh countdown. The room lock must be held.
func (s *Scheduler) StartRoundLocked(room *Room) {
	room.stopTimerLocked()

	q := s.bank.Pick(room.theme, s.intn)

	room.round = newRoundState()
	room.round.Question = &q
	room.round.TimeRemaining = s.questionTime
	room.phase = PhaseInRound

	t := &roundTimer{
		ticker: s.clock.NewTicker(tickInterval),
		done:   make(chan struct{}),
	}
	room.timer = t

	go s.run(room, t)

	s.gateway.BroadcastToRoom(room, newQuestionMessage(q, s.questionTime))

	s.log.Debug().
		Str("room", room.Code).
		Str("question", q.Prompt).
		Int("members", len(room.members)).
		Msg("round started")
}

func (s *Scheduler) run(room *Room, t *roundTimer) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.Chan():
			s.tick(room, t)
		}
	}
}

func (s *Scheduler) tick(room *Room, t *roundTimer) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.timer != t || room.phase != PhaseInRound {
		return
	}

	if room.round.TimeRemaining > 0 {
		room.round.TimeRemaining--
	}

	s.gateway.BroadcastToRoom(room, TimerMessage{
		Type: TypeTimer,
		Time: room.round.TimeRemaining,
	})

	if room.round.TimeRemaining == 0 {
		s.endRoundLocked(room)
	}
}

// endRoundLocked stops the countdown before announcing the end, so a round
// terminates exactly once.
func (s *Scheduler) endRoundLocked(room *Room) {
	room.stopTimerLocked()
	room.phase = PhaseRoundEnded

	s.log.Debug().
		Str("room", room.Code).
		Int("answered", len(room.round.Answered)).
		Int("correct", len(room.round.Correct)).
		Msg("round ended")

	if s.continuous {
		s.StartRoundLocked(room)
		return
	}

	s.gateway.BroadcastToRoom(room, SimpleMessage{Type: TypeRoundEnd})
}

// StopLocked cancels the room's round and returns it to idle.
func (s *Scheduler) StopLocked(room *Room) {
	room.stopTimerLocked()
	room.phase = PhaseIdle
}

// AnswerLocked scores a submission of connID against the room's current
// question and returns the points awarded. A second submission in the same
// round is ignored. The room lock must be held.
func (s *Scheduler) AnswerLocked(room *Room, connID, raw string) (int, error) {
	if room.phase != PhaseInRound || room.round.Question == nil {
		return 0, ErrNotInRound
	}

	if _, ok := room.round.Answered[connID]; ok {
		return 0, nil
	}
	room.round.Answered[connID] = struct{}{}

	if !CheckAnswer(raw, *room.round.Question) {
		return 0, nil
	}

	if _, ok := room.round.Correct[connID]; ok {
		return 0, nil
	}
	room.round.Correct[connID] = struct{}{}

	points := ComputePoints(room.round.TimeRemaining, s.questionTime, s.maxPoints)

	score, err := s.registry.AddScore(connID, points)
	if err != nil {
		return 0, err
	}

	s.gateway.BroadcastRanking(room)

	if score >= s.goal(room) {
		s.log.Info().
			Str("room", room.Code).
			Str("connection", connID).
			Int("score", score).
			Msg("score goal reached")

		s.gateway.BroadcastToRoom(room, SimpleMessage{Type: TypeEnd})
		s.registry.ResetScores(s.scoredMembers(room))
		s.gateway.BroadcastRanking(room)
	}

	return points, nil
}

func (s *Scheduler) goal(room *Room) int {
	if room.scoreGoal > 0 {
		return room.scoreGoal
	}
	return s.targetScore
}

func (s *Scheduler) scoredMembers(room *Room) []string {
	if room.global {
		return s.registry.IDs()
	}
	return room.members
}
