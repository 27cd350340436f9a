package trivia

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// recorder is an in-memory Transport that keeps every delivered event.
type recorder struct {
	mu     sync.Mutex
	closed map[string]bool
	events map[string][]map[string]any
}

func newRecorder() *recorder {
	return &recorder{
		closed: make(map[string]bool),
		events: make(map[string][]map[string]any),
	}
}

func (r *recorder) Send(connID string, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed[connID] {
		return false
	}

	var event map[string]any
	if err := json.Unmarshal(payload, &event); err != nil {
		panic(err)
	}
	r.events[connID] = append(r.events[connID], event)

	return true
}

func (r *recorder) close(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed[connID] = true
}

func (r *recorder) all(connID string, typ string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []map[string]any
	for _, e := range r.events[connID] {
		if e["type"] == typ {
			out = append(out, e)
		}
	}

	return out
}

func (r *recorder) count(connID, typ string) int {
	return len(r.all(connID, typ))
}

func (r *recorder) last(connID, typ string) map[string]any {
	events := r.all(connID, typ)
	if len(events) == 0 {
		return nil
	}

	return events[len(events)-1]
}

func (r *recorder) types(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.events[connID]))
	for _, e := range r.events[connID] {
		out = append(out, e["type"].(string))
	}

	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = make(map[string][]map[string]any)
}

var testQuestions = []Question{
	{
		Prompt:  "Quem é este jogador?",
		Image:   "https://example.com/messi.jpg",
		Theme:   "futebol",
		Answers: []string{"lionel messi"},
		Aliases: []string{"messi"},
	},
}

type harness struct {
	c     *Coordinator
	rec   *recorder
	clock *clockwork.FakeClock
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	bank, err := NewBank(testQuestions)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	logger := zerolog.Nop()

	opts.Clock = clock
	opts.Intn = func(int) int { return 0 }
	opts.Logger = &logger

	rec := newRecorder()

	return &harness{
		c:     New(bank, rec, opts),
		rec:   rec,
		clock: clock,
	}
}

func (h *harness) send(t *testing.T, connID string, msg map[string]any) {
	t.Helper()

	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	h.c.Handle(connID, payload)
}

// createRoom makes connID host of a room with code.
func (h *harness) createRoom(t *testing.T, connID, code string) {
	t.Helper()

	h.c.store.newCode = func() (string, error) { return code, nil }
	h.send(t, connID, map[string]any{"type": TypeCreateRoom, "theme": "futebol"})
	require.Equal(t, code, h.c.registry.RoomOf(connID))
}

// tick advances the clock one second and waits for observer to see the
// resulting timer value.
func (h *harness) tick(t *testing.T, observer string, want int) {
	t.Helper()

	before := h.rec.count(observer, TypeTimer)
	h.clock.Advance(tickInterval)

	require.Eventually(t, func() bool {
		if h.rec.count(observer, TypeTimer) <= before {
			return false
		}
		return h.rec.last(observer, TypeTimer)["time"] == float64(want)
	}, time.Second, time.Millisecond)
}

func rankingOf(event map[string]any) map[string]float64 {
	out := make(map[string]float64)
	for _, entry := range event["ranking"].([]any) {
		e := entry.(map[string]any)
		out[e["name"].(string)] = e["score"].(float64)
	}

	return out
}
