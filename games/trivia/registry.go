package trivia

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"
)

const (
	DefaultPlayerName = "Jogador"
	maxNameLength     = 32
)

// Player holds the data we store server-side for one live connection.
type Player struct {
	ConnectionID string
	Name         string
	Score        int
	RoomCode     string
}

// RankingEntry is one line of a ranking broadcast.
type RankingEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Registry maps live connections to their players. Scores of room members
// are only changed while the room's lock is held.
type Registry struct {
	mu      sync.RWMutex
	players map[string]*Player
}

func NewRegistry() *Registry {
	return &Registry{
		players: make(map[string]*Player),
	}
}

// Register creates the default player for a new connection. Registering an
// already known connection returns the existing player untouched.
func (r *Registry) Register(connID string) Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[connID]; ok {
		return *p
	}

	p := &Player{
		ConnectionID: connID,
		Name:         DefaultPlayerName,
	}
	r.players[connID] = p

	return *p
}

func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.players, connID)
}

func (r *Registry) Get(connID string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.players[connID]
	if !ok {
		return Player{}, false
	}

	return *p, true
}

// SetName stores a normalized display name and returns it.
func (r *Registry) SetName(connID, name string) (string, error) {
	name = normalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[connID]
	if !ok {
		return "", ErrUnknownConnection
	}
	p.Name = name

	return name, nil
}

func (r *Registry) SetRoom(connID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[connID]; ok {
		p.RoomCode = code
	}
}

// ClearRoom detaches connID from code, unless it has since moved elsewhere.
func (r *Registry) ClearRoom(connID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[connID]; ok && p.RoomCode == code {
		p.RoomCode = ""
	}
}

// RoomOf returns the room code of a connection, or "" when it is in no room.
func (r *Registry) RoomOf(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.players[connID]; ok {
		return p.RoomCode
	}

	return ""
}

// AddScore awards points and returns the new total.
func (r *Registry) AddScore(connID string, points int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[connID]
	if !ok {
		return 0, ErrUnknownConnection
	}
	p.Score = max(p.Score+points, 0)

	return p.Score, nil
}

func (r *Registry) ResetScores(connIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range connIDs {
		if p, ok := r.players[id]; ok {
			p.Score = 0
		}
	}
}

// Ranking projects the given connections onto a score-descending list.
// Ties keep the order of connIDs.
func (r *Registry) Ranking(connIDs []string) []RankingEntry {
	r.mu.RLock()
	players := lo.FilterMap(connIDs, func(id string, _ int) (Player, bool) {
		p, ok := r.players[id]
		if !ok {
			return Player{}, false
		}
		return *p, true
	})
	r.mu.RUnlock()

	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Score > players[j].Score
	})

	return lo.Map(players, func(p Player, _ int) RankingEntry {
		return RankingEntry{Name: p.Name, Score: p.Score}
	})
}

// IDs returns every registered connection, in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.players)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.players)
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultPlayerName
	}

	if utf8.RuneCountInString(name) > maxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:maxNameLength]))
	}

	return name
}
