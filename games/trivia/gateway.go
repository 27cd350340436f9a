package trivia

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Transport delivers serialized events to a connection. Send reports false
// when the connection is closed or cannot keep up; that is never an error.
type Transport interface {
	Send(connID string, payload []byte) bool
}

// Gateway fans typed events out to connections.
type Gateway struct {
	transport Transport
	registry  *Registry
	log       zerolog.Logger
}

func NewGateway(transport Transport, registry *Registry, logger zerolog.Logger) *Gateway {
	return &Gateway{
		transport: transport,
		registry:  registry,
		log:       logger,
	}
}

// Broadcast marshals event once and sends it to every id.
func (g *Gateway) Broadcast(ids []string, event any) {
	if len(ids) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		g.log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	skipped := 0
	for _, id := range ids {
		if !g.transport.Send(id, payload) {
			skipped++
		}
	}

	if skipped > 0 {
		g.log.Debug().
			Int("recipients", len(ids)).
			Int("skipped", skipped).
			Msg("broadcast skipped closed connections")
	}
}

func (g *Gateway) SendTo(connID string, event any) {
	g.Broadcast([]string{connID}, event)
}

// BroadcastToRoom sends event to the room's members. The room lock must be held.
func (g *Gateway) BroadcastToRoom(room *Room, event any) {
	if room.global {
		g.BroadcastGlobal(event)
		return
	}
	g.Broadcast(room.members, event)
}

// BroadcastGlobal sends event to every registered connection.
func (g *Gateway) BroadcastGlobal(event any) {
	g.Broadcast(g.registry.IDs(), event)
}

// BroadcastRanking sends the room's current ranking, computed from live
// player state. The room lock must be held.
func (g *Gateway) BroadcastRanking(room *Room) {
	g.BroadcastToRoom(room, g.ranking(room.members))
}

func (g *Gateway) SendRanking(connID string, ids []string) {
	g.SendTo(connID, g.ranking(ids))
}

func (g *Gateway) ranking(ids []string) RankingMessage {
	return RankingMessage{
		Type:    TypeRanking,
		Ranking: g.registry.Ranking(ids),
	}
}
