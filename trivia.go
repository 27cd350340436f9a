/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Quizbox Trivia
//
// Players connect over a WebSocket, pick a display name, then create a room
// (becoming its host) or join one by its 5-character code. The host starts
// each question; everyone in the room races the 15-second clock, and faster
// correct answers earn more points. Rankings are pushed live after every
// change, and the first player to reach the room's goal ends the match.
//
// Features:
// - One WebSocket endpoint: /trivia/ws
// - Shareable join links (/join/:code) with a QR code (/join/:code/qr), backed by go-qrcode
// - Connections identified by a random UUID for their lifetime
// - Slow clients are disconnected rather than allowed to stall a room
// - Live counters at /trivia/stats

package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/quizbox/games/trivia"
)

const (
	sendBufferSize = 64
	maxMessageSize = 4096
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
)

type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// close drops the underlying connection; readPump then unregisters the client.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// Hub is the WebSocket side of the game: it owns the live clients and
// delivers the coordinator's events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	game *trivia.Coordinator
}

func newHub(cfg *Config, bank *trivia.Bank) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
	}
	h.game = trivia.New(bank, h, cfg.triviaOptions())

	return h
}

// Send queues payload for connID. A full buffer means the client cannot keep
// up, so it is disconnected instead of holding up the room.
func (h *Hub) Send(connID string, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[connID]
	if !ok {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		log.Warn().Str("connection", connID).Msg("send buffer full, closing connection")
		go c.close()
		return false
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

// closeAll disconnects every client (used on shutdown).
func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(cfg *Config, h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Str("remote", realIP(r)).Msg("failed to upgrade WebSocket connection")
			return
		}

		client := &Client{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan []byte, sendBufferSize),
		}

		h.register(client)
		h.game.Connect(client.id)

		logf(cfg, "GAMES: Connection %s opened from %s", client.id, realIP(r))

		go client.writePump()
		client.readPump(cfg, h)
	}
}

func (c *Client) readPump(cfg *Config, h *Hub) {
	defer func() {
		h.game.Disconnect(c.id)
		h.unregister(c)
		c.close()

		logf(cfg, "GAMES: Connection %s closed", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("connection", c.id).Msg("unexpected WebSocket close")
			}
			return
		}

		h.game.Handle(c.id, msg)
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func serveStats(cfg *Config, h *Hub, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(h.game.Stats()); err != nil {
			errs <- err
		}
	}
}

// joinURL derives the public join link for a room, respecting TLS and
// X-Forwarded-Proto if present.
func joinURL(cfg *Config, r *http.Request, code string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix + "/join/" + strings.ToUpper(code)
}

// QR handler: generates a PNG QR code for a room's join URL using go-qrcode.
func serveQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(joinURL(cfg, r, code), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// registerTriviaGame sets up routes so that:
//   - $prefix/trivia           → HTML client
//   - $prefix/trivia/ws        → WebSocket for all players
//   - $prefix/trivia/stats     → live connection and room counts
//   - $prefix/join/:code       → HTML client that joins :code on load
//   - $prefix/join/:code/qr    → PNG QR code for that join link
func registerTriviaGame(cfg *Config, h *Hub, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/trivia", serveIndex(cfg, errs))
	mux.GET(cfg.prefix+"/trivia/ws", serveWS(cfg, h))
	mux.GET(cfg.prefix+"/trivia/stats", serveStats(cfg, h, errs))
	mux.GET(cfg.prefix+"/join/:code", serveIndex(cfg, errs))
	mux.GET(cfg.prefix+"/join/:code/qr", serveQR(cfg))
}
