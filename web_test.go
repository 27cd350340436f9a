/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/quizbox/games/trivia"
)

func testConfig() *Config {
	return &Config{
		bind:           "127.0.0.1",
		maxPoints:      trivia.DefaultMaxPoints,
		mode:           string(trivia.ModeRooms),
		port:           8080,
		questionTime:   trivia.DefaultQuestionTime,
		sessionTimeout: time.Hour,
		targetScore:    trivia.DefaultTargetScore,
	}
}

func newTestServer(t *testing.T, cfg *Config) (*httptest.Server, *Hub) {
	t.Helper()

	bank, err := trivia.LoadBank("")
	require.NoError(t, err)

	hub := newHub(cfg, bank)
	errs := make(chan error, 64)

	srv := httptest.NewServer(newRouter(cfg, hub, errs))
	t.Cleanup(func() {
		hub.closeAll()
		srv.Close()
	})

	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// readUntil reads events until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var event map[string]any
		require.NoError(t, json.Unmarshal(data, &event))
		if event["type"] == typ {
			return event
		}
	}
}

func write(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(msg))
}

func TestWebSocketRoomFlow(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	host := dial(t, srv, "/trivia/ws")
	readUntil(t, host, "ranking")

	write(t, host, map[string]any{"type": "setName", "name": "Host"})
	write(t, host, map[string]any{"type": "create_room", "theme": "futebol"})

	created := readUntil(t, host, "room_created")
	code, ok := created["code"].(string)
	require.True(t, ok)
	assert.Len(t, code, 5)
	readUntil(t, host, "you_are_host")

	guest := dial(t, srv, "/trivia/ws")
	readUntil(t, guest, "ranking")

	write(t, guest, map[string]any{"type": "join_room", "code": strings.ToLower(code)})
	assert.Equal(t, code, readUntil(t, guest, "room_joined")["code"])

	write(t, guest, map[string]any{"type": "join_room", "code": "ZZZZZ"})
	readUntil(t, guest, "room_not_found")

	write(t, host, map[string]any{"type": "start_game"})
	question := readUntil(t, guest, "question")
	assert.NotEmpty(t, question["question"])
	assert.Equal(t, float64(trivia.DefaultQuestionTime), question["time"])

	write(t, guest, map[string]any{"type": "leave_room"})
	readUntil(t, guest, "room_left")
}

func TestWebSocketDisconnectMigratesHost(t *testing.T) {
	srv, hub := newTestServer(t, testConfig())

	host := dial(t, srv, "/trivia/ws")
	write(t, host, map[string]any{"type": "create_room"})
	code := readUntil(t, host, "room_created")["code"].(string)

	guest := dial(t, srv, "/trivia/ws")
	write(t, guest, map[string]any{"type": "join_room", "code": code})
	readUntil(t, guest, "room_joined")

	require.NoError(t, host.Close())

	readUntil(t, guest, "you_are_host")

	require.Eventually(t, func() bool {
		return hub.game.Stats().Connections == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	conn := dial(t, srv, "/trivia/ws")
	write(t, conn, map[string]any{"type": "create_room"})
	readUntil(t, conn, "room_created")

	resp, err := http.Get(srv.URL + "/trivia/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var stats trivia.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, trivia.Stats{Connections: 1, Rooms: 1, Mode: "rooms"}, stats)
}

func TestQRCode(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/join/abcde/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
}

func TestJoinURL(t *testing.T) {
	cfg := testConfig()
	cfg.prefix = "/quiz"

	r := httptest.NewRequest(http.MethodGet, "http://example.com/quiz/join/abcde/qr", nil)
	assert.Equal(t, "http://example.com/quiz/join/ABCDE", joinURL(cfg, r, "abcde"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://example.com/quiz/join/ABCDE", joinURL(cfg, r, "abcde"))
}

func TestStaticRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.prefix = "/quiz"
	srv, _ := newTestServer(t, cfg)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	tests := []struct {
		path        string
		status      int
		contentType string
		contains    string
	}{
		{"/quiz/healthz", http.StatusOK, "text/plain; charset=utf-8", "Ok"},
		{"/quiz/version", http.StatusOK, "text/plain; charset=utf-8", "quizbox v" + releaseVersion},
		{"/quiz/trivia", http.StatusOK, "text/html; charset=utf-8", `src="/quiz/assets/app.js"`},
		{"/quiz/join/ABCDE", http.StatusOK, "text/html; charset=utf-8", `data-prefix="/quiz"`},
		{"/quiz/assets/app.css", http.StatusOK, "text/css; charset=utf-8", "--accent"},
		{"/quiz/assets/app.js", http.StatusOK, "text/javascript; charset=utf-8", "/trivia/ws"},
		{"/quiz/assets/missing.js", http.StatusNotFound, "", ""},
		{"/quiz/favicons/favicon.svg", http.StatusOK, "image/svg+xml", "<svg"},
		{"/quiz/robots.txt", http.StatusOK, "text/plain; charset=utf-8", "GPTBot"},
		{"/quiz/", http.StatusTemporaryRedirect, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := client.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			}
			if tt.contains != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), tt.contains)
			}
		})
	}
}

func TestRedirectToTrivia(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/trivia", resp.Request.URL.Path)
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote address", "10.0.0.1:1234", nil, "10.0.0.1:1234"},
		{"cloudflare header", "10.0.0.1:1234", map[string]string{"CF-Connecting-IP": "203.0.113.7"}, "203.0.113.7:1234"},
		{"real ip header", "10.0.0.1:1234", map[string]string{"X-Real-IP": "203.0.113.8"}, "203.0.113.8:1234"},
		{"invalid header ignored", "10.0.0.1:1234", map[string]string{"X-Real-IP": "nope"}, "10.0.0.1:1234"},
		{"ipv6", "[::1]:80", nil, "[::1]:80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, realIP(r))
		})
	}
}

func TestHumanReadableSize(t *testing.T) {
	assert.Equal(t, "999 B", humanReadableSize(999))
	assert.Equal(t, "1.5 kB", humanReadableSize(1500))
	assert.Equal(t, "2.0 MB", humanReadableSize(2_000_000))
}
