package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antlaw0/partygame/games/questionables"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrompt = "What is the worst thing to find in a sandwich?"

type testServer struct {
	*httptest.Server
	store *questionables.Store
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := questionables.NewRegistry()
	source := questionables.PromptFunc(func(context.Context) (string, error) {
		return testPrompt, nil
	})
	store := questionables.NewStore(questionables.Config{
		Prompts:  source,
		Presence: registry,
		Random:   questionables.NewRandom(1),
		Logf:     t.Logf,
	})

	hub := newHub(ctx, store, registry, source)
	go hub.run(cfg)

	mux := httprouter.New()
	errs := make(chan error, 16)
	registerQuestionablesGame(cfg, gamePath, mux, hub, errs)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: store}
}

func testConfig() *Config {
	return &Config{
		completion:    "connected",
		playerTimeout: 0,
		promptTimeout: time.Second,
		rateBurst:     100,
		rateLimit:     100,
		rounds:        3,
	}
}

type player struct {
	t    *testing.T
	id   string
	conn *websocket.Conn
}

func (ts *testServer) dial(t *testing.T) *player {
	t.Helper()

	return ts.dialAs(t, uuid.NewString())
}

// dialAs connects with the given identity cookie, as a reloaded page would.
func (ts *testServer) dialAs(t *testing.T, id string) *player {
	t.Helper()

	header := http.Header{}
	header.Set("Cookie", playerCookieName+"="+id)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + gamePath + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	p := &player{t: t, id: id, conn: conn}

	info := p.expect("session_info")
	assert.Equal(t, questionables.PublicID(id), info["you"])

	return p
}

func (p *player) send(msg ClientMessage) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(msg))
}

// expect reads messages until one of the given type arrives.
func (p *player) expect(typ string) map[string]any {
	p.t.Helper()

	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	for {
		var msg map[string]any
		require.NoError(p.t, p.conn.ReadJSON(&msg), "waiting for %s", typ)

		if msg["type"] == typ {
			return msg
		}
	}
}

func TestHubPlaysAGame(t *testing.T) {
	ts := newTestServer(t, testConfig())

	leader := ts.dial(t)
	leader.send(ClientMessage{Type: "create", Name: "Lee", Rounds: 1})
	lobby := leader.expect("lobby")
	code := lobby["code"].(string)
	require.Len(t, code, questionables.CodeLength)

	guest := ts.dial(t)
	guest.send(ClientMessage{Type: "join", Name: "Gus", Code: code})
	lobby = leader.expect("lobby")
	assert.Len(t, lobby["players"], 2)

	guest.send(ClientMessage{Type: "start"})
	rejected := guest.expect("error")
	assert.Equal(t, "NOT_LEADER", rejected["error"])

	leader.send(ClientMessage{Type: "start"})
	for _, p := range []*player{leader, guest} {
		started := p.expect("round_started")
		assert.Equal(t, testPrompt, started["prompt"])
	}

	leader.send(ClientMessage{Type: "answer", Answer: "a pickle"})
	guest.send(ClientMessage{Type: "answer", Answer: "a shoe"})

	ballot := guest.expect("voting_started")["ballot"].([]any)
	require.Len(t, ballot, 2)
	leader.expect("voting_started")

	var shoe string
	for _, entry := range ballot {
		e := entry.(map[string]any)
		if e["text"] == "a shoe" {
			shoe = e["ref"].(string)
		}
	}
	require.NotEmpty(t, shoe)

	leader.send(ClientMessage{Type: "vote", Ref: shoe})
	guest.send(ClientMessage{Type: "vote", Ref: shoe})

	results := leader.expect("round_results")
	assert.Equal(t, true, results["final"])
	top := results["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "Gus", top["name"])
	assert.Equal(t, float64(2), top["votes"])

	leader.send(ClientMessage{Type: "continue"})
	final := guest.expect("final_results")
	assert.Equal(t, "Gus", final["scores"].([]any)[0].(map[string]any)["name"])

	info := leader.expect("session_info")
	assert.Equal(t, false, info["has_session"])
}

func TestHubLeaveOnDisconnect(t *testing.T) {
	ts := newTestServer(t, testConfig())

	leader := ts.dial(t)
	leader.send(ClientMessage{Type: "create", Name: "Lee"})
	code := leader.expect("lobby")["code"].(string)

	guest := ts.dial(t)
	guest.send(ClientMessage{Type: "join", Name: "Gus", Code: code})
	guest.expect("lobby")
	leader.expect("lobby")

	require.NoError(t, leader.conn.Close())

	lobby := guest.expect("lobby")
	players := lobby["players"].([]any)
	require.Len(t, players, 1)
	assert.Equal(t, true, players[0].(map[string]any)["leader"])
}

func TestHubRejectsBadMessages(t *testing.T) {
	cfg := testConfig()
	cfg.rateBurst = 2
	cfg.rateLimit = 0.001
	ts := newTestServer(t, cfg)

	p := ts.dial(t)

	require.NoError(t, p.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "BAD_REQUEST", p.expect("error")["error"])

	p.send(ClientMessage{Type: "dance"})
	assert.Equal(t, "BAD_REQUEST", p.expect("error")["error"])

	p.send(ClientMessage{Type: "sync"})
	assert.Equal(t, "RATE_LIMITED", p.expect("error")["error"])
}

func TestQRCode(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + gamePath + "/qr")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err = ts.store.CreateSession("l", "L", 1)
	require.NoError(t, err)

	resp, err = http.Get(ts.URL + gamePath + "/qr")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestIndexSetsCookie(t *testing.T) {
	ts := newTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + gamePath)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == playerCookieName {
			found = true
			_, err := uuid.Parse(c.Value)
			assert.NoError(t, err)
		}
	}
	assert.True(t, found)

	resp, err = http.Get(ts.URL + "/assets/questionables/app.js")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/javascript; charset=utf-8", resp.Header.Get("Content-Type"))
}

func lobbyPlayer(t *testing.T, lobby map[string]any, i int) map[string]any {
	t.Helper()

	players := lobby["players"].([]any)
	require.Greater(t, len(players), i)

	return players[i].(map[string]any)
}

func TestHubDisconnectGracePeriod(t *testing.T) {
	cfg := testConfig()
	cfg.playerTimeout = 500 * time.Millisecond
	ts := newTestServer(t, cfg)

	leader := ts.dial(t)
	leader.send(ClientMessage{Type: "create", Name: "Lee"})
	code := leader.expect("lobby")["code"].(string)

	guest := ts.dial(t)
	guest.send(ClientMessage{Type: "join", Name: "Gus", Code: code})
	guest.expect("lobby")

	require.NoError(t, leader.conn.Close())

	// The seat is kept and leadership moves to someone reachable.
	lobby := guest.expect("lobby")
	require.Len(t, lobby["players"], 2)
	assert.Equal(t, false, lobbyPlayer(t, lobby, 0)["connected"])
	assert.Equal(t, false, lobbyPlayer(t, lobby, 0)["leader"])
	assert.Equal(t, true, lobbyPlayer(t, lobby, 1)["leader"])
	assert.True(t, ts.store.IsMember(leader.id))

	// Once the timeout passes the seat is given up.
	lobby = guest.expect("lobby")
	require.Len(t, lobby["players"], 1)
	assert.Equal(t, "Gus", lobbyPlayer(t, lobby, 0)["name"])
	assert.False(t, ts.store.IsMember(leader.id))
}

func TestHubReconnectKeepsSeat(t *testing.T) {
	cfg := testConfig()
	cfg.playerTimeout = 300 * time.Millisecond
	ts := newTestServer(t, cfg)

	leader := ts.dial(t)
	leader.send(ClientMessage{Type: "create", Name: "Lee"})
	code := leader.expect("lobby")["code"].(string)

	guest := ts.dial(t)
	guest.send(ClientMessage{Type: "join", Name: "Gus", Code: code})
	leader.expect("lobby")

	require.NoError(t, guest.conn.Close())
	lobby := leader.expect("lobby")
	assert.Equal(t, false, lobbyPlayer(t, lobby, 1)["connected"])

	back := ts.dialAs(t, guest.id)
	lobby = back.expect("lobby")
	assert.Equal(t, true, lobbyPlayer(t, lobby, 1)["connected"])

	lobby = leader.expect("lobby")
	assert.Equal(t, true, lobbyPlayer(t, lobby, 1)["connected"])

	time.Sleep(3 * cfg.playerTimeout)

	assert.True(t, ts.store.IsMember(guest.id))
	snap, ok := ts.store.Snapshot()
	require.True(t, ok)
	assert.Len(t, snap.Participants, 2)
}
