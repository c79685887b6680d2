// Partygame Questionables
//
// Everyone answers the same prompt, then votes anonymously for their
// favourite answer. Each vote received is worth a point; after the last
// round the player with the most points wins.
//
// Features:
// - A single session per server at /path, with its WebSocket at /path/ws
// - The player who creates the session is its leader and starts rounds
// - Players join with a 4-character code, shared as text or QR (/path/qr)
// - Prompts come from Groq when an API key is configured, then from the
//   SQLite question bank, then from a fixed fallback
// - Players identified by cookie, so a reload reconnects to the same seat
// - Disconnected players keep their seat for --player-timeout
// - Leadership moves to the earliest-joined connected player when the
//   leader drops
// - Idle sessions are ended after --session-timeout

package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/antlaw0/partygame/games/questionables"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`             // "create", "join", "start", "answer", "vote", "continue", "leave", "sync"
	Name   string `json:"name,omitempty"`   // create / join
	Rounds int    `json:"rounds,omitempty"` // create
	Code   string `json:"code,omitempty"`   // join
	Answer string `json:"answer,omitempty"` // answer
	Ref    string `json:"ref,omitempty"`    // vote
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
	limiter  *rate.Limiter
}

type intent struct {
	client *Client
	msg    ClientMessage
}

// promptResetter is implemented by prompt sources that track which prompts
// a session has already seen.
type promptResetter interface {
	Reset(ctx context.Context) error
}

type Hub struct {
	ctx     context.Context
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	intents  chan intent

	mu sync.RWMutex

	store    *questionables.Store
	registry *questionables.Registry
	prompts  questionables.PromptSource

	// removals holds the pending removal of each disconnected player.
	removals map[string]*time.Timer
}

func newHub(ctx context.Context, store *questionables.Store, registry *questionables.Registry, prompts questionables.PromptSource) *Hub {
	return &Hub{
		ctx:      ctx,
		clients:  make(map[*Client]bool),
		register: make(chan *Client),
		unreg:    make(chan *Client),
		intents:  make(chan intent),
		store:    store,
		registry: registry,
		prompts:  prompts,
		removals: make(map[string]*time.Timer),
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			// Count the connection before cancelling a pending removal, so
			// a removal that is already firing sees the player as back.
			first := h.registry.Add(c.playerID)

			h.mu.Lock()
			h.clients[c] = true
			if t, ok := h.removals[c.playerID]; ok {
				t.Stop()
				delete(h.removals, c.playerID)
			}
			h.mu.Unlock()

			// Send session_info first, so the client decides whether to
			// offer creating or joining, then whatever it needs to resume.
			h.sendTo(c, h.store.Info(c.playerID))
			for _, msg := range h.store.Sync(c.playerID) {
				h.sendTo(c, msg)
			}

			if first {
				h.broadcast(h.store.Connect(c.playerID)...)
			}

		case c := <-h.unreg:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

			if !h.registry.Remove(c.playerID) {
				continue
			}

			if !h.store.IsMember(c.playerID) {
				continue
			}

			if cfg.playerTimeout <= 0 {
				h.leave(cfg, c.playerID)
				continue
			}

			h.broadcast(h.store.Disconnect(c.playerID)...)
			h.scheduleRemoval(cfg, c.playerID, cfg.playerTimeout)

		case in := <-h.intents:
			h.handle(cfg, in)
		}
	}
}

// handle dispatches one client intent. Starting a round waits on the prompt
// source, so it runs off the hub loop.
func (h *Hub) handle(cfg *Config, in intent) {
	c := in.client
	msg := in.msg

	switch msg.Type {
	case "create":
		lobby, err := h.store.CreateSession(c.playerID, msg.Name, msg.Rounds)
		if err != nil {
			h.fail(cfg, c, msg, err)
			return
		}

		if r, ok := h.prompts.(promptResetter); ok {
			go func() {
				if err := r.Reset(h.ctx); err != nil {
					logf(cfg, "PROMPT: Failed to reset question bank: %v", err)
				}
			}()
		}

		h.broadcast(lobby)
		h.refreshInfo()

	case "join":
		lobby, err := h.store.JoinSession(c.playerID, msg.Name, msg.Code)
		if err != nil {
			h.fail(cfg, c, msg, err)
			return
		}

		h.broadcast(lobby)
		h.sendTo(c, h.store.Info(c.playerID))

	case "start":
		go func() {
			started, err := h.store.StartRound(h.ctx, c.playerID)
			if err != nil {
				h.fail(cfg, c, msg, err)
				return
			}

			h.broadcast(started)
		}()

	case "answer":
		update, err := h.store.SubmitAnswer(c.playerID, msg.Answer)
		if err != nil {
			h.fail(cfg, c, msg, err)
			return
		}

		h.broadcast(update)

	case "vote":
		update, err := h.store.SubmitBallotVote(c.playerID, msg.Ref)
		if err != nil {
			h.fail(cfg, c, msg, err)
			return
		}

		h.broadcast(update)

	case "continue":
		go func() {
			next, err := h.store.ContinueGame(h.ctx, c.playerID)
			if err != nil {
				h.fail(cfg, c, msg, err)
				return
			}

			h.broadcast(next)

			if _, final := next.(questionables.FinalResultsMessage); final {
				h.refreshInfo()
			}
		}()

	case "leave":
		h.leave(cfg, c.playerID)

	case "sync":
		h.sendTo(c, h.store.Info(c.playerID))
		for _, m := range h.store.Sync(c.playerID) {
			h.sendTo(c, m)
		}

	default:
		h.sendTo(c, questionables.ErrorMessage{
			Type:    "error",
			Error:   "BAD_REQUEST",
			Message: "Unknown message type.",
		})
	}
}

func (h *Hub) fail(cfg *Config, c *Client, msg ClientMessage, err error) {
	logf(cfg, "GAMES: Rejected %q from %s: %v", msg.Type, questionables.PublicID(c.playerID), err)

	h.sendTo(c, questionables.NewErrorMessage(err))
}

func (h *Hub) leave(cfg *Config, playerID string) {
	msgs := h.store.LeaveSession(playerID)
	if msgs == nil {
		return
	}

	h.broadcast(msgs...)
	h.refreshInfo()
}

// scheduleRemoval removes playerID from the session after d, unless a
// connection with the same cookie shows up in the meantime.
func (h *Hub) scheduleRemoval(cfg *Config, playerID string, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.removals[playerID]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		h.mu.Lock()
		if h.removals[playerID] == t {
			delete(h.removals, playerID)
		}
		h.mu.Unlock()

		msgs := h.store.RemoveIfDisconnected(playerID)
		if msgs == nil {
			return
		}

		logf(cfg, "GAMES: Removed %s after %s without a connection", questionables.PublicID(playerID), d)

		h.broadcast(msgs...)
		h.refreshInfo()
	})
	h.removals[playerID] = t
}

// broadcast sends each message to every member of the session. Messages
// that outlive the session (final results, session ended) go to everyone.
func (h *Hub) broadcast(msgs ...questionables.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, msg := range msgs {
		everyone := false
		switch msg.(type) {
		case questionables.FinalResultsMessage, questionables.SessionEndedMessage:
			everyone = true
		}

		for client := range h.clients {
			if !everyone && !h.store.IsMember(client.playerID) {
				continue
			}

			select {
			case client.send <- msg:
			default:
				delete(h.clients, client)
				close(client.send)
			}
		}
	}
}

// refreshInfo resends every client its own session_info, after the
// session has been created or has ended.
func (h *Hub) refreshInfo() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- h.store.Info(client.playerID):
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) sendTo(c *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// closeAll disconnects all clients of this hub (used on shutdown).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}

	for id, t := range h.removals {
		t.Stop()
		delete(h.removals, id)
	}
}

// reaperLoop periodically ends the session if it has been idle longer than
// idleTimeout.
func (h *Hub) reaperLoop(cfg *Config, idleTimeout time.Duration) {
	ticker := time.NewTicker(idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if msg, ok := h.store.Reap(idleTimeout); ok {
				logf(cfg, "GAMES: Ended idle session")
				h.broadcast(msg)
				h.refreshInfo()
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "partygame_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func serveWS(cfg *Config, h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)

		conn, err := upgrader.Upgrade(w, r, w.Header())
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
			limiter:  rate.NewLimiter(rate.Limit(cfg.rateLimit), cfg.rateBurst),
		}

		select {
		case h.register <- client:
		case <-h.ctx.Done():
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(h)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if !c.limiter.Allow() {
			h.sendTo(c, questionables.ErrorMessage{
				Type:    "error",
				Error:   "RATE_LIMITED",
				Message: "Slow down.",
			})
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendTo(c, questionables.ErrorMessage{
				Type:    "error",
				Error:   "BAD_REQUEST",
				Message: "Malformed message.",
			})
			continue
		}

		select {
		case h.intents <- intent{client: c, msg: msg}:
		case <-h.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// qrHandler generates a PNG QR code linking to the game with the join code
// of the live session filled in.
func qrHandler(cfg *Config, path string, h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code, ok := h.store.Code()
		if !ok {
			http.Error(w, "no session running", http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + path + "?code=" + code

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// serveIndex serves the client page and makes sure the visitor has an
// identity cookie before the WebSocket is opened.
func serveIndex(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		data, err := assets.ReadFile("assets/questionables/index.html")
		if err != nil {
			errs <- err
			http.Error(w, "missing client", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Questionables page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// registerQuestionablesGame sets up routes so that:
//   - $path                    → HTML client
//   - $path/ws                 → WebSocket for the session
//   - $path/qr                 → PNG QR code for the join link
//   - /assets/questionables/*  → client script and styles
func registerQuestionablesGame(cfg *Config, path string, mux *httprouter.Router, h *Hub, errs chan<- error) {
	mux.GET(cfg.prefix+path, serveIndex(cfg, errs))

	mux.GET(cfg.prefix+"/assets/questionables/:file", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+path+"/ws", serveWS(cfg, h))

	mux.GET(cfg.prefix+path+"/qr", qrHandler(cfg, path, h))
}
