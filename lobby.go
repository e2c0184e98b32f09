/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Versus rooms over websockets
//
// Every browser tab opens one websocket on /ws and may sit in any number of
// rooms through it. Rooms are created by the first join-room naming them and
// hold exactly two players. The server decides which role a connection
// plays, so a client can only ever move for itself.
//
// Routes:
//   - /play/:game             redirects to a fresh 6-character room code
//   - /play/:game/:room       room page with a QR code for the second player
//   - /play/:game/:room/state JSON snapshot of the room
//   - /play/:game/:room/qr    PNG QR code of the room page
//   - /ws                     websocket carrying join-room and make-move

package main

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/versus/games"
	"github.com/Seednode/versus/rooms"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	roomCodeLength = 6
	roomCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Messages coming from clients
type ClientMessage struct {
	Type     string          `json:"type"`               // "join-room", "make-move"
	RoomID   string          `json:"roomId"`             // both
	GameType string          `json:"gameType,omitempty"` // join-room
	Position json.RawMessage `json:"position,omitempty"` // make-move
}

// RoleAssignedMessage is sent only to the connection that just took a seat.
type RoleAssignedMessage struct {
	Type     string        `json:"type"` // "role-assigned"
	RoomID   string        `json:"roomId"`
	GameType games.Variant `json:"gameType"`
	Role     games.Role    `json:"role"`
}

// ParticipantsChangedMessage goes to everyone seated after a join.
type ParticipantsChangedMessage struct {
	Type          string     `json:"type"` // "participants-changed"
	RoomID        string     `json:"roomId"`
	PlayerCount   int        `json:"playerCount"`
	CurrentPlayer games.Role `json:"currentPlayer"`
}

// MoveResultMessage goes to everyone seated after an accepted move.
type MoveResultMessage struct {
	Type          string          `json:"type"` // "move-result"
	RoomID        string          `json:"roomId"`
	Position      games.Move      `json:"position"`
	Player        games.Role      `json:"player"`
	GameState     json.RawMessage `json:"gameState"`
	CurrentPlayer games.Role      `json:"currentPlayer"`
	GameResult    games.Result    `json:"gameResult"`
	Summary       string          `json:"summary,omitempty"`
}

// NoticeMessage covers room-full, opponent-left, room-closed, move-rejected
// and join-rejected.
type NoticeMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Reason string `json:"reason,omitempty"`
}

type Client struct {
	id   string
	conn *websocket.Conn
	send chan any

	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	roles map[string]games.Role // roomID -> role played there
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:    uuid.NewString(),
		conn:  conn,
		send:  make(chan any, sendBuffer),
		done:  make(chan struct{}),
		roles: make(map[string]games.Role),
	}
}

// deliver queues msg without blocking. A client too slow to drain its
// buffer is dropped.
func (c *Client) deliver(msg any) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) role(roomID string) (games.Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	role, ok := c.roles[roomID]
	return role, ok
}

func (c *Client) setRole(roomID string, role games.Role) {
	c.mu.Lock()
	c.roles[roomID] = role
	c.mu.Unlock()
}

func (c *Client) forget(roomID string) {
	c.mu.Lock()
	delete(c.roles, roomID)
	c.mu.Unlock()
}

// Lobby owns the websocket clients and hands their commands to the room
// coordinator.
type Lobby struct {
	cfg   *Config
	rooms *rooms.Coordinator

	mu      sync.RWMutex
	clients map[string]*Client
}

func newLobby(cfg *Config) *Lobby {
	l := &Lobby{
		cfg:     cfg,
		clients: make(map[string]*Client),
	}

	l.rooms = rooms.NewCoordinator(rooms.Config{
		FinishGrace: cfg.finishGrace,
		EmptyGrace:  cfg.emptyGrace,
		IdleTimeout: cfg.sessionTimeout,
		Logger:      roomLogger(cfg),
		OnReclaim:   l.roomClosed,
	})

	return l
}

// Close stops the coordinator and hangs up on every client.
func (l *Lobby) Close() {
	l.rooms.Close()

	l.mu.Lock()
	clients := make([]*Client, 0, len(l.clients))
	for _, c := range l.clients {
		clients = append(clients, c)
	}
	clear(l.clients)
	l.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (l *Lobby) register(c *Client) {
	l.mu.Lock()
	l.clients[c.id] = c
	l.mu.Unlock()
}

// broadcast sends msg to every listed connection still attached.
func (l *Lobby) broadcast(connIDs []string, msg any) {
	l.mu.RLock()
	targets := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := l.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	l.mu.RUnlock()

	for _, c := range targets {
		c.deliver(msg)
	}
}

func (l *Lobby) handleJoin(c *Client, msg ClientMessage) {
	if msg.RoomID == "" {
		c.deliver(NoticeMessage{Type: "join-rejected", Reason: "missing room id"})
		return
	}

	res, err := l.rooms.Join(msg.RoomID, games.Variant(msg.GameType), c.id)
	switch {
	case errors.Is(err, rooms.ErrRoomFull):
		logf(l.cfg, "ROOMS: %s turned away from full room %s", c.id, msg.RoomID)
		c.deliver(NoticeMessage{Type: "room-full", RoomID: msg.RoomID})
		return
	case errors.Is(err, games.ErrUnknownVariant):
		c.deliver(NoticeMessage{Type: "join-rejected", RoomID: msg.RoomID, Reason: err.Error()})
		return
	case err != nil:
		logf(l.cfg, "ROOMS: join %s failed: %v", msg.RoomID, err)
		c.deliver(NoticeMessage{Type: "join-rejected", RoomID: msg.RoomID, Reason: "unable to create room"})
		return
	}

	if res.Created {
		logf(l.cfg, "ROOMS: Created %s room %s", res.Variant, res.RoomID)
	}
	logf(l.cfg, "ROOMS: %s joined %s as %s (%d/2)", c.id, res.RoomID, res.Role, res.Count)

	c.setRole(res.RoomID, res.Role)

	c.deliver(RoleAssignedMessage{
		Type:     "role-assigned",
		RoomID:   res.RoomID,
		GameType: res.Variant,
		Role:     res.Role,
	})

	l.broadcast(res.Members, ParticipantsChangedMessage{
		Type:          "participants-changed",
		RoomID:        res.RoomID,
		PlayerCount:   res.Count,
		CurrentPlayer: res.Turn,
	})
}

func (l *Lobby) handleMove(c *Client, msg ClientMessage) {
	reject := func(reason string) {
		c.deliver(NoticeMessage{Type: "move-rejected", RoomID: msg.RoomID, Reason: reason})
	}

	role, ok := c.role(msg.RoomID)
	if !ok {
		reject(rooms.ErrUnknownRoom.Error())
		return
	}

	var move games.Move
	if err := json.Unmarshal(msg.Position, &move); err != nil {
		reject(games.ErrBadMove.Error())
		return
	}

	res, err := l.rooms.Move(msg.RoomID, move, role)
	if err != nil {
		reject(err.Error())
		return
	}

	if res.Result.GameOver {
		logf(l.cfg, "ROOMS: Room %s finished (winner=%q draw=%t)", res.RoomID, res.Result.Winner, res.Result.Draw)
	}

	l.broadcast(res.Members, MoveResultMessage{
		Type:          "move-result",
		RoomID:        res.RoomID,
		Position:      res.Move,
		Player:        res.Role,
		GameState:     res.State,
		CurrentPlayer: res.Turn,
		GameResult:    res.Result,
		Summary:       res.Effect,
	})
}

// disconnect unseats c everywhere and tells whoever is left behind.
func (l *Lobby) disconnect(c *Client) {
	l.mu.Lock()
	delete(l.clients, c.id)
	l.mu.Unlock()

	c.close()

	for _, d := range l.rooms.Disconnect(c.id) {
		c.forget(d.RoomID)
		logf(l.cfg, "ROOMS: %s left %s (%d/2)", c.id, d.RoomID, d.Count)

		l.broadcast(d.Remaining, NoticeMessage{Type: "opponent-left", RoomID: d.RoomID})
	}
}

// roomClosed runs when the coordinator reclaims a room.
func (l *Lobby) roomClosed(roomID string, members []string) {
	logf(l.cfg, "ROOMS: Closed room %s", roomID)

	l.mu.RLock()
	for _, id := range members {
		if c, ok := l.clients[id]; ok {
			c.forget(roomID)
		}
	}
	l.mu.RUnlock()

	l.broadcast(members, NoticeMessage{Type: "room-closed", RoomID: roomID})
}

// newRoomCode generates a crypto-random room code and ensures it doesn't
// collide with a live room.
func (l *Lobby) newRoomCode() string {
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = roomCodeChars[int(buf[i])%len(roomCodeChars)]
		}
		code := string(out)

		if !l.rooms.Exists(code) {
			return code
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

func serveWebSocket(l *Lobby) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(l.cfg, "SERVE: Websocket upgrade for %s failed: %v", realIP(r), err)
			return
		}

		client := newClient(conn)
		l.register(client)

		logf(l.cfg, "SERVE: Websocket %s opened by %s", client.id, realIP(r))

		go client.writePump()
		client.readPump(l)
	}
}

func (c *Client) readPump(l *Lobby) {
	defer l.disconnect(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logf(l.cfg, "SERVE: Dropped malformed message from %s: %v", c.id, err)
			continue
		}

		switch msg.Type {
		case "join-room":
			l.handleJoin(c, msg)
		case "make-move":
			l.handleMove(c, msg)
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
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

// knownGame resolves the :game route parameter.
func knownGame(p httprouter.Params) (games.Variant, bool) {
	v := games.Variant(p.ByName("game"))
	return v, slices.Contains(games.Variants(), v)
}

func notFound(cfg *Config, w http.ResponseWriter, errs chan<- error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(http.StatusNotFound)

	if _, err := w.Write([]byte(newPage("Not Found", "Nothing to play here."))); err != nil {
		errs <- err
	}
}

// redirectNewRoom handles GET /play/:game by generating a new room code
// and redirecting to /play/:game/:room.
func redirectNewRoom(l *Lobby, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		variant, ok := knownGame(p)
		if !ok {
			notFound(l.cfg, w, errs)
			return
		}

		code := l.newRoomCode()
		logf(l.cfg, "ROOMS: Issued %s room code %s to %s", variant, code, realIP(r))

		http.Redirect(w, r, fmt.Sprintf("%s/play/%s/%s", l.cfg.prefix, variant, code), http.StatusTemporaryRedirect)
	}
}

func serveRoomPage(l *Lobby, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		variant, ok := knownGame(p)
		if !ok {
			notFound(l.cfg, w, errs)
			return
		}
		roomID := p.ByName("room")

		var body strings.Builder
		body.WriteString(fmt.Sprintf("<h1>%s</h1>", html.EscapeString(variant.Title())))
		body.WriteString(fmt.Sprintf("<p>Room <strong>%s</strong>. Share this page with your opponent.</p>", html.EscapeString(roomID)))
		body.WriteString(fmt.Sprintf(`<p><img src="%s/play/%s/%s/qr" alt="QR code for this room" width="320" height="320"></p>`,
			html.EscapeString(l.cfg.prefix), html.EscapeString(string(variant)), html.EscapeString(roomID)))
		body.WriteString(fmt.Sprintf(`<p>Connect to <code>%s/ws</code> and send <code>{"type":"join-room","roomId":"%s","gameType":"%s"}</code>.</p>`,
			html.EscapeString(l.cfg.prefix), html.EscapeString(roomID), html.EscapeString(string(variant))))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(l.cfg, w)

		written, err := w.Write([]byte(newPage(variant.Title()+" "+roomID, body.String())))
		if err != nil {
			errs <- err

			return
		}

		logf(l.cfg, "SERVE: Room page %s (%s) to %s in %s",
			roomID,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveRoomState(l *Lobby, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		variant, ok := knownGame(p)
		if !ok {
			http.Error(w, "unknown game", http.StatusNotFound)
			return
		}

		snap, ok := l.rooms.Room(p.ByName("room"))
		if !ok || snap.Variant != variant {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		data, err := json.Marshal(snap)
		if err != nil {
			errs <- err
			http.Error(w, "unable to encode room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(l.cfg, w)

		if _, err := w.Write(data); err != nil {
			errs <- err
		}
	}
}

// qrHandler generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if _, ok := knownGame(p); !ok {
			http.Error(w, "unknown game", http.StatusNotFound)
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

		// We are at /.../:room/qr; strip trailing "/qr" to get the room URL.
		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

func registerRooms(l *Lobby, mux *httprouter.Router, errs chan<- error) {
	prefix := l.cfg.prefix

	mux.GET(prefix+"/play/:game", redirectNewRoom(l, errs))
	mux.GET(prefix+"/play/:game/:room", serveRoomPage(l, errs))
	mux.GET(prefix+"/play/:game/:room/state", serveRoomState(l, errs))
	mux.GET(prefix+"/play/:game/:room/qr", qrHandler(l.cfg, errs))

	mux.GET(prefix+"/ws", serveWebSocket(l))
}
