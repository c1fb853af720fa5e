/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Partyroom game rooms
//
// A room runs one game, either the word-guess game or the elimination game.
// Every change to a room is an event appended to its log through
// room.Service; this file only carries players' commands in and the folded
// room out.
//
// Features:
// - Rooms per id: /:game/:roomid, /:game/:roomid/ws and /:game/:roomid/qr
// - Whoever opens /:game creates the room and is its host
// - Players identified by cookie (partyroom_id)
// - Each connection only sees its own redacted view of the room
// - Rejected commands are reported only to the client that sent them
// - A player gone for longer than the player timeout leaves the lobby, and a
//   host gone that long hands the room to the first connected member
// - The host's coordinator resolves phases and narrates transitions
// - Finished rooms closed after the player timeout, kept in storage
// - Rooms reaped, from memory and storage, after the session timeout
// - Random 8-char room ids via crypto/rand, with server-side collision check
// - QR code to share the current room, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/Seednode/partyroom/games/party"
	"github.com/Seednode/partyroom/room"
)

const (
	playerCookieName = "partyroom_id"
	roomIDLength     = 8
	maxCommandBytes  = 4 << 10
	createAttempts   = 5
)

var errUnknownCommand = errors.New("unknown command")

// ClientMessage is a command sent by a player.
type ClientMessage struct {
	Type   string `json:"type"`             // "join", "ready", "vote", ...
	Name   string `json:"name,omitempty"`   // join
	Ready  *bool  `json:"ready,omitempty"`  // ready
	Text   string `json:"text,omitempty"`   // hint / guess
	Target string `json:"target,omitempty"` // vote / night_action
	Stage  string `json:"stage,omitempty"`  // phase resolutions
}

// SessionInfoMessage is sent immediately on connect so the client knows who
// it is in this room.
type SessionInfoMessage struct {
	Type     string    `json:"type"` // "session_info"
	RoomID   string    `json:"room_id"`
	Game     room.Game `json:"game"`
	PlayerID string    `json:"player_id"`
	IsHost   bool      `json:"is_host"`
	IsMember bool      `json:"is_member"`
}

// RoomMessage carries the room as one viewer may see it.
type RoomMessage struct {
	Type            string        `json:"type"` // "room"
	Room            room.Document `json:"room"`
	Role            string        `json:"role,omitempty"`
	RoleDescription string        `json:"role_description,omitempty"`
}

// SimpleMessage is for notices to a single client ("error", "closed").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func sessionInfo(d room.Document, playerID string) SessionInfoMessage {
	return SessionInfoMessage{
		Type:     "session_info",
		RoomID:   d.RoomID,
		Game:     d.Game,
		PlayerID: playerID,
		IsHost:   d.HostID == playerID,
		IsMember: d.Members.Contains(playerID),
	}
}

func roomMessage(d room.Document, viewerID string) RoomMessage {
	msg := RoomMessage{
		Type: "room",
		Room: d.View(viewerID),
	}

	if d.Mafia != nil {
		if seat, ok := d.Mafia.Seat(viewerID); ok {
			msg.Role = seat.Role.String()
			msg.RoleDescription = seat.Role.Description()
		}
	}

	return msg
}

// commandFor maps a client message to the event it asks for.
func commandFor(msg ClientMessage, playerID string) (room.Command, error) {
	cmd := room.Command{ActorID: playerID}

	switch msg.Type {
	case "join":
		cmd.Kind, cmd.Payload = room.KindJoined, room.JoinedPayload{Name: msg.Name}
	case "ready":
		ready := msg.Ready == nil || *msg.Ready
		cmd.Kind, cmd.Payload = room.KindReady, room.ReadyPayload{Ready: ready}
	case "leave":
		cmd.Kind = room.KindLeft
	case "start":
		cmd.Kind = room.KindStarted
	case "finish":
		cmd.Kind = room.KindFinished
	case "hint":
		cmd.Kind, cmd.Payload = room.KindHint, room.TextPayload{Text: msg.Text}
	case "advance_turn":
		cmd.Kind = room.KindTurnAdvanced
	case "vote":
		cmd.Kind, cmd.Payload = room.KindVote, room.TargetPayload{Target: msg.Target}
	case "close_voting":
		cmd.Kind = room.KindVotingClosed
	case "guess":
		cmd.Kind, cmd.Payload = room.KindGuess, room.TextPayload{Text: msg.Text}
	case "forfeit":
		cmd.Kind = room.KindRebuttalForfeited
	case "night_action":
		cmd.Kind, cmd.Payload = room.KindNightAction, room.TargetPayload{Target: msg.Target}
	case "resolve_night":
		cmd.Kind = room.KindNightResolved
	case "open_vote":
		cmd.Kind = room.KindVoteOpened
	case "resolve_vote":
		cmd.Kind = room.KindVoteResolved
	default:
		return room.Command{}, fmt.Errorf("%w: %q", errUnknownCommand, msg.Type)
	}

	if cmd.Kind.Resolves() && msg.Stage != "" {
		cmd.Payload = room.StagePayload{Stage: msg.Stage}
	}

	return cmd, nil
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type Hub struct {
	id  string
	svc *room.Service

	clients  map[*Client]bool
	register chan *Client
	unreg    chan *Client
	done     chan struct{}
	cancel   context.CancelFunc

	// onFinish runs once, when the hub first sees its room finished.
	onFinish func()

	mu         sync.RWMutex
	doc        room.Document
	lastActive time.Time
}

func newHub(svc *room.Service, d room.Document) *Hub {
	return &Hub{
		id:         d.RoomID,
		svc:        svc,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		done:       make(chan struct{}),
		doc:        d,
		lastActive: time.Now(),
	}
}

func (h *Hub) run(ctx context.Context, cfg *Config) {
	defer close(h.done)
	defer h.closeAll()

	updates := h.svc.Subscribe(ctx, h.id)

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true
			d := h.doc
			h.mu.Unlock()

			c.send <- sessionInfo(d, c.playerID)
			c.send <- roomMessage(d, c.playerID)

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

			if c.playerID != "" {
				go h.scheduleRemoval(ctx, cfg, c.playerID, cfg.playerTimeout)
			}

		case d, ok := <-updates:
			if !ok {
				return
			}

			h.mu.Lock()
			h.doc = d
			h.lastActive = time.Now()
			h.broadcastLocked()
			h.mu.Unlock()

			if d.Status == room.Finished && h.onFinish != nil {
				go h.onFinish()
				h.onFinish = nil
			}
		}
	}
}

// broadcastLocked sends every client its own view of the room, dropping
// clients that have fallen behind.
func (h *Hub) broadcastLocked() {
	for client := range h.clients {
		select {
		case client.send <- roomMessage(h.doc, client.playerID):
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// reply sends msg to c alone, if c is still connected.
func (h *Hub) reply(c *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) snapshot() room.Document {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.doc
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.playerID == playerID {
			return true
		}
	}
	return false
}

// successor is the first member, in join order, with a live connection. When
// nobody is connected it falls back to the first member at all.
func (h *Hub) successor(d room.Document, leaving string) string {
	fallback := ""
	for _, m := range d.Members {
		if m.ID == leaving {
			continue
		}
		if h.connected(m.ID) {
			return m.ID
		}
		if fallback == "" {
			fallback = m.ID
		}
	}
	return fallback
}

// scheduleRemoval waits out the player timeout, then takes a player who has
// not come back out of the lobby, or hands their room on if they were host.
func (h *Hub) scheduleRemoval(ctx context.Context, cfg *Config, playerID string, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if h.connected(playerID) {
		return
	}

	doc, err := h.svc.Load(ctx, h.id)
	if err != nil {
		return
	}

	var cmd room.Command
	switch {
	case doc.Status == room.Waiting && doc.Members.Contains(playerID):
		cmd = room.Command{Kind: room.KindLeft, ActorID: playerID}
	case doc.Status == room.Playing && doc.HostID == playerID:
		next := h.successor(doc, playerID)
		if next == "" {
			return
		}
		cmd = room.Command{
			Kind:    room.KindHostTransferred,
			ActorID: room.SystemActor,
			Payload: room.HostPayload{HostID: next},
		}
	default:
		return
	}

	if _, err := h.svc.Submit(ctx, h.id, cmd); err != nil {
		logf(cfg, "GAMES: Could not remove %s from %s: %v", playerID, h.id, err)
		return
	}

	logf(cfg, "GAMES: Player %s timed out of %s (%s)", playerID, h.id, cmd.Kind)
}

// submit runs msg on behalf of c and reports a rejection back to c alone.
func (h *Hub) submit(ctx context.Context, cfg *Config, c *Client, msg ClientMessage) {
	h.touch()

	_, err := submitCommand(ctx, cfg, h.svc, h.id, c.playerID, msg)
	if err != nil {
		h.reply(c, SimpleMessage{Type: "error", Message: clientError(err)})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- SimpleMessage{Type: "closed", Message: "This room has closed."}:
		default:
		}
		close(c.send)
		delete(h.clients, c)
	}
}

func submitCommand(ctx context.Context, cfg *Config, svc *room.Service, roomID, playerID string, msg ClientMessage) (room.Document, error) {
	cmd, err := commandFor(msg, playerID)
	if err != nil {
		return room.Document{}, err
	}

	d, err := svc.Submit(ctx, roomID, cmd)
	switch {
	case err == nil:
		logf(cfg, "GAMES: %s by %s in %s", cmd.Kind, playerID, roomID)
	case party.IsIllegal(err), errors.Is(err, room.ErrNotFound):
		logf(cfg, "GAMES: Rejected %s by %s in %s: %v", cmd.Kind, playerID, roomID, err)
	default:
		cfg.logger.Error("submit command",
			zap.String("room_id", roomID),
			zap.String("kind", string(cmd.Kind)),
			zap.Error(err),
		)
	}

	return d, err
}

// clientError is what a player is told about a failed command. Storage
// failures stay in the server log.
func clientError(err error) string {
	switch {
	case party.IsIllegal(err), errors.Is(err, errUnknownCommand), errors.Is(err, room.ErrNotFound),
		errors.Is(err, party.ErrInsufficientPlayers), errors.Is(err, party.ErrInvalidRoster):
		return err.Error()
	default:
		return "Something went wrong. Please try again."
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
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

type RoomManager struct {
	cfg   *Config
	svc   *room.Service
	coord room.Coordinator
	base  context.Context

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newRoomManager(ctx context.Context, cfg *Config, svc *room.Service, coord room.Coordinator) *RoomManager {
	return &RoomManager{
		cfg:         cfg,
		svc:         svc,
		coord:       coord,
		base:        ctx,
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
	}
}

// getHub returns the running hub of an existing room, starting it and the
// room's coordinator on first use.
func (m *RoomManager) getHub(roomID string) (*Hub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[roomID]; ok {
		return hub, nil
	}

	d, err := m.svc.Load(m.base, roomID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(m.base)

	hub := newHub(m.svc, d)
	hub.cancel = cancel
	hub.onFinish = func() { m.retire(ctx, hub, m.cfg.playerTimeout) }
	m.hubs[roomID] = hub

	go hub.run(ctx, m.cfg)

	if d.Status != room.Finished {
		go m.coordinate(ctx, roomID)
	}

	return hub, nil
}

// live counts the rooms with a running hub.
func (m *RoomManager) live() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.hubs)
}

func (m *RoomManager) coordinate(ctx context.Context, roomID string) {
	coord := m.coord

	err := coord.Run(ctx, roomID)
	if err != nil && !errors.Is(err, context.Canceled) {
		m.cfg.logger.Warn("coordinator stopped", zap.String("room_id", roomID), zap.Error(err))
	}
}

func (m *RoomManager) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, roomIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomIDLength)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		m.mu.Lock()
		_, exists := m.hubs[id]
		m.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// createRoom opens a new room hosted by hostID and starts its hub.
func (m *RoomManager) createRoom(ctx context.Context, game room.Game, hostID string) (*Hub, error) {
	for range createAttempts {
		id := m.newRoomID()

		_, err := m.svc.Create(ctx, id, game, hostID, m.cfg.maxPlayers)
		if party.IsIllegal(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		return m.getHub(id)
	}

	return nil, errors.New("could not allocate a room id")
}

// retire drops a finished room's hub once grace has passed. The room stays
// in storage, so its outcome can still be opened until it is reaped.
func (m *RoomManager) retire(ctx context.Context, hub *Hub, grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	m.mu.Lock()
	if m.hubs[hub.id] == hub {
		delete(m.hubs, hub.id)
	}
	m.mu.Unlock()

	hub.cancel()

	logf(m.cfg, "GAMES: Closed finished room %s", hub.id)
}

// reap ends every room idle since before cutoff, in memory and in storage.
func (m *RoomManager) reap(ctx context.Context, cutoff time.Time) {
	m.mu.Lock()
	var idle []*Hub
	for id, hub := range m.hubs {
		hub.mu.RLock()
		last := hub.lastActive
		hub.mu.RUnlock()

		if last.Before(cutoff) {
			delete(m.hubs, id)
			idle = append(idle, hub)
		}
	}
	m.mu.Unlock()

	for _, hub := range idle {
		hub.cancel()

		if err := m.svc.Delete(ctx, hub.id); err != nil {
			m.cfg.logger.Warn("delete idle room", zap.String("room_id", hub.id), zap.Error(err))
			continue
		}

		logf(m.cfg, "GAMES: Reaped idle room %s", hub.id)
	}
}

func (m *RoomManager) reaperLoop(ctx context.Context) error {
	if m.idleTimeout <= 0 {
		return nil
	}

	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.reap(ctx, time.Now().Add(-m.idleTimeout))
		}
	}
}

// roomHub resolves the :roomid of a request to a running hub for game.
func (m *RoomManager) roomHub(w http.ResponseWriter, game room.Game, ps httprouter.Params) (*Hub, bool) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return nil, false
	}

	hub, err := m.getHub(roomID)
	switch {
	case errors.Is(err, room.ErrNotFound):
		http.Error(w, "room not found", http.StatusNotFound)
		return nil, false
	case err != nil:
		m.cfg.logger.Error("load room", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "unable to load room", http.StatusInternalServerError)
		return nil, false
	}

	if hub.snapshot().Game != game {
		http.Error(w, "room not found", http.StatusNotFound)
		return nil, false
	}

	return hub, true
}

func serveWSForManager(cfg *Config, m *RoomManager, game room.Game) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)

		hub, ok := m.roomHub(w, game, ps)
		if !ok {
			return
		}

		// The hijacked response only carries the headers passed here, which
		// include a freshly set player cookie.
		conn, err := upgrader.Upgrade(w, r, w.Header())
		if err != nil {
			logf(cfg, "GAMES: Upgrade error: %v", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(m.base, cfg, hub)
	}
}

func (c *Client) readPump(ctx context.Context, cfg *Config, h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		h.submit(ctx, cfg, c, msg)
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

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func serveRoom(cfg *Config, m *RoomManager, game room.Game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)
		securityHeaders(cfg, w)

		hub, ok := m.roomHub(w, game, ps)
		if !ok {
			return
		}
		hub.touch()

		if err := writeJSON(w, http.StatusOK, roomMessage(hub.snapshot(), playerID)); err != nil {
			errs <- err
		}
	}
}

func serveCommand(cfg *Config, m *RoomManager, game room.Game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)
		securityHeaders(cfg, w)

		hub, ok := m.roomHub(w, game, ps)
		if !ok {
			return
		}
		hub.touch()

		var msg ClientMessage
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBytes)).Decode(&msg); err != nil {
			http.Error(w, "invalid command", http.StatusBadRequest)
			return
		}

		d, err := submitCommand(r.Context(), cfg, m.svc, hub.id, playerID, msg)

		var werr error
		switch {
		case err == nil:
			werr = writeJSON(w, http.StatusOK, roomMessage(d, playerID))
		case errors.Is(err, errUnknownCommand):
			werr = writeJSON(w, http.StatusBadRequest, SimpleMessage{Type: "error", Message: clientError(err)})
		case party.IsIllegal(err), errors.Is(err, party.ErrInsufficientPlayers), errors.Is(err, party.ErrInvalidRoster):
			werr = writeJSON(w, http.StatusConflict, SimpleMessage{Type: "error", Message: clientError(err)})
		default:
			werr = writeJSON(w, http.StatusInternalServerError, SimpleMessage{Type: "error", Message: clientError(err)})
		}
		if werr != nil {
			errs <- werr
		}
	}
}

func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func redirectNewRoom(cfg *Config, m *RoomManager, game room.Game, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)

		hub, err := m.createRoom(r.Context(), game, playerID)
		if err != nil {
			cfg.logger.Error("create room", zap.String("game", game.String()), zap.Error(err))
			http.Error(w, "unable to create room", http.StatusInternalServerError)
			return
		}

		logf(cfg, "GAMES: Created room %s/%s", path, hub.id)
		http.Redirect(w, r, cfg.prefix+path+"/"+hub.id, http.StatusTemporaryRedirect)
	}
}

func registerRooms(cfg *Config, m *RoomManager, game room.Game, mux *httprouter.Router, errs chan<- error) {
	path := "/" + game.String()

	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, m, game, path))

	mux.GET(cfg.prefix+path+"/:roomid", serveRoom(cfg, m, game, errs))

	mux.POST(cfg.prefix+path+"/:roomid", serveCommand(cfg, m, game, errs))

	mux.GET(cfg.prefix+path+"/:roomid/ws", serveWSForManager(cfg, m, game))

	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)
}
