package playback

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lexiqai/voice-studio/internal/asset"
	"github.com/lexiqai/voice-studio/internal/observability"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Hub fans playback commands out to websocket players attached to sessions
type Hub struct {
	baseURL  string
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	players map[string]map[*player]struct{} // session id -> players
	owners  map[string]string               // announced asset id -> session id
	closed  bool
}

type player struct {
	conn *websocket.Conn
	send chan Command
}

// NewHub creates a hub. baseURL prefixes asset URLs; allowedOrigins of ["*"] accepts any origin.
func NewHub(baseURL string, allowedOrigins []string) *Hub {
	h := &Hub{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  observability.GetLogger().With().Str("component", "playback").Logger(),
		players: make(map[string]map[*player]struct{}),
		owners:  make(map[string]string),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// AssetURL returns the URL a player fetches the asset from
func (h *Hub) AssetURL(assetID string) string {
	return h.baseURL + "/assets/" + assetID
}

// Channel returns the playback endpoint for one session
func (h *Hub) Channel(sessionID string) *Channel {
	return &Channel{hub: h, sessionID: sessionID}
}

// Players returns the number of players attached to a session
func (h *Hub) Players(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players[sessionID])
}

// ServeWS upgrades the request and attaches a player to the session.
// It blocks until the player disconnects or the session is detached.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	p := &player{conn: conn, send: make(chan Command, sendBuffer)}
	if !h.register(sessionID, p) {
		conn.Close()
		return fmt.Errorf("playback hub is closed")
	}

	logger := h.logger.With().Str("session_id", sessionID).Str("remote_addr", r.RemoteAddr).Logger()
	logger.Info().Msg("Player attached")
	observability.RecordPlayerAttached()

	go p.writePump(logger)
	p.readPump()

	h.unregister(sessionID, p)
	observability.RecordPlayerDetached()
	logger.Info().Msg("Player detached")
	return nil
}

func (h *Hub) register(sessionID string, p *player) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.players[sessionID] == nil {
		h.players[sessionID] = make(map[*player]struct{})
	}
	h.players[sessionID][p] = struct{}{}
	return true
}

func (h *Hub) unregister(sessionID string, p *player) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.players[sessionID]
	if !ok {
		return
	}
	if _, ok := set[p]; !ok {
		return
	}
	delete(set, p)
	close(p.send)
	if len(set) == 0 {
		delete(h.players, sessionID)
	}
}

// broadcast queues cmd for every player of the session and returns how many accepted it
func (h *Hub) broadcast(sessionID string, cmd Command) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for p := range h.players[sessionID] {
		select {
		case p.send <- cmd:
			sent++
		default:
			h.logger.Warn().Str("session_id", sessionID).Str("type", cmd.Type).Msg("Player send buffer full, dropping command")
		}
	}
	return sent
}

func (h *Hub) announce(assetID, sessionID string) {
	h.mu.Lock()
	h.owners[assetID] = sessionID
	h.mu.Unlock()
}

// AssetReleased tells the owning session's players to drop a revoked asset.
// Register it with asset.Manager.OnRelease.
func (h *Hub) AssetReleased(a *asset.Asset) {
	h.mu.Lock()
	sessionID, ok := h.owners[a.ID()]
	delete(h.owners, a.ID())
	h.mu.Unlock()

	if !ok {
		return
	}
	h.broadcast(sessionID, Command{Type: CommandRevoke, AssetID: a.ID()})
}

// Detach disconnects every player of a destroyed session
func (h *Hub) Detach(sessionID string) {
	h.mu.Lock()
	set := h.players[sessionID]
	delete(h.players, sessionID)
	for p := range set {
		select {
		case p.send <- Command{Type: CommandClosed}:
		default:
		}
		close(p.send)
	}
	h.mu.Unlock()
}

// Close disconnects all players and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	ids := make([]string, 0, len(h.players))
	for id := range h.players {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Detach(id)
	}
}

// writePump drains the send queue until it is closed, then closes the connection
func (p *player) writePump(logger zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case cmd, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteJSON(cmd); err != nil {
				observability.RecordError("write", "playback")
				logger.Warn().Err(err).Str("type", cmd.Type).Msg("Failed to write player command")
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames and returns when the connection drops
func (p *player) readPump() {
	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Channel is a session-bound Sink that also reports errors to the session's players
type Channel struct {
	hub       *Hub
	sessionID string
}

// Play announces the asset and tells players to restart it at rate.
// Having no players attached is not an error.
func (c *Channel) Play(ctx context.Context, a *asset.Asset, rate float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a == nil {
		return asset.ErrNotFound
	}
	if a.Released() {
		return asset.ErrReleased
	}

	c.hub.announce(a.ID(), c.sessionID)

	start := 0.0
	sent := c.hub.broadcast(c.sessionID, Command{
		Type:        CommandPlay,
		AssetID:     a.ID(),
		URL:         c.hub.AssetURL(a.ID()),
		ContentType: a.ContentType(),
		Rate:        rate,
		Position:    &start,
	})

	observability.RecordPlay(strconv.FormatFloat(rate, 'f', -1, 64))
	c.hub.logger.Debug().
		Str("session_id", c.sessionID).
		Str("asset_id", a.ID()).
		Float64("rate", rate).
		Int("players", sent).
		Msg("Play command sent")
	return nil
}

// Report surfaces a failure message to the session's players
func (c *Channel) Report(message string) {
	c.hub.broadcast(c.sessionID, Command{Type: CommandError, Message: message})
}
