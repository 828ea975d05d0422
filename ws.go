/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LobbyMessage is pushed to lobby sockets whenever the view changes.
type LobbyMessage struct {
	Type string `json:"type"` // "lobby_view"
	LobbyView
}

// SimpleMessage is for one-off notifications such as "room_closed".
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
	roomID   string

	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// presence counts live sockets per room member, so a player with two tabs
// open only goes disconnected when the last one closes.
type presence struct {
	mu    sync.Mutex
	conns map[string]map[*Client]struct{}
}

func newPresence() *presence {
	return &presence{conns: make(map[string]map[*Client]struct{})}
}

// attach reports whether c is the member's first live socket.
func (p *presence) attach(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := reapKey(c.roomID, c.playerID)

	set := p.conns[key]
	if set == nil {
		set = make(map[*Client]struct{})
		p.conns[key] = set
	}
	set[c] = struct{}{}

	return len(set) == 1
}

// detach reports whether c was the member's last live socket.
func (p *presence) detach(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := reapKey(c.roomID, c.playerID)

	set, ok := p.conns[key]
	if !ok {
		return false
	}

	if _, ok := set[c]; !ok {
		return false
	}

	delete(set, c)
	if len(set) > 0 {
		return false
	}

	delete(p.conns, key)

	return true
}

// disconnect closes sockets held by playerID, limited to roomID unless it
// is empty.
func (p *presence) disconnect(roomID, playerID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for key, set := range p.conns {
		if roomID != "" && !strings.HasPrefix(key, roomID+"/") {
			continue
		}

		for c := range set {
			if c.playerID == playerID {
				c.close()
				n++
			}
		}
	}

	return n
}

// closeAll disconnects every lobby socket (used on shutdown).
func (p *presence) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, set := range p.conns {
		for c := range set {
			c.close()
		}
	}
}

// serveLobbySocket streams the lobby view of :code to a signed-in member.
func serveLobbySocket(a *arena) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), a.cfg.requestTimeout)

		s, err := a.identity.Session(ctx, r)
		if err != nil {
			cancel()
			writeError(a.cfg, w, r, err)
			return
		}

		room, err := a.lobby.GetRoom(ctx, p.ByName("code"))
		if err == nil {
			_, err = a.lobby.Member(ctx, room, s.ID)
		}
		cancel()

		if err != nil {
			writeError(a.cfg, w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logErr(fmt.Errorf("upgrade %s: %w", realIP(r), err))
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, sendBuffer),
			playerID: s.ID,
			roomID:   room.ID,
		}

		a.runClient(client, room, s)
	}
}

func (a *arena) runClient(c *Client, room Room, s Session) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.presence.attach(c) {
		a.setConnection(room, c.playerID, PlayerConnected)
	}

	defer func() {
		if a.presence.detach(c) {
			a.setConnection(room, c.playerID, PlayerDisconnected)
		}
	}()

	rs, err := startRoomSync(ctx, a.cfg, a.lobby, a.feed, room)
	if err != nil {
		logErr(fmt.Errorf("sync %s: %w", room.Code, err))
		c.close()
		return
	}
	defer rs.Close()

	logf(a.cfg, "LOBBY: %q connected to %s", s.Username, room.Code)

	go c.forward(rs.Updates())
	go c.writePump()

	c.readPump()

	logf(a.cfg, "LOBBY: %q disconnected from %s", s.Username, room.Code)
}

func (a *arena) setConnection(room Room, playerID string, status PlayerStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.requestTimeout)
	defer cancel()

	err := a.lobby.SetConnection(ctx, room, playerID, status)
	if err != nil && !errors.Is(err, ErrNotFound) {
		logErr(fmt.Errorf("mark %s %s in %s: %w", playerID, status, room.Code, err))
	}
}

// forward owns c.send: it relays views until the sync ends, then closes it.
func (c *Client) forward(views <-chan LobbyView) {
	defer close(c.send)

	for v := range views {
		var msg any = LobbyMessage{Type: "lobby_view", LobbyView: v}

		select {
		case c.send <- msg:
		default:
			// Client is slow/full - drop them.
			c.close()
			return
		}

		if v.Closed {
			select {
			case c.send <- SimpleMessage{Type: "room_closed", Message: "This room has been closed."}:
			default:
			}
			return
		}
	}
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Commands go through the HTTP API; anything read here is ignored.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
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
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

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

func roomURL(cfg *Config, r *http.Request, code string) string {
	scheme := cfg.scheme()
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix + "/room/" + code
}

// serveRoomQR renders a PNG QR code pointing at the room page.
func serveRoomQR(a *arena, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		ctx, cancel := context.WithTimeout(r.Context(), a.cfg.requestTimeout)
		defer cancel()

		room, err := a.lobby.GetRoom(ctx, p.ByName("code"))
		if err != nil {
			writeError(a.cfg, w, r, err)
			return
		}

		const qrSize = 320
		png, err := qrcode.Encode(roomURL(a.cfg, r, room.Code), qrcode.Medium, qrSize)
		if err != nil {
			writeError(a.cfg, w, r, fmt.Errorf("qr generation failed: %w", err))
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(a.cfg, w)

		written, err := w.Write(png)
		if err != nil {
			errs <- err

			return
		}

		logf(a.cfg, "SERVE: QR code for %s (%s) to %s in %s",
			room.Code,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}
