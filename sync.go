/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// LobbyView is what a lobby client renders: the room row and its roster.
type LobbyView struct {
	Room    *Room        `json:"room"`
	Players []PlayerView `json:"players"`
	Closed  bool         `json:"closed,omitempty"`

	// rosterGen is the generation of the roster fetch currently shown.
	rosterGen uint64
}

// lobbyUpdate is one input to reduceLobby. Exactly one of room, roomDeleted
// or players is meaningful.
type lobbyUpdate struct {
	room        *Room
	roomDeleted bool

	players    []PlayerView
	hasPlayers bool
	generation uint64
}

// reduceLobby folds u into v and returns the new view. It never mutates v.
// Room rows replace the current one, last write wins, but only for the room
// already shown. Roster results older than the one shown are ignored, as
// is anything arriving after the room was deleted.
func reduceLobby(v LobbyView, u lobbyUpdate) LobbyView {
	if v.Closed {
		return v
	}

	switch {
	case u.roomDeleted:
		v.Closed = true

	case u.room != nil:
		if v.Room != nil && v.Room.ID != u.room.ID {
			return v
		}

		room := *u.room
		v.Room = &room

	case u.hasPlayers:
		if u.generation < v.rosterGen {
			return v
		}

		v.Players = slices.Clone(u.players)
		if v.Players == nil {
			v.Players = []PlayerView{}
		}
		v.rosterGen = u.generation
	}

	return v
}

// roomSync keeps one viewer's LobbyView current by following the room's
// change feed. The latest view is always available on Updates; views that
// were never read are replaced by newer ones.
type roomSync struct {
	cfg   *Config
	lobby *Lobby

	roomID string
	topic  string

	unsubscribe func()
	cancel      context.CancelFunc

	generation atomic.Uint64

	mu     sync.Mutex
	view   LobbyView
	closed bool
	out    chan LobbyView
}

func startRoomSync(ctx context.Context, cfg *Config, lobby *Lobby, feed Feed, room Room) (*roomSync, error) {
	ctx, cancel := context.WithCancel(ctx)

	s := &roomSync{
		cfg:    cfg,
		lobby:  lobby,
		roomID: room.ID,
		topic:  roomTopic(room.Code),
		cancel: cancel,
		view:   LobbyView{Room: &room, Players: []PlayerView{}},
		out:    make(chan LobbyView, 1),
	}

	// Subscribe before the first fetch so nothing written in between is lost.
	changes, unsubscribe, err := feed.Subscribe(ctx, s.topic)
	if err != nil {
		cancel()
		return nil, err
	}
	s.unsubscribe = unsubscribe

	s.refetch(ctx)

	go s.run(ctx, changes)

	return s, nil
}

// Updates delivers the most recent view. It is closed when the sync stops.
func (s *roomSync) Updates() <-chan LobbyView {
	return s.out
}

func (s *roomSync) run(ctx context.Context, changes <-chan Change) {
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			s.handle(ctx, c)
		}
	}
}

func (s *roomSync) handle(ctx context.Context, c Change) {
	switch c.Table {
	case TableRooms:
		switch {
		case c.Event == EventDelete:
			if c.Room == nil || c.Room.ID == s.roomID {
				s.apply(lobbyUpdate{roomDeleted: true})
			}
		case c.Room != nil:
			s.apply(lobbyUpdate{room: c.Room})
		}

	case TableRoomPlayers:
		if c.Player != nil && c.Player.RoomID != "" && c.Player.RoomID != s.roomID {
			return
		}

		go s.refetch(ctx)
	}
}

// refetch reloads the whole roster. Fetches may finish out of order; the
// generation taken here lets reduceLobby keep only the newest.
func (s *roomSync) refetch(ctx context.Context) {
	gen := s.generation.Add(1)

	players, err := s.lobby.Roster(ctx, s.roomID)
	if err != nil {
		if ctx.Err() == nil {
			logErr(fmt.Errorf("sync %s: fetch roster: %w", s.topic, err))
		}

		return
	}

	s.apply(lobbyUpdate{players: players, hasPlayers: true, generation: gen})
}

func (s *roomSync) apply(u lobbyUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.view = reduceLobby(s.view, u)

	// Replace any unread view with the newest one.
	select {
	case <-s.out:
	default:
	}
	s.out <- s.view

	if s.view.Closed {
		logf(s.cfg, "SYNC: %s closed", s.topic)
	}
}

// Close ends the subscription. It is safe to call more than once.
func (s *roomSync) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	s.cancel()
	s.unsubscribe()
	close(s.out)
}
