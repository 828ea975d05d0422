/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"strings"
)

var (
	errNoRow     = kindError(ErrNotFound, "no matching row")
	errDuplicate = kindError(ErrConflict, "duplicate key")
)

// Store is the relational backing for profiles, rooms and room memberships.
// Implementations must be safe for concurrent use and must delete a room's
// memberships along with the room.
type Store interface {
	InsertProfile(ctx context.Context, p Profile) error
	ProfileByID(ctx context.Context, id string) (Profile, error)
	ProfileByUsername(ctx context.Context, username string) (Profile, error)
	ProfilesByIDs(ctx context.Context, ids []string) ([]Profile, error)

	InsertRoom(ctx context.Context, r Room) error
	RoomByID(ctx context.Context, id string) (Room, error)
	// RoomByCode returns the oldest room with the given code.
	RoomByCode(ctx context.Context, code string) (Room, error)
	ListRooms(ctx context.Context, f RoomFilter) ([]Room, error)
	UpdateRoom(ctx context.Context, id string, u RoomUpdate) (Room, error)
	DeleteRoom(ctx context.Context, id string) error

	CountPlayers(ctx context.Context, roomID string) (int, error)
	Player(ctx context.Context, roomID, playerID string) (RoomPlayer, error)
	// ListPlayers orders memberships by join_order.
	ListPlayers(ctx context.Context, roomID string) ([]RoomPlayer, error)
	InsertPlayer(ctx context.Context, p RoomPlayer) error
	// UpsertPlayer inserts p, or on a (room_id, player_id) conflict overwrites
	// join_order and status of the existing row.
	UpsertPlayer(ctx context.Context, p RoomPlayer) (RoomPlayer, error)
	SetPlayerStatus(ctx context.Context, roomID, playerID string, s PlayerStatus) (RoomPlayer, error)
	DeletePlayer(ctx context.Context, roomID, playerID string) error

	Close() error
}

func openStore(ctx context.Context, cfg *Config) (Store, error) {
	switch strings.ToLower(cfg.store) {
	case "memory":
		return newMemoryStore(), nil
	case "sqlite":
		return openSQLiteStore(ctx, cfg.databaseURL)
	case "postgres":
		return openPostgresStore(ctx, cfg.databaseURL)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.store)
	}
}

// notifyingStore publishes a Change to the room's topic after every
// successful write to rooms or room_players. A failed publish is logged
// and does not fail the write.
type notifyingStore struct {
	Store

	cfg  *Config
	feed Feed
}

func newNotifyingStore(cfg *Config, s Store, f Feed) *notifyingStore {
	return &notifyingStore{Store: s, cfg: cfg, feed: f}
}

func (n *notifyingStore) publish(ctx context.Context, c Change) {
	if err := n.feed.Publish(ctx, c); err != nil {
		logErr(fmt.Errorf("publish %s %s on %s: %w", c.Event, c.Table, c.Topic, err))

		return
	}

	logf(n.cfg, "FEED: %s %s on %s", c.Event, c.Table, c.Topic)
}

func (n *notifyingStore) publishPlayer(ctx context.Context, event ChangeEvent, p RoomPlayer) {
	room, err := n.Store.RoomByID(ctx, p.RoomID)
	if err != nil {
		logErr(fmt.Errorf("resolve topic for room %s: %w", p.RoomID, err))

		return
	}

	n.publish(ctx, Change{
		Topic:  roomTopic(room.Code),
		Table:  TableRoomPlayers,
		Event:  event,
		Player: &p,
	})
}

func (n *notifyingStore) InsertRoom(ctx context.Context, r Room) error {
	if err := n.Store.InsertRoom(ctx, r); err != nil {
		return err
	}

	n.publish(ctx, Change{Topic: roomTopic(r.Code), Table: TableRooms, Event: EventInsert, Room: &r})

	return nil
}

func (n *notifyingStore) UpdateRoom(ctx context.Context, id string, u RoomUpdate) (Room, error) {
	r, err := n.Store.UpdateRoom(ctx, id, u)
	if err != nil {
		return r, err
	}

	n.publish(ctx, Change{Topic: roomTopic(r.Code), Table: TableRooms, Event: EventUpdate, Room: &r})

	return r, nil
}

func (n *notifyingStore) DeleteRoom(ctx context.Context, id string) error {
	r, err := n.Store.RoomByID(ctx, id)
	if err != nil {
		return n.Store.DeleteRoom(ctx, id)
	}

	if err := n.Store.DeleteRoom(ctx, id); err != nil {
		return err
	}

	n.publish(ctx, Change{Topic: roomTopic(r.Code), Table: TableRooms, Event: EventDelete, Room: &r})

	return nil
}

func (n *notifyingStore) InsertPlayer(ctx context.Context, p RoomPlayer) error {
	if err := n.Store.InsertPlayer(ctx, p); err != nil {
		return err
	}

	n.publishPlayer(ctx, EventInsert, p)

	return nil
}

func (n *notifyingStore) UpsertPlayer(ctx context.Context, p RoomPlayer) (RoomPlayer, error) {
	row, err := n.Store.UpsertPlayer(ctx, p)
	if err != nil {
		return row, err
	}

	// A conflicting row keeps its own id.
	event := EventUpdate
	if row.ID == p.ID {
		event = EventInsert
	}

	n.publishPlayer(ctx, event, row)

	return row, nil
}

func (n *notifyingStore) SetPlayerStatus(ctx context.Context, roomID, playerID string, s PlayerStatus) (RoomPlayer, error) {
	row, err := n.Store.SetPlayerStatus(ctx, roomID, playerID, s)
	if err != nil {
		return row, err
	}

	n.publishPlayer(ctx, EventUpdate, row)

	return row, nil
}

func (n *notifyingStore) DeletePlayer(ctx context.Context, roomID, playerID string) error {
	if err := n.Store.DeletePlayer(ctx, roomID, playerID); err != nil {
		return err
	}

	n.publishPlayer(ctx, EventDelete, RoomPlayer{RoomID: roomID, PlayerID: playerID})

	return nil
}
