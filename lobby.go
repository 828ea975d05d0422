/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

const publicRoomLimit = 50

type LobbyOptions struct {
	// AllowNonMemberHost lets TransferHost hand the room to a player who is
	// not in it.
	AllowNonMemberHost bool

	// PlayerTimeout is how long a disconnected player keeps their seat in a
	// waiting room. Zero disables removal.
	PlayerTimeout time.Duration

	// CodeSource feeds room code generation; nil means crypto/rand.
	CodeSource io.Reader

	Now func() time.Time
}

// Lobby owns the room lifecycle: creation, membership and the move from
// waiting to playing. It keeps no room state of its own; every decision is
// made against the store.
type Lobby struct {
	cfg   *Config
	store Store
	opts  LobbyOptions

	mu     sync.Mutex
	reaps  map[string]*time.Timer
	closed bool
}

func newLobby(cfg *Config, store Store, opts LobbyOptions) *Lobby {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Lobby{
		cfg:   cfg,
		store: store,
		opts:  opts,
		reaps: make(map[string]*time.Timer),
	}
}

func (l *Lobby) now() time.Time {
	return l.opts.Now().UTC()
}

func (l *Lobby) CreateRoom(ctx context.Context, s Session, gameType string, settings RoomSettings, visibility Visibility) (Room, error) {
	if _, ok := lookupGameType(gameType); !ok {
		return Room{}, ErrUnknownGameType
	}

	settings = settings.withDefaults()
	if err := settings.validate(); err != nil {
		return Room{}, err
	}

	switch visibility {
	case "":
		visibility = VisibilityPrivate
	case VisibilityPrivate, VisibilityPublic:
	default:
		return Room{}, ErrInvalidSettings
	}

	code, err := generateRoomCode(l.opts.CodeSource)
	if err != nil {
		return Room{}, fmt.Errorf("%w: generate code: %v", ErrCreateRoom, err)
	}

	now := l.now()

	room := Room{
		ID:         uuid.NewString(),
		Code:       code,
		HostID:     s.ID,
		GameType:   gameType,
		Settings:   settings,
		Status:     StatusWaiting,
		IsLocked:   false,
		Visibility: visibility,
		CreatedAt:  now,
	}

	if err := l.store.InsertRoom(ctx, room); err != nil {
		return Room{}, fmt.Errorf("%w: %v", ErrCreateRoom, err)
	}

	host := RoomPlayer{
		ID:        uuid.NewString(),
		RoomID:    room.ID,
		PlayerID:  s.ID,
		JoinOrder: 1,
		Status:    PlayerConnected,
		JoinedAt:  now,
	}

	if err := l.store.InsertPlayer(ctx, host); err != nil {
		// Do not leave a room behind with nobody in it.
		if derr := l.store.DeleteRoom(context.WithoutCancel(ctx), room.ID); derr != nil {
			logErr(fmt.Errorf("remove room %s after failed host insert: %w", room.Code, derr))
		}

		return Room{}, fmt.Errorf("%w: add host: %v", ErrCreateRoom, err)
	}

	logf(l.cfg, "ROOMS: %q created %s (%s)", s.Username, room.Code, room.GameType)

	return room, nil
}

// GetRoom looks a room up by its share code.
func (l *Lobby) GetRoom(ctx context.Context, code string) (Room, error) {
	code = normalizeRoomCode(code)
	if !validRoomCode(code) {
		return Room{}, ErrRoomNotFound
	}

	room, err := l.store.RoomByCode(ctx, code)
	switch {
	case errors.Is(err, ErrNotFound):
		return Room{}, ErrRoomNotFound
	case err != nil:
		return Room{}, err
	}

	return room, nil
}

// JoinRoom adds the caller to the room, or refreshes their seat if they are
// already in it. The capacity check and the upsert are separate store calls,
// so concurrent joins can overfill a room by a few seats.
func (l *Lobby) JoinRoom(ctx context.Context, s Session, code string) (Room, error) {
	room, err := l.GetRoom(ctx, code)
	if err != nil {
		return Room{}, err
	}

	if room.IsLocked {
		return Room{}, ErrRoomLocked
	}

	count, err := l.store.CountPlayers(ctx, room.ID)
	if err != nil {
		return Room{}, err
	}

	if count >= room.Settings.capacity() {
		return Room{}, ErrRoomFull
	}

	_, err = l.store.UpsertPlayer(ctx, RoomPlayer{
		ID:        uuid.NewString(),
		RoomID:    room.ID,
		PlayerID:  s.ID,
		JoinOrder: count + 1,
		Status:    PlayerConnected,
		JoinedAt:  l.now(),
	})
	if err != nil {
		return Room{}, err
	}

	l.cancelRemoval(room.ID, s.ID)

	logf(l.cfg, "ROOMS: %q joined %s", s.Username, room.Code)

	return room, nil
}

// ToggleLock flips the lock relative to the room value the caller holds.
func (l *Lobby) ToggleLock(ctx context.Context, room Room) (Room, error) {
	updated, err := l.store.UpdateRoom(ctx, room.ID, RoomUpdate{IsLocked: ptr(!room.IsLocked)})
	if err != nil {
		return Room{}, err
	}

	logf(l.cfg, "ROOMS: %s locked=%t", updated.Code, updated.IsLocked)

	return updated, nil
}

func (l *Lobby) KickPlayer(ctx context.Context, room Room, playerID string) error {
	if err := l.store.DeletePlayer(ctx, room.ID, playerID); err != nil {
		return err
	}

	l.cancelRemoval(room.ID, playerID)

	logf(l.cfg, "ROOMS: %s kicked from %s", playerID, room.Code)

	return nil
}

// Member returns the player's membership row, or ErrNotMember.
func (l *Lobby) Member(ctx context.Context, room Room, playerID string) (RoomPlayer, error) {
	p, err := l.store.Player(ctx, room.ID, playerID)
	switch {
	case errors.Is(err, ErrNotFound):
		return RoomPlayer{}, ErrNotMember
	case err != nil:
		return RoomPlayer{}, err
	}

	return p, nil
}

func (l *Lobby) TransferHost(ctx context.Context, room Room, playerID string) (Room, error) {
	if !l.opts.AllowNonMemberHost {
		if _, err := l.Member(ctx, room, playerID); err != nil {
			return Room{}, err
		}
	}

	updated, err := l.store.UpdateRoom(ctx, room.ID, RoomUpdate{HostID: &playerID})
	if err != nil {
		return Room{}, err
	}

	logf(l.cfg, "ROOMS: %s host is now %s", updated.Code, updated.HostID)

	return updated, nil
}

func (l *Lobby) LeaveRoom(ctx context.Context, room Room, s Session) error {
	if err := l.store.DeletePlayer(ctx, room.ID, s.ID); err != nil {
		return err
	}

	l.cancelRemoval(room.ID, s.ID)

	logf(l.cfg, "ROOMS: %q left %s", s.Username, room.Code)

	return nil
}

// StartGame moves a waiting room with at least two members to playing and
// locks it.
func (l *Lobby) StartGame(ctx context.Context, room Room) (Room, error) {
	if room.Status != StatusWaiting {
		return Room{}, ErrGameStarted
	}

	count, err := l.store.CountPlayers(ctx, room.ID)
	if err != nil {
		return Room{}, err
	}

	if count < minPlayers {
		return Room{}, ErrInsufficientPlayers
	}

	updated, err := l.store.UpdateRoom(ctx, room.ID, RoomUpdate{
		Status:   ptr(StatusPlaying),
		IsLocked: ptr(true),
	})
	if err != nil {
		return Room{}, err
	}

	logf(l.cfg, "ROOMS: %s started with %d players", updated.Code, count)

	return updated, nil
}

func (l *Lobby) ListPublicRooms(ctx context.Context) ([]Room, error) {
	return l.store.ListRooms(ctx, RoomFilter{
		Visibility: VisibilityPublic,
		Status:     StatusWaiting,
		Limit:      publicRoomLimit,
	})
}

// Roster returns the room's members in join order, each joined with their
// profile.
func (l *Lobby) Roster(ctx context.Context, roomID string) ([]PlayerView, error) {
	members, err := l.store.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.PlayerID)
	}

	profiles, err := l.store.ProfilesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]PlayerProfile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = PlayerProfile{Username: p.Username, AvatarColor: p.AvatarColor}
	}

	out := make([]PlayerView, 0, len(members))
	for _, m := range members {
		v := PlayerView{RoomPlayer: m}
		if p, ok := byID[m.PlayerID]; ok {
			v.Profile = &p
		}
		out = append(out, v)
	}

	return out, nil
}

// View loads the room and its roster in one go.
func (l *Lobby) View(ctx context.Context, code string) (LobbyView, error) {
	room, err := l.GetRoom(ctx, code)
	if err != nil {
		return LobbyView{}, err
	}

	players, err := l.Roster(ctx, room.ID)
	if err != nil {
		return LobbyView{}, err
	}

	return LobbyView{Room: &room, Players: players}, nil
}

// SetConnection records whether a member currently has a live connection.
// A member who goes away from a waiting room loses their seat after
// PlayerTimeout unless they come back first.
func (l *Lobby) SetConnection(ctx context.Context, room Room, playerID string, status PlayerStatus) error {
	if _, err := l.store.SetPlayerStatus(ctx, room.ID, playerID, status); err != nil {
		return err
	}

	switch status {
	case PlayerConnected:
		l.cancelRemoval(room.ID, playerID)
	case PlayerDisconnected:
		l.scheduleRemoval(room.ID, playerID)
	}

	return nil
}

func reapKey(roomID, playerID string) string {
	return roomID + "/" + playerID
}

func (l *Lobby) scheduleRemoval(roomID, playerID string) {
	if l.opts.PlayerTimeout <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	key := reapKey(roomID, playerID)
	if t, ok := l.reaps[key]; ok {
		t.Stop()
	}

	l.reaps[key] = time.AfterFunc(l.opts.PlayerTimeout, func() {
		l.mu.Lock()
		delete(l.reaps, key)
		l.mu.Unlock()

		l.removeIfGone(roomID, playerID)
	})
}

func (l *Lobby) cancelRemoval(roomID, playerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := reapKey(roomID, playerID)
	if t, ok := l.reaps[key]; ok {
		t.Stop()
		delete(l.reaps, key)
	}
}

// removeIfGone drops a member who is still disconnected. The host and
// members of rooms that have left the waiting state keep their seats.
func (l *Lobby) removeIfGone(roomID, playerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	p, err := l.store.Player(ctx, roomID, playerID)
	if err != nil || p.Status != PlayerDisconnected {
		return
	}

	room, err := l.store.RoomByID(ctx, roomID)
	if err != nil || room.Status != StatusWaiting || room.HostID == playerID {
		return
	}

	if err := l.store.DeletePlayer(ctx, roomID, playerID); err != nil {
		logErr(fmt.Errorf("remove idle player %s from %s: %w", playerID, room.Code, err))

		return
	}

	logf(l.cfg, "ROOMS: removed idle player %s from %s", playerID, room.Code)
}

// Close stops pending removals.
func (l *Lobby) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	for key, t := range l.reaps {
		t.Stop()
		delete(l.reaps, key)
	}
}
