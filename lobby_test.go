/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lobbyFixture struct {
	store *memoryStore
	lobby *Lobby
}

func newLobbyFixture(t *testing.T, opts LobbyOptions) *lobbyFixture {
	t.Helper()

	store := newMemoryStore()
	lobby := newLobby(&Config{}, store, opts)
	t.Cleanup(lobby.Close)

	return &lobbyFixture{store: store, lobby: lobby}
}

// player signs a profile straight into the store.
func (f *lobbyFixture) player(t *testing.T, username string) Session {
	t.Helper()

	p := testProfile(username)
	require.NoError(t, f.store.InsertProfile(context.Background(), p))

	return Session{Profile: p}
}

func (f *lobbyFixture) room(t *testing.T, host Session, settings RoomSettings) Room {
	t.Helper()

	room, err := f.lobby.CreateRoom(context.Background(), host, "penalty_shootout", settings, VisibilityPrivate)
	require.NoError(t, err)

	return room
}

func (f *lobbyFixture) members(t *testing.T, room Room) []RoomPlayer {
	t.Helper()

	players, err := f.store.ListPlayers(context.Background(), room.ID)
	require.NoError(t, err)

	return players
}

func TestCreateRoomDefaults(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")

	room, err := f.lobby.CreateRoom(context.Background(), host, "penalty_shootout", RoomSettings{}, "")
	require.NoError(t, err)

	assert.True(t, validRoomCode(room.Code))
	assert.Equal(t, host.ID, room.HostID)
	assert.Equal(t, StatusWaiting, room.Status)
	assert.False(t, room.IsLocked)
	assert.Equal(t, VisibilityPrivate, room.Visibility)
	assert.Equal(t, RoomSettings{MaxPlayers: 20, Rounds: 5, TimePerQuestion: 15}, room.Settings)

	members := f.members(t, room)
	require.Len(t, members, 1)
	assert.Equal(t, host.ID, members[0].PlayerID)
	assert.Equal(t, 1, members[0].JoinOrder)
	assert.Equal(t, PlayerConnected, members[0].Status)
	assert.Zero(t, members[0].Score)
}

func TestCreateRoomValidation(t *testing.T) {
	tests := []struct {
		name       string
		gameType   string
		settings   RoomSettings
		visibility Visibility
		want       error
	}{
		{"unknown game", "hopscotch", RoomSettings{}, "", ErrUnknownGameType},
		{"one player", "penalty_shootout", RoomSettings{MaxPlayers: 1}, "", ErrInvalidSettings},
		{"too many players", "penalty_shootout", RoomSettings{MaxPlayers: 101}, "", ErrInvalidSettings},
		{"too many rounds", "penalty_shootout", RoomSettings{Rounds: 21}, "", ErrInvalidSettings},
		{"question too short", "penalty_shootout", RoomSettings{TimePerQuestion: 4}, "", ErrInvalidSettings},
		{"question too long", "penalty_shootout", RoomSettings{TimePerQuestion: 61}, "", ErrInvalidSettings},
		{"bad visibility", "penalty_shootout", RoomSettings{}, "secret", ErrInvalidSettings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLobbyFixture(t, LobbyOptions{})
			host := f.player(t, "host")

			_, err := f.lobby.CreateRoom(context.Background(), host, tt.gameType, tt.settings, tt.visibility)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)

			rooms, err := f.store.ListRooms(context.Background(), RoomFilter{})
			require.NoError(t, err)
			assert.Empty(t, rooms)
		})
	}
}

func TestCreateRoomBoundarySettings(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")

	settings := RoomSettings{MaxPlayers: 100, Rounds: 1, TimePerQuestion: 60}

	room, err := f.lobby.CreateRoom(context.Background(), host, "quickfire_duel", settings, VisibilityPublic)
	require.NoError(t, err)
	assert.Equal(t, settings, room.Settings)
	assert.Equal(t, VisibilityPublic, room.Visibility)
}

// failingStore fails the chosen write and counts deletes.
type failingStore struct {
	*memoryStore

	failRoom   bool
	failPlayer bool
	deletes    int
}

func (s *failingStore) InsertRoom(ctx context.Context, r Room) error {
	if s.failRoom {
		return errors.New("disk full")
	}

	return s.memoryStore.InsertRoom(ctx, r)
}

func (s *failingStore) InsertPlayer(ctx context.Context, p RoomPlayer) error {
	if s.failPlayer {
		return errors.New("disk full")
	}

	return s.memoryStore.InsertPlayer(ctx, p)
}

func (s *failingStore) DeleteRoom(ctx context.Context, id string) error {
	s.deletes++

	return s.memoryStore.DeleteRoom(ctx, id)
}

func TestCreateRoomStoreFailures(t *testing.T) {
	t.Run("room insert", func(t *testing.T) {
		store := &failingStore{memoryStore: newMemoryStore(), failRoom: true}
		lobby := newLobby(&Config{}, store, LobbyOptions{})

		_, err := lobby.CreateRoom(context.Background(), Session{Profile: testProfile("host")}, "penalty_shootout", RoomSettings{}, "")
		assert.ErrorIs(t, err, ErrCreateRoom)
		assert.Zero(t, store.deletes)
	})

	t.Run("host insert removes the room", func(t *testing.T) {
		store := &failingStore{memoryStore: newMemoryStore(), failPlayer: true}
		lobby := newLobby(&Config{}, store, LobbyOptions{})

		_, err := lobby.CreateRoom(context.Background(), Session{Profile: testProfile("host")}, "penalty_shootout", RoomSettings{}, "")
		assert.ErrorIs(t, err, ErrCreateRoom)
		assert.Equal(t, 1, store.deletes)

		rooms, err := store.ListRooms(context.Background(), RoomFilter{})
		require.NoError(t, err)
		assert.Empty(t, rooms)
	})

	t.Run("short code source", func(t *testing.T) {
		f := newLobbyFixture(t, LobbyOptions{CodeSource: bytes.NewReader([]byte{1, 2})})

		_, err := f.lobby.CreateRoom(context.Background(), f.player(t, "host"), "penalty_shootout", RoomSettings{}, "")
		assert.ErrorIs(t, err, ErrCreateRoom)
	})
}

func TestJoinRoomUnknownCode(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")
	guest := f.player(t, "guest")
	room := f.room(t, host, RoomSettings{})

	for _, code := range []string{"ZZZZZZ", "nope", "", "AB3XQ0"} {
		_, err := f.lobby.JoinRoom(context.Background(), guest, code)
		assert.ErrorIs(t, err, ErrRoomNotFound, "code %q", code)
		assert.ErrorIs(t, err, ErrNotFound, "code %q", code)
	}

	assert.Len(t, f.members(t, room), 1)
}

func TestJoinRoomNormalizesCode(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{CodeSource: bytes.NewReader([]byte{32, 1, 89, 21, 142, 247})})
	host := f.player(t, "host")
	guest := f.player(t, "guest")
	room := f.room(t, host, RoomSettings{})
	require.Equal(t, "AB3XQZ", room.Code)

	joined, err := f.lobby.JoinRoom(context.Background(), guest, "  ab3xqz ")
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)
}

func TestJoinRoomLockedIgnoresCapacity(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")
	guest := f.player(t, "guest")
	room := f.room(t, host, RoomSettings{MaxPlayers: 100})

	_, err := f.lobby.ToggleLock(context.Background(), room)
	require.NoError(t, err)

	_, err = f.lobby.JoinRoom(context.Background(), guest, room.Code)
	assert.ErrorIs(t, err, ErrRoomLocked)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Len(t, f.members(t, room), 1)
}

func TestJoinRoomFull(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")
	second := f.player(t, "second")
	third := f.player(t, "third")
	room := f.room(t, host, RoomSettings{MaxPlayers: 2})

	_, err := f.lobby.JoinRoom(context.Background(), second, room.Code)
	require.NoError(t, err)

	_, err = f.lobby.JoinRoom(context.Background(), third, room.Code)
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// A member of a full room is refused too, since the count includes them.
	_, err = f.lobby.JoinRoom(context.Background(), second, room.Code)
	assert.ErrorIs(t, err, ErrRoomFull)

	assert.Len(t, f.members(t, room), 2)
}

func TestJoinRoomRejoinKeepsOneRow(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")
	guest := f.player(t, "guest")
	room := f.room(t, host, RoomSettings{})

	_, err := f.lobby.JoinRoom(context.Background(), guest, room.Code)
	require.NoError(t, err)

	first, err := f.lobby.Member(context.Background(), room, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.JoinOrder)

	_, err = f.lobby.JoinRoom(context.Background(), guest, room.Code)
	require.NoError(t, err)

	members := f.members(t, room)
	require.Len(t, members, 2)

	again, err := f.lobby.Member(context.Background(), room, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 3, again.JoinOrder)
}

func TestJoinRoomAfterLeaving(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")
	a := f.player(t, "player_a")
	b := f.player(t, "player_b")
	room := f.room(t, host, RoomSettings{})

	for _, s := range []Session{a, b} {
		_, err := f.lobby.JoinRoom(context.Background(), s, room.Code)
		require.NoError(t, err)
	}

	require.NoError(t, f.lobby.LeaveRoom(context.Background(), room, a))

	_, err := f.lobby.Member(context.Background(), room, a.ID)
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = f.lobby.JoinRoom(context.Background(), a, room.Code)
	require.NoError(t, err)

	rejoined, err := f.lobby.Member(context.Background(), room, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rejoined.JoinOrder)
	assert.Len(t, f.members(t, room), 3)
}

// barrierStore holds every CountPlayers caller until all expected callers
// have counted.
type barrierStore struct {
	*memoryStore

	counted sync.WaitGroup
}

func (s *barrierStore) CountPlayers(ctx context.Context, roomID string) (int, error) {
	n, err := s.memoryStore.CountPlayers(ctx, roomID)

	s.counted.Done()
	s.counted.Wait()

	return n, err
}

func TestJoinRoomConcurrentJoinsCanOverfill(t *testing.T) {
	store := &barrierStore{memoryStore: newMemoryStore()}
	lobby := newLobby(&Config{}, store, LobbyOptions{})

	host := Session{Profile: testProfile("host")}
	room, err := lobby.CreateRoom(context.Background(), host, "penalty_shootout", RoomSettings{MaxPlayers: 2}, "")
	require.NoError(t, err)

	const joiners = 2
	store.counted.Add(joiners)

	var wg sync.WaitGroup
	errs := make([]error, joiners)
	for i := range joiners {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, errs[i] = lobby.JoinRoom(context.Background(), Session{Profile: testProfile(uuid.NewString()[:8])}, room.Code)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	n, err := store.memoryStore.CountPlayers(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestToggleLock(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	room := f.room(t, f.player(t, "host"), RoomSettings{})

	locked, err := f.lobby.ToggleLock(context.Background(), room)
	require.NoError(t, err)
	assert.True(t, locked.IsLocked)

	unlocked, err := f.lobby.ToggleLock(context.Background(), locked)
	require.NoError(t, err)
	assert.False(t, unlocked.IsLocked)

	// The flip is relative to the value passed in.
	again, err := f.lobby.ToggleLock(context.Background(), room)
	require.NoError(t, err)
	assert.True(t, again.IsLocked)
}

func TestStartGame(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")
	guest := f.player(t, "guest")
	late := f.player(t, "late")
	room := f.room(t, host, RoomSettings{})

	_, err := f.lobby.StartGame(context.Background(), room)
	assert.ErrorIs(t, err, ErrInsufficientPlayers)
	assert.ErrorIs(t, err, ErrInsufficientState)

	_, err = f.lobby.JoinRoom(context.Background(), guest, room.Code)
	require.NoError(t, err)

	started, err := f.lobby.StartGame(context.Background(), room)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, started.Status)
	assert.True(t, started.IsLocked)

	_, err = f.lobby.StartGame(context.Background(), started)
	assert.ErrorIs(t, err, ErrGameStarted)

	_, err = f.lobby.JoinRoom(context.Background(), late, room.Code)
	assert.ErrorIs(t, err, ErrRoomLocked)
}

func TestTransferHostThenKickFormerHost(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")
	guest := f.player(t, "guest")
	room := f.room(t, host, RoomSettings{})

	_, err := f.lobby.JoinRoom(context.Background(), guest, room.Code)
	require.NoError(t, err)

	room, err = f.lobby.TransferHost(context.Background(), room, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, guest.ID, room.HostID)

	require.NoError(t, f.lobby.KickPlayer(context.Background(), room, host.ID))

	members := f.members(t, room)
	require.Len(t, members, 1)
	assert.Equal(t, guest.ID, members[0].PlayerID)

	stored, err := f.lobby.GetRoom(context.Background(), room.Code)
	require.NoError(t, err)
	assert.Equal(t, guest.ID, stored.HostID)
}

func TestTransferHostToNonMember(t *testing.T) {
	outsider := uuid.NewString()

	t.Run("rejected", func(t *testing.T) {
		f := newLobbyFixture(t, LobbyOptions{})
		room := f.room(t, f.player(t, "host"), RoomSettings{})

		_, err := f.lobby.TransferHost(context.Background(), room, outsider)
		assert.ErrorIs(t, err, ErrNotMember)

		stored, err := f.lobby.GetRoom(context.Background(), room.Code)
		require.NoError(t, err)
		assert.Equal(t, room.HostID, stored.HostID)
	})

	t.Run("allowed", func(t *testing.T) {
		f := newLobbyFixture(t, LobbyOptions{AllowNonMemberHost: true})
		room := f.room(t, f.player(t, "host"), RoomSettings{})

		updated, err := f.lobby.TransferHost(context.Background(), room, outsider)
		require.NoError(t, err)
		assert.Equal(t, outsider, updated.HostID)
	})
}

func TestHostLeavingKeepsHostID(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")
	guest := f.player(t, "guest")
	room := f.room(t, host, RoomSettings{})

	_, err := f.lobby.JoinRoom(context.Background(), guest, room.Code)
	require.NoError(t, err)

	require.NoError(t, f.lobby.LeaveRoom(context.Background(), room, host))

	got, err := f.lobby.GetRoom(context.Background(), room.Code)
	require.NoError(t, err)
	assert.Equal(t, host.ID, got.HostID)

	members := f.members(t, room)
	require.Len(t, members, 1)
	assert.Equal(t, guest.ID, members[0].PlayerID)
}

func TestKickAbsentPlayerIsNotAnError(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	room := f.room(t, f.player(t, "host"), RoomSettings{})

	assert.NoError(t, f.lobby.KickPlayer(context.Background(), room, uuid.NewString()))
	assert.Len(t, f.members(t, room), 1)
}

func TestListPublicRooms(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")
	guest := f.player(t, "guest")

	public, err := f.lobby.CreateRoom(context.Background(), host, "quickfire_duel", RoomSettings{}, VisibilityPublic)
	require.NoError(t, err)

	_, err = f.lobby.CreateRoom(context.Background(), host, "quickfire_duel", RoomSettings{}, VisibilityPrivate)
	require.NoError(t, err)

	started, err := f.lobby.CreateRoom(context.Background(), host, "quickfire_duel", RoomSettings{}, VisibilityPublic)
	require.NoError(t, err)
	_, err = f.lobby.JoinRoom(context.Background(), guest, started.Code)
	require.NoError(t, err)
	_, err = f.lobby.StartGame(context.Background(), started)
	require.NoError(t, err)

	rooms, err := f.lobby.ListPublicRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, public.ID, rooms[0].ID)
}

func TestRosterJoinsProfiles(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	host := f.player(t, "host")
	room := f.room(t, host, RoomSettings{})

	// A member whose profile row is missing.
	ghost := Session{Profile: testProfile("ghost")}
	_, err := f.lobby.JoinRoom(context.Background(), ghost, room.Code)
	require.NoError(t, err)

	roster, err := f.lobby.Roster(context.Background(), room.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)

	require.NotNil(t, roster[0].Profile)
	assert.Equal(t, "host", roster[0].Profile.Username)

	assert.Nil(t, roster[1].Profile)

	view, err := f.lobby.View(context.Background(), room.Code)
	require.NoError(t, err)
	require.NotNil(t, view.Room)
	assert.Equal(t, room.ID, view.Room.ID)
	assert.Len(t, view.Players, 2)
}

func TestSetConnectionRemovesIdlePlayers(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{PlayerTimeout: 20 * time.Millisecond})
	host := f.player(t, "host")
	guest := f.player(t, "guest")
	room := f.room(t, host, RoomSettings{})

	_, err := f.lobby.JoinRoom(context.Background(), guest, room.Code)
	require.NoError(t, err)

	require.NoError(t, f.lobby.SetConnection(context.Background(), room, guest.ID, PlayerDisconnected))
	require.NoError(t, f.lobby.SetConnection(context.Background(), room, host.ID, PlayerDisconnected))

	require.Eventually(t, func() bool {
		_, err := f.lobby.Member(context.Background(), room, guest.ID)
		return errors.Is(err, ErrNotMember)
	}, time.Second, 5*time.Millisecond)

	// The host keeps their seat.
	member, err := f.lobby.Member(context.Background(), room, host.ID)
	require.NoError(t, err)
	assert.Equal(t, PlayerDisconnected, member.Status)
}

func TestSetConnectionReconnectKeepsSeat(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{PlayerTimeout: 20 * time.Millisecond})
	host := f.player(t, "host")
	guest := f.player(t, "guest")
	room := f.room(t, host, RoomSettings{})

	_, err := f.lobby.JoinRoom(context.Background(), guest, room.Code)
	require.NoError(t, err)

	require.NoError(t, f.lobby.SetConnection(context.Background(), room, guest.ID, PlayerDisconnected))
	require.NoError(t, f.lobby.SetConnection(context.Background(), room, guest.ID, PlayerConnected))

	time.Sleep(80 * time.Millisecond)

	member, err := f.lobby.Member(context.Background(), room, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, PlayerConnected, member.Status)
}

func TestSetConnectionUnknownMember(t *testing.T) {
	f := newLobbyFixture(t, LobbyOptions{})
	room := f.room(t, f.player(t, "host"), RoomSettings{})

	err := f.lobby.SetConnection(context.Background(), room, uuid.NewString(), PlayerDisconnected)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLobbyScenario(t *testing.T) {
	ctx := context.Background()

	f := newLobbyFixture(t, LobbyOptions{CodeSource: bytes.NewReader([]byte{32, 1, 89, 21, 142, 247})})
	u1 := f.player(t, "striker9")
	u2 := f.player(t, "keeper_1")
	u3 := f.player(t, "winger")

	room, err := f.lobby.CreateRoom(ctx, u1, "penalty_shootout", RoomSettings{}, "")
	require.NoError(t, err)
	assert.Equal(t, "AB3XQZ", room.Code)
	assert.Equal(t, RoomSettings{MaxPlayers: 20, Rounds: 5, TimePerQuestion: 15}, room.Settings)

	_, err = f.lobby.JoinRoom(ctx, u2, "ab3xqz")
	require.NoError(t, err)

	second, err := f.lobby.Member(ctx, room, u2.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.JoinOrder)

	room, err = f.lobby.ToggleLock(ctx, room)
	require.NoError(t, err)
	assert.True(t, room.IsLocked)

	_, err = f.lobby.JoinRoom(ctx, u3, "AB3XQZ")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	room, err = f.lobby.StartGame(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, room.Status)
	assert.True(t, room.IsLocked)
}
