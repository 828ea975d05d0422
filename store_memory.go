/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"slices"
	"sync"
)

type memoryStore struct {
	profilesMu sync.RWMutex
	profiles   map[string]Profile

	// roomsMu guards rooms and players together so cascade deletes are atomic.
	roomsMu sync.RWMutex
	rooms   map[string]Room
	// players is keyed by room id, then player id.
	players map[string]map[string]RoomPlayer
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		profiles: make(map[string]Profile),
		rooms:    make(map[string]Room),
		players:  make(map[string]map[string]RoomPlayer),
	}
}

func (s *memoryStore) InsertProfile(_ context.Context, p Profile) error {
	s.profilesMu.Lock()
	defer s.profilesMu.Unlock()

	if _, ok := s.profiles[p.ID]; ok {
		return errDuplicate
	}

	for _, existing := range s.profiles {
		if existing.Username == p.Username {
			return errDuplicate
		}
	}

	s.profiles[p.ID] = p

	return nil
}

func (s *memoryStore) ProfileByID(_ context.Context, id string) (Profile, error) {
	s.profilesMu.RLock()
	defer s.profilesMu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, errNoRow
	}

	return p, nil
}

func (s *memoryStore) ProfileByUsername(_ context.Context, username string) (Profile, error) {
	s.profilesMu.RLock()
	defer s.profilesMu.RUnlock()

	for _, p := range s.profiles {
		if p.Username == username {
			return p, nil
		}
	}

	return Profile{}, errNoRow
}

func (s *memoryStore) ProfilesByIDs(_ context.Context, ids []string) ([]Profile, error) {
	s.profilesMu.RLock()
	defer s.profilesMu.RUnlock()

	out := make([]Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}

	return out, nil
}

func (s *memoryStore) InsertRoom(_ context.Context, r Room) error {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	if _, ok := s.rooms[r.ID]; ok {
		return errDuplicate
	}

	s.rooms[r.ID] = r

	return nil
}

func (s *memoryStore) RoomByID(_ context.Context, id string) (Room, error) {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return Room{}, errNoRow
	}

	return r, nil
}

func (s *memoryStore) RoomByCode(_ context.Context, code string) (Room, error) {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()

	var (
		found Room
		ok    bool
	)

	for _, r := range s.rooms {
		if r.Code != code {
			continue
		}
		if !ok || roomBefore(r, found) {
			found, ok = r, true
		}
	}

	if !ok {
		return Room{}, errNoRow
	}

	return found, nil
}

// roomBefore orders rooms by creation time, then id, as the SQL stores do.
func roomBefore(a, b Room) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}

	return a.ID < b.ID
}

func (s *memoryStore) ListRooms(_ context.Context, f RoomFilter) ([]Room, error) {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()

	out := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if f.match(r) {
			out = append(out, r)
		}
	}

	slices.SortFunc(out, func(a, b Room) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}

	return out, nil
}

func (s *memoryStore) UpdateRoom(_ context.Context, id string, u RoomUpdate) (Room, error) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return Room{}, errNoRow
	}

	u.apply(&r)
	s.rooms[id] = r

	return r, nil
}

func (s *memoryStore) DeleteRoom(_ context.Context, id string) error {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	delete(s.rooms, id)
	delete(s.players, id)

	return nil
}

func (s *memoryStore) CountPlayers(_ context.Context, roomID string) (int, error) {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()

	return len(s.players[roomID]), nil
}

func (s *memoryStore) Player(_ context.Context, roomID, playerID string) (RoomPlayer, error) {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()

	p, ok := s.players[roomID][playerID]
	if !ok {
		return RoomPlayer{}, errNoRow
	}

	return p, nil
}

func (s *memoryStore) ListPlayers(_ context.Context, roomID string) ([]RoomPlayer, error) {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()

	out := make([]RoomPlayer, 0, len(s.players[roomID]))
	for _, p := range s.players[roomID] {
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b RoomPlayer) int {
		if a.JoinOrder != b.JoinOrder {
			return a.JoinOrder - b.JoinOrder
		}
		return a.JoinedAt.Compare(b.JoinedAt)
	})

	return out, nil
}

// roomExistsLocked stands in for the room_id foreign key.
func (s *memoryStore) roomExistsLocked(roomID string) bool {
	_, ok := s.rooms[roomID]
	return ok
}

func (s *memoryStore) InsertPlayer(_ context.Context, p RoomPlayer) error {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	if !s.roomExistsLocked(p.RoomID) {
		return errNoRow
	}

	members := s.players[p.RoomID]
	if members == nil {
		members = make(map[string]RoomPlayer)
		s.players[p.RoomID] = members
	}

	if _, ok := members[p.PlayerID]; ok {
		return errDuplicate
	}

	members[p.PlayerID] = p

	return nil
}

func (s *memoryStore) UpsertPlayer(_ context.Context, p RoomPlayer) (RoomPlayer, error) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	if !s.roomExistsLocked(p.RoomID) {
		return RoomPlayer{}, errNoRow
	}

	members := s.players[p.RoomID]
	if members == nil {
		members = make(map[string]RoomPlayer)
		s.players[p.RoomID] = members
	}

	if existing, ok := members[p.PlayerID]; ok {
		existing.JoinOrder = p.JoinOrder
		existing.Status = p.Status
		members[p.PlayerID] = existing

		return existing, nil
	}

	members[p.PlayerID] = p

	return p, nil
}

func (s *memoryStore) SetPlayerStatus(_ context.Context, roomID, playerID string, status PlayerStatus) (RoomPlayer, error) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	p, ok := s.players[roomID][playerID]
	if !ok {
		return RoomPlayer{}, errNoRow
	}

	p.Status = status
	s.players[roomID][playerID] = p

	return p, nil
}

func (s *memoryStore) DeletePlayer(_ context.Context, roomID, playerID string) error {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	delete(s.players[roomID], playerID)

	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
