/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"strings"
)

const (
	profileColumns = `id, username, avatar_color, created_at`
	roomColumns    = `id, room_code, host_id, game_type, settings, status, is_locked, visibility, created_at`
	playerColumns  = `id, room_id, player_id, join_order, status, score, joined_at`
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE CHECK (username ~ '^[A-Za-z0-9_]{3,16}$'),
	avatar_color TEXT NOT NULL DEFAULT '#22c55e',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	room_code TEXT NOT NULL,
	host_id TEXT NOT NULL,
	game_type TEXT NOT NULL,
	settings JSONB NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'waiting' CHECK (status IN ('waiting', 'playing', 'finished')),
	is_locked BOOLEAN NOT NULL DEFAULT FALSE,
	visibility TEXT NOT NULL DEFAULT 'private' CHECK (visibility IN ('private', 'public')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS rooms_room_code_idx ON rooms (room_code, created_at);

CREATE TABLE IF NOT EXISTS room_players (
	id TEXT PRIMARY KEY,
	room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	player_id TEXT NOT NULL,
	join_order INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL DEFAULT 'connected' CHECK (status IN ('connected', 'disconnected')),
	score INTEGER NOT NULL DEFAULT 0,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (room_id, player_id)
);
`

// SQLite keeps timestamps as unix nanoseconds so ordering stays exact.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	avatar_color TEXT NOT NULL DEFAULT '#22c55e',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	room_code TEXT NOT NULL,
	host_id TEXT NOT NULL,
	game_type TEXT NOT NULL,
	settings TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'waiting' CHECK (status IN ('waiting', 'playing', 'finished')),
	is_locked INTEGER NOT NULL DEFAULT 0,
	visibility TEXT NOT NULL DEFAULT 'private' CHECK (visibility IN ('private', 'public')),
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS rooms_room_code_idx ON rooms (room_code, created_at);

CREATE TABLE IF NOT EXISTS room_players (
	id TEXT PRIMARY KEY,
	room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	player_id TEXT NOT NULL,
	join_order INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL DEFAULT 'connected' CHECK (status IN ('connected', 'disconnected')),
	score INTEGER NOT NULL DEFAULT 0,
	joined_at INTEGER NOT NULL,
	UNIQUE (room_id, player_id)
);
`

// roomUpdateClause renders the SET list for u, numbering placeholders with
// placeholder(n) starting at first. It returns the clause and its arguments.
func roomUpdateClause(u RoomUpdate, first int, placeholder func(int) string) (string, []any) {
	var (
		sets []string
		args []any
	)

	add := func(column string, v any) {
		sets = append(sets, column+" = "+placeholder(first+len(args)))
		args = append(args, v)
	}

	if u.IsLocked != nil {
		add("is_locked", *u.IsLocked)
	}
	if u.HostID != nil {
		add("host_id", *u.HostID)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}

	return strings.Join(sets, ", "), args
}

// roomListQuery builds the WHERE and LIMIT tail for f.
func roomListQuery(f RoomFilter, placeholder func(int) string) (string, []any) {
	var (
		where []string
		args  []any
	)

	if f.Visibility != "" {
		args = append(args, string(f.Visibility))
		where = append(where, "visibility = "+placeholder(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = "+placeholder(len(args)))
	}

	var q strings.Builder
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}

	q.WriteString(" ORDER BY created_at DESC")

	if f.Limit > 0 {
		args = append(args, f.Limit)
		q.WriteString(" LIMIT " + placeholder(len(args)))
	}

	return q.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func encodeSettings(s RoomSettings) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func decodeSettings(raw []byte) (RoomSettings, error) {
	var s RoomSettings
	if len(raw) == 0 {
		return s, nil
	}

	err := json.Unmarshal(raw, &s)

	return s, err
}
