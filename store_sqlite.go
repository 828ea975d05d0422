/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const defaultSQLitePath = "footyarena.db"

type sqliteStore struct {
	db *sql.DB
}

// openSQLiteStore opens (and migrates) the database at path. An empty path
// uses defaultSQLitePath; ":memory:" gives a private in-process database.
func openSQLiteStore(ctx context.Context, path string) (*sqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultSQLitePath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// One connection keeps the foreign_keys pragma in force and makes
	// ":memory:" a single shared database.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}

	return &sqliteStore{db: db}, nil
}

func sqlitePlaceholder(int) string {
	return "?"
}

func sqliteError(err error) error {
	var sqliteErr *sqlite.Error

	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return errNoRow
	case errors.As(err, &sqliteErr) &&
		(sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY):
		return fmt.Errorf("%w (%s)", errDuplicate, sqliteErr.Error())
	case errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return errNoRow
	default:
		return err
	}
}

func unixNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func scanSQLiteProfile(row rowScanner) (Profile, error) {
	var (
		p       Profile
		created int64
	)

	err := row.Scan(&p.ID, &p.Username, &p.AvatarColor, &created)
	p.CreatedAt = fromUnixNanos(created)

	return p, err
}

func scanSQLiteRoom(row rowScanner) (Room, error) {
	var (
		r        Room
		settings string
		created  int64
	)

	err := row.Scan(&r.ID, &r.Code, &r.HostID, &r.GameType, &settings, &r.Status, &r.IsLocked, &r.Visibility, &created)
	if err != nil {
		return r, err
	}

	r.CreatedAt = fromUnixNanos(created)
	r.Settings, err = decodeSettings([]byte(settings))

	return r, err
}

func scanSQLitePlayer(row rowScanner) (RoomPlayer, error) {
	var (
		p      RoomPlayer
		joined int64
	)

	err := row.Scan(&p.ID, &p.RoomID, &p.PlayerID, &p.JoinOrder, &p.Status, &p.Score, &joined)
	p.JoinedAt = fromUnixNanos(joined)

	return p, err
}

func (s *sqliteStore) InsertProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?)`,
		p.ID, p.Username, p.AvatarColor, unixNanos(p.CreatedAt),
	)

	return sqliteError(err)
}

func (s *sqliteStore) ProfileByID(ctx context.Context, id string) (Profile, error) {
	p, err := scanSQLiteProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))

	return p, sqliteError(err)
}

func (s *sqliteStore) ProfileByUsername(ctx context.Context, username string) (Profile, error) {
	p, err := scanSQLiteProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE username = ?`, username))

	return p, sqliteError(err)
}

func (s *sqliteStore) ProfilesByIDs(ctx context.Context, ids []string) ([]Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, sqliteError(err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanSQLiteProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

func (s *sqliteStore) InsertRoom(ctx context.Context, r Room) error {
	settings, err := encodeSettings(r.Settings)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Code, r.HostID, r.GameType, settings, string(r.Status), r.IsLocked, string(r.Visibility), unixNanos(r.CreatedAt),
	)

	return sqliteError(err)
}

func (s *sqliteStore) RoomByID(ctx context.Context, id string) (Room, error) {
	r, err := scanSQLiteRoom(s.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))

	return r, sqliteError(err)
}

func (s *sqliteStore) RoomByCode(ctx context.Context, code string) (Room, error) {
	r, err := scanSQLiteRoom(s.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE room_code = ? ORDER BY created_at ASC, id ASC LIMIT 1`, code))

	return r, sqliteError(err)
}

func (s *sqliteStore) ListRooms(ctx context.Context, f RoomFilter) ([]Room, error) {
	tail, args := roomListQuery(f, sqlitePlaceholder)

	rows, err := s.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms`+tail, args...)
	if err != nil {
		return nil, sqliteError(err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		r, err := scanSQLiteRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

func (s *sqliteStore) UpdateRoom(ctx context.Context, id string, u RoomUpdate) (Room, error) {
	if u.empty() {
		return s.RoomByID(ctx, id)
	}

	set, args := roomUpdateClause(u, 1, sqlitePlaceholder)

	r, err := scanSQLiteRoom(s.db.QueryRowContext(ctx,
		`UPDATE rooms SET `+set+` WHERE id = ? RETURNING `+roomColumns,
		append(args, id)...,
	))

	return r, sqliteError(err)
}

func (s *sqliteStore) DeleteRoom(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)

	return sqliteError(err)
}

func (s *sqliteStore) CountPlayers(ctx context.Context, roomID string) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_players WHERE room_id = ?`, roomID).Scan(&n)

	return n, sqliteError(err)
}

func (s *sqliteStore) Player(ctx context.Context, roomID, playerID string) (RoomPlayer, error) {
	p, err := scanSQLitePlayer(s.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM room_players WHERE room_id = ? AND player_id = ?`, roomID, playerID))

	return p, sqliteError(err)
}

func (s *sqliteStore) ListPlayers(ctx context.Context, roomID string) ([]RoomPlayer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM room_players WHERE room_id = ? ORDER BY join_order ASC, joined_at ASC`, roomID)
	if err != nil {
		return nil, sqliteError(err)
	}
	defer rows.Close()

	var out []RoomPlayer
	for rows.Next() {
		p, err := scanSQLitePlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

func (s *sqliteStore) InsertPlayer(ctx context.Context, p RoomPlayer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_players (`+playerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RoomID, p.PlayerID, p.JoinOrder, string(p.Status), p.Score, unixNanos(p.JoinedAt),
	)

	return sqliteError(err)
}

func (s *sqliteStore) UpsertPlayer(ctx context.Context, p RoomPlayer) (RoomPlayer, error) {
	row, err := scanSQLitePlayer(s.db.QueryRowContext(ctx,
		`INSERT INTO room_players (`+playerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (room_id, player_id)
		DO UPDATE SET join_order = excluded.join_order, status = excluded.status
		RETURNING `+playerColumns,
		p.ID, p.RoomID, p.PlayerID, p.JoinOrder, string(p.Status), p.Score, unixNanos(p.JoinedAt),
	))

	return row, sqliteError(err)
}

func (s *sqliteStore) SetPlayerStatus(ctx context.Context, roomID, playerID string, status PlayerStatus) (RoomPlayer, error) {
	row, err := scanSQLitePlayer(s.db.QueryRowContext(ctx,
		`UPDATE room_players SET status = ? WHERE room_id = ? AND player_id = ? RETURNING `+playerColumns,
		string(status), roomID, playerID,
	))

	return row, sqliteError(err)
}

func (s *sqliteStore) DeletePlayer(ctx context.Context, roomID, playerID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM room_players WHERE room_id = ? AND player_id = ?`, roomID, playerID)

	return sqliteError(err)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
