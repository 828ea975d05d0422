/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

func openPostgresStore(ctx context.Context, dsn string) (*postgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres: --database-url is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	if cfg.MaxConns == 0 {
		cfg.MaxConns = 8
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return &postgresStore{pool: pool}, nil
}

func pgPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func pgError(err error) error {
	var pgErr *pgconn.PgError

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return errNoRow
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return fmt.Errorf("%w (%s)", errDuplicate, pgErr.ConstraintName)
	case errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation:
		return errNoRow
	default:
		return err
	}
}

func scanPgProfile(row rowScanner) (Profile, error) {
	var p Profile

	err := row.Scan(&p.ID, &p.Username, &p.AvatarColor, &p.CreatedAt)

	return p, err
}

func scanPgRoom(row rowScanner) (Room, error) {
	var (
		r        Room
		settings []byte
	)

	err := row.Scan(&r.ID, &r.Code, &r.HostID, &r.GameType, &settings, &r.Status, &r.IsLocked, &r.Visibility, &r.CreatedAt)
	if err != nil {
		return r, err
	}

	r.Settings, err = decodeSettings(settings)

	return r, err
}

func scanPgPlayer(row rowScanner) (RoomPlayer, error) {
	var p RoomPlayer

	err := row.Scan(&p.ID, &p.RoomID, &p.PlayerID, &p.JoinOrder, &p.Status, &p.Score, &p.JoinedAt)

	return p, err
}

func (s *postgresStore) InsertProfile(ctx context.Context, p Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Username, p.AvatarColor, p.CreatedAt,
	)

	return pgError(err)
}

func (s *postgresStore) ProfileByID(ctx context.Context, id string) (Profile, error) {
	p, err := scanPgProfile(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))

	return p, pgError(err)
}

func (s *postgresStore) ProfileByUsername(ctx context.Context, username string) (Profile, error) {
	p, err := scanPgProfile(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE username = $1`, username))

	return p, pgError(err)
}

func (s *postgresStore) ProfilesByIDs(ctx context.Context, ids []string) ([]Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanPgProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

func (s *postgresStore) InsertRoom(ctx context.Context, r Room) error {
	settings, err := encodeSettings(r.Settings)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)`,
		r.ID, r.Code, r.HostID, r.GameType, settings, string(r.Status), r.IsLocked, string(r.Visibility), r.CreatedAt,
	)

	return pgError(err)
}

func (s *postgresStore) RoomByID(ctx context.Context, id string) (Room, error) {
	r, err := scanPgRoom(s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))

	return r, pgError(err)
}

func (s *postgresStore) RoomByCode(ctx context.Context, code string) (Room, error) {
	r, err := scanPgRoom(s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE room_code = $1 ORDER BY created_at ASC, id ASC LIMIT 1`, code))

	return r, pgError(err)
}

func (s *postgresStore) ListRooms(ctx context.Context, f RoomFilter) ([]Room, error) {
	tail, args := roomListQuery(f, pgPlaceholder)

	rows, err := s.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms`+tail, args...)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		r, err := scanPgRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

func (s *postgresStore) UpdateRoom(ctx context.Context, id string, u RoomUpdate) (Room, error) {
	if u.empty() {
		return s.RoomByID(ctx, id)
	}

	set, args := roomUpdateClause(u, 2, pgPlaceholder)

	r, err := scanPgRoom(s.pool.QueryRow(ctx,
		`UPDATE rooms SET `+set+` WHERE id = $1 RETURNING `+roomColumns,
		append([]any{id}, args...)...,
	))

	return r, pgError(err)
}

func (s *postgresStore) DeleteRoom(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)

	return pgError(err)
}

func (s *postgresStore) CountPlayers(ctx context.Context, roomID string) (int, error) {
	var n int

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM room_players WHERE room_id = $1`, roomID).Scan(&n)

	return n, pgError(err)
}

func (s *postgresStore) Player(ctx context.Context, roomID, playerID string) (RoomPlayer, error) {
	p, err := scanPgPlayer(s.pool.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM room_players WHERE room_id = $1 AND player_id = $2`, roomID, playerID))

	return p, pgError(err)
}

func (s *postgresStore) ListPlayers(ctx context.Context, roomID string) ([]RoomPlayer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+playerColumns+` FROM room_players WHERE room_id = $1 ORDER BY join_order ASC, joined_at ASC`, roomID)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	var out []RoomPlayer
	for rows.Next() {
		p, err := scanPgPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

func (s *postgresStore) InsertPlayer(ctx context.Context, p RoomPlayer) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO room_players (`+playerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.RoomID, p.PlayerID, p.JoinOrder, string(p.Status), p.Score, p.JoinedAt,
	)

	return pgError(err)
}

func (s *postgresStore) UpsertPlayer(ctx context.Context, p RoomPlayer) (RoomPlayer, error) {
	row, err := scanPgPlayer(s.pool.QueryRow(ctx,
		`INSERT INTO room_players (`+playerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (room_id, player_id)
		DO UPDATE SET join_order = EXCLUDED.join_order, status = EXCLUDED.status
		RETURNING `+playerColumns,
		p.ID, p.RoomID, p.PlayerID, p.JoinOrder, string(p.Status), p.Score, p.JoinedAt,
	))

	return row, pgError(err)
}

func (s *postgresStore) SetPlayerStatus(ctx context.Context, roomID, playerID string, status PlayerStatus) (RoomPlayer, error) {
	row, err := scanPgPlayer(s.pool.QueryRow(ctx,
		`UPDATE room_players SET status = $3 WHERE room_id = $1 AND player_id = $2 RETURNING `+playerColumns,
		roomID, playerID, string(status),
	))

	return row, pgError(err)
}

func (s *postgresStore) DeletePlayer(ctx context.Context, roomID, playerID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM room_players WHERE room_id = $1 AND player_id = $2`, roomID, playerID)

	return pgError(err)
}

func (s *postgresStore) Close() error {
	s.pool.Close()

	return nil
}
