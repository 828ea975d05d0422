/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"time"
)

type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusPlaying  RoomStatus = "playing"
	StatusFinished RoomStatus = "finished"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

type PlayerStatus string

const (
	PlayerConnected    PlayerStatus = "connected"
	PlayerDisconnected PlayerStatus = "disconnected"
)

const (
	defaultMaxPlayers      = 20
	defaultRounds          = 5
	defaultTimePerQuestion = 15

	minPlayers         = 2
	maxPlayersLimit    = 100
	minRounds          = 1
	maxRounds          = 20
	minQuestionSeconds = 5
	maxQuestionSeconds = 60
)

// RoomSettings is stored as a JSON document; zero fields mean "unset".
type RoomSettings struct {
	MaxPlayers      int `json:"max_players,omitempty"`
	Rounds          int `json:"rounds,omitempty"`
	TimePerQuestion int `json:"time_per_question,omitempty"`
}

func (s RoomSettings) withDefaults() RoomSettings {
	if s.MaxPlayers == 0 {
		s.MaxPlayers = defaultMaxPlayers
	}
	if s.Rounds == 0 {
		s.Rounds = defaultRounds
	}
	if s.TimePerQuestion == 0 {
		s.TimePerQuestion = defaultTimePerQuestion
	}

	return s
}

func (s RoomSettings) validate() error {
	switch {
	case s.MaxPlayers < minPlayers || s.MaxPlayers > maxPlayersLimit,
		s.Rounds < minRounds || s.Rounds > maxRounds,
		s.TimePerQuestion < minQuestionSeconds || s.TimePerQuestion > maxQuestionSeconds:
		return ErrInvalidSettings
	}

	return nil
}

// capacity is the player limit enforced on join.
func (s RoomSettings) capacity() int {
	if s.MaxPlayers <= 0 {
		return defaultMaxPlayers
	}

	return s.MaxPlayers
}

type Profile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	AvatarColor string    `json:"avatar_color"`
	CreatedAt   time.Time `json:"created_at"`
}

type Room struct {
	ID         string       `json:"id"`
	Code       string       `json:"room_code"`
	HostID     string       `json:"host_id"`
	GameType   string       `json:"game_type"`
	Settings   RoomSettings `json:"settings"`
	Status     RoomStatus   `json:"status"`
	IsLocked   bool         `json:"is_locked"`
	Visibility Visibility   `json:"visibility"`
	CreatedAt  time.Time    `json:"created_at"`
}

type RoomPlayer struct {
	ID        string       `json:"id"`
	RoomID    string       `json:"room_id"`
	PlayerID  string       `json:"player_id"`
	JoinOrder int          `json:"join_order"`
	Status    PlayerStatus `json:"status"`
	Score     int          `json:"score"`
	JoinedAt  time.Time    `json:"joined_at"`
}

// RoomUpdate lists the mutable room columns; nil fields are left alone.
type RoomUpdate struct {
	IsLocked *bool
	HostID   *string
	Status   *RoomStatus
}

func (u RoomUpdate) empty() bool {
	return u.IsLocked == nil && u.HostID == nil && u.Status == nil
}

func (u RoomUpdate) apply(r *Room) {
	if u.IsLocked != nil {
		r.IsLocked = *u.IsLocked
	}
	if u.HostID != nil {
		r.HostID = *u.HostID
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
}

type RoomFilter struct {
	Visibility Visibility
	Status     RoomStatus
	Limit      int
}

func (f RoomFilter) match(r Room) bool {
	if f.Visibility != "" && r.Visibility != f.Visibility {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}

	return true
}

// PlayerView is a membership row joined with the member's profile.
// Profile is nil when the profile row could not be found.
type PlayerView struct {
	RoomPlayer
	Profile *PlayerProfile `json:"profile"`
}

type PlayerProfile struct {
	Username    string `json:"username"`
	AvatarColor string `json:"avatar_color"`
}

func ptr[T any](v T) *T {
	return &v
}
