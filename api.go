/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

const maxBodyBytes = 1 << 16

var errBadBody = kindError(ErrValidation, "malformed request body")

// arena bundles the services the HTTP handlers share.
type arena struct {
	cfg      *Config
	lobby    *Lobby
	identity *Identity
	feed     Feed
	presence *presence
}

func newArena(cfg *Config, lobby *Lobby, identity *Identity, feed Feed) *arena {
	a := &arena{
		cfg:      cfg,
		lobby:    lobby,
		identity: identity,
		feed:     feed,
		presence: newPresence(),
	}

	identity.OnSessionChange(func(event SessionEvent, s Session) {
		if event == SessionSignedOut {
			a.presence.disconnect("", s.ID)
		}
	})

	return a
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type signInRequest struct {
	Username string `json:"username"`
}

type createRoomRequest struct {
	GameType   string       `json:"game_type"`
	Settings   RoomSettings `json:"settings"`
	Visibility Visibility   `json:"visibility"`
}

type playerRequest struct {
	PlayerID string `json:"player_id"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)

	w.WriteHeader(status)

	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logErr(err)
	}
}

func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logErr(err, "method", r.Method, "path", r.URL.Path, "remote", realIP(r))
		msg = "An error has occurred. Please try again."
	}

	writeJSON(cfg, w, status, apiError{Error: errorCode(err), Message: msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}

	return nil
}

// sessionHandler is an API endpoint that needs a signed-in caller. It
// returns the status and body to send, or an error.
type sessionHandler func(ctx context.Context, s Session, r *http.Request, p httprouter.Params) (int, any, error)

func (a *arena) withSession(h sessionHandler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		ctx, cancel := context.WithTimeout(r.Context(), a.cfg.requestTimeout)
		defer cancel()

		s, err := a.identity.Session(ctx, r)
		if err != nil {
			writeError(a.cfg, w, r, err)
			return
		}

		status, body, err := h(ctx, s, r, p)
		if err != nil {
			writeError(a.cfg, w, r, err)
			return
		}

		writeJSON(a.cfg, w, status, body)

		logf(a.cfg, "SERVE: %s %s (%d) for %q at %s in %s",
			r.Method,
			r.URL.Path,
			status,
			s.Username,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// hostRoom loads :code and checks that the caller hosts it.
func (a *arena) hostRoom(ctx context.Context, s Session, p httprouter.Params) (Room, error) {
	room, err := a.lobby.GetRoom(ctx, p.ByName("code"))
	if err != nil {
		return Room{}, err
	}

	if room.HostID != s.ID {
		return Room{}, ErrNotHost
	}

	return room, nil
}

func serveSignIn(a *arena) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), a.cfg.requestTimeout)
		defer cancel()

		var req signInRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(a.cfg, w, r, err)
			return
		}

		s, err := a.identity.SignIn(ctx, req.Username)
		if err != nil {
			writeError(a.cfg, w, r, err)
			return
		}

		a.identity.setCookie(w, s)

		writeJSON(a.cfg, w, http.StatusCreated, s.Profile)
	}
}

func serveSignOut(a *arena) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), a.cfg.requestTimeout)
		defer cancel()

		// An unknown cookie is still cleared.
		s, _ := a.identity.Session(ctx, r)

		a.identity.SignOut(w, s)

		writeJSON(a.cfg, w, http.StatusNoContent, nil)
	}
}

func serveMe(a *arena) httprouter.Handle {
	return a.withSession(func(_ context.Context, s Session, _ *http.Request, _ httprouter.Params) (int, any, error) {
		return http.StatusOK, s.Profile, nil
	})
}

func serveGameTypes(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, http.StatusOK, gameTypes)
	}
}

func serveListRooms(a *arena) httprouter.Handle {
	return a.withSession(func(ctx context.Context, _ Session, _ *http.Request, _ httprouter.Params) (int, any, error) {
		rooms, err := a.lobby.ListPublicRooms(ctx)
		if err != nil {
			return 0, nil, err
		}

		if rooms == nil {
			rooms = []Room{}
		}

		return http.StatusOK, rooms, nil
	})
}

func serveCreateRoom(a *arena) httprouter.Handle {
	return a.withSession(func(ctx context.Context, s Session, r *http.Request, _ httprouter.Params) (int, any, error) {
		var req createRoomRequest
		if err := decodeBody(r, &req); err != nil {
			return 0, nil, err
		}

		room, err := a.lobby.CreateRoom(ctx, s, req.GameType, req.Settings, req.Visibility)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusCreated, room, nil
	})
}

func serveGetRoom(a *arena) httprouter.Handle {
	return a.withSession(func(ctx context.Context, _ Session, _ *http.Request, p httprouter.Params) (int, any, error) {
		view, err := a.lobby.View(ctx, p.ByName("code"))
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, view, nil
	})
}

func serveJoinRoom(a *arena) httprouter.Handle {
	return a.withSession(func(ctx context.Context, s Session, _ *http.Request, p httprouter.Params) (int, any, error) {
		room, err := a.lobby.JoinRoom(ctx, s, p.ByName("code"))
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, room, nil
	})
}

func serveLeaveRoom(a *arena) httprouter.Handle {
	return a.withSession(func(ctx context.Context, s Session, _ *http.Request, p httprouter.Params) (int, any, error) {
		room, err := a.lobby.GetRoom(ctx, p.ByName("code"))
		if err != nil {
			return 0, nil, err
		}

		if err := a.lobby.LeaveRoom(ctx, room, s); err != nil {
			return 0, nil, err
		}

		a.presence.disconnect(room.ID, s.ID)

		return http.StatusNoContent, nil, nil
	})
}

func serveToggleLock(a *arena) httprouter.Handle {
	return a.withSession(func(ctx context.Context, s Session, _ *http.Request, p httprouter.Params) (int, any, error) {
		room, err := a.hostRoom(ctx, s, p)
		if err != nil {
			return 0, nil, err
		}

		room, err = a.lobby.ToggleLock(ctx, room)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, room, nil
	})
}

func serveKickPlayer(a *arena) httprouter.Handle {
	return a.withSession(func(ctx context.Context, s Session, r *http.Request, p httprouter.Params) (int, any, error) {
		var req playerRequest
		if err := decodeBody(r, &req); err != nil {
			return 0, nil, err
		}

		if req.PlayerID == "" {
			return 0, nil, errBadBody
		}

		room, err := a.hostRoom(ctx, s, p)
		if err != nil {
			return 0, nil, err
		}

		if err := a.lobby.KickPlayer(ctx, room, req.PlayerID); err != nil {
			return 0, nil, err
		}

		a.presence.disconnect(room.ID, req.PlayerID)

		return http.StatusNoContent, nil, nil
	})
}

func serveTransferHost(a *arena) httprouter.Handle {
	return a.withSession(func(ctx context.Context, s Session, r *http.Request, p httprouter.Params) (int, any, error) {
		var req playerRequest
		if err := decodeBody(r, &req); err != nil {
			return 0, nil, err
		}

		if req.PlayerID == "" {
			return 0, nil, errBadBody
		}

		room, err := a.hostRoom(ctx, s, p)
		if err != nil {
			return 0, nil, err
		}

		room, err = a.lobby.TransferHost(ctx, room, req.PlayerID)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, room, nil
	})
}

func serveStartGame(a *arena) httprouter.Handle {
	return a.withSession(func(ctx context.Context, s Session, _ *http.Request, p httprouter.Params) (int, any, error) {
		room, err := a.hostRoom(ctx, s, p)
		if err != nil {
			return 0, nil, err
		}

		room, err = a.lobby.StartGame(ctx, room)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, room, nil
	})
}

func registerAPI(a *arena, mux *httprouter.Router, errs chan<- error) {
	prefix := a.cfg.prefix + "/api"

	mux.POST(prefix+"/signin", serveSignIn(a))
	mux.POST(prefix+"/signout", serveSignOut(a))
	mux.GET(prefix+"/me", serveMe(a))

	mux.GET(prefix+"/games", serveGameTypes(a.cfg))

	mux.GET(prefix+"/rooms", serveListRooms(a))
	mux.POST(prefix+"/rooms", serveCreateRoom(a))
	mux.GET(prefix+"/rooms/:code", serveGetRoom(a))
	mux.POST(prefix+"/rooms/:code/join", serveJoinRoom(a))
	mux.POST(prefix+"/rooms/:code/leave", serveLeaveRoom(a))
	mux.POST(prefix+"/rooms/:code/lock", serveToggleLock(a))
	mux.POST(prefix+"/rooms/:code/kick", serveKickPlayer(a))
	mux.POST(prefix+"/rooms/:code/host", serveTransferHost(a))
	mux.POST(prefix+"/rooms/:code/start", serveStartGame(a))
	mux.GET(prefix+"/rooms/:code/ws", serveLobbySocket(a))
	mux.GET(prefix+"/rooms/:code/qr", serveRoomQR(a, errs))
}
