/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lmittmann/tint"
)

// Error kinds. Every error returned by the lobby controller, the identity
// service and the stores wraps exactly one of these.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientState = errors.New("insufficient state")
)

var (
	ErrRoomNotFound        = kindError(ErrNotFound, "room not found")
	ErrNotMember           = kindError(ErrNotFound, "player is not a member of this room")
	ErrUsernameTaken       = kindError(ErrConflict, "username is already taken")
	ErrRoomFull            = kindError(ErrCapacityExceeded, "room is full")
	ErrRoomLocked          = kindError(ErrPermissionDenied, "room is locked")
	ErrNotHost             = kindError(ErrPermissionDenied, "only the host can do that")
	ErrNotSignedIn         = kindError(ErrPermissionDenied, "not signed in")
	ErrInvalidUsername     = kindError(ErrValidation, "username must be 3-16 characters of letters, numbers or underscores")
	ErrInvalidSettings     = kindError(ErrValidation, "invalid room settings")
	ErrUnknownGameType     = kindError(ErrValidation, "unknown game type")
	ErrInsufficientPlayers = kindError(ErrInsufficientState, "at least 2 players are needed to start")
	ErrGameStarted         = kindError(ErrInsufficientState, "game has already started")

	// ErrCreateRoom carries the store failure as text only, so a store
	// not-found or conflict never leaks out as a client error.
	ErrCreateRoom = errors.New("failed to create room")
)

type arenaError struct {
	kind error
	msg  string
}

func (e *arenaError) Error() string { return e.msg }

func (e *arenaError) Unwrap() error { return e.kind }

func kindError(kind error, msg string) error {
	return &arenaError{kind: kind, msg: msg}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotSignedIn):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrInsufficientState):
		return http.StatusConflict
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotSignedIn):
		return "unauthenticated"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientState):
		return "insufficient_state"
	default:
		return "internal"
	}
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: logDate,
	}))
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	slog.Info(fmt.Sprintf(format, args...))
}

func logErr(err error, args ...any) {
	slog.Error(err.Error(), args...)
}

// drainErrors logs write failures reported by handlers until errs is closed.
func drainErrors(errs <-chan error) {
	for err := range errs {
		logErr(err)
	}
}

func newPage(cfg *Config, title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	htmlBody.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body{height:100%;margin:0;font-family:system-ui,sans-serif;background:#0b1f14;color:#f8fafc;}`)
	htmlBody.WriteString(`main{max-width:40rem;margin:0 auto;padding:2rem;}a{color:#22c55e;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body><main><h1><a href=\"%s/\">Footy Arena</a></h1>%s</main></body></html>", cfg.prefix, body))

	return htmlBody.String()
}
