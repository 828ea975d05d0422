/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const playerCookieName = "footyarena_id"

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,16}$`)

	avatarColors = []string{
		"#22c55e", "#3b82f6", "#f59e0b", "#ef4444", "#8b5cf6",
		"#ec4899", "#14b8a6", "#f97316", "#06b6d4", "#84cc16",
	}
)

// Session is the signed-in caller. It is passed explicitly to every lobby
// operation.
type Session struct {
	Profile
}

type SessionEvent string

const (
	SessionSignedIn  SessionEvent = "signed_in"
	SessionSignedOut SessionEvent = "signed_out"
)

// Identity issues anonymous identities, binds them to a cookie and keeps
// the matching profiles row.
type Identity struct {
	cfg   *Config
	store Store

	mu        sync.RWMutex
	observers []func(SessionEvent, Session)
}

func newIdentity(cfg *Config, store Store) *Identity {
	return &Identity{cfg: cfg, store: store}
}

// OnSessionChange registers fn to be called after every sign-in and sign-out.
func (id *Identity) OnSessionChange(fn func(SessionEvent, Session)) {
	id.mu.Lock()
	defer id.mu.Unlock()

	id.observers = append(id.observers, fn)
}

func (id *Identity) notify(event SessionEvent, s Session) {
	id.mu.RLock()
	observers := append([]func(SessionEvent, Session){}, id.observers...)
	id.mu.RUnlock()

	for _, fn := range observers {
		fn(event, s)
	}
}

// SignIn claims username for a freshly minted identity.
func (id *Identity) SignIn(ctx context.Context, username string) (Session, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return Session{}, ErrInvalidUsername
	}

	_, err := id.store.ProfileByUsername(ctx, username)
	switch {
	case err == nil:
		return Session{}, ErrUsernameTaken
	case !errors.Is(err, ErrNotFound):
		return Session{}, err
	}

	p := Profile{
		ID:          uuid.NewString(),
		Username:    username,
		AvatarColor: avatarColors[rand.IntN(len(avatarColors))],
		CreatedAt:   time.Now().UTC(),
	}

	if err := id.store.InsertProfile(ctx, p); err != nil {
		// Lost a race for the username.
		if errors.Is(err, ErrConflict) {
			return Session{}, ErrUsernameTaken
		}

		return Session{}, err
	}

	logf(id.cfg, "AUTH: %q signed in as %s", p.Username, p.ID)

	s := Session{Profile: p}
	id.notify(SessionSignedIn, s)

	return s, nil
}

// Session resolves the caller from the identity cookie. It returns
// ErrNotSignedIn when there is no cookie or no profile behind it.
func (id *Identity) Session(ctx context.Context, r *http.Request) (Session, error) {
	c, err := r.Cookie(playerCookieName)
	if err != nil || c.Value == "" {
		return Session{}, ErrNotSignedIn
	}

	if _, err := uuid.Parse(c.Value); err != nil {
		return Session{}, ErrNotSignedIn
	}

	p, err := id.store.ProfileByID(ctx, c.Value)
	switch {
	case errors.Is(err, ErrNotFound):
		return Session{}, ErrNotSignedIn
	case err != nil:
		return Session{}, err
	}

	return Session{Profile: p}, nil
}

func (id *Identity) cookie(value string, maxAge int) *http.Cookie {
	path := id.cfg.prefix + "/"

	return &http.Cookie{
		Name:     playerCookieName,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   id.cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

func (id *Identity) setCookie(w http.ResponseWriter, s Session) {
	http.SetCookie(w, id.cookie(s.ID, int((365*24*time.Hour).Seconds())))
}

// SignOut forgets the identity cookie. The profile row is kept.
func (id *Identity) SignOut(w http.ResponseWriter, s Session) {
	http.SetCookie(w, id.cookie("", -1))

	logf(id.cfg, "AUTH: %q signed out", s.Username)

	id.notify(SessionSignedOut, s)
}
