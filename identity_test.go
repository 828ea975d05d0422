/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignIn(t *testing.T) {
	id := newIdentity(&Config{}, newMemoryStore())

	s, err := id.SignIn(context.Background(), "  Striker_9 ")
	require.NoError(t, err)

	assert.Equal(t, "Striker_9", s.Username)
	assert.NoError(t, uuid.Validate(s.ID))
	assert.True(t, slices.Contains(avatarColors, s.AvatarColor), "color %q", s.AvatarColor)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestSignInRejectsBadUsernames(t *testing.T) {
	id := newIdentity(&Config{}, newMemoryStore())

	for _, name := range []string{"", "ab", "abcdefghijklmnopq", "bad name", "dash-name", "héllo"} {
		_, err := id.SignIn(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidUsername, "username %q", name)
		assert.ErrorIs(t, err, ErrValidation, "username %q", name)
	}

	for _, name := range []string{"abc", "abcdefghijklmnop", "___", "A1_b2"} {
		_, err := id.SignIn(context.Background(), name)
		assert.NoError(t, err, "username %q", name)
	}
}

func TestSignInUsernameTaken(t *testing.T) {
	id := newIdentity(&Config{}, newMemoryStore())

	_, err := id.SignIn(context.Background(), "keeper")
	require.NoError(t, err)

	_, err = id.SignIn(context.Background(), "keeper")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.ErrorIs(t, err, ErrConflict)
}

// racingStore hides existing usernames from the lookup, so SignIn only finds
// out at insert time.
type racingStore struct {
	*memoryStore
}

func (s *racingStore) ProfileByUsername(context.Context, string) (Profile, error) {
	return Profile{}, errNoRow
}

func TestSignInLostRace(t *testing.T) {
	id := newIdentity(&Config{}, &racingStore{memoryStore: newMemoryStore()})

	_, err := id.SignIn(context.Background(), "keeper")
	require.NoError(t, err)

	_, err = id.SignIn(context.Background(), "keeper")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestSessionFromCookie(t *testing.T) {
	id := newIdentity(&Config{prefix: "/arena"}, newMemoryStore())

	s, err := id.SignIn(context.Background(), "keeper")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	id.setCookie(rec, s)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, playerCookieName, cookies[0].Name)
	assert.Equal(t, "/arena/", cookies[0].Path)
	assert.True(t, cookies[0].HttpOnly)
	assert.False(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/arena/api/me", nil)
	req.AddCookie(cookies[0])

	got, err := id.Session(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "keeper", got.Username)
}

func TestSessionWithoutValidCookie(t *testing.T) {
	id := newIdentity(&Config{}, newMemoryStore())

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"empty", &http.Cookie{Name: playerCookieName, Value: ""}},
		{"not a uuid", &http.Cookie{Name: playerCookieName, Value: "robert"}},
		{"unknown profile", &http.Cookie{Name: playerCookieName, Value: uuid.NewString()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}

			_, err := id.Session(context.Background(), req)
			assert.ErrorIs(t, err, ErrNotSignedIn)
		})
	}
}

func TestSignOutClearsCookieAndNotifies(t *testing.T) {
	id := newIdentity(&Config{}, newMemoryStore())

	var events []SessionEvent
	id.OnSessionChange(func(event SessionEvent, s Session) {
		events = append(events, event)
	})

	s, err := id.SignIn(context.Background(), "keeper")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	id.SignOut(rec, s)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)

	assert.Equal(t, []SessionEvent{SessionSignedIn, SessionSignedOut}, events)
}
