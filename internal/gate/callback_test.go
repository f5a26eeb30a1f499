package gate

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/backend"
)

func sampleUsers() []backend.User {
	return []backend.User{
		{ID: "42", Username: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Smith", Role: "user"},
		{ID: "7", Username: "root", Role: "super_admin", Permissions: []string{"manage_system", "view_users"}},
		{ID: "u-9", Username: "bob", DisplayName: "Bob & \"Co\" <b>", Role: "admin", MustChangePassword: true},
		{ID: "10", Username: "zoë", FirstName: "Zoë", LastName: "Ærø", Role: "editor", Permissions: []string{"a+b=c", "100%"}},
	}
}

// Property: encode then parse yields an equal session for valid payloads.
func TestCallback_RoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, u := range sampleUsers() {
		q, err := EncodeCallback("tok-"+string(u.ID), u)
		require.NoError(t, err)

		// Go through the wire form, as the browser would.
		wire, err := url.ParseQuery(q.Encode())
		require.NoError(t, err)

		cb, err := ParseCallback(wire)
		require.NoError(t, err, "user %s", u.ID)
		assert.Equal(t, u.Session("tok-"+string(u.ID), nil, now), cb.Session(now))

		// Encoding the parsed payload again is stable.
		again, err := EncodeCallback(cb.Token, cb.User)
		require.NoError(t, err)
		assert.Equal(t, q.Encode(), again.Encode())
	}
}

func TestParseCallback_NumericID(t *testing.T) {
	q := url.Values{}
	q.Set("token", "t")
	q.Set("user", `{"id":15,"username":"x","role":"user"}`)

	cb, err := ParseCallback(q)
	require.NoError(t, err)
	assert.Equal(t, backend.ID("15"), cb.User.ID)
}

func TestParseCallback_DoubleEncodedUser(t *testing.T) {
	q := url.Values{}
	q.Set("token", "t")
	q.Set("user", url.QueryEscape(`{"id":"1","username":"x","role":"admin"}`))

	cb, err := ParseCallback(q)
	require.NoError(t, err)
	assert.Equal(t, "admin", cb.User.Role)
}

// Property: malformed payloads always yield a callback error and nothing else.
func TestParseCallback_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"provider error", "error=access_denied&token=t&user=%7B%22id%22%3A1%7D"},
		{"missing token", "user=%7B%22id%22%3A1%7D"},
		{"blank token", "token=%20&user=%7B%22id%22%3A1%7D"},
		{"missing user", "token=t"},
		{"user not json", "token=t&user=alice"},
		{"user truncated", "token=t&user=%7B%22id%22%3A1"},
		{"user is array", "token=t&user=%5B1%2C2%5D"},
		{"user without id", "token=t&user=%7B%22username%22%3A%22x%22%7D"},
		{"user with bool id", "token=t&user=%7B%22id%22%3Atrue%7D"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			cb, err := ParseCallback(q)
			assert.Nil(t, cb)
			require.Error(t, err)
			assert.True(t, apperror.IsType(err, apperror.TypeCallback), "got %v", err)
		})
	}
}
