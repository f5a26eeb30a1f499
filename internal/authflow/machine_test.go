package authflow

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNext_ValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		ev   Event
		want State
	}{
		{Anonymous, Event{Kind: Submit}, Authenticating},
		{Anonymous, Event{Kind: StartOAuth}, Authenticating},
		{Authenticating, Event{Kind: Succeeded}, Authenticated},
		{Authenticating, Event{Kind: Succeeded, MustChangePassword: true}, PasswordChangeRequired},
		{Authenticating, Event{Kind: Rejected}, Failed},
		{Failed, Event{Kind: Settled}, Anonymous},
		{PasswordChangeRequired, Event{Kind: PasswordChanged}, Authenticated},
		{PasswordChangeRequired, Event{Kind: Logout}, Anonymous},
		{Authenticated, Event{Kind: Logout}, Anonymous},
		{Authenticated, Event{Kind: TokenRejected}, Anonymous},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.ev.Kind.String(), func(t *testing.T) {
			got, err := Next(tt.from, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNext_InvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		kind Kind
	}{
		{Anonymous, Succeeded},
		{Anonymous, Logout},
		{Authenticating, Submit},
		{Authenticating, Logout},
		{Authenticated, Submit},
		{Authenticated, PasswordChanged},
		{Failed, Submit},
		{PasswordChangeRequired, Succeeded},
	}
	for _, tt := range tests {
		got, err := Next(tt.from, Event{Kind: tt.kind})
		var te *TransitionError
		require.True(t, errors.As(err, &te), "%s/%s", tt.from, tt.kind)
		assert.Equal(t, tt.from, got)
		assert.Equal(t, tt.from, te.From)
	}
}

// A failed attempt always settles back to Anonymous and never leaves the
// machine in Authenticating.
func TestMachine_FailureCycle(t *testing.T) {
	m := New(Anonymous, quietLogger())

	require.NoError(t, m.Fire(Event{Kind: Submit}))
	require.NoError(t, m.Fire(Event{Kind: Rejected}))
	assert.Equal(t, Failed, m.State())
	require.NoError(t, m.Fire(Event{Kind: Settled}))
	assert.Equal(t, Anonymous, m.State())
}

func TestMachine_PasswordChangeCycle(t *testing.T) {
	m := New(Anonymous, quietLogger())

	require.NoError(t, m.Fire(Event{Kind: Submit}))
	require.NoError(t, m.Fire(Event{Kind: Succeeded, MustChangePassword: true}))
	assert.Equal(t, PasswordChangeRequired, m.State())

	require.NoError(t, m.Fire(Event{Kind: PasswordChanged}))
	assert.Equal(t, Authenticated, m.State())

	require.NoError(t, m.Fire(Event{Kind: TokenRejected}))
	assert.Equal(t, Anonymous, m.State())
}

func TestMachine_InvalidEventKeepsState(t *testing.T) {
	m := New(Authenticated, quietLogger())

	assert.Error(t, m.Fire(Event{Kind: Submit}))
	assert.Equal(t, Authenticated, m.State())
}

func TestFor(t *testing.T) {
	assert.Equal(t, Anonymous, For(false, true))
	assert.Equal(t, PasswordChangeRequired, For(true, true))
	assert.Equal(t, Authenticated, For(true, false))
}
