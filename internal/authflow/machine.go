// Package authflow models the per-browser authentication lifecycle as an
// explicit state machine. Handlers drive it with events; an event that is
// not valid in the current state is rejected instead of silently ignored.
package authflow

import (
	"fmt"
	"log/slog"
)

// State is a position in the authentication lifecycle.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	PasswordChangeRequired
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case PasswordChangeRequired:
		return "password_change_required"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Kind identifies an event.
type Kind int

const (
	Submit Kind = iota
	StartOAuth
	Succeeded
	Rejected
	Settled
	PasswordChanged
	Logout
	TokenRejected
)

// String returns the event name.
func (k Kind) String() string {
	switch k {
	case Submit:
		return "submit"
	case StartOAuth:
		return "start_oauth"
	case Succeeded:
		return "succeeded"
	case Rejected:
		return "rejected"
	case Settled:
		return "settled"
	case PasswordChanged:
		return "password_changed"
	case Logout:
		return "logout"
	case TokenRejected:
		return "token_rejected"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is an input to the machine. MustChangePassword is only meaningful
// for Succeeded.
type Event struct {
	Kind               Kind
	MustChangePassword bool
}

// TransitionError reports an event that is not valid in a state.
type TransitionError struct {
	From  State
	Event Kind
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("authflow: %s is not valid in state %s", e.Event, e.From)
}

// Next returns the state reached from s on event ev.
func Next(s State, ev Event) (State, error) {
	switch s {
	case Anonymous:
		switch ev.Kind {
		case Submit, StartOAuth:
			return Authenticating, nil
		}
	case Authenticating:
		switch ev.Kind {
		case Succeeded:
			if ev.MustChangePassword {
				return PasswordChangeRequired, nil
			}
			return Authenticated, nil
		case Rejected:
			return Failed, nil
		}
	case Failed:
		if ev.Kind == Settled {
			return Anonymous, nil
		}
	case PasswordChangeRequired:
		switch ev.Kind {
		case PasswordChanged:
			return Authenticated, nil
		case Logout, TokenRejected:
			return Anonymous, nil
		}
	case Authenticated:
		switch ev.Kind {
		case Logout, TokenRejected:
			return Anonymous, nil
		}
	}
	return s, &TransitionError{From: s, Event: ev.Kind}
}

// Machine tracks one attempt's position and logs every transition. It is
// not safe for concurrent use; each request builds its own.
type Machine struct {
	state  State
	logger *slog.Logger
}

// New creates a machine in the given state. A nil logger uses slog.Default.
func New(initial State, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{state: initial, logger: logger}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Fire applies an event. On an invalid event the state is unchanged.
func (m *Machine) Fire(ev Event) error {
	next, err := Next(m.state, ev)
	if err != nil {
		m.logger.Warn("invalid auth transition",
			slog.String("from", m.state.String()),
			slog.String("event", ev.Kind.String()),
		)
		return err
	}
	m.logger.Debug("auth transition",
		slog.String("from", m.state.String()),
		slog.String("event", ev.Kind.String()),
		slog.String("to", next.String()),
	)
	m.state = next
	return nil
}

// For returns the state a stored session value represents.
func For(authenticated, mustChangePassword bool) State {
	switch {
	case !authenticated:
		return Anonymous
	case mustChangePassword:
		return PasswordChangeRequired
	default:
		return Authenticated
	}
}
