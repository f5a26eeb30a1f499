package gate

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/backend"
	"github.com/meridianhq/corpweb/internal/session"
)

// Callback query parameters set by the backend when it redirects the
// browser back after an identity-provider sign-in.
const (
	callbackToken = "token"
	callbackUser  = "user"
	callbackError = "error"
)

// Callback is a parsed identity-provider return.
type Callback struct {
	Token string
	User  backend.User
}

// Session builds the session value the callback authenticates.
func (cb *Callback) Session(now time.Time) *session.Session {
	return cb.User.Session(cb.Token, nil, now)
}

// ParseCallback validates the callback query. Any problem yields a
// callback AppError and no partial result.
func ParseCallback(q url.Values) (*Callback, error) {
	if msg := strings.TrimSpace(q.Get(callbackError)); msg != "" {
		return nil, apperror.NewCallback("The sign-in provider reported a problem. Please try again.")
	}

	token := strings.TrimSpace(q.Get(callbackToken))
	if token == "" {
		return nil, apperror.NewCallback("Sign-in failed: no token was returned.")
	}

	raw := strings.TrimSpace(q.Get(callbackUser))
	if raw == "" {
		return nil, apperror.NewCallback("Sign-in failed: no user details were returned.")
	}

	user, err := decodeCallbackUser(raw)
	if err != nil {
		return nil, apperror.NewCallback("Sign-in failed: the user details could not be read.")
	}
	if user.ID == "" {
		return nil, apperror.NewCallback("Sign-in failed: the user details were incomplete.")
	}

	return &Callback{Token: token, User: user}, nil
}

// decodeCallbackUser unmarshals the user parameter. Some providers encode
// the value twice, so a second unescape is attempted before giving up.
func decodeCallbackUser(raw string) (backend.User, error) {
	var u backend.User
	err := json.Unmarshal([]byte(raw), &u)
	if err == nil {
		return u, nil
	}
	unescaped, uerr := url.QueryUnescape(raw)
	if uerr != nil || unescaped == raw {
		return u, err
	}
	u = backend.User{}
	if err := json.Unmarshal([]byte(unescaped), &u); err != nil {
		return u, err
	}
	return u, nil
}

// EncodeCallback builds the callback query for a token and user. It is the
// inverse of ParseCallback.
func EncodeCallback(token string, u backend.User) (url.Values, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set(callbackToken, token)
	q.Set(callbackUser, string(data))
	return q, nil
}
