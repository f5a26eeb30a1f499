package auth

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/authflow"
	"github.com/meridianhq/corpweb/internal/backend"
	"github.com/meridianhq/corpweb/internal/gate"
	"github.com/meridianhq/corpweb/internal/session"
	"github.com/meridianhq/corpweb/internal/validate"
)

// minSessionTTL keeps a session alive long enough to render the next page
// even when the backend token is about to expire.
const minSessionTTL = time.Minute

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the backend or the
// session store directly.
type AuthService interface {
	// Login exchanges credentials for a new session. Identical submissions
	// from the same browser that overlap in time share one backend call.
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)

	// Callback completes an identity-provider sign-in from the callback
	// query. On error no session is created and none is destroyed.
	Callback(ctx context.Context, q url.Values, remoteIP, replaces string) (*LoginResult, error)

	// Register creates an account and returns the backend's message.
	Register(ctx context.Context, input RegisterInput) (string, error)

	// ChangePassword sets a new password and clears the session's
	// password-change requirement in one store write.
	ChangePassword(ctx context.Context, input ChangePasswordInput) (*session.Session, error)

	// Logout destroys the session.
	Logout(ctx context.Context, id string, s *session.Session, remoteIP string) error

	// ExpireSession destroys a session whose token the backend rejected.
	ExpireSession(ctx context.Context, id string, s *session.Session) error

	// ValidateSession returns the stored session for an ID.
	ValidateSession(ctx context.Context, id string) (*session.Session, error)

	// OAuthURL is where the browser goes to start a provider sign-in.
	OAuthURL(provider string) (string, error)

	// Providers lists the configured identity providers.
	Providers() []string
}

// ServiceConfig holds the settings the service needs from config.Config.
type ServiceConfig struct {
	SessionTTL time.Duration
	BaseURL    string
	Providers  []string
}

// authService implements AuthService against the backend API and Redis.
type authService struct {
	api       backend.AuthAPI
	store     session.Store
	events    EventRecorder
	ttl       time.Duration
	baseURL   string
	providers []string
	logger    *slog.Logger
	now       func() time.Time

	// logins collapses concurrent identical credential submissions.
	logins singleflight.Group
}

// NewAuthService creates a new auth service. events may be nil.
func NewAuthService(api backend.AuthAPI, store session.Store, cfg ServiceConfig, events EventRecorder) AuthService {
	providers := make([]string, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" && !slices.Contains(providers, p) {
			providers = append(providers, p)
		}
	}
	return &authService{
		api:       api,
		store:     store,
		events:    events,
		ttl:       cfg.SessionTTL,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		providers: providers,
		logger:    slog.Default().With(slog.String("component", "auth")),
		now:       time.Now,
	}
}

// Login validates the form, then signs in through the backend. Validation
// failures never reach the network.
func (s *authService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	if err := validate.New().
		Required("username", input.Username).
		MaxLen("username", input.Username, 100).
		Required("password", input.Password).
		MaxLen("password", input.Password, validate.MaxPasswordLen).
		Err(); err != nil {
		return nil, err
	}

	flow := authflow.New(authflow.Anonymous, s.logger.With(slog.String("entry", input.Entry.String())))
	_ = flow.Fire(authflow.Event{Kind: authflow.Submit})

	// Detached so a client that gives up does not fail the shared call for
	// the duplicate still waiting on it. The backend client has its own
	// timeout.
	v, err, shared := s.logins.Do(loginKey(input), func() (any, error) {
		return s.login(context.WithoutCancel(ctx), input)
	})
	if err != nil {
		_ = flow.Fire(authflow.Event{Kind: authflow.Rejected})
		_ = flow.Fire(authflow.Event{Kind: authflow.Settled})
		return nil, err
	}
	if shared {
		s.logger.Debug("collapsed duplicate login", slog.String("username", input.Username))
	}

	created := v.(*LoginResult)
	_ = flow.Fire(authflow.Event{Kind: authflow.Succeeded, MustChangePassword: created.Session.MustChangePassword})

	s.destroyReplaced(ctx, input.Replaces, created.SessionID)

	return &LoginResult{
		SessionID: created.SessionID,
		Session:   created.Session,
		TTL:       created.TTL,
		State:     flow.State(),
	}, nil
}

// login performs the backend exchange once per collapsed group.
func (s *authService) login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	ev := Event{
		Action:   ActionLogin,
		Username: input.Username,
		Entry:    input.Entry.String(),
		RemoteIP: input.RemoteIP,
	}

	data, err := s.api.Login(ctx, backend.Credentials{Username: input.Username, Password: input.Password})
	if err != nil {
		s.fail(ctx, ev, err)
		return nil, err
	}

	res, err := s.createSession(ctx, data.User.Session(data.Token, data.Permissions, s.now()))
	if err != nil {
		s.fail(ctx, ev, err)
		return nil, err
	}

	ev.SubjectID = res.Session.SubjectID
	s.succeed(ctx, ev)

	slog.Info("user signed in",
		slog.String("subject_id", res.Session.SubjectID),
		slog.String("role", string(res.Session.Role)),
		slog.Bool("must_change_password", res.Session.MustChangePassword),
	)
	return res, nil
}

// Callback parses the provider return and stores the session it carries.
func (s *authService) Callback(ctx context.Context, q url.Values, remoteIP, replaces string) (*LoginResult, error) {
	flow := authflow.New(authflow.Anonymous, s.logger.With(slog.String("entry", "oauth")))
	_ = flow.Fire(authflow.Event{Kind: authflow.StartOAuth})

	ev := Event{Action: ActionCallback, RemoteIP: remoteIP}

	cb, err := gate.ParseCallback(q)
	if err != nil {
		_ = flow.Fire(authflow.Event{Kind: authflow.Rejected})
		s.fail(ctx, ev, err)
		return nil, err
	}
	ev.Username = cb.User.Username

	res, err := s.createSession(ctx, cb.Session(s.now()))
	if err != nil {
		_ = flow.Fire(authflow.Event{Kind: authflow.Rejected})
		s.fail(ctx, ev, err)
		return nil, err
	}
	_ = flow.Fire(authflow.Event{Kind: authflow.Succeeded, MustChangePassword: res.Session.MustChangePassword})

	ev.SubjectID = res.Session.SubjectID
	s.succeed(ctx, ev)
	s.destroyReplaced(ctx, replaces, res.SessionID)

	res.State = flow.State()
	return res, nil
}

// Register validates the form and creates the account. The user signs in
// afterwards; registration itself never creates a session.
func (s *authService) Register(ctx context.Context, input RegisterInput) (string, error) {
	reg := backend.Registration{
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Username:     strings.TrimSpace(input.Username),
		Password:     input.Password,
		Phone:        strings.TrimSpace(input.Phone),
		Organization: strings.TrimSpace(input.Organization),
	}

	if err := validate.New().
		Required("first_name", reg.FirstName).
		MaxLen("first_name", reg.FirstName, 100).
		Required("last_name", reg.LastName).
		MaxLen("last_name", reg.LastName, 100).
		Required("email", reg.Email).
		Email("email", reg.Email).
		Required("username", reg.Username).
		MinLen("username", reg.Username, 3).
		MaxLen("username", reg.Username, 50).
		Password("password", reg.Password).
		Match("confirm", input.Confirm, reg.Password, "Passwords do not match").
		MaxLen("phone", reg.Phone, 30).
		MaxLen("organization", reg.Organization, 200).
		Err(); err != nil {
		return "", err
	}

	ev := Event{Action: ActionRegister, Username: reg.Username, RemoteIP: input.RemoteIP, Entry: gate.EntryRegular.String()}
	call := s.api.Register
	if input.Admin {
		ev.Action = ActionAdminRegister
		ev.Entry = gate.EntryAdmin.String()
		call = s.api.AdminRegister
	}

	msg, err := call(ctx, reg)
	if err != nil {
		s.fail(ctx, ev, err)
		return "", err
	}
	s.succeed(ctx, ev)

	slog.Info("account registered",
		slog.String("username", reg.Username),
		slog.Bool("admin", input.Admin),
	)
	return msg, nil
}

// ChangePassword validates, calls the backend with the session's token,
// and replaces the stored session with one that no longer requires a
// change. A rejected token expires the session.
func (s *authService) ChangePassword(ctx context.Context, input ChangePasswordInput) (*session.Session, error) {
	if input.Session == nil || input.SessionID == "" {
		return nil, apperror.NewUnauthorized("please sign in to change your password")
	}

	if err := validate.New().
		Required("current_password", input.Current).
		Password("new_password", input.New).
		Custom("new_password", input.New != "" && input.New == input.Current, "Choose a password different from your current one").
		Match("confirm_password", input.Confirm, input.New, "Passwords do not match").
		Err(); err != nil {
		return nil, err
	}

	flow := authflow.New(authflow.For(true, input.Session.MustChangePassword), s.logger)
	ev := Event{
		Action:    ActionPasswordChange,
		SubjectID: input.Session.SubjectID,
		Username:  input.Session.Username,
		RemoteIP:  input.RemoteIP,
	}

	err := s.api.ChangePassword(ctx, input.Session.Token, backend.PasswordChange{
		CurrentPassword: input.Current,
		NewPassword:     input.New,
	})
	if err != nil {
		s.fail(ctx, ev, err)
		if apperror.IsUnauthorized(err) {
			_ = s.ExpireSession(ctx, input.SessionID, input.Session)
		}
		return nil, err
	}

	next := input.Session.WithPasswordChanged()
	if err := s.store.Replace(ctx, input.SessionID, next); err != nil {
		return nil, err
	}
	if input.Session.MustChangePassword {
		_ = flow.Fire(authflow.Event{Kind: authflow.PasswordChanged})
	}
	s.succeed(ctx, ev)

	return next, nil
}

// Logout destroys the session. A missing session is not an error.
func (s *authService) Logout(ctx context.Context, id string, sess *session.Session, remoteIP string) error {
	if id == "" {
		return nil
	}
	flow := authflow.New(authflow.For(sess != nil, sess != nil && sess.MustChangePassword), s.logger)
	if err := s.store.Destroy(ctx, id); err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	_ = flow.Fire(authflow.Event{Kind: authflow.Logout})
	s.succeed(ctx, Event{
		Action:    ActionLogout,
		SubjectID: sess.SubjectID,
		Username:  sess.Username,
		RemoteIP:  remoteIP,
	})
	return nil
}

// ExpireSession destroys a session after the backend rejected its token.
func (s *authService) ExpireSession(ctx context.Context, id string, sess *session.Session) error {
	if id == "" {
		return nil
	}
	if err := s.store.Destroy(ctx, id); err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	flow := authflow.New(authflow.For(true, sess.MustChangePassword), s.logger)
	_ = flow.Fire(authflow.Event{Kind: authflow.TokenRejected})
	s.record(ctx, Event{
		Action:    ActionTokenRejected,
		Outcome:   OutcomeSuccess,
		SubjectID: sess.SubjectID,
		Username:  sess.Username,
	})
	return nil
}

// ValidateSession looks up a session ID.
func (s *authService) ValidateSession(ctx context.Context, id string) (*session.Session, error) {
	return s.store.Get(ctx, id)
}

// OAuthURL builds the provider sign-in URL with this site's callback as
// the redirect target. Unknown providers are not found.
func (s *authService) OAuthURL(provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !slices.Contains(s.providers, provider) {
		return "", apperror.NewNotFound("unknown sign-in provider")
	}
	return s.api.OAuthURL(provider, s.baseURL+gate.CallbackPath), nil
}

// Providers returns the configured provider names.
func (s *authService) Providers() []string {
	return slices.Clone(s.providers)
}

// --- Helpers ---

// createSession stores sess with a TTL capped by the token's expiry.
func (s *authService) createSession(ctx context.Context, sess *session.Session) (*LoginResult, error) {
	ttl := s.sessionTTL(sess.Token)
	sess.ExpiresAt = sess.CreatedAt.Add(ttl)

	id, err := s.store.Create(ctx, sess, ttl)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}
	return &LoginResult{SessionID: id, Session: sess, TTL: ttl}, nil
}

// sessionTTL returns the configured lifetime, shortened to the token's exp
// claim when the token is a JWT that carries one. The claim is read without
// verification; the backend stays the judge of the token's validity.
func (s *authService) sessionTTL(token string) time.Duration {
	ttl := s.ttl
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ttl
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ttl
	}

	left := exp.Sub(s.now())
	switch {
	case left < minSessionTTL:
		return minSessionTTL
	case left < ttl:
		return left
	default:
		return ttl
	}
}

// destroyReplaced removes the browser's previous session after a new one
// has been created.
func (s *authService) destroyReplaced(ctx context.Context, previous, current string) {
	if previous == "" || previous == current {
		return
	}
	if err := s.store.Destroy(ctx, previous); err != nil {
		slog.Warn("failed to destroy replaced session", slog.Any("error", err))
	}
}

func (s *authService) succeed(ctx context.Context, ev Event) {
	ev.Outcome = OutcomeSuccess
	s.record(ctx, ev)
}

func (s *authService) fail(ctx context.Context, ev Event, err error) {
	ev.Outcome = OutcomeFailure
	ev.Detail = apperror.SafeMessage(err)
	s.record(ctx, ev)
}

func (s *authService) record(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}
	s.events.RecordAuthEvent(ctx, ev)
}

// loginKey identifies a credential submission from one browser. The
// password only enters the key through the hash.
func loginKey(input LoginInput) string {
	h, _ := blake2b.New256(nil)
	for _, part := range []string{input.ClientKey, input.Username, input.Password, input.Entry.String()} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
