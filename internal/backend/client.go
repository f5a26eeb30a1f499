// Package backend is the typed client for the external REST API. It is the
// only package that knows endpoint paths and response envelopes; callers get
// domain values or an *apperror.AppError from the authentication taxonomy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meridianhq/corpweb/internal/apperror"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// AuthAPI is the contract of the authentication endpoints.
type AuthAPI interface {
	Login(ctx context.Context, creds Credentials) (*LoginData, error)
	Register(ctx context.Context, reg Registration) (string, error)
	AdminRegister(ctx context.Context, reg Registration) (string, error)
	ChangePassword(ctx context.Context, token string, change PasswordChange) error
	OAuthURL(provider, redirectURI string) string
}

// ContentAPI is the contract of the content endpoints. token may be empty
// for anonymous visitors.
type ContentAPI interface {
	Services(ctx context.Context, token string) ([]Service, error)
	Team(ctx context.Context, token string) ([]TeamMember, error)
	Announcements(ctx context.Context, token string) ([]Announcement, error)
	Tools(ctx context.Context, token string) ([]Tool, error)
	DashboardStats(ctx context.Context, token string) (*DashboardStats, error)
}

// Client implements AuthAPI and ContentAPI over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient creates a client using a caller-supplied http.Client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// response is a fully read backend reply.
type response struct {
	status int
	body   []byte
}

// ok reports a 2xx status.
func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// do sends one request. Transport failures, 5xx replies and unreadable
// bodies become network errors; every other status is returned for the
// caller to map.
func (c *Client) do(ctx context.Context, method, path, token string, in any) (*response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("encoding %s body: %w", path, err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("building %s request: %w", path, err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.NewNetwork(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, apperror.NewNetwork(fmt.Errorf("reading %s response: %w", path, err))
	}

	if res.StatusCode >= 500 {
		return nil, apperror.NewNetwork(fmt.Errorf("%s %s: backend returned %d", method, path, res.StatusCode))
	}
	if len(bytes.TrimSpace(data)) > 0 && !isJSON(res.Header.Get("Content-Type")) {
		return nil, apperror.NewNetwork(fmt.Errorf("%s %s: unexpected content type %q", method, path, res.Header.Get("Content-Type")))
	}

	return &response{status: res.StatusCode, body: data}, nil
}

// isJSON accepts application/json and any +json structured suffix. A
// missing header is tolerated; some deployments omit it.
func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// decodeEnvelope reads an auth-style envelope. An empty body decodes to a
// zero envelope.
func decodeEnvelope[T any](r *response) (envelope[T], error) {
	var env envelope[T]
	if len(bytes.TrimSpace(r.body)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(r.body, &env); err != nil {
		return env, apperror.NewNetwork(fmt.Errorf("decoding response: %w", err))
	}
	return env, nil
}

// decodeData reads either a bare value or one wrapped in {"data": ...}.
func decodeData[T any](r *response) (T, error) {
	var out T
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	raw := bytes.TrimSpace(r.body)
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 && string(wrapped.Data) != "null" {
			raw = wrapped.Data
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, apperror.NewNetwork(fmt.Errorf("decoding response: %w", err))
	}
	return out, nil
}

// --- Auth endpoints ---

// Login exchanges credentials for a token and user.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginData, error) {
	res, err := c.do(ctx, http.MethodPost, "/auth/login", "", creds)
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope[LoginData](res)
	if err != nil && res.ok() {
		return nil, err
	}

	switch {
	case res.status == http.StatusUnprocessableEntity:
		return nil, apperror.NewValidation(orDefault(env.reason(), "please check the form and try again"))
	case !res.ok() || env.failed():
		return nil, apperror.NewInvalidCredentials(env.reason())
	}

	data := env.Data
	if data.Token == "" || data.User.ID == "" {
		return nil, apperror.NewNetwork(errors.New("login response missing token or user"))
	}
	return &data, nil
}

// Register creates a regular account and returns the backend's message.
func (c *Client) Register(ctx context.Context, reg Registration) (string, error) {
	return c.register(ctx, "/auth/register", reg)
}

// AdminRegister creates an administrator account request.
func (c *Client) AdminRegister(ctx context.Context, reg Registration) (string, error) {
	return c.register(ctx, "/auth/admin-register", reg)
}

func (c *Client) register(ctx context.Context, path string, reg Registration) (string, error) {
	res, err := c.do(ctx, http.MethodPost, path, "", reg)
	if err != nil {
		return "", err
	}

	env, err := decodeEnvelope[json.RawMessage](res)
	if err != nil && res.ok() {
		return "", err
	}

	switch {
	case res.status == http.StatusConflict:
		return "", apperror.NewConflict(orDefault(env.reason(), "an account with these details already exists"))
	case res.status == http.StatusBadRequest || res.status == http.StatusUnprocessableEntity:
		return "", apperror.NewValidation(orDefault(env.reason(), "please check the form and try again"))
	case !res.ok() || env.failed():
		return "", apperror.NewBadRequest(orDefault(env.reason(), "registration failed"))
	}

	return orDefault(env.Message, "Registration successful."), nil
}

// ChangePassword sets a new password for the token's user.
func (c *Client) ChangePassword(ctx context.Context, token string, change PasswordChange) error {
	res, err := c.do(ctx, http.MethodPost, "/auth/change-password", token, change)
	if err != nil {
		return err
	}

	env, _ := decodeEnvelope[json.RawMessage](res)
	switch {
	case res.status == http.StatusUnauthorized:
		return apperror.NewUnauthorized("your session has expired")
	case res.status == http.StatusBadRequest || res.status == http.StatusForbidden:
		return apperror.NewInvalidCredentials(orDefault(env.reason(), "current password is incorrect"))
	case res.status == http.StatusUnprocessableEntity:
		return apperror.NewValidation(orDefault(env.reason(), "the new password was rejected"))
	case !res.ok() || env.failed():
		return apperror.NewBadRequest(orDefault(env.reason(), "password change failed"))
	}
	return nil
}

// OAuthURL is where phase one of the identity-provider flow sends the
// browser. The backend performs the provider exchange and redirects back
// to redirectURI with token and user parameters.
func (c *Client) OAuthURL(provider, redirectURI string) string {
	q := url.Values{}
	q.Set("redirect_uri", redirectURI)
	return c.baseURL + "/auth/" + url.PathEscape(provider) + "?" + q.Encode()
}

// --- Content endpoints ---

// Services lists the company's service offerings.
func (c *Client) Services(ctx context.Context, token string) ([]Service, error) {
	return getData[[]Service](ctx, c, "/content/services", token)
}

// Team lists team members.
func (c *Client) Team(ctx context.Context, token string) ([]TeamMember, error) {
	return getData[[]TeamMember](ctx, c, "/team", token)
}

// Announcements lists published announcements.
func (c *Client) Announcements(ctx context.Context, token string) ([]Announcement, error) {
	return getData[[]Announcement](ctx, c, "/announcements", token)
}

// Tools returns the tools configuration.
func (c *Client) Tools(ctx context.Context, token string) ([]Tool, error) {
	return getData[[]Tool](ctx, c, "/tools/config", token)
}

// DashboardStats returns headline numbers for the dashboards.
func (c *Client) DashboardStats(ctx context.Context, token string) (*DashboardStats, error) {
	stats, err := getData[DashboardStats](ctx, c, "/dashboard/stats", token)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// getData performs an authenticated-if-possible GET. A 401 on a request
// that carried a token means the backend rejected the session.
func getData[T any](ctx context.Context, c *Client, path, token string) (T, error) {
	var zero T
	res, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return zero, err
	}

	switch {
	case res.status == http.StatusUnauthorized && token != "":
		return zero, apperror.NewUnauthorized("your session has expired")
	case res.status == http.StatusUnauthorized || res.status == http.StatusForbidden:
		return zero, apperror.NewForbidden("you don't have access to this content")
	case res.status == http.StatusNotFound:
		return zero, apperror.NewNotFound("content not found")
	case !res.ok():
		return zero, apperror.NewBadRequest(fmt.Sprintf("backend rejected request (%d)", res.status))
	}

	return decodeData[T](res)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
