package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
	cookiejar "github.com/juju/persistent-cookiejar"
	"golang.org/x/sync/singleflight"
)

// RequestIDHeader carries the id we attach to every API request
const RequestIDHeader = "X-Request-ID"

const currentUserKey = "current-user"

// maxResponseBody caps how much of an API response we read
const maxResponseBody = 1 << 20

// LoginPayload is the body sent to the login endpoint
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(1, 512)),
	)
}

// SessionStore is the single source of truth for who the current user is.
// It talks to the fleet API with a credentialed HTTP client, keeps the
// AuthState in memory and persists it after every mutation.
type SessionStore struct {
	cfg      Config
	baseURL  *url.URL
	client   *http.Client
	jar      http.CookieJar
	storage  StateStorage
	logger   Logger
	activity ActivitySink

	mu    sync.RWMutex
	state AuthState
	// epoch changes on every login and reset; user fetches started in
	// an older epoch do not touch the state.
	epoch uint64

	fetches singleflight.Group
}

type StoreOption func(*SessionStore)

// WithHTTPClient sets the client used for API calls. The store cookie
// jar replaces the client's jar.
func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *SessionStore) {
		s.client = client
	}
}

// WithCookieJar sets the jar holding the session and CSRF cookies
func WithCookieJar(jar http.CookieJar) StoreOption {
	return func(s *SessionStore) {
		s.jar = jar
	}
}

// WithStorage sets where the AuthState is persisted
func WithStorage(storage StateStorage) StoreOption {
	return func(s *SessionStore) {
		s.storage = storage
	}
}

// WithActivitySink receives login, logout and session loss events
func WithActivitySink(sink ActivitySink) StoreOption {
	return func(s *SessionStore) {
		s.activity = sink
	}
}

func WithLogger(logger Logger) StoreOption {
	return func(s *SessionStore) {
		s.logger = logger
	}
}

// NewSessionStore creates a store and restores the last persisted state.
// A missing or unreadable state yields the unauthenticated default.
func NewSessionStore(ctx context.Context, cfg Config, opts ...StoreOption) (*SessionStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	baseURL, err := url.Parse(cfg.GetBaseURL())
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		if err == nil {
			err = errors.New("missing scheme or host")
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid fleet API base URL").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"base_url": cfg.GetBaseURL()})
	}

	s := &SessionStore{
		cfg:     cfg,
		baseURL: baseURL,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.jar == nil && s.client != nil && s.client.Jar != nil {
		s.jar = s.client.Jar
	}

	if s.jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{NoPersist: true})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to create cookie jar")
		}
		s.jar = jar
	}

	client := &http.Client{}
	if s.client != nil {
		c := *s.client
		client = &c
	}
	client.Jar = s.jar
	if client.Timeout == 0 {
		client.Timeout = cfg.GetRequestTimeout()
	}
	s.client = client

	if s.storage == nil {
		s.storage = NewMemoryStorage()
	}
	s.activity = normalizeActivitySink(s.activity)

	s.restore(ctx)

	return s, nil
}

// State returns a copy of the current AuthState
func (s *SessionStore) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// User returns a copy of the current user or nil
func (s *SessionStore) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User.Clone()
}

func (s *SessionStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAuthenticated
}

// Config returns the store configuration
func (s *SessionStore) Config() Config {
	return s.cfg
}

// PrimeCSRF asks the fleet API to set the CSRF cookie. Failures are
// logged and swallowed, later calls report their own errors.
func (s *SessionStore) PrimeCSRF(ctx context.Context) {
	res, err := s.do(ctx, http.MethodGet, s.cfg.GetCSRFPath(), nil, false)
	if err != nil {
		s.logger.Info("CSRF priming failed: %s", err)
		return
	}

	if !res.ok() {
		s.logger.Info("CSRF priming returned status %d (request_id=%s)", res.status, res.requestID)
		return
	}

	s.saveCookies()
}

// CSRFToken reads the CSRF cookie from the jar. It returns an empty
// string when the cookie is absent; requests are then sent without the
// CSRF header and the API decides.
func (s *SessionStore) CSRFToken() string {
	name := s.cfg.GetCSRFCookieName()
	for _, c := range s.jar.Cookies(s.baseURL) {
		if c.Name != name {
			continue
		}
		if v, err := url.PathUnescape(c.Value); err == nil {
			return v
		}
		return c.Value
	}
	return ""
}

// Login sends the credentials and, when accepted, loads the full user.
// On any failure the state is reset to unauthenticated before the error
// is returned. nav, when given, is sent to the home route on success.
func (s *SessionStore) Login(ctx context.Context, email, password string, nav Navigator) error {
	payload := LoginPayload{Email: strings.TrimSpace(email), Password: password}
	if err := payload.Validate(); err != nil {
		s.clearState()
		s.Persist(ctx)
		s.loginFailed(ctx, payload.Email, "invalid_payload", 0)
		return goerrors.Wrap(err, goerrors.CategoryValidation, ErrInvalidLoginPayload.Message).
			WithTextCode(TextCodeInvalidLogin).
			WithCode(goerrors.CodeBadRequest)
	}

	res, err := s.do(ctx, http.MethodPost, s.cfg.GetLoginPath(), payload, true)
	if err != nil {
		s.logger.Error("Login request failed: %s", err)
		s.clearState()
		s.Persist(ctx)
		s.loginFailed(ctx, payload.Email, "network", 0)
		return networkError(err, "login")
	}

	if !res.ok() || !loginAccepted(res.body) {
		s.logger.Info("Login rejected for %s: status %d (request_id=%s)", payload.Email, res.status, res.requestID)
		s.clearState()
		s.Persist(ctx)
		s.loginFailed(ctx, payload.Email, "rejected", res.status)
		return authFailure("login", res.status)
	}

	// the session cookie is new, fetches sent before it must not decide
	s.invalidateFetches()

	user := s.FetchUser(ctx)
	if user == nil {
		s.logger.Error("Login accepted for %s but current user could not be loaded", payload.Email)
		s.clearState()
		s.Persist(ctx)
		s.loginFailed(ctx, payload.Email, "user_unavailable", 0)
		return authFailure("login", http.StatusUnauthorized)
	}

	s.saveCookies()
	s.record(ctx, newActivityEvent(ActivityEventLoginSuccess, user, nil))

	if nav != nil {
		if err := nav.Navigate(ctx, s.cfg.GetHomeRoute()); err != nil {
			s.logger.Error("Post login navigation failed: %s", err)
		}
	}

	return nil
}

// Logout ends the remote session. A transport failure or a rejected
// request is returned and the state is left untouched, the server may
// still hold the session.
func (s *SessionStore) Logout(ctx context.Context, nav Navigator) error {
	res, err := s.do(ctx, http.MethodPost, s.cfg.GetLogoutPath(), nil, true)
	if err != nil {
		s.logger.Error("Logout failed: %s", err)
		return networkError(err, "logout")
	}

	if !res.ok() {
		s.logger.Error("Logout rejected: status %d (request_id=%s)", res.status, res.requestID)
		return authFailure("logout", res.status)
	}

	previous := s.User()
	s.clearState()
	s.Persist(ctx)
	s.saveCookies()
	s.record(ctx, newActivityEvent(ActivityEventLogout, previous, nil))

	if nav != nil {
		if err := nav.Navigate(ctx, s.cfg.GetLoginRoute()); err != nil {
			s.logger.Error("Post logout navigation failed: %s", err)
		}
	}

	return nil
}

// FetchUser loads the current user from the API. Any failure leaves the
// store unauthenticated; the result is nil in that case. Concurrent
// calls share a single request, which runs with the configured timeout
// and is not cancelled by any one caller. A caller whose ctx ends stops
// waiting and gets nil.
func (s *SessionStore) FetchUser(ctx context.Context) *User {
	ch := s.fetches.DoChan(currentUserKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GetRequestTimeout())
		defer cancel()
		return s.fetchUser(fetchCtx), nil
	})

	select {
	case res := <-ch:
		user, _ := res.Val.(*User)
		return user.Clone()
	case <-ctx.Done():
		s.logger.Debug("Stopped waiting for current user: %s", ctx.Err())
		return nil
	}
}

func (s *SessionStore) fetchUser(ctx context.Context) *User {
	epoch := s.currentEpoch()
	defer s.Persist(ctx)

	res, err := s.do(ctx, http.MethodGet, s.cfg.GetUserPath(), nil, true)
	if err != nil {
		s.logger.Error("Failed to fetch user: %s", err)
		return s.settle(ctx, epoch, nil, "network", 0)
	}

	if !res.ok() {
		s.logger.Debug("Current user request returned status %d (request_id=%s)", res.status, res.requestID)
		return s.settle(ctx, epoch, nil, "rejected", res.status)
	}

	user := &User{}
	if err := json.Unmarshal(res.body, user); err != nil {
		s.logger.Error("Unable to decode current user (request_id=%s): %s", res.requestID, err)
		return s.settle(ctx, epoch, nil, "malformed", res.status)
	}

	s.logger.Debug("Current user loaded: %s", print.MaybePrettyJSON(user))
	return s.settle(ctx, epoch, user, "", res.status)
}

// Persist writes the current state to storage. Failures only affect
// reload recovery, so they are logged and not returned.
func (s *SessionStore) Persist(ctx context.Context) {
	data, err := encodeState(s.State())
	if err != nil {
		s.logger.Error("Unable to encode auth state: %s", err)
		return
	}

	if err := s.storage.Save(context.WithoutCancel(ctx), s.cfg.GetStateKey(), data); err != nil {
		s.logger.Error("%s", storageError(err, "persist"))
	}
}

func (s *SessionStore) restore(ctx context.Context) {
	data, err := s.storage.Load(ctx, s.cfg.GetStateKey())
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			s.logger.Error("%s", storageError(err, "restore"))
		}
		return
	}

	state, err := decodeState(data)
	if err != nil {
		s.logger.Error("Discarding unreadable auth state: %s", err)
		return
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// settle and clearState are the only state mutators, they keep the user
// and the authenticated flag in step. settle applies a fetch outcome only
// if no login or reset happened since the fetch started, otherwise it
// returns the user the store already holds. A nil user drops the session
// and reports the loss when someone was signed in.
func (s *SessionStore) settle(ctx context.Context, epoch uint64, user *User, reason string, status int) *User {
	s.mu.Lock()
	if s.epoch != epoch {
		current := s.state.User.Clone()
		s.mu.Unlock()
		s.logger.Debug("Discarding stale current user response")
		return current
	}

	previous := s.state
	if user != nil {
		s.state = AuthState{User: user.Clone(), IsAuthenticated: true}
	} else {
		s.state = AuthState{}
	}
	s.mu.Unlock()

	if user != nil {
		return user.Clone()
	}

	if previous.IsAuthenticated {
		s.record(ctx, newActivityEvent(ActivityEventSessionLost, previous.User, map[string]any{
			"reason": reason,
			"status": status,
		}))
	}
	return nil
}

func (s *SessionStore) clearState() {
	s.mu.Lock()
	s.state = AuthState{}
	s.epoch++
	s.mu.Unlock()
	s.fetches.Forget(currentUserKey)
}

// invalidateFetches makes in flight user fetches stale and detaches
// later callers from them
func (s *SessionStore) invalidateFetches() {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()
	s.fetches.Forget(currentUserKey)
}

func (s *SessionStore) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

func (s *SessionStore) loginFailed(ctx context.Context, email, reason string, status int) {
	event := newActivityEvent(ActivityEventLoginFailure, nil, map[string]any{
		"reason": reason,
		"status": status,
	})
	event.Email = email
	s.record(ctx, event)
}

func (s *SessionStore) record(ctx context.Context, event ActivityEvent) {
	if err := s.activity.Record(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("Unable to record %s activity: %s", event.EventType, err)
	}
}

func (s *SessionStore) saveCookies() {
	saver, ok := s.jar.(interface{ Save() error })
	if !ok {
		return
	}
	if err := saver.Save(); err != nil {
		s.logger.Error("Unable to save cookie jar: %s", err)
	}
}

type apiResponse struct {
	status    int
	body      []byte
	requestID string
}

func (r apiResponse) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (s *SessionStore) do(ctx context.Context, method, path string, payload any, withCSRF bool) (apiResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GetRequestTimeout())
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apiResponse{}, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint(path), body)
	if err != nil {
		return apiResponse{}, err
	}

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if withCSRF {
		if token := s.CSRFToken(); token != "" {
			req.Header.Set(s.cfg.GetCSRFHeaderName(), token)
		} else {
			s.logger.Debug("No CSRF cookie, sending %s %s without %s", method, path, s.cfg.GetCSRFHeaderName())
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apiResponse{requestID: requestID}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return apiResponse{status: resp.StatusCode, requestID: requestID}, err
	}

	s.logger.Debug("%s %s -> %d (request_id=%s)", method, path, resp.StatusCode, requestID)

	return apiResponse{
		status:    resp.StatusCode,
		body:      data,
		requestID: requestID,
	}, nil
}

func (s *SessionStore) endpoint(path string) string {
	return s.cfg.GetBaseURL() + "/" + strings.TrimLeft(path, "/")
}

// loginAccepted reads the login response body. An explicit success flag
// wins; otherwise a user shaped body counts as success.
func loginAccepted(body []byte) bool {
	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return false
	}

	if v, ok := raw["success"]; ok {
		success, _ := v.(bool)
		return success
	}

	_, hasID := raw["id"]
	_, hasEmail := raw["email"]
	return hasID || hasEmail
}
