// Package fleetapitest provides an in-process fake of the fleet API
// session endpoints for tests.
package fleetapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/google/uuid"
)

const (
	CSRFCookieName    = "csrftoken"
	CSRFHeaderName    = "X-CSRFToken"
	SessionCookieName = "sessionid"

	sessionMaxAge = 14 * 24 * 60 * 60
	csrfMaxAge    = 364 * 24 * 60 * 60
)

// Account is a user known to the fake API
type Account struct {
	Password string
	User     map[string]any
}

// Server fakes the CSRF, login, logout and current user endpoints with
// cookie based sessions
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	accounts     map[string]Account
	sessions     map[string]string
	csrfToken    string
	requireCSRF  bool
	userStatus   int
	logoutStatus int
	calls        map[string]int
	csrfHeaders  map[string]string
	userHold     *hold
}

type hold struct {
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewServer starts a fake API. Call Close when done.
func NewServer() *Server {
	s := &Server{
		accounts:    map[string]Account{},
		sessions:    map[string]string{},
		csrfToken:   uuid.NewString(),
		calls:       map[string]int{},
		csrfHeaders: map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/csrf/", s.handleCSRF)
	mux.HandleFunc("/api/login/", s.handleLogin)
	mux.HandleFunc("/api/logout/", s.handleLogout)
	mux.HandleFunc("/api/me/", s.handleMe)

	s.Server = httptest.NewServer(mux)
	return s
}

// AddAccount registers credentials and the user payload served by /api/me/
func (s *Server) AddAccount(email, password string, user map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = Account{Password: password, User: user}
}

// RequireCSRF makes login and logout reject requests without a valid token
func (s *Server) RequireCSRF(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireCSRF = v
}

// ForceUserStatus makes /api/me/ answer with status, 0 restores normal behavior
func (s *Server) ForceUserStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userStatus = status
}

// ForceLogoutStatus makes /api/logout/ answer with status, 0 restores normal behavior
func (s *Server) ForceLogoutStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutStatus = status
}

// HoldNextUserRequest parks the next /api/me/ request. arrived is closed
// once that request reached the server; it is answered after release.
func (s *Server) HoldNextUserRequest() (arrived <-chan struct{}, release func()) {
	h := &hold{arrived: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.userHold = h
	s.mu.Unlock()
	return h.arrived, func() {
		h.once.Do(func() { close(h.release) })
	}
}

// CSRFToken is the token the fake hands out
func (s *Server) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken
}

// Calls returns how many times path was hit
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// CSRFHeader returns the last CSRF header received on path
func (s *Server) CSRFHeader(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfHeaders[path]
}

// ActiveSessions returns the number of open sessions
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) track(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[r.URL.Path]++
	s.csrfHeaders[r.URL.Path] = r.Header.Get(CSRFHeaderName)
}

func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	s.track(r)
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"detail": "method not allowed"})
		return
	}

	http.SetCookie(w, &http.Cookie{Name: CSRFCookieName, Value: s.CSRFToken(), Path: "/", MaxAge: csrfMaxAge})
	writeJSON(w, http.StatusOK, map[string]any{"detail": "CSRF cookie set"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.track(r)
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"detail": "method not allowed"})
		return
	}
	if !s.csrfValid(r) {
		writeJSON(w, http.StatusForbidden, map[string]any{"detail": "CSRF Failed"})
		return
	}

	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false})
		return
	}

	s.mu.Lock()
	account, ok := s.accounts[payload.Email]
	if !ok || account.Password != payload.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
		return
	}
	sessionID := uuid.NewString()
	s.sessions[sessionID] = payload.Email
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: sessionID, Path: "/", MaxAge: sessionMaxAge, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.track(r)
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"detail": "method not allowed"})
		return
	}

	s.mu.Lock()
	forced := s.logoutStatus
	s.mu.Unlock()
	if forced != 0 {
		writeJSON(w, forced, map[string]any{"detail": "forced"})
		return
	}

	if !s.csrfValid(r) {
		writeJSON(w, http.StatusForbidden, map[string]any{"detail": "CSRF Failed"})
		return
	}

	if c, err := r.Cookie(SessionCookieName); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"detail": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.track(r)

	s.mu.Lock()
	h := s.userHold
	s.userHold = nil
	s.mu.Unlock()
	if h != nil {
		close(h.arrived)
		<-h.release
	}

	s.mu.Lock()
	forced := s.userStatus
	s.mu.Unlock()
	if forced != 0 {
		writeJSON(w, forced, map[string]any{"detail": "forced"})
		return
	}

	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]any{"detail": "Authentication credentials were not provided."})
		return
	}

	s.mu.Lock()
	email, ok := s.sessions[c.Value]
	account := s.accounts[email]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]any{"detail": "Invalid session."})
		return
	}

	writeJSON(w, http.StatusOK, account.User)
}

func (s *Server) csrfValid(r *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.requireCSRF {
		return true
	}
	return r.Header.Get(CSRFHeaderName) == s.csrfToken
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
