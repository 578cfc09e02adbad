package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds session client options
type Config interface {
	GetBaseURL() string
	GetCSRFPath() string
	GetLoginPath() string
	GetLogoutPath() string
	GetUserPath() string
	GetCSRFCookieName() string
	GetCSRFHeaderName() string
	GetRequestTimeout() time.Duration
	GetStateKey() string
	GetAllowedGroups() []string
	GetPublicPaths() []string
	GetHomeRoute() string
	GetLoginRoute() string
	GetPhoneRegion() string
}

// Navigator moves the client to a new location once an operation
// completes. It is optional everywhere it is accepted.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

// NavigatorFunc adapts a function to the Navigator interface
type NavigatorFunc func(ctx context.Context, path string) error

func (f NavigatorFunc) Navigate(ctx context.Context, path string) error {
	return f(ctx, path)
}

// UserFetcher is the part of the session store the route guard needs
type UserFetcher interface {
	FetchUser(ctx context.Context) *User
}

// StateStorage persists the serialized AuthState between runs
type StateStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] FLEET "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] FLEET "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] FLEET "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
