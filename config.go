package auth

import (
	"strings"
	"time"
)

// DefaultRequestTimeout bounds every call to the fleet API
const DefaultRequestTimeout = 10 * time.Second

// DefaultStateKey is the storage key of the persisted AuthState
const DefaultStateKey = "authState"

var _ Config = ClientConfig{}

// ClientConfig is a plain Config implementation. Zero values fall back
// to the defaults of the fleet API.
type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url" json:"base_url"`
	CSRFPath       string        `mapstructure:"csrf_path" json:"csrf_path"`
	LoginPath      string        `mapstructure:"login_path" json:"login_path"`
	LogoutPath     string        `mapstructure:"logout_path" json:"logout_path"`
	UserPath       string        `mapstructure:"user_path" json:"user_path"`
	CSRFCookieName string        `mapstructure:"csrf_cookie_name" json:"csrf_cookie_name"`
	CSRFHeaderName string        `mapstructure:"csrf_header_name" json:"csrf_header_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout"`
	StateKey       string        `mapstructure:"state_key" json:"state_key"`
	AllowedGroups  []string      `mapstructure:"allowed_groups" json:"allowed_groups"`
	PublicPaths    []string      `mapstructure:"public_paths" json:"public_paths"`
	HomeRoute      string        `mapstructure:"home_route" json:"home_route"`
	LoginRoute     string        `mapstructure:"login_route" json:"login_route"`
	PhoneRegion    string        `mapstructure:"phone_region" json:"phone_region"`
}

// DefaultConfig returns the configuration used against a local fleet API
func DefaultConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        "http://localhost:8000",
		CSRFPath:       "/api/csrf/",
		LoginPath:      "/api/login/",
		LogoutPath:     "/api/logout/",
		UserPath:       "/api/me/",
		CSRFCookieName: "csrftoken",
		CSRFHeaderName: "X-CSRFToken",
		RequestTimeout: DefaultRequestTimeout,
		StateKey:       DefaultStateKey,
		AllowedGroups:  append([]string(nil), DefaultAllowedGroups...),
		PublicPaths:    append([]string(nil), DefaultPublicPaths...),
		HomeRoute:      "/",
		LoginRoute:     "/login",
		PhoneRegion:    "ES",
	}
}

func (c ClientConfig) GetBaseURL() string {
	return strings.TrimRight(or(c.BaseURL, DefaultConfig().BaseURL), "/")
}

func (c ClientConfig) GetCSRFPath() string {
	return or(c.CSRFPath, "/api/csrf/")
}

func (c ClientConfig) GetLoginPath() string {
	return or(c.LoginPath, "/api/login/")
}

func (c ClientConfig) GetLogoutPath() string {
	return or(c.LogoutPath, "/api/logout/")
}

func (c ClientConfig) GetUserPath() string {
	return or(c.UserPath, "/api/me/")
}

func (c ClientConfig) GetCSRFCookieName() string {
	return or(c.CSRFCookieName, "csrftoken")
}

func (c ClientConfig) GetCSRFHeaderName() string {
	return or(c.CSRFHeaderName, "X-CSRFToken")
}

func (c ClientConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return c.RequestTimeout
}

func (c ClientConfig) GetStateKey() string {
	return or(c.StateKey, DefaultStateKey)
}

func (c ClientConfig) GetAllowedGroups() []string {
	if len(c.AllowedGroups) == 0 {
		return DefaultAllowedGroups
	}
	return c.AllowedGroups
}

func (c ClientConfig) GetPublicPaths() []string {
	if len(c.PublicPaths) == 0 {
		return DefaultPublicPaths
	}
	return c.PublicPaths
}

func (c ClientConfig) GetHomeRoute() string {
	return or(c.HomeRoute, "/")
}

func (c ClientConfig) GetLoginRoute() string {
	return or(c.LoginRoute, "/login")
}

func (c ClientConfig) GetPhoneRegion() string {
	return or(c.PhoneRegion, "ES")
}

func or(val, def string) string {
	if strings.TrimSpace(val) == "" {
		return def
	}
	return val
}
