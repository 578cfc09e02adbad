package auth

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/goliatone/go-router"
)

// RedirectQueryKey carries the originally requested location to the
// login route
const RedirectQueryKey = "redirect"

// Decision is the outcome of a route guard evaluation
type Decision struct {
	Allow    bool
	Redirect string
	User     *User
}

// RouteGuard gates navigation on authentication and group membership
type RouteGuard struct {
	fetcher       UserFetcher
	allowedGroups []string
	publicPaths   []string
	loginRoute    string
	init          *InitTask
	logger        Logger
}

type GuardOption func(*RouteGuard)

// WithGuardConfig takes allowed groups, public paths and the login route
// from cfg
func WithGuardConfig(cfg Config) GuardOption {
	return func(g *RouteGuard) {
		if cfg == nil {
			return
		}
		g.allowedGroups = cfg.GetAllowedGroups()
		g.publicPaths = cfg.GetPublicPaths()
		g.loginRoute = cfg.GetLoginRoute()
	}
}

func WithAllowedGroups(groups ...string) GuardOption {
	return func(g *RouteGuard) {
		g.allowedGroups = groups
	}
}

func WithPublicPaths(paths ...string) GuardOption {
	return func(g *RouteGuard) {
		g.publicPaths = paths
	}
}

// WithRoutes lets the public routes of routes pass unconditionally
func WithRoutes(routes Routes) GuardOption {
	return func(g *RouteGuard) {
		g.publicPaths = routes.PublicPaths()
	}
}

func WithLoginRoute(path string) GuardOption {
	return func(g *RouteGuard) {
		g.loginRoute = path
	}
}

// WithInitTask makes the guard wait for the background bootstrap before
// its own user fetch
func WithInitTask(task *InitTask) GuardOption {
	return func(g *RouteGuard) {
		g.init = task
	}
}

func WithGuardLogger(logger Logger) GuardOption {
	return func(g *RouteGuard) {
		g.logger = logger
	}
}

func NewRouteGuard(fetcher UserFetcher, opts ...GuardOption) *RouteGuard {
	g := &RouteGuard{
		fetcher:       fetcher,
		allowedGroups: DefaultAllowedGroups,
		publicPaths:   DefaultPublicPaths,
		loginRoute:    "/login",
		logger:        defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// IsPublic reports whether fullPath passes without checks
func (g *RouteGuard) IsPublic(fullPath string) bool {
	return slices.Contains(g.publicPaths, stripQuery(fullPath))
}

// Evaluate decides whether navigation to fullPath may proceed. Public
// paths always pass. Otherwise the user is reloaded and checked against
// the allowed groups; anything short of a match, including a panic along
// the way, redirects to the login route with fullPath attached.
func (g *RouteGuard) Evaluate(ctx context.Context, fullPath string) (decision Decision) {
	if g.IsPublic(fullPath) {
		return Decision{Allow: true}
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Route guard failed for %s: %v", fullPath, r)
			decision = g.reject(fullPath)
		}
	}()

	if g.init != nil {
		if _, err := g.init.Wait(ctx); err != nil {
			g.logger.Info("Route guard gave up waiting for bootstrap: %s", err)
			return g.reject(fullPath)
		}
	}

	if g.fetcher == nil {
		return g.reject(fullPath)
	}

	user := g.fetcher.FetchUser(ctx)
	if user == nil {
		g.logger.Debug("Route guard: no session for %s", fullPath)
		return g.reject(fullPath)
	}

	if !UserInGroups(user, g.allowedGroups...) {
		g.logger.Info("Route guard: user %s not in %v for %s", user.Email, g.allowedGroups, fullPath)
		return g.reject(fullPath)
	}

	return Decision{Allow: true, User: user}
}

// LoginRedirect builds the login location that returns to fullPath
func (g *RouteGuard) LoginRedirect(fullPath string) string {
	q := url.QueryEscape(fullPath)
	q = strings.ReplaceAll(q, "%2F", "/")
	return g.loginRoute + "?" + RedirectQueryKey + "=" + q
}

func (g *RouteGuard) reject(fullPath string) Decision {
	return Decision{Redirect: g.LoginRedirect(fullPath)}
}

// Middleware runs the guard in front of a router handler. Rejected
// requests are redirected, allowed ones carry the user in their context.
func (g *RouteGuard) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			decision := g.Evaluate(ctx.Context(), ctx.OriginalURL())
			if !decision.Allow {
				statusCode := http.StatusSeeOther
				if ctx.Method() == string(router.GET) {
					statusCode = http.StatusFound
				}
				return ctx.Redirect(decision.Redirect, statusCode)
			}

			if decision.User != nil {
				ctx.SetContext(WithUserContext(ctx.Context(), decision.User))
			}

			return next(ctx)
		}
	}
}

// SafeRedirect returns target when it is a local absolute path, fallback
// otherwise
func SafeRedirect(target, fallback string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") {
		return fallback
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}

	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return target
}
