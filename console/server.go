package console

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-fleet-auth"
	"github.com/goliatone/go-router"
)

//go:embed views
var viewsFS embed.FS

// LogoutPath receives the sign out form
const LogoutPath = "/logout"

// Server serves the fleet console routes, gating the private ones with
// the route guard
type Server struct {
	store  *auth.SessionStore
	guard  *auth.RouteGuard
	routes auth.Routes
	logger auth.Logger
	srv    router.Server[*fiber.App]

	formKey    []byte
	formMaxAge time.Duration
}

type Option func(*Server)

func WithRoutes(routes auth.Routes) Option {
	return func(s *Server) {
		s.routes = routes
	}
}

// WithFormKey sets the secret form tokens are signed with. A random key
// is used when none is given, tokens then do not survive a restart.
func WithFormKey(secret []byte, maxAge time.Duration) Option {
	return func(s *Server) {
		s.formKey = secret
		s.formMaxAge = maxAge
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New builds the console on top of store and guard
func New(store *auth.SessionStore, guard *auth.RouteGuard, opts ...Option) (*Server, error) {
	s := &Server{
		store:  store,
		guard:  guard,
		routes: auth.DefaultRoutes(),
		logger: nopLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}

	engine := django.NewFileSystem(http.FS(views), ".html")

	forms, err := newFormGuard(s.formKey, s.formMaxAge)
	if err != nil {
		return nil, err
	}

	s.srv = router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:          true,
			StrictRouting:         false,
			DisableStartupMessage: true,
			Views:                 engine,
		}))
	})

	s.srv.Router().Use(forms.Middleware())
	s.register(s.srv.Router())

	return s, nil
}

// Serve blocks serving the console on addr
func (s *Server) Serve(addr string) error {
	s.logger.Info("Fleet console listening on %s", addr)
	return s.srv.Serve(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// App exposes the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.srv.WrappedRouter()
}

func (s *Server) register(r router.Router[*fiber.App]) {
	protected := s.guard.Middleware()

	for _, route := range s.routes {
		switch route.Name {
		case "login":
			r.Get(route.Path, s.loginShow)
			r.Post(route.Path, s.loginPost)
		case "profile":
			r.Get(route.Path, s.profile, protected)
		default:
			if s.guard.IsPublic(route.Path) {
				r.Get(route.Path, s.page(route))
			} else {
				r.Get(route.Path, s.page(route), protected)
			}
		}
	}

	r.Post(LogoutPath, s.logout)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
