package console

import (
	"context"
	"net/http"

	"github.com/goliatone/go-fleet-auth"
	"github.com/goliatone/go-router"
)

// redirectNavigator records where the session store wants to go, the
// handler turns it into an HTTP redirect once the operation returns
type redirectNavigator struct {
	target string
}

func (n *redirectNavigator) Navigate(_ context.Context, path string) error {
	n.target = path
	return nil
}

func (s *Server) page(route auth.Route) router.HandlerFunc {
	return func(ctx router.Context) error {
		return ctx.Render("page", s.viewContext(ctx, router.ViewContext{
			"title": route.Title,
			"route": route.Name,
		}))
	}
}

func (s *Server) profile(ctx router.Context) error {
	route, ok := s.routes.Lookup(ctx.Path())
	if !ok {
		route = auth.Route{Name: "profile", Title: "Profile"}
	}
	return ctx.Render("profile", s.viewContext(ctx, router.ViewContext{
		"title": route.Title,
		"route": route.Name,
	}))
}

func (s *Server) loginShow(ctx router.Context) error {
	return ctx.Render("login", s.viewContext(ctx, router.ViewContext{
		"redirect": ctx.Query(auth.RedirectQueryKey, ""),
	}))
}

type loginForm struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (s *Server) loginPost(ctx router.Context) error {
	redirect := ctx.Query(auth.RedirectQueryKey, "")

	form := new(loginForm)
	if err := ctx.Bind(form); err != nil {
		s.logger.Info("Console login form could not be parsed: %s", err)
	}
	email := form.Email

	nav := &redirectNavigator{}
	if err := s.store.Login(ctx.Context(), email, form.Password, nav); err != nil {
		statusCode, message := http.StatusUnauthorized, "Invalid email or password"
		switch {
		case auth.IsInvalidLoginPayload(err):
			statusCode, message = http.StatusBadRequest, "Enter a valid email and password"
		case auth.IsNetworkError(err):
			statusCode, message = http.StatusBadGateway, "The fleet service is not reachable, try again"
		}

		s.logger.Info("Console login failed for %s: %s", email, err)

		return ctx.Status(statusCode).Render("login", s.viewContext(ctx, router.ViewContext{
			"error":    message,
			"email":    email,
			"redirect": redirect,
		}))
	}

	fallback := s.store.Config().GetHomeRoute()
	if nav.target != "" {
		fallback = nav.target
	}

	return ctx.Redirect(auth.SafeRedirect(redirect, fallback), http.StatusSeeOther)
}

func (s *Server) logout(ctx router.Context) error {
	nav := &redirectNavigator{}
	if err := s.store.Logout(ctx.Context(), nav); err != nil {
		s.logger.Error("Console logout failed: %s", err)

		statusCode := http.StatusBadGateway
		if auth.IsAuthFailure(err) {
			statusCode = http.StatusConflict
		}
		return ctx.Status(statusCode).Render("error", s.viewContext(ctx, router.ViewContext{
			"error": "Sign out did not complete, your session is still open",
		}))
	}

	target := nav.target
	if target == "" {
		target = s.store.Config().GetLoginRoute()
	}
	return ctx.Redirect(target, http.StatusSeeOther)
}

func (s *Server) viewContext(ctx router.Context, data router.ViewContext) router.ViewContext {
	user, ok := auth.UserFromRouter(ctx)
	if !ok {
		user = s.store.User()
	}

	out := router.ViewContext{
		"nav":        s.navLinks(),
		"user":       nil,
		"csrf_token": csrfToken(ctx),
	}
	if user != nil {
		out["user"] = userView(user, s.store.Config().GetPhoneRegion())
	}

	for k, v := range data {
		out[k] = v
	}
	return out
}

func (s *Server) navLinks() []auth.Route {
	links := make([]auth.Route, 0, len(s.routes))
	for _, route := range s.routes {
		if route.Name == "login" || route.Name == "register" {
			continue
		}
		links = append(links, route)
	}
	return links
}

func userView(user *auth.User, region string) map[string]any {
	return map[string]any{
		"name":   user.DisplayName(),
		"email":  user.Email,
		"phone":  user.FormattedPhone(region),
		"groups": user.GroupNames(),
	}
}
