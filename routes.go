package auth

import "strings"

// Route is a navigable location of the fleet console
type Route struct {
	Name   string
	Path   string
	Title  string
	Public bool
}

// Routes is the console routing table
type Routes []Route

// DefaultRoutes lists every console location. Home, login and register
// are public, the rest is gated by the route guard.
func DefaultRoutes() Routes {
	return Routes{
		{Name: "home", Path: "/", Title: "Home", Public: true},
		{Name: "alert", Path: "/alert", Title: "Alerts"},
		{Name: "login", Path: "/login", Title: "Login", Public: true},
		{Name: "register", Path: "/register", Title: "Register", Public: true},
		{Name: "insertalert", Path: "/insertalert", Title: "New alert"},
		{Name: "routemanagement", Path: "/routemanagement", Title: "Route management"},
		{Name: "inspection", Path: "/inspection", Title: "Inspections"},
		{Name: "insertinspection", Path: "/insertinspection", Title: "New inspection"},
		{Name: "maintenance", Path: "/maintenance", Title: "Maintenance"},
		{Name: "insertmaintenance", Path: "/insertmaintenance", Title: "New maintenance"},
		{Name: "companies", Path: "/companies", Title: "Companies"},
		{Name: "insertcompany", Path: "/insertcompany", Title: "New company"},
		{Name: "insertorder", Path: "/insertorder", Title: "New order"},
		{Name: "profile", Path: "/profile", Title: "Profile"},
	}
}

// DefaultPublicPaths pass the route guard unconditionally
var DefaultPublicPaths = DefaultRoutes().PublicPaths()

// Lookup finds the route serving path. Query strings and fragments are
// ignored.
func (r Routes) Lookup(path string) (Route, bool) {
	path = stripQuery(path)
	for _, route := range r {
		if route.Path == path {
			return route, true
		}
	}
	return Route{}, false
}

// PublicPaths returns the paths of the public routes
func (r Routes) PublicPaths() []string {
	var out []string
	for _, route := range r {
		if route.Public {
			out = append(out, route.Path)
		}
	}
	return out
}

func stripQuery(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}
