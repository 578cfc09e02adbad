package auth_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-fleet-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	user  *auth.User
	panic bool
	calls atomic.Int32
}

func (f *stubFetcher) FetchUser(context.Context) *auth.User {
	f.calls.Add(1)
	if f.panic {
		panic("boom")
	}
	return f.user.Clone()
}

func userWithGroups(groups ...string) *auth.User {
	u := &auth.User{Email: "a@b.com", Groups: []auth.GroupRef{}}
	for _, g := range groups {
		u.Groups = append(u.Groups, auth.GroupRef{Name: g})
	}
	return u
}

func TestRouteGuard_PublicPaths(t *testing.T) {
	fetcher := &stubFetcher{}
	guard := auth.NewRouteGuard(fetcher, auth.WithGuardLogger(nopLogger{}))

	for _, path := range []string{"/", "/login", "/login?redirect=/alert", "/register", "/register/"} {
		decision := guard.Evaluate(context.Background(), path)
		assert.True(t, decision.Allow, path)
		assert.Empty(t, decision.Redirect, path)
	}
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestRouteGuard_AnonymousRedirectsToLogin(t *testing.T) {
	guard := auth.NewRouteGuard(&stubFetcher{}, auth.WithGuardLogger(nopLogger{}))

	decision := guard.Evaluate(context.Background(), "/insertorder")

	assert.False(t, decision.Allow)
	assert.Equal(t, "/login?redirect=/insertorder", decision.Redirect)
}

func TestRouteGuard_RedirectKeepsQuery(t *testing.T) {
	guard := auth.NewRouteGuard(&stubFetcher{}, auth.WithGuardLogger(nopLogger{}))

	decision := guard.Evaluate(context.Background(), "/inspection?id=4&tab=a b")

	assert.Equal(t, "/login?redirect=/inspection%3Fid%3D4%26tab%3Da+b", decision.Redirect)
}

func TestRouteGuard_GroupMembership(t *testing.T) {
	tests := []struct {
		name  string
		user  *auth.User
		allow bool
	}{
		{name: "gestor", user: userWithGroups("Gestores"), allow: true},
		{name: "maquinista", user: userWithGroups("Otros", "Maquinistas"), allow: true},
		{name: "other group", user: userWithGroups("Visitantes"), allow: false},
		{name: "no groups", user: userWithGroups(), allow: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := auth.NewRouteGuard(&stubFetcher{user: tt.user}, auth.WithGuardLogger(nopLogger{}))

			decision := guard.Evaluate(context.Background(), "/alert")

			assert.Equal(t, tt.allow, decision.Allow)
			if tt.allow {
				require.NotNil(t, decision.User)
				assert.Equal(t, "a@b.com", decision.User.Email)
			} else {
				assert.Equal(t, "/login?redirect=/alert", decision.Redirect)
			}
		})
	}
}

func TestRouteGuard_ReloadsUserOnEveryNavigation(t *testing.T) {
	fetcher := &stubFetcher{user: userWithGroups("Gestores")}
	guard := auth.NewRouteGuard(fetcher, auth.WithGuardLogger(nopLogger{}))

	guard.Evaluate(context.Background(), "/alert")
	guard.Evaluate(context.Background(), "/companies")

	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestRouteGuard_PanicFailsClosed(t *testing.T) {
	guard := auth.NewRouteGuard(&stubFetcher{panic: true}, auth.WithGuardLogger(nopLogger{}))

	var decision auth.Decision
	require.NotPanics(t, func() {
		decision = guard.Evaluate(context.Background(), "/maintenance")
	})
	assert.False(t, decision.Allow)
	assert.Equal(t, "/login?redirect=/maintenance", decision.Redirect)
}

func TestRouteGuard_NilFetcherFailsClosed(t *testing.T) {
	guard := auth.NewRouteGuard(nil, auth.WithGuardLogger(nopLogger{}))

	decision := guard.Evaluate(context.Background(), "/profile")
	assert.False(t, decision.Allow)
}

func TestRouteGuard_Options(t *testing.T) {
	guard := auth.NewRouteGuard(
		&stubFetcher{user: userWithGroups("Auditores")},
		auth.WithGuardLogger(nopLogger{}),
		auth.WithAllowedGroups("Auditores"),
		auth.WithPublicPaths("/status"),
		auth.WithLoginRoute("/signin"),
	)

	assert.True(t, guard.IsPublic("/status"))
	assert.False(t, guard.IsPublic("/"))
	assert.True(t, guard.Evaluate(context.Background(), "/alert").Allow)
	assert.Equal(t, "/signin?redirect=/alert", guard.LoginRedirect("/alert"))
}

func TestRouteGuard_WithGuardConfig(t *testing.T) {
	cfg := auth.ClientConfig{LoginRoute: "/entrar", AllowedGroups: []string{"Auditores"}}
	guard := auth.NewRouteGuard(&stubFetcher{user: userWithGroups("Gestores")},
		auth.WithGuardLogger(nopLogger{}),
		auth.WithGuardConfig(cfg),
	)

	decision := guard.Evaluate(context.Background(), "/alert")
	assert.False(t, decision.Allow)
	assert.Equal(t, "/entrar?redirect=/alert", decision.Redirect)
	assert.True(t, guard.IsPublic("/register"))
}

func TestRouteGuard_WaitsForBootstrap(t *testing.T) {
	api := newTestAPI(t)
	store := newTestStore(t, api)
	require.NoError(t, store.Login(context.Background(), "a@b.com", "right", nil))

	task := auth.Bootstrap(context.Background(), store)
	guard := auth.NewRouteGuard(store, auth.WithGuardLogger(nopLogger{}), auth.WithInitTask(task))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	decision := guard.Evaluate(ctx, "/insertorder")

	assert.True(t, decision.Allow)
	assert.Equal(t, 1, api.Calls("/api/csrf/"))
	assert.Equal(t, 3, api.Calls("/api/me/"))
}

func TestRouteGuard_WithSessionStore(t *testing.T) {
	api := newTestAPI(t)
	store := newTestStore(t, api)
	guard := auth.NewRouteGuard(store, auth.WithGuardLogger(nopLogger{}), auth.WithGuardConfig(store.Config()))

	assert.Equal(t, "/login?redirect=/insertorder", guard.Evaluate(context.Background(), "/insertorder").Redirect)

	require.NoError(t, store.Login(context.Background(), "a@b.com", "right", nil))
	assert.True(t, guard.Evaluate(context.Background(), "/insertorder").Allow)
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{target: "/insertorder", want: "/insertorder"},
		{target: "/inspection?id=4", want: "/inspection?id=4"},
		{target: "", want: "/"},
		{target: "insertorder", want: "/"},
		{target: "//evil.example", want: "/"},
		{target: "/\\evil.example", want: "/"},
		{target: "https://evil.example/", want: "/"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, auth.SafeRedirect(tt.target, "/"), tt.target)
	}
}
