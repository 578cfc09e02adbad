package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// WithUserContext sets the User in the given context
func WithUserContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// UserFromContext finds the user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// UserFromRouter finds the user the route guard attached to the request
func UserFromRouter(ctx router.Context) (*User, bool) {
	return UserFromContext(ctx.Context())
}

// CanAccess is a convenience check of the user in ctx against groups
func CanAccess(ctx context.Context, groups ...string) bool {
	user, ok := UserFromContext(ctx)
	if !ok {
		return false
	}
	return UserInGroups(user, groups...)
}
