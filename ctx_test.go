package auth_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-fleet-auth"
	"github.com/stretchr/testify/assert"
)

func TestUserContext(t *testing.T) {
	_, ok := auth.UserFromContext(context.Background())
	assert.False(t, ok)

	ctx := auth.WithUserContext(context.Background(), nil)
	_, ok = auth.UserFromContext(ctx)
	assert.False(t, ok)

	user := userWithGroups("Maquinistas")
	ctx = auth.WithUserContext(context.Background(), user)

	got, ok := auth.UserFromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, user, got)

	assert.True(t, auth.CanAccess(ctx))
	assert.False(t, auth.CanAccess(ctx, "Gestores"))
	assert.False(t, auth.CanAccess(context.Background()))
}
