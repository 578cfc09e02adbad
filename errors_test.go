package auth

import (
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	netErr := networkError(errors.New("dial tcp: refused"), "login")
	assert.True(t, IsNetworkError(netErr))
	assert.False(t, IsAuthFailure(netErr))
	assert.Contains(t, netErr.Error(), "login")

	authErr := authFailure("logout", http.StatusForbidden)
	assert.True(t, IsAuthFailure(authErr))
	assert.False(t, IsNetworkError(authErr))

	var rich *goerrors.Error
	require.True(t, goerrors.As(authErr, &rich))
	assert.Equal(t, http.StatusForbidden, rich.Metadata["status"])
	assert.Equal(t, "logout", rich.Metadata["operation"])

	assert.True(t, IsInvalidLoginPayload(ErrInvalidLoginPayload))
	assert.False(t, IsNetworkError(nil))
	assert.False(t, IsAuthFailure(errors.New("plain")))
}

func TestAuthFailureDoesNotMutateSentinel(t *testing.T) {
	_ = authFailure("login", http.StatusUnauthorized)
	assert.Equal(t, "authentication rejected", ErrAuthFailure.Message)
	assert.Empty(t, ErrAuthFailure.Metadata)
}

func TestStorageError(t *testing.T) {
	err := storageError(errors.New("disk full"), "persist")

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, TextCodeStateStorage, rich.TextCode)
	assert.Contains(t, err.Error(), "persist")
}
