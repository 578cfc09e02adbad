package auth

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeNetwork      = "NETWORK_ERROR"
	TextCodeAuthFailure  = "AUTH_FAILURE"
	TextCodeInvalidLogin = "INVALID_LOGIN_PAYLOAD"
	TextCodeStateStorage = "STATE_STORAGE_ERROR"
)

// ErrStateNotFound is returned by a StateStorage that holds nothing for a key
var ErrStateNotFound = errors.New("auth state not found")

// ErrNetwork is returned when a request could not be sent or completed
var ErrNetwork = goerrors.New("request to fleet API failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeNetwork).
	WithCode(goerrors.CodeInternal)

// ErrAuthFailure is returned when the fleet API rejects the session or credentials
var ErrAuthFailure = goerrors.New("authentication rejected", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthFailure).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidLoginPayload is returned when credentials fail local validation
var ErrInvalidLoginPayload = goerrors.New("invalid login payload", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidLogin).
	WithCode(goerrors.CodeBadRequest)

// ErrStateStorage wraps failures reading or writing the persisted state
var ErrStateStorage = goerrors.New("auth state storage failed", goerrors.CategoryInternal).
	WithTextCode(TextCodeStateStorage).
	WithCode(goerrors.CodeInternal)

// IsNetworkError reports whether err is an ErrNetwork occurrence
func IsNetworkError(err error) bool {
	return hasTextCode(err, TextCodeNetwork)
}

// IsAuthFailure reports whether err is an ErrAuthFailure occurrence
func IsAuthFailure(err error) bool {
	return hasTextCode(err, TextCodeAuthFailure)
}

// IsInvalidLoginPayload reports whether err is an ErrInvalidLoginPayload occurrence
func IsInvalidLoginPayload(err error) bool {
	return hasTextCode(err, TextCodeInvalidLogin)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func networkError(err error, op string) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, op+": "+ErrNetwork.Message).
		WithTextCode(TextCodeNetwork).
		WithCode(goerrors.CodeInternal)
}

func authFailure(op string, status int) error {
	clone := ErrAuthFailure.Clone()
	if clone == nil {
		return ErrAuthFailure
	}
	clone.Message = op + ": " + ErrAuthFailure.Message
	clone.Source = ErrAuthFailure
	return clone.WithMetadata(map[string]any{"operation": op, "status": status})
}

func storageError(err error, op string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, op+": "+ErrStateStorage.Message).
		WithTextCode(TextCodeStateStorage)
}
