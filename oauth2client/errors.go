package oauth2client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidGrant means the identity provider permanently rejected the refresh token.
	// The token triplet is cleared before this error is returned.
	ErrInvalidGrant = errors.New("oauth2client: refresh token rejected")

	// ErrTransient means the refresh call failed in a way that may succeed on retry.
	// Stored tokens are left untouched.
	ErrTransient = errors.New("oauth2client: refresh failed")

	// ErrNotAuthenticated means no usable access token exists and none can be obtained.
	ErrNotAuthenticated = errors.New("oauth2client: not authenticated")
)

// RefreshError describes a failed call to the token endpoint. It matches ErrInvalidGrant
// or ErrTransient with errors.Is.
type RefreshError struct {
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *RefreshError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("oauth2client: token endpoint returned %d %s: %s", e.StatusCode, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("oauth2client: token endpoint returned %d %s", e.StatusCode, e.Code)
	case e.StatusCode != 0:
		return fmt.Sprintf("oauth2client: token endpoint returned %d", e.StatusCode)
	case e.Err != nil:
		return "oauth2client: refresh request failed: " + e.Err.Error()
	default:
		return "oauth2client: refresh request failed"
	}
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Permanent reports whether the refresh token itself was rejected.
func (e *RefreshError) Permanent() bool {
	return e.StatusCode == http.StatusBadRequest && e.Code == "invalid_grant"
}

func (e *RefreshError) Is(target error) bool {
	switch target {
	case ErrInvalidGrant:
		return e.Permanent()
	case ErrTransient:
		return !e.Permanent()
	default:
		return false
	}
}

// asRefreshError classifies err from an IdentityProvider. Errors that are not already
// classified are treated as transient.
func asRefreshError(err error) error {
	if errors.Is(err, ErrInvalidGrant) || errors.Is(err, ErrTransient) {
		return err
	}
	return &RefreshError{Err: err}
}
