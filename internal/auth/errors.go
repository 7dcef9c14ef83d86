package auth

import (
	"errors"
	"fmt"
)

// ErrNoCredential means the user has no stored credential, or the stored one
// expired and could not be refreshed. The caller must re-run the OAuth flow.
var ErrNoCredential = errors.New("no valid credential")

// AuthError is a code exchange or refresh rejected by the identity provider.
// Reason is safe to show to the user.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }
