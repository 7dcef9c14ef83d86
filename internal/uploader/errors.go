package uploader

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated means an upload was attempted without a stored credential.
var ErrNotAuthenticated = errors.New("user not authenticated")

// ErrFileNotFound means the source file is missing or unreadable.
var ErrFileNotFound = errors.New("source file not found")

// ValidationError is missing or invalid upload metadata. Field names the
// offending input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransferError is a chunk transfer abandoned after the retry budget ran out.
type TransferError struct {
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
