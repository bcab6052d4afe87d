// ABOUTME: Tagged error kinds returned by provisioning operations
// ABOUTME: The HTTP boundary maps each kind to exactly one status and body shape

package admin

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure.
type Kind int

const (
	// KindServer is an unexpected failure in a collaborator.
	KindServer Kind = iota
	// KindAuthorization means the caller is not an administrator.
	KindAuthorization
	// KindValidation means the request was malformed.
	KindValidation
	// KindOwnership means the target does not exist or belongs to someone else.
	KindOwnership
	// KindConflict means an adb key fingerprint is held by another user.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindOwnership:
		return "ownership"
	case KindConflict:
		return "conflict"
	default:
		return "server"
	}
}

// Error is the error type returned by Service operations.
type Error struct {
	Kind    Kind
	Message string // safe to show to the caller; empty for most server errors
	Owner   string // set on KindConflict: email of the user holding the key
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err. Errors not produced by this package are
// KindServer.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

// MessageOf returns the caller-facing message carried by err, if any.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

func unauthorized(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func invalid(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func notOwned(msg string) *Error {
	return &Error{Kind: KindOwnership, Message: msg}
}

func serverError(msg string, err error) *Error {
	return &Error{Kind: KindServer, Message: msg, Err: err}
}

// Caller-facing messages.
const (
	msgUnauthorizedCreateToken = "User is unauthorized to generate access token"
	msgUnauthorizedDeleteToken = "User is unauthorized to delete access token"
	msgUnauthorizedAddKey      = "User is unauthorized to add adb public key"
	msgUnauthorizedDeleteKey   = "User is unauthorized to delete adb public key"

	msgTokenNotOwned  = "Token is not owned by this user"
	msgKeyNotOwned    = "Adb key not found or not owned by the user"
	msgKeyOwnedPrefix = "Adb public key is already added to a user: "
	msgInvalidKey     = "Invalid adb public key"

	msgAddKeyFailed    = "Unable to insert new adb key fingerprint to database"
	msgDeleteKeyFailed = "Failed to delete adb key from database"
)
