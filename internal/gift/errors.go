// internal/gift/errors.go
// Domain errors for the lifecycle state machine and the access gate. The HTTP
// layer maps these onto wire error codes; the domain layer never sees
// correlation ids or status codes.
package gift

import (
	"errors"
	"fmt"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
)

var (
	// ErrNotFound signals the gift does not exist.
	ErrNotFound = errors.New("gift not found")

	// ErrGone signals the gift is tombstoned.
	ErrGone = errors.New("gift permanently deleted")

	// ErrAccessDisabled signals access is switched off for a live gift.
	ErrAccessDisabled = errors.New("gift access disabled")

	// ErrAccessExpired signals the validity window has passed.
	ErrAccessExpired = errors.New("gift access expired")

	// ErrExpiredGrant signals an enable attempt on an expired gift without
	// an expiry reset.
	ErrExpiredGrant = errors.New("cannot re-enable access past expiry without resetting the window")

	// ErrInvalidLink signals a malformed or forged share-link token.
	ErrInvalidLink = errors.New("invalid gift link")
)

// TransitionError reports a status-precondition failure with enough detail
// for the caller to act.
type TransitionError struct {
	Current  model.Status
	Expected string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: status is %q, expected %q", e.Current, e.Expected)
}

// OperationError reports an operation refused in the gift's current state
// outside the status machine proper (e.g. mutating a tombstoned gift).
type OperationError struct {
	Reason string
}

func (e *OperationError) Error() string {
	return "invalid operation: " + e.Reason
}

// AccessDeniedError reports an ownership mismatch. IntendedForDifferentUser
// is set when the share-link token named someone other than the caller; the
// response must not reveal whether the gift exists.
type AccessDeniedError struct {
	IntendedForDifferentUser bool
}

func (e *AccessDeniedError) Error() string {
	if e.IntendedForDifferentUser {
		return "access denied: link intended for a different user"
	}
	return "access denied"
}

// ValidationError carries the field-level failures of a submission.
type ValidationError struct {
	Fields []model.FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("submission invalid: %d field error(s)", len(e.Fields))
}
