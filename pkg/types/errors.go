package types

import "errors"

// Outcome classes shared by every component. Components wrap these with
// fmt.Errorf("%w: ...") and the dispatcher converts them into frames.
var (
	ErrAuthenticationFailure = errors.New("authentication failed")
	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrValidation            = errors.New("validation failed")
	ErrPermissionDenied      = errors.New("not authorized")
	ErrPeerUnavailable       = errors.New("peer unavailable")
	ErrPersistence           = errors.New("persistence failure")
	ErrAssignmentUnavailable = errors.New("no agent available")
)

// Validation details
var (
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLong     = errors.New("message content exceeds 2000 characters")
	ErrMissingFile        = errors.New("file metadata required for non-text messages")
	ErrInvalidMessageKind = errors.New("invalid message type")
	ErrMissingTarget      = errors.New("message requires a receiver or a group")
	ErrInvalidUserID      = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidGuestID     = errors.New("guest ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidTransition  = errors.New("invalid presence transition")
)
