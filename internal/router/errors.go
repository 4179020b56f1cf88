package router

import (
	"errors"

	"eduhub/pkg/types"
)

// Router-specific error details. They are always wrapped in one of the
// outcome classes from pkg/types.
var (
	ErrUnknownReceiver = errors.New("receiver not found")
	ErrNotGroupMember  = errors.New("not a group member")
	ErrBroadcastRole   = errors.New("only teachers can broadcast")
	ErrSelfMessage     = errors.New("cannot message yourself")
)

// ReasonSendFailed is reported to the sender when the store rejects a write.
// The cause is only logged.
const ReasonSendFailed = "failed to send message"

var validationDetails = []error{
	types.ErrEmptyContent,
	types.ErrContentTooLong,
	types.ErrMissingFile,
	types.ErrInvalidMessageKind,
	types.ErrMissingTarget,
	types.ErrInvalidUserID,
	ErrUnknownReceiver,
	ErrSelfMessage,
}

// Reason converts a send error into the client-facing message_error reason.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrPersistence):
		return ReasonSendFailed
	case errors.Is(err, ErrNotGroupMember):
		return ErrNotGroupMember.Error()
	case errors.Is(err, types.ErrPermissionDenied):
		return types.ErrPermissionDenied.Error()
	case errors.Is(err, types.ErrValidation):
		for _, detail := range validationDetails {
			if errors.Is(err, detail) {
				return detail.Error()
			}
		}
		return types.ErrValidation.Error()
	default:
		return ReasonSendFailed
	}
}
