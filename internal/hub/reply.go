package hub

import (
	"errors"

	"eduhub/pkg/types"
)

const internalErrorMessage = "internal error"

// errorCode maps an outcome class to the code of a generic error frame.
func errorCode(err error) string {
	switch {
	case errors.Is(err, types.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, types.ErrValidation):
		return "validation_failed"
	case errors.Is(err, types.ErrPermissionDenied):
		return "not_authorized"
	case errors.Is(err, types.ErrAuthenticationFailure):
		return "authentication_failed"
	case errors.Is(err, types.ErrPeerUnavailable):
		return "peer_unavailable"
	case errors.Is(err, types.ErrAssignmentUnavailable):
		return "assignment_unavailable"
	case errors.Is(err, types.ErrPersistence):
		return "persistence_failure"
	default:
		return "internal_error"
	}
}

// reason is the client-facing text of err. Persistence and unknown failures
// never leak their cause.
func reason(err error) string {
	switch {
	case errors.Is(err, types.ErrPersistence):
		return internalErrorMessage
	case errors.Is(err, types.ErrRateLimited),
		errors.Is(err, types.ErrValidation),
		errors.Is(err, types.ErrPermissionDenied),
		errors.Is(err, types.ErrAuthenticationFailure),
		errors.Is(err, types.ErrPeerUnavailable),
		errors.Is(err, types.ErrAssignmentUnavailable):
		return err.Error()
	default:
		return internalErrorMessage
	}
}

func errorFrame(err error, kind types.FrameType) types.ErrorFrame {
	return types.ErrorFrame{
		Type:    types.FrameError,
		Code:    errorCode(err),
		Message: reason(err),
		Kind:    kind,
	}
}
