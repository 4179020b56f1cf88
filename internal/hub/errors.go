package hub

import "errors"

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")

	ErrMalformedFrame   = errors.New("malformed frame")
	ErrMissingFrameType = errors.New("frame has no type")
	ErrUnknownFrameType = errors.New("unknown frame type")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrGuestMismatch    = errors.New("guest ID does not match this connection")
	ErrAlreadyBound     = errors.New("connection is already bound")
	ErrStaffOnly        = errors.New("staff only")
)
