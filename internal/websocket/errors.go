package websocket

import "errors"

// Connection errors
var (
	ErrConnectionClosed     = errors.New("connection closed")
	ErrWriteTimeout         = errors.New("write timeout")
	ErrInvalidJSON          = errors.New("invalid JSON data")
	ErrAlreadyAuthenticated = errors.New("connection already authenticated as another identity")
	ErrGuestConnection      = errors.New("guest connections cannot authenticate as a user")
	ErrGuestAlreadyBound    = errors.New("connection already bound to another guest")
	ErrUserConnection       = errors.New("authenticated connections cannot bind a guest")
)

// Registry errors
var (
	ErrNilConnection              = errors.New("connection cannot be nil")
	ErrConnectionNotAuthenticated = errors.New("connection must be authenticated before registration")
	ErrConnectionNotGuest         = errors.New("connection must be bound to a guest before registration")
)
