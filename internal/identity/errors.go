package identity

import "errors"

var (
	ErrMissingCredential = errors.New("missing identity")
	ErrUnknownIdentity   = errors.New("unknown identity")
	ErrInvalidToken      = errors.New("invalid identity token")
	ErrMissingSubject    = errors.New("identity token has no subject")
	ErrEmptySecret       = errors.New("token secret is empty")
)
