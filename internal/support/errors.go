package support

import "errors"

var (
	ErrInvalidSettings     = errors.New("invalid support settings")
	ErrNotAssigned         = errors.New("conversation has no agent")
	ErrUnknownAgent        = errors.New("unknown agent")
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrNotStaff            = errors.New("only support staff can do this")
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrMessageTooLong      = errors.New("message exceeds 2000 characters")
)
