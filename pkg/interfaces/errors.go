package interfaces

import "errors"

// Common store errors used across components
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)
