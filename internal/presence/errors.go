package presence

import "errors"

var ErrUnknownStatus = errors.New("unknown presence status")
