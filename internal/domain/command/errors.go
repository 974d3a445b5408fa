package command

import "errors"

// Sentinel errors. Receivers drop messages failing with either.
var (
	ErrUnknownAction = errors.New("command: unknown action")
	ErrMalformed     = errors.New("command: malformed payload")
)
