package model

import "errors"

// Sentinel errors.
var (
	ErrUnknownNote = errors.New("unknown note")
	ErrInvalidKey  = errors.New("invalid key")
)
