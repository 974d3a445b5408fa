package repository

import "errors"

// Sentinel errors.
var (
	ErrNotFound    = errors.New("object not found")
	ErrInvalidPath = errors.New("invalid object path")
)
