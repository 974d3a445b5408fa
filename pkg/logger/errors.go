package logger

import "errors"

// ErrNilWriter is returned when InitWriter receives a nil destination.
var ErrNilWriter = errors.New("logger: nil writer")
