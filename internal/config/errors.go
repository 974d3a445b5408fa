package config

import (
	"errors"
)

// Sentinel error kinds; Load wraps the underlying cause with one of these.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
