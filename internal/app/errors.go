package service

import "errors"

// Sentinel errors returned by the session contexts.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrTakeNotFound   = errors.New("take not found")
	ErrNotStarted     = errors.New("session not started")
	ErrNotRecording   = errors.New("not recording")
	ErrQueueFull      = errors.New("mixdown queue full")
)
