package services

import "errors"

// Sentinel errors returned by every core operation. Callers match them with
// errors.Is; each one means the operation's transaction was rolled back.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotFound            = errors.New("not found")
	ErrSelfVoteForbidden   = errors.New("cannot vote on your own content")
	ErrUnauthorized        = errors.New("not allowed")
	ErrConcurrencyConflict = errors.New("concurrency conflict, retry later")
)
