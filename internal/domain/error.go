package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrConflict        = errors.New("illegal state transition")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrCircuitOpen     = errors.New("provider circuit open")
	ErrTimeout         = errors.New("operation timed out")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrJobBusy         = errors.New("conversation already has a job in flight")
	ErrReadDatabaseRow = errors.New("failed to read database row")
	ErrNoProvider      = errors.New("no provider available for model")
)
