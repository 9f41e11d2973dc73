package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrPositionClosed  = errors.New("position already closed")
	ErrInvalidStrategy = errors.New("invalid exit strategy")
	ErrInvalidEntry    = errors.New("invalid entry data")
	ErrLiveDisabled    = errors.New("live trading not configured")
	ErrIllegalStatus   = errors.New("illegal status transition")
	ErrFeedUnavailable = errors.New("price feed unavailable")
	ErrExecutionFailed = errors.New("exit execution failed")
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")
	ErrQueueFull       = errors.New("exit signal queue full")
	ErrWSDisconnect    = errors.New("websocket disconnected")
)
