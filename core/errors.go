package core

import "errors"

// Sentinel errors shared by storage adapters and the engine so callers can
// map them to transport-level failures with errors.Is.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrGoalNotFound     = errors.New("goal not found")
	ErrCardNotFound     = errors.New("tea card not found")
	ErrAlreadyCompleted = errors.New("goal already completed")
	ErrProgressUnmet    = errors.New("goal progress below requirement")
)
