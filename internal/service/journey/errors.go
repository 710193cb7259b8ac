package journey

import "errors"

// Sentinel errors for the journey record service layer.
var (
	ErrNotFound    = errors.New("journey session not found")
	ErrSessionOpen = errors.New("session is still in progress")
)
