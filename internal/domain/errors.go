package domain

import "errors"

// Context store errors shared by every implementation.
var (
	ErrVersionConflict      = errors.New("conversation version conflict")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrTurnNotFound         = errors.New("turn not found")
	ErrStoreUnavailable     = errors.New("context store unavailable")
	ErrInvalidTransition    = errors.New("invalid escalation state transition")
)
