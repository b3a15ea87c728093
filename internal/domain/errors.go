package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned to a signaling client wraps exactly one of these.
var (
	ErrValidation       = errors.New("validation error")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrRateLimited      = errors.New("rate limited")
	ErrAlreadyProcessed = errors.New("already processed")
)

var (
	ErrNotInRoom          = fmt.Errorf("connection is not in a room: %w", ErrUnauthorized)
	ErrNotHost            = fmt.Errorf("host privileges required: %w", ErrUnauthorized)
	ErrNotAdmin           = fmt.Errorf("admin privileges required: %w", ErrUnauthorized)
	ErrApprovalRequired   = fmt.Errorf("meeting requires host approval: %w", ErrUnauthorized)
	ErrUserSuspended      = fmt.Errorf("account suspended: %w", ErrUnauthorized)
	ErrMeetingNotFound    = fmt.Errorf("meeting %w", ErrNotFound)
	ErrRequestNotFound    = fmt.Errorf("join request %w", ErrNotFound)
	ErrConnNotFound       = fmt.Errorf("connection %w", ErrNotFound)
	ErrTransportNotFound  = fmt.Errorf("transport %w", ErrNotFound)
	ErrProducerNotFound   = fmt.Errorf("producer %w", ErrNotFound)
	ErrConsumerNotFound   = fmt.Errorf("consumer %w", ErrNotFound)
	ErrNoScreenShare      = fmt.Errorf("screen share %w", ErrNotFound)
	ErrScreenShareActive  = fmt.Errorf("screen share already active: %w", ErrConflict)
	ErrTransportExists    = fmt.Errorf("transport direction already created: %w", ErrConflict)
	ErrConnExists         = fmt.Errorf("connection already registered: %w", ErrConflict)
	ErrRequestProcessed   = fmt.Errorf("join request %w", ErrAlreadyProcessed)
	ErrCannotConsume      = fmt.Errorf("router cannot consume producer with given capabilities: %w", ErrValidation)
	ErrNoRecvTransport    = fmt.Errorf("receive transport not created: %w", ErrValidation)
	ErrWrongTransportKind = fmt.Errorf("transport direction does not allow this operation: %w", ErrValidation)
)

// Wire codes.
const (
	CodeValidation       = "ValidationError"
	CodeUnauthorized     = "Unauthorized"
	CodeNotFound         = "NotFound"
	CodeConflict         = "Conflict"
	CodeRateLimited      = "RateLimited"
	CodeAlreadyProcessed = "AlreadyProcessed"
	CodeInternal         = "Internal"
)

// Code maps err to the code sent to signaling clients.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrAlreadyProcessed):
		return CodeAlreadyProcessed
	default:
		return CodeInternal
	}
}

// Retryable reports whether the client may retry the same request after backing off.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
