package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/deskset/internal/domain/session"
)

var (
	// ErrStaleView indicates the caller rendered for a session that is no longer current.
	ErrStaleView = errors.New("view belongs to another session")
	// ErrNoSession indicates no session is current.
	ErrNoSession = errors.New("no current session")
	// ErrJobRefused indicates generation could not be started.
	ErrJobRefused = errors.New("generation not started")
	// ErrRejected indicates the registry dropped the mutation.
	ErrRejected = errors.New("mutation rejected")
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		return &APIError{Code: "SESSION_NOT_FOUND", Message: "session not found", RecoveryHint: "Call list_sessions"}
	case errors.Is(err, session.ErrOwnershipViolation):
		return &APIError{Code: "SESSION_NOT_CURRENT", Message: "session is not current", RecoveryHint: "Call switch_session first"}
	case errors.Is(err, session.ErrSwitchBlocked):
		return &APIError{Code: "SWITCH_BLOCKED", Message: "a session switch is in progress", RecoveryHint: "Retry shortly"}
	case errors.Is(err, ErrStaleView):
		return &APIError{Code: "STALE_VIEW", Message: "view belongs to another session", RecoveryHint: "Discard it and call get_view"}
	case errors.Is(err, ErrNoSession):
		return &APIError{Code: "NO_CURRENT_SESSION", Message: "no session is current", RecoveryHint: "Call create_session or switch_session"}
	case errors.Is(err, ErrJobRefused):
		return &APIError{Code: "GENERATION_REFUSED", Message: "response generation not started", RecoveryHint: "Wait for running responses to finish"}
	case errors.Is(err, ErrRejected):
		return &APIError{Code: "REJECTED", Message: "mutation was not applied", RecoveryHint: "Call get_view and retry"}
	default:
		return nil
	}
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
