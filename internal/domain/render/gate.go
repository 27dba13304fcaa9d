// Package render guards the display layer against session-scoped data that
// arrives after the user has moved to another session.
package render

import "fmt"

// Result is the outcome of a pre-render check.
type Result struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
}

// ValidateBeforeRender reports whether data computed for dataSessionID may be
// shown while targetSessionID is being rendered. Two unset ids match.
func ValidateBeforeRender(targetSessionID, dataSessionID string) Result {
	if targetSessionID == dataSessionID {
		return Result{IsValid: true}
	}
	return Result{
		Reason: fmt.Sprintf("data for session %q cannot render in session %q", dataSessionID, targetSessionID),
	}
}

// Gate renders with render when the ids match and with fallback otherwise.
func Gate[T any](targetSessionID, dataSessionID string, render, fallback func() T) T {
	if ValidateBeforeRender(targetSessionID, dataSessionID).IsValid {
		return render()
	}
	return fallback()
}

// Scoped is session-scoped data that knows which session it belongs to.
type Scoped interface {
	OwnerSessionID() string
}

// GateScoped is Gate for data that carries its own session id.
func GateScoped[D Scoped, T any](targetSessionID string, data D, render func(D) T, fallback func(Result) T) T {
	result := ValidateBeforeRender(targetSessionID, data.OwnerSessionID())
	if result.IsValid {
		return render(data)
	}
	return fallback(result)
}
