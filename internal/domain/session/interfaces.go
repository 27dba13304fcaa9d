package session

import "context"

// Store provides persistence for the registry.
// Get returns repository.ErrNotFound for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Outcome labels the result of a registry operation.
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeOwnershipViolation Outcome = "ownership_violation"
	OutcomeUnknownSession     Outcome = "unknown_session"
	OutcomeSwitchBlocked      Outcome = "switch_blocked"
	OutcomeIDReused           Outcome = "id_reused"
	OutcomeOrphanRecovered    Outcome = "orphan_recovered"
	OutcomeCompleted          Outcome = "completed"
	OutcomeInterrupted        Outcome = "interrupted"
	OutcomeAbandoned          Outcome = "abandoned"
)

// Observer receives operation outcomes, e.g. for metrics.
type Observer interface {
	Observe(op string, outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) Observe(string, Outcome) {}
