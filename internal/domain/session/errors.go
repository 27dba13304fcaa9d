package session

import "errors"

// These never leave the package as return values. They tag log lines and
// observer outcomes so callers only ever see a false or nil result.
var (
	// ErrOwnershipViolation indicates a foreground mutation aimed at a non-current session.
	ErrOwnershipViolation = errors.New("session is not current")
	// ErrUnknownSession indicates the session doesn't exist.
	ErrUnknownSession = errors.New("session not found")
	// ErrSwitchBlocked indicates the switch lock was held.
	ErrSwitchBlocked = errors.New("session switch in progress")
	// ErrOrphanedStream indicates a message was left mid-stream with no job behind it.
	ErrOrphanedStream = errors.New("orphaned stream")
	// ErrIDReused indicates an attempt to recreate a deleted session id.
	ErrIDReused = errors.New("session id was deleted")
)
