// Package generation runs response jobs and delivers their output to the
// session that started them.
package generation

import (
	"context"

	"github.com/rpggio/deskset/internal/domain/session"
)

// Request is the input to one generation job.
type Request struct {
	SessionID   string
	BoundPrompt string
	History     []session.Message
}

// Stream yields response chunks. Recv returns io.EOF once the response is
// complete; any other error means the response was cut short.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Generator opens a response stream for a request.
type Generator interface {
	Open(ctx context.Context, req Request) (Stream, error)
}

// Sessions is the registry surface the pipeline writes through.
type Sessions interface {
	BackgroundUpdate(ctx context.Context, id string, fn session.UnitUpdater) bool
	Get(id string) (*session.Unit, bool)
}
