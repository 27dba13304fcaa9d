package view

import (
	"slices"
	"time"

	"github.com/rpggio/deskset/internal/domain/session"
)

// Projection is the part of a unit currently materialized for display.
// It can always be rebuilt from the unit.
type Projection struct {
	SessionID    string
	Title        string
	Loading      bool
	BoundPrompt  string
	Messages     []session.Message
	Streaming    bool
	PendingJobID string
	Workspace    session.Workspace
	LastModified time.Time
}

// OwnerSessionID implements render.Scoped.
func (p Projection) OwnerSessionID() string {
	return p.SessionID
}

func (p Projection) clone() Projection {
	p.Messages = slices.Clone(p.Messages)
	p.Workspace = p.Workspace.Clone()
	return p
}

func project(unit *session.Unit) *Projection {
	return &Projection{
		SessionID:    unit.ID,
		Title:        unit.Meta.Title,
		Loading:      unit.Meta.Loading,
		BoundPrompt:  unit.BoundPrompt,
		Messages:     slices.Clone(unit.Chat.Messages),
		Streaming:    unit.Chat.Streaming,
		PendingJobID: unit.Chat.PendingJobID,
		Workspace:    unit.Workspace.Clone(),
		LastModified: unit.Meta.LastModified,
	}
}
