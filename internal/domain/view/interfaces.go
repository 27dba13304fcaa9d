package view

import (
	"context"

	"github.com/rpggio/deskset/internal/domain/session"
)

// Sessions is the registry surface the projector works against.
type Sessions interface {
	CreateUnit(ctx context.Context, id, boundPrompt, title string) *session.Unit
	SwitchSession(ctx context.Context, targetID string) *session.Unit
	DeleteUnit(ctx context.Context, id string) bool
	UpdateChat(ctx context.Context, id string, fn session.ChatUpdater) bool
	UpdateWorkspace(ctx context.Context, id string, fn session.WorkspaceUpdater) bool
	UpdateMeta(ctx context.Context, id string, patch session.MetaPatch) bool
	BackgroundUpdate(ctx context.Context, id string, fn session.UnitUpdater) bool
	Get(id string) (*session.Unit, bool)
	List() []session.Summary
	Current() string
	Guard(id string) *session.Guard
}

// JobTracker reports whether a generation job is still producing output.
type JobTracker interface {
	Active(jobID string) bool
}
