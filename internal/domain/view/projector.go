// Package view keeps the displayed session in step with the registry.
package view

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/rpggio/deskset/internal/domain/session"
)

// pendingEdit is a foreground edit bound to the session it was issued for.
type pendingEdit struct {
	sessionID string
	chat      session.ChatUpdater
	workspace session.WorkspaceUpdater
}

// Projector reconciles the registry with the displayed view.
type Projector struct {
	mu       sync.Mutex
	sessions Sessions
	jobs     JobTracker
	observer session.Observer
	logger   *slog.Logger

	view    *Projection
	guard   *session.Guard
	pending []pendingEdit
}

// Option configures a Projector.
type Option func(*Projector)

// WithObserver reports orphan recoveries to o.
func WithObserver(o session.Observer) Option {
	return func(p *Projector) {
		if o != nil {
			p.observer = o
		}
	}
}

// NewProjector creates a projector with nothing displayed. jobs may be nil, in
// which case every streaming message found on load is treated as orphaned.
func NewProjector(sessions Sessions, jobs JobTracker, logger *slog.Logger, opts ...Option) *Projector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Projector{
		sessions: sessions,
		jobs:     jobs,
		observer: nopObserver{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create starts a new session and displays it.
func (p *Projector) Create(ctx context.Context, boundPrompt, title string) (*Projection, bool) {
	unit := p.sessions.CreateUnit(ctx, "", boundPrompt, title)
	if unit == nil {
		return nil, false
	}
	return p.Switch(ctx, unit.ID)
}

// Switch flushes the outgoing view, moves the current pointer and projects the
// incoming session. It returns false when the registry refused the switch.
func (p *Projector) Switch(ctx context.Context, targetID string) (*Projection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flushLocked(ctx)

	unit := p.sessions.SwitchSession(ctx, targetID)
	if unit == nil {
		p.logger.Debug("switch not performed", "target_id", targetID)
		return nil, false
	}
	p.loadLocked(ctx, unit)
	out := p.view.clone()
	return &out, true
}

// Resync flushes pending edits and re-projects whatever session is current.
func (p *Projector) Resync(ctx context.Context) (*Projection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flushLocked(ctx)

	currentID := p.sessions.Current()
	if currentID == "" {
		p.clearLocked()
		return nil, false
	}
	unit, ok := p.sessions.Get(currentID)
	if !ok {
		p.clearLocked()
		return nil, false
	}
	p.loadLocked(ctx, unit)
	out := p.view.clone()
	return &out, true
}

// Delete removes a session, dropping the view if it was displayed.
func (p *Projector) Delete(ctx context.Context, id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.view != nil && p.view.SessionID == id {
		p.clearLocked()
	}
	p.pending = slices.DeleteFunc(p.pending, func(e pendingEdit) bool {
		return e.sessionID == id
	})
	return p.sessions.DeleteUnit(ctx, id)
}

// View returns a copy of the current projection.
func (p *Projector) View() (Projection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.view == nil {
		return Projection{}, false
	}
	return p.view.clone(), true
}

// Guard returns the guard issued for the displayed session.
func (p *Projector) Guard() *session.Guard {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guard
}

// Flush persists buffered edits. It reports whether all of them landed.
func (p *Projector) Flush(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

// AppendMessage adds a message to the displayed chat.
func (p *Projector) AppendMessage(ctx context.Context, msg session.Message) bool {
	return p.chatEdit(ctx, true,
		func(v *Projection) bool {
			v.Messages = append(v.Messages, msg)
			return true
		},
		func(c session.Chat) session.ChatPatch {
			return session.ChatPatch{Messages: append(c.Messages, msg)}
		},
	)
}

// EditMessage replaces the text of a message that is not streaming.
func (p *Projector) EditMessage(ctx context.Context, messageID, text string) bool {
	return p.chatEdit(ctx, true,
		func(v *Projection) bool {
			for i := range v.Messages {
				if v.Messages[i].ID == messageID && !v.Messages[i].Streaming {
					v.Messages[i].Text = text
					return true
				}
			}
			return false
		},
		func(c session.Chat) session.ChatPatch {
			msg := c.MessageByID(messageID)
			if msg == nil || msg.Streaming {
				return session.ChatPatch{}
			}
			msg.Text = text
			return session.ChatPatch{Messages: c.Messages}
		},
	)
}

// SetWorkspaceItem sets one configuration item.
func (p *Projector) SetWorkspaceItem(ctx context.Context, key, value string) bool {
	return p.workspaceEdit(ctx, true,
		func(v *Projection) {
			if v.Workspace.Items == nil {
				v.Workspace.Items = make(map[string]string)
			}
			v.Workspace.Items[key] = value
		},
		func(w session.Workspace) session.WorkspacePatch {
			items := maps.Clone(w.Items)
			if items == nil {
				items = make(map[string]string)
			}
			items[key] = value
			return session.WorkspacePatch{Items: items}
		},
	)
}

// SetSettings replaces the derived settings.
func (p *Projector) SetSettings(ctx context.Context, settings map[string]string) bool {
	settings = maps.Clone(settings)
	if settings == nil {
		settings = make(map[string]string)
	}
	return p.workspaceEdit(ctx, true,
		func(v *Projection) { v.Workspace.Settings = maps.Clone(settings) },
		func(session.Workspace) session.WorkspacePatch {
			return session.WorkspacePatch{Settings: settings}
		},
	)
}

// AddInput records a referenced input.
func (p *Projector) AddInput(ctx context.Context, ref string) bool {
	return p.workspaceEdit(ctx, true,
		func(v *Projection) { v.Workspace.Inputs = append(v.Workspace.Inputs, ref) },
		func(w session.Workspace) session.WorkspacePatch {
			return session.WorkspacePatch{Inputs: append(w.Inputs, ref)}
		},
	)
}

// SetSummary edits the summary text. The edit is buffered until the next
// Flush, Switch or Resync.
func (p *Projector) SetSummary(ctx context.Context, text string) bool {
	return p.workspaceEdit(ctx, false,
		func(v *Projection) { v.Workspace.Summary = text },
		func(session.Workspace) session.WorkspacePatch {
			return session.WorkspacePatch{Summary: &text}
		},
	)
}

// SetInsights edits the insight text. Buffered like SetSummary.
func (p *Projector) SetInsights(ctx context.Context, text string) bool {
	return p.workspaceEdit(ctx, false,
		func(v *Projection) { v.Workspace.Insights = text },
		func(session.Workspace) session.WorkspacePatch {
			return session.WorkspacePatch{Insights: &text}
		},
	)
}

// SetTitle renames the displayed session.
func (p *Projector) SetTitle(ctx context.Context, title string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessionID, ok := p.ownedLocked("set_title")
	if !ok {
		return false
	}
	p.view.Title = title
	return p.sessions.UpdateMeta(ctx, sessionID, session.MetaPatch{Title: &title})
}

func (p *Projector) chatEdit(ctx context.Context, immediate bool, local func(*Projection) bool, persist session.ChatUpdater) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessionID, ok := p.ownedLocked("update_chat")
	if !ok {
		return false
	}
	if !local(p.view) {
		return false
	}
	p.pending = append(p.pending, pendingEdit{sessionID: sessionID, chat: persist})
	if immediate {
		return p.flushLocked(ctx)
	}
	return true
}

func (p *Projector) workspaceEdit(ctx context.Context, immediate bool, local func(*Projection), persist session.WorkspaceUpdater) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessionID, ok := p.ownedLocked("update_workspace")
	if !ok {
		return false
	}
	local(p.view)
	p.pending = append(p.pending, pendingEdit{sessionID: sessionID, workspace: persist})
	if immediate {
		return p.flushLocked(ctx)
	}
	return true
}

// ownedLocked returns the id captured for a new edit, if the displayed
// session may still be edited.
func (p *Projector) ownedLocked(op string) (string, bool) {
	if p.view == nil || !p.guard.IsActive() {
		p.logger.Warn("view edit dropped",
			"op", op,
			"session_id", p.guard.SessionID(),
			"current_id", p.sessions.Current(),
			"reason", session.ErrOwnershipViolation,
		)
		return "", false
	}
	return p.guard.SessionID(), true
}

// flushLocked writes pending edits through the registry with the session id
// each edit was issued for. Edits whose session is no longer current are dropped.
func (p *Projector) flushLocked(ctx context.Context) bool {
	all := true
	for _, edit := range p.pending {
		var ok bool
		switch {
		case edit.chat != nil:
			ok = p.sessions.UpdateChat(ctx, edit.sessionID, edit.chat)
		case edit.workspace != nil:
			ok = p.sessions.UpdateWorkspace(ctx, edit.sessionID, edit.workspace)
		}
		if !ok {
			all = false
			p.logger.Debug("pending edit not persisted", "session_id", edit.sessionID)
		}
	}
	p.pending = p.pending[:0]
	return all
}

func (p *Projector) loadLocked(ctx context.Context, unit *session.Unit) {
	unit = p.recover(ctx, unit)
	p.view = project(unit)
	p.guard = p.sessions.Guard(unit.ID)
}

func (p *Projector) clearLocked() {
	p.view = nil
	p.guard = nil
}

type nopObserver struct{}

func (nopObserver) Observe(string, session.Outcome) {}
