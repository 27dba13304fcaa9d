package view

import (
	"context"

	"github.com/rpggio/deskset/internal/domain/session"
)

// recover finalizes messages left streaming by a job that no longer runs.
// The fix goes through BackgroundUpdate so it is persisted whatever the
// current session is, and the re-read unit is returned.
func (p *Projector) recover(ctx context.Context, unit *session.Unit) *session.Unit {
	if !p.orphaned(unit) {
		return unit
	}

	var recovered []string
	ok := p.sessions.BackgroundUpdate(ctx, unit.ID, func(u *session.Unit) {
		live := p.jobLive(u.Chat.PendingJobID)
		for i := range u.Chat.Messages {
			msg := &u.Chat.Messages[i]
			if !msg.Streaming {
				continue
			}
			if p.jobLive(msg.JobID) {
				live = true
				continue
			}
			// A completed message with a stale flag is only cleared.
			if msg.Interrupt() {
				recovered = append(recovered, msg.ID)
			}
		}
		if !live {
			u.Chat.Streaming = false
			u.Chat.PendingJobID = ""
			u.Meta.Loading = false
		}
	})
	if !ok {
		return unit
	}

	for _, id := range recovered {
		p.observer.Observe("recover", session.OutcomeOrphanRecovered)
		p.logger.Warn("interrupted orphaned message",
			"session_id", unit.ID,
			"message_id", id,
			"reason", session.ErrOrphanedStream,
		)
	}

	fresh, found := p.sessions.Get(unit.ID)
	if !found {
		return unit
	}
	return fresh
}

// RecoverAll finalizes orphaned streams in every session, not only the
// displayed one. It returns the number of sessions that needed recovery.
func (p *Projector) RecoverAll(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flushLocked(ctx)

	n := 0
	for _, summary := range p.sessions.List() {
		unit, ok := p.sessions.Get(summary.ID)
		if !ok || !p.orphaned(unit) {
			continue
		}
		fresh := p.recover(ctx, unit)
		if p.view != nil && p.view.SessionID == fresh.ID {
			p.view = project(fresh)
		}
		n++
	}
	return n
}

// orphaned reports whether the unit carries streaming state with no live job.
func (p *Projector) orphaned(unit *session.Unit) bool {
	for _, msg := range unit.Chat.Messages {
		if msg.Streaming && !p.jobLive(msg.JobID) {
			return true
		}
	}
	if !unit.Chat.Streaming && !unit.Meta.Loading {
		return false
	}
	return !p.jobLive(unit.Chat.PendingJobID) && !p.anyLive(unit)
}

func (p *Projector) anyLive(unit *session.Unit) bool {
	for _, msg := range unit.Chat.Messages {
		if msg.Streaming && p.jobLive(msg.JobID) {
			return true
		}
	}
	return false
}

func (p *Projector) jobLive(jobID string) bool {
	return jobID != "" && p.jobs != nil && p.jobs.Active(jobID)
}
