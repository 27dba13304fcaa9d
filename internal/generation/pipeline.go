package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rpggio/deskset/internal/domain/session"
)

// ErrPipelineFull is logged when a job is refused because every slot is busy.
var ErrPipelineFull = errors.New("too many running jobs")

const defaultMaxJobs = 8

// Pipeline runs generation jobs in the background. Jobs are never cancelled by
// a session switch; every write they make names their own session id.
type Pipeline struct {
	sessions Sessions
	gen      Generator
	logger   *slog.Logger
	observer session.Observer
	maxJobs  int
	now      func() time.Time

	ctx   context.Context
	group *errgroup.Group

	mu   sync.Mutex
	live map[string]string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxJobs caps the number of concurrently running jobs.
func WithMaxJobs(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxJobs = n
		}
	}
}

// WithObserver reports job outcomes to o.
func WithObserver(o session.Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// NewPipeline creates a pipeline whose jobs run until ctx is cancelled.
func NewPipeline(ctx context.Context, sessions Sessions, gen Generator, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Pipeline{
		sessions: sessions,
		gen:      gen,
		logger:   logger,
		observer: nopObserver{},
		maxJobs:  defaultMaxJobs,
		now:      func() time.Time { return time.Now().UTC() },
		live:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.group, p.ctx = errgroup.WithContext(ctx)
	p.group.SetLimit(p.maxJobs)
	return p
}

// Start begins a job answering the conversation of sessionID. A streaming
// placeholder is added to the session before Start returns. It reports false
// when the session is unknown or every job slot is taken.
func (p *Pipeline) Start(ctx context.Context, sessionID string) (string, bool) {
	unit, ok := p.sessions.Get(sessionID)
	if !ok {
		p.logger.Warn("generation not started", "session_id", sessionID, "reason", session.ErrUnknownSession)
		return "", false
	}

	jobID := uuid.NewString()
	req := Request{
		SessionID:   sessionID,
		BoundPrompt: unit.BoundPrompt,
		History:     history(unit.Chat.Messages),
	}

	ready := make(chan bool, 1)
	started := p.group.TryGo(func() error {
		if !<-ready {
			return nil
		}
		p.run(jobID, req)
		return nil
	})
	if !started {
		p.logger.Warn("generation not started", "session_id", sessionID, "reason", ErrPipelineFull)
		return "", false
	}

	p.mu.Lock()
	p.live[jobID] = sessionID
	p.mu.Unlock()

	placed := p.sessions.BackgroundUpdate(ctx, sessionID, func(u *session.Unit) {
		msg := session.Message{
			ID:        uuid.NewString(),
			Role:      session.RoleAssistant,
			CreatedAt: p.now(),
		}
		msg.Begin(jobID)
		u.Chat.Messages = append(u.Chat.Messages, msg)
		u.Chat.Streaming = true
		u.Chat.PendingJobID = jobID
		u.Meta.Loading = true
	})
	if !placed {
		p.release(jobID)
		ready <- false
		return "", false
	}

	p.logger.Debug("generation started", "session_id", sessionID, "job_id", jobID)
	ready <- true
	return jobID, true
}

// Active reports whether jobID is still running.
func (p *Pipeline) Active(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.live[jobID]
	return ok
}

// Running returns the number of live jobs.
func (p *Pipeline) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Wait blocks until every started job has finished.
func (p *Pipeline) Wait() error {
	return p.group.Wait()
}

func (p *Pipeline) run(jobID string, req Request) {
	defer p.release(jobID)

	// Final writes must land even when shutdown cancelled the job.
	persist := context.WithoutCancel(p.ctx)
	logger := p.logger.With("session_id", req.SessionID, "job_id", jobID)

	stream, err := p.gen.Open(p.ctx, req)
	if err != nil {
		logger.Error("failed to open generation stream", "error", err)
		p.finish(persist, logger, jobID, req.SessionID, false)
		return
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			p.finish(persist, logger, jobID, req.SessionID, true)
			return
		}
		if err != nil {
			logger.Warn("generation stream failed", "error", err)
			p.finish(persist, logger, jobID, req.SessionID, false)
			return
		}
		if chunk == "" {
			continue
		}
		delivered := p.sessions.BackgroundUpdate(persist, req.SessionID, func(u *session.Unit) {
			if msg := u.Chat.MessageByJob(jobID); msg != nil {
				msg.Append(chunk)
			}
		})
		if !delivered {
			logger.Info("session gone, abandoning job")
			p.observer.Observe("job", session.OutcomeAbandoned)
			return
		}
	}
}

func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, jobID, sessionID string, completed bool) {
	ok := p.sessions.BackgroundUpdate(ctx, sessionID, func(u *session.Unit) {
		if msg := u.Chat.MessageByJob(jobID); msg != nil {
			if completed {
				msg.Complete()
			} else {
				msg.Interrupt()
			}
		}
		if u.Chat.PendingJobID == jobID {
			u.Chat.Streaming = false
			u.Chat.PendingJobID = ""
			u.Meta.Loading = false
		}
	})
	switch {
	case !ok:
		logger.Info("session gone, dropping final delivery")
		p.observer.Observe("job", session.OutcomeAbandoned)
	case completed:
		logger.Debug("generation completed")
		p.observer.Observe("job", session.OutcomeCompleted)
	default:
		p.observer.Observe("job", session.OutcomeInterrupted)
	}
}

func (p *Pipeline) release(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.live, jobID)
}

// history keeps the finished turns of a conversation.
func history(messages []session.Message) []session.Message {
	out := make([]session.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Streaming || msg.Text == "" {
			continue
		}
		out = append(out, msg)
	}
	return out
}

type nopObserver struct{}

func (nopObserver) Observe(string, session.Outcome) {}
