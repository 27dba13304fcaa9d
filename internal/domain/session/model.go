package session

import (
	"maps"
	"slices"
	"time"
)

// InterruptionMarker is appended to a message whose stream was abandoned.
const InterruptionMarker = "(response was interrupted)"

// MessageState tracks where a message is in its streaming lifecycle.
type MessageState string

const (
	MessageIdle        MessageState = "idle"
	MessageStreaming   MessageState = "streaming"
	MessageCompleted   MessageState = "completed"
	MessageInterrupted MessageState = "interrupted"
)

// Terminal reports whether no further transition is allowed.
func (s MessageState) Terminal() bool {
	return s == MessageCompleted || s == MessageInterrupted
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat entry.
type Message struct {
	ID        string       `json:"id"`
	Role      Role         `json:"role"`
	Text      string       `json:"text"`
	Streaming bool         `json:"streaming"`
	State     MessageState `json:"state"`
	JobID     string       `json:"job_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Begin moves an idle message into streaming.
func (m *Message) Begin(jobID string) bool {
	if m.State != MessageIdle && m.State != "" {
		return false
	}
	m.State = MessageStreaming
	m.Streaming = true
	m.JobID = jobID
	return true
}

// Append adds a streamed chunk. Chunks for a message that is not streaming are dropped.
func (m *Message) Append(chunk string) bool {
	if m.State != MessageStreaming {
		return false
	}
	m.Text += chunk
	return true
}

// Complete finalizes a streaming message on an explicit terminal event.
func (m *Message) Complete() bool {
	if m.State != MessageStreaming {
		return false
	}
	m.State = MessageCompleted
	m.Streaming = false
	return true
}

// Interrupt finalizes a streaming message that no job is producing anymore.
func (m *Message) Interrupt() bool {
	if m.State.Terminal() {
		// A completed message can still carry a stale flag after a partial write.
		m.Streaming = false
		return false
	}
	if m.Text == "" {
		m.Text = InterruptionMarker
	} else {
		m.Text += "\n\n" + InterruptionMarker
	}
	m.State = MessageInterrupted
	m.Streaming = false
	return true
}

// Chat is the conversation sub-state of a unit.
type Chat struct {
	Messages     []Message `json:"messages"`
	Streaming    bool      `json:"streaming"`
	PendingJobID string    `json:"pending_job_id,omitempty"`
}

// MessageByJob returns the message produced by jobID, or nil.
func (c *Chat) MessageByJob(jobID string) *Message {
	for i := range c.Messages {
		if c.Messages[i].JobID == jobID {
			return &c.Messages[i]
		}
	}
	return nil
}

// MessageByID returns the message with the given id, or nil.
func (c *Chat) MessageByID(id string) *Message {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i]
		}
	}
	return nil
}

// HasStreaming reports whether any message is still flagged mid-stream.
func (c *Chat) HasStreaming() bool {
	for _, msg := range c.Messages {
		if msg.Streaming {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c Chat) Clone() Chat {
	c.Messages = slices.Clone(c.Messages)
	return c
}

// Workspace holds state derived from the conversation.
type Workspace struct {
	Items    map[string]string `json:"items"`
	Settings map[string]string `json:"settings"`
	Summary  string            `json:"summary"`
	Insights string            `json:"insights"`
	Inputs   []string          `json:"inputs"`
}

// Clone returns a deep copy.
func (w Workspace) Clone() Workspace {
	w.Items = maps.Clone(w.Items)
	w.Settings = maps.Clone(w.Settings)
	w.Inputs = slices.Clone(w.Inputs)
	return w
}

// Meta carries display metadata. It may be written out of band.
type Meta struct {
	Title        string    `json:"title"`
	Loading      bool      `json:"loading"`
	LastModified time.Time `json:"last_modified"`
}

// Unit is the persisted state of one session.
type Unit struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	BoundPrompt string    `json:"bound_prompt,omitempty"`
	Chat        Chat      `json:"chat"`
	Workspace   Workspace `json:"workspace"`
	Meta        Meta      `json:"meta"`
}

// Clone returns a deep copy of the unit.
func (u *Unit) Clone() *Unit {
	if u == nil {
		return nil
	}
	out := *u
	out.Chat = u.Chat.Clone()
	out.Workspace = u.Workspace.Clone()
	return &out
}

// Summary is the listing view of a unit.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Loading      bool      `json:"loading"`
	Streaming    bool      `json:"streaming"`
	Current      bool      `json:"current"`
	MessageCount int       `json:"message_count"`
	LastModified time.Time `json:"last_modified"`
}

// ChatPatch is shallow-merged into Chat; nil fields are left untouched.
type ChatPatch struct {
	Messages     []Message
	Streaming    *bool
	PendingJobID *string
}

func (p ChatPatch) apply(c *Chat) {
	if p.Messages != nil {
		c.Messages = slices.Clone(p.Messages)
	}
	if p.Streaming != nil {
		c.Streaming = *p.Streaming
	}
	if p.PendingJobID != nil {
		c.PendingJobID = *p.PendingJobID
	}
}

// WorkspacePatch is shallow-merged into Workspace; nil fields are left untouched.
type WorkspacePatch struct {
	Items    map[string]string
	Settings map[string]string
	Summary  *string
	Insights *string
	Inputs   []string
}

func (p WorkspacePatch) apply(w *Workspace) {
	if p.Items != nil {
		w.Items = maps.Clone(p.Items)
	}
	if p.Settings != nil {
		w.Settings = maps.Clone(p.Settings)
	}
	if p.Summary != nil {
		w.Summary = *p.Summary
	}
	if p.Insights != nil {
		w.Insights = *p.Insights
	}
	if p.Inputs != nil {
		w.Inputs = slices.Clone(p.Inputs)
	}
}

// MetaPatch updates title and loading flags.
type MetaPatch struct {
	Title   *string
	Loading *bool
}

func (p MetaPatch) apply(m *Meta) {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Loading != nil {
		m.Loading = *p.Loading
	}
}

// ChatUpdater computes a patch from a copy of the current chat state.
type ChatUpdater func(Chat) ChatPatch

// WorkspaceUpdater computes a patch from a copy of the current workspace state.
type WorkspaceUpdater func(Workspace) WorkspacePatch

// UnitUpdater mutates a working copy of a unit in place.
type UnitUpdater func(*Unit)

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

func newUnit(id, boundPrompt, title string, now time.Time) *Unit {
	if title == "" {
		title = defaultTitle
	}
	return &Unit{
		ID:          id,
		CreatedAt:   now,
		BoundPrompt: boundPrompt,
		Chat: Chat{
			Messages: []Message{},
		},
		Workspace: Workspace{
			Items:    map[string]string{},
			Settings: map[string]string{},
			Inputs:   []string{},
		},
		Meta: Meta{
			Title:        title,
			LastModified: now,
		},
	}
}

const defaultTitle = "New session"
