package mcp

import (
	"maps"
	"time"

	"github.com/rpggio/deskset/internal/domain/session"
	"github.com/rpggio/deskset/internal/domain/view"
)

type CreateSessionParams struct {
	BoundPrompt string `json:"bound_prompt,omitempty"`
	Title       string `json:"title,omitempty"`
}

type SessionIDParams struct {
	SessionID string `json:"session_id"`
}

type GetViewParams struct {
	ExpectedSessionID string `json:"expected_session_id,omitempty"`
}

type SendMessageParams struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type UpdateWorkspaceParams struct {
	SessionID string            `json:"session_id"`
	Items     map[string]string `json:"items,omitempty"`
	Settings  map[string]string `json:"settings,omitempty"`
	Summary   *string           `json:"summary,omitempty"`
	Insights  *string           `json:"insights,omitempty"`
	Inputs    []string          `json:"inputs,omitempty"`
}

type SetTitleParams struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Streaming bool   `json:"streaming"`
	State     string `json:"state"`
	JobID     string `json:"job_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type WorkspaceResponse struct {
	Items    map[string]string `json:"items"`
	Settings map[string]string `json:"settings"`
	Summary  string            `json:"summary"`
	Insights string            `json:"insights"`
	Inputs   []string          `json:"inputs"`
}

// ViewResponse is the projection of one session. Clients must drop it if
// session_id is no longer the current session.
type ViewResponse struct {
	SessionID    string            `json:"session_id"`
	Title        string            `json:"title"`
	Loading      bool              `json:"loading"`
	BoundPrompt  string            `json:"bound_prompt,omitempty"`
	Messages     []MessageResponse `json:"messages"`
	Streaming    bool              `json:"streaming"`
	PendingJobID string            `json:"pending_job_id,omitempty"`
	Workspace    WorkspaceResponse `json:"workspace"`
	LastModified string            `json:"last_modified"`
}

type SessionSummaryResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Loading      bool   `json:"loading"`
	Streaming    bool   `json:"streaming"`
	Current      bool   `json:"current"`
	MessageCount int    `json:"message_count"`
	LastModified string `json:"last_modified"`
}

type ListSessionsResponse struct {
	CurrentSessionID string                   `json:"current_session_id,omitempty"`
	Sessions         []SessionSummaryResponse `json:"sessions"`
}

type DeleteSessionResponse struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
}

type SendMessageResponse struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	JobID     string `json:"job_id,omitempty"`
}

type SetTitleResponse struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

func toViewResponse(p *view.Projection) ViewResponse {
	messages := make([]MessageResponse, 0, len(p.Messages))
	for _, msg := range p.Messages {
		messages = append(messages, MessageResponse{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Text:      msg.Text,
			Streaming: msg.Streaming,
			State:     string(msg.State),
			JobID:     msg.JobID,
			CreatedAt: formatTime(msg.CreatedAt),
		})
	}
	return ViewResponse{
		SessionID:    p.SessionID,
		Title:        p.Title,
		Loading:      p.Loading,
		BoundPrompt:  p.BoundPrompt,
		Messages:     messages,
		Streaming:    p.Streaming,
		PendingJobID: p.PendingJobID,
		Workspace:    toWorkspaceResponse(p.Workspace),
		LastModified: formatTime(p.LastModified),
	}
}

func toWorkspaceResponse(w session.Workspace) WorkspaceResponse {
	resp := WorkspaceResponse{
		Items:    maps.Clone(w.Items),
		Settings: maps.Clone(w.Settings),
		Summary:  w.Summary,
		Insights: w.Insights,
		Inputs:   append([]string{}, w.Inputs...),
	}
	if resp.Items == nil {
		resp.Items = map[string]string{}
	}
	if resp.Settings == nil {
		resp.Settings = map[string]string{}
	}
	return resp
}

func toSummaryResponse(s session.Summary) SessionSummaryResponse {
	return SessionSummaryResponse{
		ID:           s.ID,
		Title:        s.Title,
		Loading:      s.Loading,
		Streaming:    s.Streaming,
		Current:      s.Current,
		MessageCount: s.MessageCount,
		LastModified: formatTime(s.LastModified),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
