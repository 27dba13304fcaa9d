package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/rpggio/deskset/internal/domain/render"
	"github.com/rpggio/deskset/internal/domain/session"
	"github.com/rpggio/deskset/internal/domain/view"
)

// ViewService defines projector operations needed by MCP.
type ViewService interface {
	Create(ctx context.Context, boundPrompt, title string) (*view.Projection, bool)
	Switch(ctx context.Context, targetID string) (*view.Projection, bool)
	Delete(ctx context.Context, id string) bool
	Resync(ctx context.Context) (*view.Projection, bool)
	View() (view.Projection, bool)
	Guard() *session.Guard
	Flush(ctx context.Context) bool
	AppendMessage(ctx context.Context, msg session.Message) bool
	SetWorkspaceItem(ctx context.Context, key, value string) bool
	SetSettings(ctx context.Context, settings map[string]string) bool
	SetSummary(ctx context.Context, text string) bool
	SetInsights(ctx context.Context, text string) bool
	AddInput(ctx context.Context, ref string) bool
	SetTitle(ctx context.Context, title string) bool
}

// SessionCatalog defines read-only registry operations needed by MCP.
type SessionCatalog interface {
	List() []session.Summary
	Current() string
	Get(id string) (*session.Unit, bool)
}

// GenerationService starts response jobs.
type GenerationService interface {
	Start(ctx context.Context, sessionID string) (string, bool)
}

// Handler dispatches MCP tool calls.
type Handler struct {
	views       ViewService
	catalog     SessionCatalog
	generations GenerationService
	now         func() time.Time
}

// NewHandler creates a new MCP handler. generations may be nil, in which case
// send_message only records the user message.
func NewHandler(views ViewService, catalog SessionCatalog, generations GenerationService) *Handler {
	return &Handler{
		views:       views,
		catalog:     catalog,
		generations: generations,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Handle dispatches a tool call to the projector and registry.
func (h *Handler) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "create_session":
		var req CreateSessionParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, ok := h.views.Create(ctx, req.BoundPrompt, req.Title)
		if !ok {
			return nil, mapError(session.ErrSwitchBlocked)
		}
		return toViewResponse(proj), nil
	case "switch_session":
		var req SessionIDParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, ok := h.views.Switch(ctx, req.SessionID)
		if !ok {
			if _, found := h.catalog.Get(req.SessionID); !found {
				return nil, mapError(session.ErrUnknownSession)
			}
			return nil, mapError(session.ErrSwitchBlocked)
		}
		return toViewResponse(proj), nil
	case "delete_session":
		var req SessionIDParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if !h.views.Delete(ctx, req.SessionID) {
			return nil, mapError(session.ErrUnknownSession)
		}
		return DeleteSessionResponse{SessionID: req.SessionID, Deleted: true}, nil
	case "list_sessions":
		summaries := h.catalog.List()
		resp := ListSessionsResponse{
			CurrentSessionID: h.catalog.Current(),
			Sessions:         make([]SessionSummaryResponse, 0, len(summaries)),
		}
		for _, s := range summaries {
			resp.Sessions = append(resp.Sessions, toSummaryResponse(s))
		}
		return resp, nil
	case "get_view":
		var req GetViewParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, ok := h.views.Resync(ctx)
		if !ok {
			return nil, mapError(ErrNoSession)
		}
		if req.ExpectedSessionID != "" {
			if result := render.ValidateBeforeRender(req.ExpectedSessionID, proj.SessionID); !result.IsValid {
				return nil, &APIError{
					Code:         "STALE_VIEW",
					Message:      result.Reason,
					Details:      map[string]string{"current_session_id": proj.SessionID},
					RecoveryHint: "Discard the rendered view and call get_view",
				}
			}
		}
		return toViewResponse(proj), nil
	case "send_message":
		var req SendMessageParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.Text == "" {
			return nil, invalidParams("text is required")
		}
		if err := h.requireCurrent(req.SessionID); err != nil {
			return nil, mapError(err)
		}
		msg := session.Message{
			ID:        uuid.NewString(),
			Role:      session.RoleUser,
			Text:      req.Text,
			State:     session.MessageCompleted,
			CreatedAt: h.now(),
		}
		if !h.views.AppendMessage(ctx, msg) {
			return nil, mapError(ErrRejected)
		}
		resp := SendMessageResponse{SessionID: req.SessionID, MessageID: msg.ID}
		if h.generations != nil {
			jobID, ok := h.generations.Start(ctx, req.SessionID)
			if !ok {
				apiErr := MapError(ErrJobRefused)
				apiErr.Details = resp
				return nil, apiErr
			}
			resp.JobID = jobID
		}
		return resp, nil
	case "update_workspace":
		var req UpdateWorkspaceParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := h.requireCurrent(req.SessionID); err != nil {
			return nil, mapError(err)
		}
		if err := h.updateWorkspace(ctx, req); err != nil {
			return nil, mapError(err)
		}
		proj, ok := h.views.View()
		if !ok {
			return nil, mapError(ErrNoSession)
		}
		return toViewResponse(&proj), nil
	case "set_title":
		var req SetTitleParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.Title == "" {
			return nil, invalidParams("title is required")
		}
		if err := h.requireCurrent(req.SessionID); err != nil {
			return nil, mapError(err)
		}
		if !h.views.SetTitle(ctx, req.Title) {
			return nil, mapError(ErrRejected)
		}
		return SetTitleResponse{SessionID: req.SessionID, Title: req.Title}, nil
	default:
		return nil, fmt.Errorf("unknown method: %s", method)
	}
}

func (h *Handler) updateWorkspace(ctx context.Context, req UpdateWorkspaceParams) error {
	ok := true
	keys := make([]string, 0, len(req.Items))
	for key := range req.Items {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		ok = ok && h.views.SetWorkspaceItem(ctx, key, req.Items[key])
	}
	if req.Settings != nil {
		ok = ok && h.views.SetSettings(ctx, req.Settings)
	}
	for _, ref := range req.Inputs {
		ok = ok && h.views.AddInput(ctx, ref)
	}
	if req.Summary != nil {
		ok = ok && h.views.SetSummary(ctx, *req.Summary)
	}
	if req.Insights != nil {
		ok = ok && h.views.SetInsights(ctx, *req.Insights)
	}
	if !h.views.Flush(ctx) || !ok {
		return ErrRejected
	}
	return nil
}

// requireCurrent checks that sessionID is the displayed, current session.
func (h *Handler) requireCurrent(sessionID string) error {
	if sessionID == "" {
		return invalidParams("session_id is required")
	}
	guard := h.views.Guard()
	if guard == nil || guard.SessionID() != sessionID || !guard.IsActive() {
		if _, found := h.catalog.Get(sessionID); !found {
			return session.ErrUnknownSession
		}
		return session.ErrOwnershipViolation
	}
	return nil
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return invalidParams(err.Error())
	}
	return nil
}

func invalidParams(msg string) *APIError {
	return &APIError{Code: "INVALID_PARAMS", Message: msg}
}
