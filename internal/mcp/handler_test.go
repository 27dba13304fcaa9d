package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rpggio/deskset/internal/domain/session"
	"github.com/rpggio/deskset/internal/domain/view"
	"github.com/rpggio/deskset/internal/sqlite"
	"github.com/stretchr/testify/require"
)

type generationStub struct {
	startFn func(context.Context, string) (string, bool)
	calls   []string
}

func (g *generationStub) Start(ctx context.Context, sessionID string) (string, bool) {
	g.calls = append(g.calls, sessionID)
	return g.startFn(ctx, sessionID)
}

type fixture struct {
	registry  *session.Registry
	projector *view.Projector
	handler   *Handler
	gen       *generationStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	reg := session.NewRegistry(sqlite.NewKVStore(db), nil)
	proj := view.NewProjector(reg, nil, nil)
	gen := &generationStub{startFn: func(context.Context, string) (string, bool) { return "job-1", true }}
	return &fixture{
		registry:  reg,
		projector: proj,
		handler:   NewHandler(proj, reg, gen),
		gen:       gen,
	}
}

func (f *fixture) create(t *testing.T, title string) ViewResponse {
	t.Helper()
	out, err := f.handler.Handle(context.Background(), "create_session", mustJSON(t, CreateSessionParams{Title: title}))
	require.NoError(t, err)
	return out.(ViewResponse)
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	require.Equal(t, code, apiErr.Code)
}

func TestHandler_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := f.create(t, "A")
	require.Equal(t, "A", a.Title)
	require.NotEmpty(t, a.SessionID)
	require.NotNil(t, a.Messages)
	b := f.create(t, "B")

	out, err := f.handler.Handle(ctx, "list_sessions", nil)
	require.NoError(t, err)
	list := out.(ListSessionsResponse)
	require.Equal(t, b.SessionID, list.CurrentSessionID)
	require.Len(t, list.Sessions, 2)

	out, err = f.handler.Handle(ctx, "switch_session", mustJSON(t, SessionIDParams{SessionID: a.SessionID}))
	require.NoError(t, err)
	require.Equal(t, a.SessionID, out.(ViewResponse).SessionID)

	out, err = f.handler.Handle(ctx, "delete_session", mustJSON(t, SessionIDParams{SessionID: b.SessionID}))
	require.NoError(t, err)
	require.True(t, out.(DeleteSessionResponse).Deleted)

	_, err = f.handler.Handle(ctx, "delete_session", mustJSON(t, SessionIDParams{SessionID: b.SessionID}))
	requireCode(t, err, "SESSION_NOT_FOUND")

	_, err = f.handler.Handle(ctx, "switch_session", mustJSON(t, SessionIDParams{SessionID: b.SessionID}))
	requireCode(t, err, "SESSION_NOT_FOUND")
}

func TestHandler_SwitchBlocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "A")
	f.create(t, "B")

	require.True(t, f.registry.Lock())
	defer f.registry.Unlock()

	_, err := f.handler.Handle(ctx, "switch_session", mustJSON(t, SessionIDParams{SessionID: a.SessionID}))
	requireCode(t, err, "SWITCH_BLOCKED")
}

func TestHandler_SendMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "A")

	out, err := f.handler.Handle(ctx, "send_message", mustJSON(t, SendMessageParams{SessionID: a.SessionID, Text: "hi"}))
	require.NoError(t, err)
	resp := out.(SendMessageResponse)
	require.Equal(t, "job-1", resp.JobID)
	require.Equal(t, []string{a.SessionID}, f.gen.calls)

	unit, _ := f.registry.Get(a.SessionID)
	require.Len(t, unit.Chat.Messages, 1)
	require.Equal(t, "hi", unit.Chat.Messages[0].Text)
	require.Equal(t, session.RoleUser, unit.Chat.Messages[0].Role)

	_, err = f.handler.Handle(ctx, "send_message", mustJSON(t, SendMessageParams{SessionID: a.SessionID}))
	requireCode(t, err, "INVALID_PARAMS")
}

func TestHandler_SendMessageGenerationRefused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gen.startFn = func(context.Context, string) (string, bool) { return "", false }
	a := f.create(t, "A")

	_, err := f.handler.Handle(ctx, "send_message", mustJSON(t, SendMessageParams{SessionID: a.SessionID, Text: "hi"}))
	requireCode(t, err, "GENERATION_REFUSED")
}

func TestHandler_MutationsRequireCurrentSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "A")
	f.create(t, "B")

	_, err := f.handler.Handle(ctx, "send_message", mustJSON(t, SendMessageParams{SessionID: a.SessionID, Text: "for A"}))
	requireCode(t, err, "SESSION_NOT_CURRENT")

	_, err = f.handler.Handle(ctx, "set_title", mustJSON(t, SetTitleParams{SessionID: a.SessionID, Title: "x"}))
	requireCode(t, err, "SESSION_NOT_CURRENT")

	_, err = f.handler.Handle(ctx, "update_workspace", mustJSON(t, UpdateWorkspaceParams{SessionID: "missing"}))
	requireCode(t, err, "SESSION_NOT_FOUND")

	_, err = f.handler.Handle(ctx, "set_title", mustJSON(t, SetTitleParams{Title: "x"}))
	requireCode(t, err, "INVALID_PARAMS")

	unit, _ := f.registry.Get(a.SessionID)
	require.Empty(t, unit.Chat.Messages)
	require.Equal(t, "A", unit.Meta.Title)
	require.Empty(t, f.gen.calls)
}

func TestHandler_UpdateWorkspaceAndTitle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "A")

	summary := "short"
	out, err := f.handler.Handle(ctx, "update_workspace", mustJSON(t, UpdateWorkspaceParams{
		SessionID: a.SessionID,
		Items:     map[string]string{"tone": "dry", "audience": "ops"},
		Settings:  map[string]string{"temperature": "0"},
		Summary:   &summary,
		Inputs:    []string{"doc-1"},
	}))
	require.NoError(t, err)
	resp := out.(ViewResponse)
	require.Equal(t, "short", resp.Workspace.Summary)
	require.Equal(t, "dry", resp.Workspace.Items["tone"])

	unit, _ := f.registry.Get(a.SessionID)
	require.Equal(t, "short", unit.Workspace.Summary)
	require.Equal(t, map[string]string{"tone": "dry", "audience": "ops"}, unit.Workspace.Items)
	require.Equal(t, []string{"doc-1"}, unit.Workspace.Inputs)

	out, err = f.handler.Handle(ctx, "set_title", mustJSON(t, SetTitleParams{SessionID: a.SessionID, Title: "Ops"}))
	require.NoError(t, err)
	require.Equal(t, "Ops", out.(SetTitleResponse).Title)
}

func TestHandler_GetView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.handler.Handle(ctx, "get_view", nil)
	requireCode(t, err, "NO_CURRENT_SESSION")

	a := f.create(t, "A")
	b := f.create(t, "B")

	out, err := f.handler.Handle(ctx, "get_view", mustJSON(t, GetViewParams{ExpectedSessionID: b.SessionID}))
	require.NoError(t, err)
	require.Equal(t, b.SessionID, out.(ViewResponse).SessionID)

	_, err = f.handler.Handle(ctx, "get_view", mustJSON(t, GetViewParams{ExpectedSessionID: a.SessionID}))
	requireCode(t, err, "STALE_VIEW")
}

func TestHandler_UnknownMethodAndBadParams(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.handler.Handle(ctx, "nope", nil)
	require.Error(t, err)

	_, err = f.handler.Handle(ctx, "switch_session", json.RawMessage(`{"session_id": 5}`))
	requireCode(t, err, "INVALID_PARAMS")
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
