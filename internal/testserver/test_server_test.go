package testserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/deskset/internal/domain/session"
	"github.com/rpggio/deskset/internal/mcp"
)

func call(t *testing.T, cs *sdkmcp.ClientSession, name string, args map[string]any, out any) bool {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	if out != nil {
		require.NoError(t, json.Unmarshal([]byte(text.Text), out))
	}
	return !res.IsError
}

func TestResponseFinishesInOriginSessionAfterSwitch(t *testing.T) {
	gen := NewScriptedGenerator("Hello", " world")
	ts := New(t, gen)
	cs := ts.Connect(t)

	var a, b mcp.ViewResponse
	require.True(t, call(t, cs, "create_session", map[string]any{"title": "A"}, &a))

	var sent mcp.SendMessageResponse
	require.True(t, call(t, cs, "send_message", map[string]any{"session_id": a.SessionID, "text": "greet me"}, &sent))
	require.NotEmpty(t, sent.JobID)

	// The user opens B while A's response is still pending.
	require.True(t, call(t, cs, "create_session", map[string]any{"title": "B"}, &b))
	require.True(t, ts.Pipeline.Active(sent.JobID))
	gen.Release()

	require.Eventually(t, func() bool { return !ts.Pipeline.Active(sent.JobID) }, 5*time.Second, 10*time.Millisecond)

	var shown mcp.ViewResponse
	require.True(t, call(t, cs, "get_view", nil, &shown))
	require.Equal(t, b.SessionID, shown.SessionID)
	require.Empty(t, shown.Messages)

	require.True(t, call(t, cs, "switch_session", map[string]any{"session_id": a.SessionID}, &shown))
	require.Len(t, shown.Messages, 2)
	require.Equal(t, "greet me", shown.Messages[0].Text)
	require.Equal(t, "Hello world", shown.Messages[1].Text)
	require.Equal(t, string(session.MessageCompleted), shown.Messages[1].State)
	require.False(t, shown.Loading)
}

func TestStaleResultIsRefused(t *testing.T) {
	ts := New(t, NewScriptedGenerator())
	cs := ts.Connect(t)

	var a, b mcp.ViewResponse
	require.True(t, call(t, cs, "create_session", map[string]any{"title": "A"}, &a))
	require.True(t, call(t, cs, "create_session", map[string]any{"title": "B"}, &b))

	var apiErr mcp.APIError
	require.False(t, call(t, cs, "get_view", map[string]any{"expected_session_id": a.SessionID}, &apiErr))
	require.Equal(t, "STALE_VIEW", apiErr.Code)

	require.False(t, call(t, cs, "update_workspace", map[string]any{
		"session_id": a.SessionID,
		"summary":    "meant for A",
	}, &apiErr))
	require.Equal(t, "SESSION_NOT_CURRENT", apiErr.Code)

	unitA, _ := ts.Registry.Get(a.SessionID)
	require.Empty(t, unitA.Workspace.Summary)
	unitB, _ := ts.Registry.Get(b.SessionID)
	require.Empty(t, unitB.Workspace.Summary)
}

func TestOrphanedResponseRecoveredOnView(t *testing.T) {
	ts := New(t, NewScriptedGenerator())
	cs := ts.Connect(t)

	var a mcp.ViewResponse
	require.True(t, call(t, cs, "create_session", map[string]any{"title": "A"}, &a))

	// Simulate a response left mid-stream by a previous process.
	require.True(t, ts.Registry.BackgroundUpdate(context.Background(), a.SessionID, func(u *session.Unit) {
		msg := session.Message{ID: "m1", Role: session.RoleAssistant, Text: "Hello"}
		msg.Begin("job-from-last-run")
		u.Chat.Messages = append(u.Chat.Messages, msg)
		u.Chat.Streaming = true
		u.Chat.PendingJobID = "job-from-last-run"
		u.Meta.Loading = true
	}))

	var shown mcp.ViewResponse
	require.True(t, call(t, cs, "get_view", nil, &shown))
	require.Len(t, shown.Messages, 1)
	require.Equal(t, "Hello\n\n"+session.InterruptionMarker, shown.Messages[0].Text)
	require.False(t, shown.Messages[0].Streaming)
	require.False(t, shown.Streaming)
	require.False(t, shown.Loading)

	resp, err := http.Get(ts.Server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `deskset_session_operations_total{op="recover",outcome="orphan_recovered"} 1`)
}
