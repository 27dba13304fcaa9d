package session_test

import (
	"testing"

	"github.com/rpggio/deskset/internal/domain/session"
	"github.com/stretchr/testify/require"
)

func TestMessage_StreamLifecycle(t *testing.T) {
	msg := session.Message{ID: "m1", Role: session.RoleAssistant, State: session.MessageIdle}

	require.False(t, msg.Append("early"), "idle messages take no chunks")
	require.True(t, msg.Begin("job-1"))
	require.True(t, msg.Streaming)
	require.Equal(t, "job-1", msg.JobID)
	require.False(t, msg.Begin("job-2"))

	require.True(t, msg.Append("Hel"))
	require.True(t, msg.Append("lo"))
	require.True(t, msg.Complete())
	require.Equal(t, "Hello", msg.Text)
	require.False(t, msg.Streaming)
	require.Equal(t, session.MessageCompleted, msg.State)

	require.False(t, msg.Append("more"))
	require.False(t, msg.Interrupt(), "completed is terminal")
	require.Equal(t, "Hello", msg.Text)
}

func TestMessage_Interrupt(t *testing.T) {
	msg := session.Message{Text: "Hello", Streaming: true, State: session.MessageStreaming}

	require.True(t, msg.Interrupt())
	require.False(t, msg.Streaming)
	require.Equal(t, session.MessageInterrupted, msg.State)
	require.Contains(t, msg.Text, "Hello")
	require.Contains(t, msg.Text, session.InterruptionMarker)

	require.False(t, msg.Interrupt())
	require.False(t, msg.Complete(), "interrupted is terminal")

	empty := session.Message{Streaming: true, State: session.MessageStreaming}
	require.True(t, empty.Interrupt())
	require.Equal(t, session.InterruptionMarker, empty.Text)
}

func TestChat_Lookup(t *testing.T) {
	chat := session.Chat{Messages: []session.Message{
		{ID: "m1", State: session.MessageCompleted},
		{ID: "m2", JobID: "job-1", Streaming: true, State: session.MessageStreaming},
	}}

	require.True(t, chat.HasStreaming())
	require.Equal(t, "m2", chat.MessageByJob("job-1").ID)
	require.Nil(t, chat.MessageByJob("job-2"))

	chat.MessageByID("m2").Complete()
	require.False(t, chat.HasStreaming(), "lookups return pointers into the chat")
}

func TestUnit_Clone(t *testing.T) {
	unit := &session.Unit{
		ID:        "a",
		Chat:      session.Chat{Messages: []session.Message{{ID: "m1"}}},
		Workspace: session.Workspace{Items: map[string]string{"k": "v"}, Inputs: []string{"in"}},
	}

	clone := unit.Clone()
	clone.Chat.Messages[0].Text = "changed"
	clone.Workspace.Items["k"] = "changed"
	clone.Workspace.Inputs[0] = "changed"

	require.Equal(t, "", unit.Chat.Messages[0].Text)
	require.Equal(t, "v", unit.Workspace.Items["k"])
	require.Equal(t, "in", unit.Workspace.Inputs[0])

	var nilUnit *session.Unit
	require.Nil(t, nilUnit.Clone())
}
