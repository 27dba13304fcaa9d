package session_test

import (
	"context"
	"testing"

	"github.com/rpggio/deskset/internal/domain/session"
	"github.com/stretchr/testify/require"
)

func TestGuard_GoesStaleOnSwitch(t *testing.T) {
	ctx := context.Background()
	reg := session.NewRegistry(newMemStore(), nil)
	reg.CreateUnit(ctx, "a", "", "")
	reg.CreateUnit(ctx, "b", "", "")
	reg.SwitchSession(ctx, "a")

	guard := reg.Guard("a")
	require.Equal(t, "a", guard.SessionID())
	require.True(t, guard.IsActive())
	require.True(t, guard.CanUpdateChat())
	require.True(t, guard.CanUpdateWorkspace())

	reg.SwitchSession(ctx, "b")
	require.False(t, guard.IsActive(), "guard must re-read the current pointer")
	require.False(t, guard.CanUpdateChat())
	require.False(t, guard.CanUpdateWorkspace())

	reg.SwitchSession(ctx, "a")
	require.True(t, guard.IsActive())
}

func TestGuard_InactiveAfterDelete(t *testing.T) {
	ctx := context.Background()
	reg := session.NewRegistry(newMemStore(), nil)
	reg.CreateUnit(ctx, "a", "", "")
	reg.SwitchSession(ctx, "a")

	guard := reg.Guard("a")
	reg.DeleteUnit(ctx, "a")
	require.False(t, guard.IsActive())
}

func TestGuard_EmptyAndNil(t *testing.T) {
	reg := session.NewRegistry(newMemStore(), nil)

	require.False(t, reg.Guard("").IsActive(), "an empty id never matches an empty current pointer")

	var guard *session.Guard
	require.False(t, guard.IsActive())
	require.Equal(t, "", guard.SessionID())
}

func TestGuard_StaleCallbackCannotWrite(t *testing.T) {
	ctx := context.Background()
	reg := session.NewRegistry(newMemStore(), nil)
	reg.CreateUnit(ctx, "a", "", "")
	reg.CreateUnit(ctx, "b", "", "")
	reg.SwitchSession(ctx, "a")

	guard := reg.Guard("a")
	pending := func() bool {
		if !guard.CanUpdateWorkspace() {
			return false
		}
		return reg.UpdateWorkspace(ctx, guard.SessionID(), func(session.Workspace) session.WorkspacePatch {
			return session.WorkspacePatch{Summary: session.Ptr("late")}
		})
	}

	reg.SwitchSession(ctx, "b")
	require.False(t, pending())

	a, _ := reg.Get("a")
	b, _ := reg.Get("b")
	require.Empty(t, a.Workspace.Summary)
	require.Empty(t, b.Workspace.Summary)
}
