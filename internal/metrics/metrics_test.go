package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rpggio/deskset/internal/domain/session"
	"github.com/rpggio/deskset/internal/metrics"
	"github.com/rpggio/deskset/internal/sqlite"
	"github.com/stretchr/testify/require"
)

func TestCollector_CountsRegistryOutcomes(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	defer db.Close()

	c := metrics.New(nil)
	reg := session.NewRegistry(sqlite.NewKVStore(db), nil, session.WithObserver(c))

	require.NotNil(t, reg.CreateUnit(ctx, "a", "", ""))
	require.NotNil(t, reg.CreateUnit(ctx, "b", "", ""))
	require.NotNil(t, reg.SwitchSession(ctx, "a"))
	require.False(t, reg.UpdateChat(ctx, "b", func(session.Chat) session.ChatPatch { return session.ChatPatch{} }))
	require.True(t, reg.Lock())
	require.Nil(t, reg.SwitchSession(ctx, "b"))
	reg.Unlock()

	ops := c.SessionOps()
	require.Equal(t, 2.0, testutil.ToFloat64(ops.WithLabelValues("create", string(session.OutcomeApplied))))
	require.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("update_chat", string(session.OutcomeOwnershipViolation))))
	require.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("switch", string(session.OutcomeSwitchBlocked))))
}

func TestCollector_ToolCallsAndHandler(t *testing.T) {
	running := 3
	c := metrics.New(func() int { return running })
	c.RecordToolCall("get_view", false, 10*time.Millisecond)
	c.RecordToolCall("get_view", true, 20*time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(c.ToolCalls().WithLabelValues("get_view", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.ToolCalls().WithLabelValues("get_view", "error")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `deskset_mcp_tool_calls_total{status="error",tool="get_view"} 1`)
	require.Contains(t, string(body), "deskset_generation_jobs_running 3")
}
