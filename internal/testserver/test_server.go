package testserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/deskset/internal/domain/session"
	"github.com/rpggio/deskset/internal/domain/view"
	"github.com/rpggio/deskset/internal/generation"
	"github.com/rpggio/deskset/internal/mcp"
	"github.com/rpggio/deskset/internal/metrics"
	"github.com/rpggio/deskset/internal/sqlite"
)

// TestServer runs the full stack behind a streamable HTTP MCP endpoint.
type TestServer struct {
	Server    *httptest.Server
	DB        *sqlite.DB
	Registry  *session.Registry
	Projector *view.Projector
	Pipeline  *generation.Pipeline
	Metrics   *metrics.Collector
	Generator *ScriptedGenerator
}

// New builds a server on an in-memory database. Responses come from gen.
func New(t *testing.T, gen *ScriptedGenerator) *TestServer {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	ctx, cancel := context.WithCancel(context.Background())

	ts := &TestServer{DB: db, Generator: gen}
	ts.Metrics = metrics.New(func() int { return ts.Pipeline.Running() })
	ts.Registry = session.NewRegistry(sqlite.NewKVStore(db), nil, session.WithObserver(ts.Metrics))
	ts.Pipeline = generation.NewPipeline(ctx, ts.Registry, gen, nil, generation.WithObserver(ts.Metrics))
	ts.Projector = view.NewProjector(ts.Registry, ts.Pipeline, nil, view.WithObserver(ts.Metrics))

	server := mcp.NewServer(mcp.Config{
		Views:       ts.Projector,
		Catalog:     ts.Registry,
		Generations: ts.Pipeline,
		Metrics:     ts.Metrics,
	})
	handler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return server },
		nil,
	)

	router := http.NewServeMux()
	router.Handle("/mcp", handler)
	router.Handle("/metrics", ts.Metrics.Handler())
	ts.Server = httptest.NewServer(router)

	t.Cleanup(func() {
		ts.Server.Close()
		gen.Release()
		cancel()
		_ = ts.Pipeline.Wait()
		_ = db.Close()
	})

	return ts
}

// Connect opens an MCP client session against the server.
func (ts *TestServer) Connect(t *testing.T) *sdkmcp.ClientSession {
	t.Helper()
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "deskset-test", Version: "0.0.1"}, nil)
	cs, err := client.Connect(context.Background(), &sdkmcp.StreamableClientTransport{
		Endpoint: ts.Server.URL + "/mcp",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

// ScriptedGenerator replays fixed chunks once released.
type ScriptedGenerator struct {
	chunks   []string
	released chan struct{}
}

// NewScriptedGenerator creates a generator whose streams block until Release.
func NewScriptedGenerator(chunks ...string) *ScriptedGenerator {
	return &ScriptedGenerator{chunks: chunks, released: make(chan struct{})}
}

// Release lets every stream, current and future, run to completion.
func (g *ScriptedGenerator) Release() {
	select {
	case <-g.released:
	default:
		close(g.released)
	}
}

// Open implements generation.Generator.
func (g *ScriptedGenerator) Open(ctx context.Context, _ generation.Request) (generation.Stream, error) {
	return &scriptedStream{ctx: ctx, chunks: slices.Clone(g.chunks), released: g.released}, nil
}

type scriptedStream struct {
	ctx      context.Context
	chunks   []string
	released chan struct{}
}

func (s *scriptedStream) Recv() (string, error) {
	select {
	case <-s.released:
	case <-s.ctx.Done():
		return "", s.ctx.Err()
	}
	if len(s.chunks) == 0 {
		return "", io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func (s *scriptedStream) Close() error { return nil }
