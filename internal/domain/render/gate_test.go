package render_test

import (
	"testing"

	"github.com/rpggio/deskset/internal/domain/render"
	"github.com/stretchr/testify/require"
)

func TestValidateBeforeRender(t *testing.T) {
	tests := []struct {
		name   string
		target string
		data   string
		valid  bool
	}{
		{name: "mismatch", target: "A", data: "B", valid: false},
		{name: "match", target: "A", data: "A", valid: true},
		{name: "both unset", target: "", data: "", valid: true},
		{name: "data unset", target: "A", data: "", valid: false},
		{name: "target unset", target: "", data: "A", valid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := render.ValidateBeforeRender(tc.target, tc.data)
			require.Equal(t, tc.valid, result.IsValid)
			if tc.valid {
				require.Empty(t, result.Reason)
			} else {
				require.NotEmpty(t, result.Reason)
			}
		})
	}
}

func TestGate(t *testing.T) {
	show := func() string { return "data" }
	fallback := func() string { return "fallback" }

	require.Equal(t, "data", render.Gate("A", "A", show, fallback))
	require.Equal(t, "fallback", render.Gate("A", "B", show, fallback))
}

type scoped struct {
	id   string
	text string
}

func (s scoped) OwnerSessionID() string { return s.id }

func TestGateScoped(t *testing.T) {
	show := func(s scoped) string { return s.text }
	fallback := func(r render.Result) string { return "blocked: " + r.Reason }

	require.Equal(t, "hello", render.GateScoped("A", scoped{id: "A", text: "hello"}, show, fallback))
	require.Contains(t, render.GateScoped("B", scoped{id: "A", text: "hello"}, show, fallback), "blocked")
}
