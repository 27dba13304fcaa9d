package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `deskset keeps several chat sessions side by side. Exactly one session is current at a time.

Core concepts:
- Session: a conversation plus its workspace (items, settings, summary, insights, inputs).
- Current session: the one shown to the user. Only it accepts edits.
- Response job: generation started by send_message. It keeps running when you switch away and writes only to its own session.

Rules of engagement:
1) Orient: call list_sessions, then get_view for the current session.
2) Every result carries session_id. Before showing a result, check it still names the current session; drop it otherwise.
3) Pass session_id on every mutation. A mismatch fails with SESSION_NOT_CURRENT and nothing is written.
4) switch_session may fail with SWITCH_BLOCKED while another switch runs; retry.
5) A response cut off by a restart shows "(response was interrupted)" after get_view or switch_session.

Docs:
- deskset://docs/concepts
- deskset://docs/rendering
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "deskset://docs/concepts",
		Name:        "docs_concepts",
		Title:       "deskset concepts",
		Description: "Sessions, the current pointer, background responses and their guarantees.",
		Content: `# deskset concepts

## Sessions

A session owns a chat and a workspace. Sessions are created with ` + "`create_session`" + `,
which also makes the new session current. Deleted session ids are never reused.

## The current session

At most one session is current. ` + "`switch_session`" + ` moves the pointer; it never stops
running responses. Edits (` + "`send_message`" + `, ` + "`update_workspace`" + `, ` + "`set_title`" + `) name the
session they are for and are refused unless it is current.

## Background responses

A response job writes only to the session that started it, whichever session is
current. Deleting the session drops the rest of the job's output.

## Interrupted responses

If the server stops while a response is streaming, the message is finalized the next
time its session is loaded. Partial text is kept and ` + "`(response was interrupted)`" + ` is
appended.
`,
	},
	{
		URI:         "deskset://docs/rendering",
		Name:        "docs_rendering",
		Title:       "Rendering safely",
		Description: "How clients avoid showing one session's data in another session.",
		Content: `# Rendering safely

Results can arrive after the user has moved on. Every view carries ` + "`session_id`" + `.

Before rendering:

1. Compare the result's ` + "`session_id`" + ` with the session you are displaying.
2. If they differ, drop the result and show a loading state.
3. ` + "`get_view`" + ` with ` + "`expected_session_id`" + ` performs this check server-side and fails with
   ` + "`STALE_VIEW`" + ` when the ids differ.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
