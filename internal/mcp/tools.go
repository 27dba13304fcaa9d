package mcp

// ToolDefinition describes one MCP tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func sessionIDProperty(desc string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": desc,
	}
}

// buildToolCatalog returns all available MCP tools
func buildToolCatalog() []ToolDefinition {
	return []ToolDefinition{
		// Sessions
		{
			Name:        "create_session",
			Description: "Create a new session and make it current",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bound_prompt": map[string]any{
						"type":        "string",
						"description": "System prompt bound to the session for its lifetime",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "Display title (defaults to \"New session\")",
					},
				},
			},
		},
		{
			Name:        "switch_session",
			Description: "Make another session current and return its view",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_id": sessionIDProperty("Session to switch to"),
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "delete_session",
			Description: "Delete a session; running responses for it are dropped",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_id": sessionIDProperty("Session to delete"),
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "list_sessions",
			Description: "List sessions, most recently modified first",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},

		// View
		{
			Name:        "get_view",
			Description: "Return the current session's view, recovering interrupted responses",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"expected_session_id": sessionIDProperty("Fail with STALE_VIEW unless this session is current"),
				},
			},
		},

		// Mutations on the current session
		{
			Name:        "send_message",
			Description: "Append a user message to the current session and start a response",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_id": sessionIDProperty("Session the message is for; must be current"),
					"text": map[string]any{
						"type":        "string",
						"description": "Message text",
					},
				},
				"required": []string{"session_id", "text"},
			},
		},
		{
			Name:        "update_workspace",
			Description: "Update workspace items, settings, summary, insights or inputs of the current session",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_id": sessionIDProperty("Session to update; must be current"),
					"items": map[string]any{
						"type":                 "object",
						"description":          "Configuration items to set",
						"additionalProperties": map[string]any{"type": "string"},
					},
					"settings": map[string]any{
						"type":                 "object",
						"description":          "Replacement derived settings",
						"additionalProperties": map[string]any{"type": "string"},
					},
					"summary": map[string]any{
						"type":        "string",
						"description": "Summary text",
					},
					"insights": map[string]any{
						"type":        "string",
						"description": "Insight text",
					},
					"inputs": map[string]any{
						"type":        "array",
						"description": "Input references to add",
						"items":       map[string]any{"type": "string"},
					},
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "set_title",
			Description: "Rename the current session",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_id": sessionIDProperty("Session to rename; must be current"),
					"title": map[string]any{
						"type":        "string",
						"description": "New title",
					},
				},
				"required": []string{"session_id", "title"},
			},
		},
	}
}
