package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/promptd/promptd/internal/profile"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Enhancer Enhancer
	Profiles ProfileManager
	Runs     EnhancementLister
}

// NewMCPServer creates an MCP server exposing the enhancement pipeline as
// tools and the user profile as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"promptd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("promptd — local prompt enhancement service with per-user personalization."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("enhance_prompt",
			mcp.WithDescription("Rewrite a rough prompt into a clear, effective one and return it with a quality analysis."),
			mcp.WithString("input", mcp.Description("The prompt to enhance"), mcp.Required()),
		),
		mcpEnhancePrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("enhance_prompt_multi",
			mcp.WithDescription("Rewrite a rough prompt in three styles (professional, creative, technical), each with a quality score."),
			mcp.WithString("input", mcp.Description("The prompt to enhance"), mcp.Required()),
			mcp.WithString("user", mcp.Description("User identifier for personalization (default: default)")),
		),
		mcpEnhancePromptMulti(deps),
	)

	s.AddTool(
		mcp.NewTool("set_preference",
			mcp.WithDescription("Update a user profile preference (complexity, tone, or responseLength)."),
			mcp.WithString("user", mcp.Description("User identifier"), mcp.Required()),
			mcp.WithString("key", mcp.Description("Preference key: complexity | tone | responseLength"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to set"), mcp.Required()),
		),
		mcpSetPreference(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"user://profile/default",
			"User Profile",
			mcp.WithResourceDescription("Profile of the default user as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"promptd://interactions/recent",
			"Recent Enhancements",
			mcp.WithResourceDescription("Last 10 enhancement runs (inputs truncated)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpEnhancePrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := req.RequireString("input")
		if err != nil {
			return mcpError("input is required"), nil
		}

		res, err := deps.Enhancer.EnhanceSingle(ctx, input)
		if err != nil {
			return mcpError(fmt.Sprintf("enhancement failed: %v", err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpEnhancePromptMulti(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := req.RequireString("input")
		if err != nil {
			return mcpError("input is required"), nil
		}
		user := req.GetString("user", defaultUserID)

		res, err := deps.Enhancer.EnhanceMulti(ctx, user, input)
		if err != nil {
			return mcpError(fmt.Sprintf("enhancement failed: %v", err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetPreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := req.RequireString("user")
		if err != nil {
			return mcpError("user is required"), nil
		}
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		var upd profile.PreferenceUpdate
		switch key {
		case "complexity":
			upd.Complexity = &value
		case "tone":
			upd.Tone = &value
		case "responseLength":
			upd.ResponseLength = &value
		default:
			return mcpError(fmt.Sprintf("unknown preference key %q", key)), nil
		}

		if _, err := deps.Profiles.SetPreferences(user, upd); err != nil {
			return mcpError(fmt.Sprintf("failed to set preference: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s for user %s", key, value, user)), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p := deps.Profiles.Get(defaultUserID)

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		recs, err := deps.Runs.RecentEnhancements(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list enhancements: %w", err)
		}

		type runSummary struct {
			ID        string `json:"id"`
			UserID    string `json:"userId"`
			Input     string `json:"input"`
			BestStyle string `json:"bestStyle"`
			AvgScore  int    `json:"avgScore"`
			CreatedAt string `json:"createdAt"`
		}

		summaries := make([]runSummary, len(recs))
		for i, rec := range recs {
			input := rec.Input
			if utf8.RuneCountInString(input) > 200 {
				runes := []rune(input)
				input = string(runes[:200]) + "..."
			}
			summaries[i] = runSummary{
				ID:        rec.ID,
				UserID:    rec.UserID,
				Input:     input,
				BestStyle: rec.BestStyle,
				AvgScore:  rec.AvgScore,
				CreatedAt: rec.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal enhancements: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
