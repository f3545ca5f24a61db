package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/vono/internal/item"
	"github.com/kalambet/vono/internal/recovery"
	"github.com/kalambet/vono/internal/sanitize"
	"github.com/kalambet/vono/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Failures *recovery.Store
	Pipeline Runner
}

// itemSummary is a voice item without its transcript and audio, compact
// enough for a model context window.
type itemSummary struct {
	ID        string      `json:"id"`
	CreatedAt string      `json:"created_at"`
	Title     string      `json:"title"`
	Intent    item.Intent `json:"intent"`
	Tags      []string    `json:"tags"`
	Summary   string      `json:"summary"`
}

func summarizeItems(items []item.VoiceItem) []itemSummary {
	summaries := make([]itemSummary, len(items))
	for i, v := range items {
		summaries[i] = itemSummary{
			ID:        v.ID,
			CreatedAt: v.CreatedAt.Format(time.RFC3339),
			Title:     v.Title,
			Intent:    v.Intent,
			Tags:      v.Tags,
			Summary:   v.Summary,
		}
	}
	return summaries
}

// NewMCPServer creates an MCP server with all vono tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"vono",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vono — local voice-note daemon turning recordings into structured, searchable items."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_items",
			mcp.WithDescription("List processed voice items, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListItems(deps),
	)

	s.AddTool(
		mcp.NewTool("search_items",
			mcp.WithDescription("Search voice items by title, transcript, summary or tags."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpSearchItems(deps),
	)

	s.AddTool(
		mcp.NewTool("get_item",
			mcp.WithDescription("Fetch one voice item including its full transcript and structured data."),
			mcp.WithString("id", mcp.Description("Item ID"), mcp.Required()),
		),
		mcpGetItem(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_item",
			mcp.WithDescription("Delete a voice item."),
			mcp.WithString("id", mcp.Description("Item ID"), mcp.Required()),
		),
		mcpDeleteItem(deps),
	)

	s.AddTool(
		mcp.NewTool("list_failed",
			mcp.WithDescription("List recordings whose processing failed and are queued for retry."),
		),
		mcpListFailed(deps),
	)

	s.AddTool(
		mcp.NewTool("retry_failed",
			mcp.WithDescription("Reprocess a failed recording from the queue."),
			mcp.WithString("id", mcp.Description("Failed recording ID"), mcp.Required()),
		),
		mcpRetryFailed(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"vono://items/recent",
			"Recent Voice Items",
			mcp.WithResourceDescription("Last 10 processed voice items (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentItems(deps),
	)

	return s
}

func mcpListItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		items, err := deps.Store.ListItems(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list items: %v", err)), nil
		}

		b, err := json.Marshal(summarizeItems(items))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal items: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpSearchItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		items, err := deps.Store.SearchItems(query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		b, err := json.Marshal(summarizeItems(items))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal items: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpGetItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		v, err := deps.Store.GetItem(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("item not found: %s", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get item: %v", err)), nil
		}

		// Audio payloads do not belong in a model context.
		v.AudioData = ""

		b, err := json.Marshal(v)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal item: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpDeleteItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		deleted, err := deps.Store.DeleteItem(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to delete item: %v", err)), nil
		}
		if !deleted {
			return mcpError(fmt.Sprintf("item not found: %s", id)), nil
		}

		return mcpText(fmt.Sprintf("Deleted item %s", id)), nil
	}
}

func mcpListFailed(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		recs, err := deps.Failures.List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read queue: %v", err)), nil
		}

		summaries := make([]FailedSummary, len(recs))
		for i, rec := range recs {
			summaries[i] = summarizeFailed(rec)
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal queue: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpRetryFailed(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		rec, err := deps.Failures.GetByID(id)
		if errors.Is(err, recovery.ErrNotFound) {
			return mcpError(fmt.Sprintf("failed recording not found: %s", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read queue: %v", err)), nil
		}

		v, err := deps.Pipeline.Replay(ctx, rec)
		if err != nil {
			return mcpError(fmt.Sprintf("retry failed: %s", sanitize.Error(err))), nil
		}

		if err := deps.Store.SaveItem(v); err != nil {
			return mcpError(fmt.Sprintf("reprocessed but failed to save item: %v", err)), nil
		}
		if _, err := deps.Failures.Delete(id); err != nil {
			return mcpError(fmt.Sprintf("item %s saved but queue entry could not be removed: %v", v.ID, err)), nil
		}

		v.AudioData = ""
		b, err := json.Marshal(v)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal item: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentItems(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		items, err := deps.Store.ListItems(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list items: %w", err)
		}

		b, err := json.Marshal(summarizeItems(items))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal items: %w", err)
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
