package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ibrakm/morocco-trend-automator/internal/composer"
	"github.com/ibrakm/morocco-trend-automator/internal/health"
	"github.com/ibrakm/morocco-trend-automator/internal/provider"
	"github.com/ibrakm/morocco-trend-automator/internal/storage"
)

// MCPResearcher runs the tiered research chain for the MCP layer.
type MCPResearcher interface {
	Research(ctx context.Context, topic string) (*provider.ResearchResult, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Research MCPResearcher
	Composer *composer.Composer
	Health   *health.Tracker
}

// NewMCPServer creates an MCP server exposing research and post history to
// MCP clients. Tools never touch chat sessions and never publish.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"trendbot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("trendbot — researches trending topics and drafts LinkedIn posts with branded image cards."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("research_topic",
			mcp.WithDescription("Research a topic through the provider fallback chain and return a composed LinkedIn draft. Read-only: no session is created and nothing is published."),
			mcp.WithString("topic", mcp.Description("Topic to research"), mcp.Required()),
		),
		mcpResearchTopic(deps),
	)

	s.AddTool(
		mcp.NewTool("list_posts",
			mcp.WithDescription("List recently published LinkedIn posts, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of posts (default 10)")),
		),
		mcpListPosts(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"trendbot://health",
			"Bot Health",
			mcp.WithResourceDescription("Current health counters as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHealth(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"trendbot://posts/recent",
			"Recent Posts",
			mcp.WithResourceDescription("Last 10 published posts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentPosts(deps),
	)

	return s
}

func mcpResearchTopic(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topic, err := req.RequireString("topic")
		if err != nil {
			return mcpError("topic is required"), nil
		}

		res, err := deps.Research.Research(ctx, topic)
		if err != nil {
			return mcpError(fmt.Sprintf("research failed: %v", err)), nil
		}

		draft, err := deps.Composer.Compose(res)
		if err != nil {
			return mcpError(fmt.Sprintf("composing draft failed: %v", err)), nil
		}

		type draftResult struct {
			Provider   string   `json:"provider"`
			Headline   string   `json:"headline,omitempty"`
			PostText   string   `json:"post_text"`
			Hashtags   []string `json:"hashtags,omitempty"`
			ImageTheme string   `json:"image_theme,omitempty"`
		}
		b, err := json.Marshal(draftResult{
			Provider:   res.Provider,
			Headline:   res.Headline,
			PostText:   composer.FormatPost(draft),
			Hashtags:   draft.Hashtags,
			ImageTheme: draft.ImageTheme,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal draft: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpListPosts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		posts, err := deps.Store.ListPosts(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list posts: %v", err)), nil
		}
		if len(posts) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(postSummaries(posts))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal posts: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpResourceHealth(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Health.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health snapshot: %w", err)
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

func mcpResourceRecentPosts(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		posts, err := deps.Store.ListPosts(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list posts: %w", err)
		}

		b, err := json.Marshal(postSummaries(posts))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal posts: %w", err)
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

// postSummary is the wire view of a published post.
type postSummary struct {
	ID          string `json:"id"`
	Topic       string `json:"topic"`
	Provider    string `json:"provider"`
	PostURN     string `json:"post_urn"`
	PublishedAt string `json:"published_at"`
}

func postSummaries(posts []storage.Post) []postSummary {
	out := make([]postSummary, len(posts))
	for i, p := range posts {
		out[i] = postSummary{
			ID:          p.ID,
			Topic:       p.Topic,
			Provider:    p.Provider,
			PostURN:     p.PostURN,
			PublishedAt: p.PublishedAt.Format(time.RFC3339),
		}
	}
	return out
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
