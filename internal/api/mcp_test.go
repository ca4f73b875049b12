package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ibrakm/morocco-trend-automator/internal/composer"
	"github.com/ibrakm/morocco-trend-automator/internal/health"
	"github.com/ibrakm/morocco-trend-automator/internal/provider"
	"github.com/ibrakm/morocco-trend-automator/internal/storage"
)

type mockMCPResearcher struct {
	result *provider.ResearchResult
	err    error
}

func (m *mockMCPResearcher) Research(_ context.Context, topic string) (*provider.ResearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	res := *m.result
	res.Topic = topic
	return &res, nil
}

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store: store,
		Research: &mockMCPResearcher{result: &provider.ResearchResult{
			Provider:   "gemini",
			Headline:   "Argan exports surge",
			PostText:   "Morocco's argan cooperatives doubled exports this season.",
			Hook:       "A quiet record in the Souss valley.",
			Hashtags:   []string{"Morocco"},
			ImageTheme: "business",
		}},
		Composer: composer.New(0),
		Health:   health.NewTracker(),
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_ResearchTopic(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpResearchTopic(deps)

	result, err := handler(context.Background(), makeCallToolRequest("research_topic", map[string]interface{}{
		"topic": "argan oil exports",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var draft struct {
		Provider string `json:"provider"`
		PostText string `json:"post_text"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &draft); err != nil {
		t.Fatalf("parsing draft JSON: %v", err)
	}
	if draft.Provider != "gemini" {
		t.Errorf("provider = %q, want gemini", draft.Provider)
	}
	if draft.PostText == "" {
		t.Error("post_text should carry the rendered post")
	}
}

func TestMCPTool_ResearchTopic_MissingTopic(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpResearchTopic(deps)

	result, err := handler(context.Background(), makeCallToolRequest("research_topic", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a tool error for a missing topic")
	}
}

func TestMCPTool_ResearchTopic_ChainFailure(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Research = &mockMCPResearcher{err: errors.New("all 3 research tiers failed")}
	handler := mcpResearchTopic(deps)

	result, err := handler(context.Background(), makeCallToolRequest("research_topic", map[string]interface{}{
		"topic": "anything",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a tool error when the chain fails")
	}
}

func TestMCPTool_ListPosts(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	for _, topic := range []string{"first", "second"} {
		if _, err := store.SavePost(storage.Post{Topic: topic, Provider: "openai", PostURN: "urn:" + topic}); err != nil {
			t.Fatalf("saving post: %v", err)
		}
	}
	handler := mcpListPosts(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_posts", map[string]interface{}{
		"limit": 10,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var posts []postSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &posts); err != nil {
		t.Fatalf("parsing posts JSON: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(posts))
	}
}

func TestMCPTool_ListPosts_Empty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpListPosts(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_posts", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("empty listing = %q, want []", got)
	}
}

func TestMCPResource_Health(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpResourceHealth(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("trendbot://health"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var status struct {
		Healthy bool `json:"healthy"`
	}
	if err := json.Unmarshal([]byte(text.Text), &status); err != nil {
		t.Fatalf("parsing health JSON: %v", err)
	}
	if !status.Healthy {
		t.Error("fresh tracker should report healthy")
	}
}

func TestMCPResource_RecentPosts(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	if _, err := store.SavePost(storage.Post{Topic: "argan", Provider: "gemini", PostURN: "urn:li:share:9"}); err != nil {
		t.Fatalf("saving post: %v", err)
	}
	handler := mcpResourceRecentPosts(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("trendbot://posts/recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var posts []postSummary
	if err := json.Unmarshal([]byte(text.Text), &posts); err != nil {
		t.Fatalf("parsing posts JSON: %v", err)
	}
	if len(posts) != 1 || posts[0].PostURN != "urn:li:share:9" {
		t.Errorf("posts = %+v, want the saved post", posts)
	}
}
