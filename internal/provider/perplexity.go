package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultPerplexityBaseURL = "https://api.perplexity.ai"

// Perplexity is the tier-3 research client. It shares the chat completions
// wire format with OpenAI but adds live web search, which also makes it the
// trend scanner.
type Perplexity struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	gate       quotaGate
}

// NewPerplexity creates a Perplexity client. timeout bounds each call.
func NewPerplexity(apiKey, model string, timeout time.Duration) *Perplexity {
	return &Perplexity{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultPerplexityBaseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// NewPerplexityWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewPerplexityWithBaseURL(apiKey, model string, timeout time.Duration, baseURL string) *Perplexity {
	p := NewPerplexity(apiKey, model, timeout)
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Perplexity) Name() string { return "perplexity" }

func (p *Perplexity) ResearchAndDraft(ctx context.Context, topic string) (*ResearchResult, error) {
	raw, perr := p.complete(ctx, researchPrompt(topic))
	if perr != nil {
		return nil, perr
	}
	res, perr := parseContent(p.Name(), topic, raw, time.Now())
	if perr != nil {
		return nil, perr
	}
	return res, nil
}

// trendEntry is one element of the JSON array a trend scan returns.
type trendEntry struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Angle   string `json:"angle"`
}

// DiscoverTrends asks for the region's current trending topics. An empty or
// undecodable list is a malformed response; trends are never fabricated
// client-side.
func (p *Perplexity) DiscoverTrends(ctx context.Context, region string, limit int) ([]Trend, error) {
	if limit <= 0 {
		limit = 5
	}
	prompt := fmt.Sprintf(
		"List the %d most discussed topics on social media today for this region: %s.\n"+
			"Respond with only a JSON array, no prose, of objects with exactly these keys:\n"+
			`[{"title": "short topic title", "summary": "one sentence on why it trends", `+
			`"angle": "an emotional or professional angle for a LinkedIn post"}]`,
		limit, region)

	raw, perr := p.complete(ctx, prompt)
	if perr != nil {
		return nil, perr
	}

	arr, err := extractJSONArray(raw)
	if err != nil {
		return nil, newError(p.Name(), KindMalformedResponse, "no JSON array in trend response: %v", err)
	}
	var entries []trendEntry
	if err := json.Unmarshal([]byte(arr), &entries); err != nil {
		return nil, newError(p.Name(), KindMalformedResponse, "decoding trends: %v", err)
	}

	trends := make([]Trend, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Title) == "" {
			continue
		}
		trends = append(trends, Trend{
			Title:   strings.TrimSpace(e.Title),
			Summary: strings.TrimSpace(e.Summary),
			Angle:   strings.TrimSpace(e.Angle),
			Region:  region,
		})
		if len(trends) == limit {
			break
		}
	}
	if len(trends) == 0 {
		return nil, newError(p.Name(), KindMalformedResponse, "trend response contained no usable topics")
	}
	return trends, nil
}

// complete runs one chat completion and returns the assistant text.
func (p *Perplexity) complete(ctx context.Context, prompt string) (string, *Error) {
	if p.apiKey == "" {
		return "", newError(p.Name(), KindAuthFailure, "API key not configured")
	}
	if wait, blocked := p.gate.blocked(time.Now()); blocked {
		return "", newError(p.Name(), KindQuotaExceeded, "cooling down for %s after quota rejection", wait.Round(time.Second))
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You respond with strict JSON and nothing else."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.5,
	})
	if err != nil {
		return "", newError(p.Name(), KindMalformedResponse, "marshaling request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", newError(p.Name(), KindNetworkFailure, "creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		perr := classifyStatus(p.Name(), resp.StatusCode, respBody)
		if perr.Kind == KindQuotaExceeded {
			p.gate.trip(time.Now())
		}
		return "", perr
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", newError(p.Name(), KindMalformedResponse, "decoding response: %v", err)
	}
	if len(result.Choices) == 0 {
		return "", newError(p.Name(), KindMalformedResponse, "response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}
