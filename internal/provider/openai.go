package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI is the tier-2 research client (the paid tier; its key comes from
// the deploy environment, never the vault).
type OpenAI struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	gate       quotaGate
}

// NewOpenAI creates an OpenAI client. timeout bounds each research call.
func NewOpenAI(apiKey, model string, timeout time.Duration) *OpenAI {
	return &OpenAI{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultOpenAIBaseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// NewOpenAIWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewOpenAIWithBaseURL(apiKey, model string, timeout time.Duration, baseURL string) *OpenAI {
	o := NewOpenAI(apiKey, model, timeout)
	o.baseURL = strings.TrimRight(baseURL, "/")
	return o
}

func (o *OpenAI) Name() string { return "openai" }

// chatMessage and friends mirror the chat completions wire format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// apiErrorBody is the error envelope the chat completions API returns.
type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (o *OpenAI) ResearchAndDraft(ctx context.Context, topic string) (*ResearchResult, error) {
	if o.apiKey == "" {
		return nil, newError(o.Name(), KindAuthFailure, "API key not configured")
	}
	if wait, blocked := o.gate.blocked(time.Now()); blocked {
		return nil, newError(o.Name(), KindQuotaExceeded, "cooling down for %s after quota rejection", wait.Round(time.Second))
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You respond with a single strict JSON object and nothing else."},
			{Role: "user", Content: researchPrompt(topic)},
		},
		Temperature:    0.7,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, newError(o.Name(), KindMalformedResponse, "marshaling request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, newError(o.Name(), KindNetworkFailure, "creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(o.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		perr := classifyStatus(o.Name(), resp.StatusCode, respBody)
		var apiErr apiErrorBody
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Code == "insufficient_quota" {
			perr.Kind = KindQuotaExceeded
		}
		if perr.Kind == KindQuotaExceeded {
			o.gate.trip(time.Now())
		}
		return nil, perr
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, newError(o.Name(), KindMalformedResponse, "decoding response: %v", err)
	}
	if len(result.Choices) == 0 {
		return nil, newError(o.Name(), KindMalformedResponse, "response has no choices")
	}

	res, perr := parseContent(o.Name(), topic, result.Choices[0].Message.Content, time.Now())
	if perr != nil {
		return nil, perr
	}
	return res, nil
}
