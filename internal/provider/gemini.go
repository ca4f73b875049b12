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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// Gemini is the tier-1 research client, talking to the Generative Language
// API directly over HTTP.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	gate       quotaGate
}

// NewGemini creates a Gemini client. timeout bounds each research call.
func NewGemini(apiKey, model string, timeout time.Duration) *Gemini {
	return &Gemini{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultGeminiBaseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// NewGeminiWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewGeminiWithBaseURL(apiKey, model string, timeout time.Duration, baseURL string) *Gemini {
	g := NewGemini(apiKey, model, timeout)
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

func (g *Gemini) Name() string { return "gemini" }

// generateRequest is the JSON body for POST :generateContent.
type generateRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// generateResponse is the JSON returned by :generateContent.
type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) ResearchAndDraft(ctx context.Context, topic string) (*ResearchResult, error) {
	if g.apiKey == "" {
		return nil, newError(g.Name(), KindAuthFailure, "API key not configured")
	}
	if wait, blocked := g.gate.blocked(time.Now()); blocked {
		return nil, newError(g.Name(), KindQuotaExceeded, "cooling down for %s after quota rejection", wait.Round(time.Second))
	}

	body, err := json.Marshal(generateRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: researchPrompt(topic)}}},
		},
		GenerationConfig: geminiGenConfig{
			Temperature:      0.7,
			ResponseMimeType: "application/json",
		},
	})
	if err != nil {
		return nil, newError(g.Name(), KindMalformedResponse, "marshaling request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, newError(g.Name(), KindNetworkFailure, "creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(g.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		perr := classifyStatus(g.Name(), resp.StatusCode, respBody)
		if perr.Kind == KindQuotaExceeded {
			g.gate.trip(time.Now())
		}
		return nil, perr
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, newError(g.Name(), KindMalformedResponse, "decoding response: %v", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, newError(g.Name(), KindMalformedResponse, "response has no candidates")
	}

	var text strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	res, perr := parseContent(g.Name(), topic, text.String(), time.Now())
	if perr != nil {
		return nil, perr
	}
	return res, nil
}
