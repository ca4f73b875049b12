package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// ContentProvider is the capability each research tier implements: given a
// topic, produce structured research plus draftable content, or fail with a
// *Error. Implementations must never substitute generic or placeholder text
// for a topic they could not actually research; a tier that cannot produce
// topic-specific content fails loudly so the fallback chain can advance.
type ContentProvider interface {
	Name() string
	ResearchAndDraft(ctx context.Context, topic string) (*ResearchResult, error)
}

// TrendScanner discovers currently trending topics for a region.
type TrendScanner interface {
	DiscoverTrends(ctx context.Context, region string, limit int) ([]Trend, error)
}

// ResearchResult is the structured output of one provider call. Immutable
// once produced; a new topic request replaces it wholesale.
type ResearchResult struct {
	Topic        string
	Provider     string // tier name that produced it
	Headline     string
	Summary      string
	Insights     []string
	PostText     string
	Hook         string
	CallToAction string
	Hashtags     []string
	ImageTheme   string
	GeneratedAt  time.Time
}

// CombinedText joins the textual fields for relevance scoring.
func (r *ResearchResult) CombinedText() string {
	parts := []string{r.Headline, r.Summary, r.Hook, r.PostText}
	parts = append(parts, r.Insights...)
	return strings.Join(parts, "\n")
}

// Trend is one trending topic candidate from a scan.
type Trend struct {
	Title   string
	Summary string
	Angle   string
	Region  string
}

// Kind classifies a provider failure.
type Kind string

const (
	KindAuthFailure       Kind = "auth_failure"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindTimeout           Kind = "timeout"
	KindMalformedResponse Kind = "malformed_response"
	KindNetworkFailure    Kind = "network_failure"
	// KindOffTopic is assigned by the orchestrator's relevance check, not by
	// clients: the call succeeded mechanically but the content does not
	// address the requested topic.
	KindOffTopic Kind = "off_topic"
)

// Error is the structured failure every provider call returns. It can never
// be confused with a valid result: a call yields either a ResearchResult or
// an *Error, not both.
type Error struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(name string, kind Kind, format string, args ...any) *Error {
	return &Error{Provider: name, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// classifyTransport maps a transport-level error from http.Client.Do to the
// failure taxonomy. Deadline expiry is a timeout; everything else is a
// network failure.
func classifyTransport(name string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Provider: name, Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Provider: name, Kind: KindTimeout, Err: err}
	}
	return &Error{Provider: name, Kind: KindNetworkFailure, Err: err}
}

// classifyStatus maps a non-200 HTTP status to the failure taxonomy.
func classifyStatus(name string, status int, body []byte) *Error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	switch {
	case status == 401 || status == 403:
		return newError(name, KindAuthFailure, "HTTP %d: %s", status, snippet)
	case status == 402 || status == 429:
		return newError(name, KindQuotaExceeded, "HTTP %d: %s", status, snippet)
	default:
		return newError(name, KindNetworkFailure, "HTTP %d: %s", status, snippet)
	}
}

// quotaCooldown is how long a client fails fast after a quota rejection
// before trying the network again.
const quotaCooldown = time.Minute

// quotaGate is the per-client rate-limit bookkeeping. After a quota failure
// the gate stays closed for quotaCooldown; calls during that window fail
// immediately without a network request.
type quotaGate struct {
	mu    sync.Mutex
	until time.Time
}

func (g *quotaGate) blocked(now time.Time) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now.Before(g.until) {
		return g.until.Sub(now), true
	}
	return 0, false
}

func (g *quotaGate) trip(now time.Time) {
	g.mu.Lock()
	g.until = now.Add(quotaCooldown)
	g.mu.Unlock()
}

// contentPayload is the JSON object every tier is instructed to return.
type contentPayload struct {
	Headline     string   `json:"headline"`
	Summary      string   `json:"summary"`
	Insights     []string `json:"insights"`
	PostText     string   `json:"post_text"`
	Hook         string   `json:"hook"`
	CallToAction string   `json:"call_to_action"`
	Hashtags     []string `json:"hashtags"`
	ImageTheme   string   `json:"image_theme"`
}

// researchPrompt instructs the model to return the contentPayload shape for
// a topic. Kept identical across tiers so results are interchangeable.
func researchPrompt(topic string) string {
	return "You are a professional LinkedIn content strategist. Research the topic below " +
		"and write an engaging LinkedIn post about it.\n" +
		"Topic: " + topic + "\n\n" +
		"Respond with only a single JSON object, no prose, with exactly these keys:\n" +
		`{"headline": "short headline", "summary": "2-3 sentence factual summary", ` +
		`"insights": ["3 specific, current insights about the topic"], ` +
		`"post_text": "the LinkedIn post body, 120-220 words, specific to the topic", ` +
		`"hook": "one attention-grabbing opening line", ` +
		`"call_to_action": "one closing question or invitation", ` +
		`"hashtags": ["4-6 relevant hashtags without the # sign"], ` +
		`"image_theme": "one of: business, technology, sports, culture, default"}` + "\n\n" +
		"Every field must be specific to the topic. If you cannot research this topic, " +
		"return exactly: " + `{"error": "cannot research"}`
}

// parseContent decodes and validates a tier's raw text output. Any missing
// essential field is a malformed response; no defaults are ever substituted.
func parseContent(name, topic, raw string, now time.Time) (*ResearchResult, *Error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, newError(name, KindMalformedResponse, "no JSON object in response: %v", err)
	}

	var refusal struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(obj), &refusal) == nil && refusal.Error != "" {
		return nil, newError(name, KindMalformedResponse, "provider declined: %s", refusal.Error)
	}

	var p contentPayload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return nil, newError(name, KindMalformedResponse, "decoding content: %v", err)
	}

	required := []struct {
		field string
		value string
	}{
		{"headline", p.Headline},
		{"post_text", p.PostText},
		{"hook", p.Hook},
		{"call_to_action", p.CallToAction},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, newError(name, KindMalformedResponse, "missing required field %q", r.field)
		}
	}
	if len(p.Hashtags) == 0 {
		return nil, newError(name, KindMalformedResponse, "missing required field %q", "hashtags")
	}

	return &ResearchResult{
		Topic:        topic,
		Provider:     name,
		Headline:     strings.TrimSpace(p.Headline),
		Summary:      strings.TrimSpace(p.Summary),
		Insights:     p.Insights,
		PostText:     strings.TrimSpace(p.PostText),
		Hook:         strings.TrimSpace(p.Hook),
		CallToAction: strings.TrimSpace(p.CallToAction),
		Hashtags:     p.Hashtags,
		ImageTheme:   strings.TrimSpace(p.ImageTheme),
		GeneratedAt:  now.UTC(),
	}, nil
}
