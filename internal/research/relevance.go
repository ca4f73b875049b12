package research

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ibrakm/morocco-trend-automator/internal/provider"
)

// Checker decides whether a mechanically successful provider result actually
// addresses the requested topic. A result that fails the check is treated as
// a tier failure by the orchestrator, never shown to the user.
type Checker interface {
	Check(topic string, res *provider.ResearchResult) error
}

// NewChecker returns a KeywordChecker if enabled, NoOpChecker otherwise.
func NewChecker(enabled bool, threshold float64) Checker {
	if !enabled {
		return &NoOpChecker{}
	}
	return &KeywordChecker{Threshold: threshold}
}

// KeywordChecker scores topic/result overlap: the fraction of significant
// topic keywords that appear as (or prefix) a token of the result's combined
// text must reach Threshold. A topic with no significant keywords passes.
type KeywordChecker struct {
	Threshold float64
}

func (c *KeywordChecker) Check(topic string, res *provider.ResearchResult) error {
	kws := keywords(topic)
	if len(kws) == 0 {
		return nil
	}

	tokens := tokenSet(res.CombinedText())
	matched := 0
	var missing []string
	for _, kw := range kws {
		if tokens[kw] || hasPrefixToken(tokens, kw) {
			matched++
		} else {
			missing = append(missing, kw)
		}
	}

	score := float64(matched) / float64(len(kws))
	if score < c.Threshold {
		return fmt.Errorf("result does not address the topic: %d/%d keywords matched (%.2f < %.2f), missing %s",
			matched, len(kws), score, c.Threshold, strings.Join(missing, ", "))
	}
	return nil
}

// NoOpChecker accepts every result. Used when the relevance check is disabled.
type NoOpChecker struct{}

func (n *NoOpChecker) Check(string, *provider.ResearchResult) error { return nil }

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"have": true, "this": true, "that": true, "with": true, "from": true,
	"they": true, "will": true, "what": true, "about": true, "which": true,
	"their": true, "there": true, "would": true, "could": true, "should": true,
	"into": true, "latest": true, "news": true, "today": true, "current": true,
}

// keywords extracts the significant tokens of a topic: lowercased, split on
// non-alphanumerics, stopwords and tokens shorter than 3 runes dropped,
// deduplicated in order.
func keywords(topic string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range splitTokens(topic) {
		if len([]rune(tok)) < 3 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range splitTokens(s) {
		set[tok] = true
	}
	return set
}

// hasPrefixToken reports whether any token starts with kw, so "export"
// matches "exports" and "exporters" without a stemmer.
func hasPrefixToken(tokens map[string]bool, kw string) bool {
	for tok := range tokens {
		if strings.HasPrefix(tok, kw) {
			return true
		}
	}
	return false
}
