package research

import (
	"testing"

	"github.com/ibrakm/morocco-trend-automator/internal/provider"
)

func resultWithText(headline, body string) *provider.ResearchResult {
	return &provider.ResearchResult{
		Headline: headline,
		PostText: body,
		Hook:     "hook",
	}
}

func TestKeywordChecker_OnTopicPasses(t *testing.T) {
	c := &KeywordChecker{Threshold: 0.3}
	res := resultWithText(
		"The war in Ukraine enters a new phase",
		"Ukrainian forces reported movement near the front as the war continues.")

	if err := c.Check("the war in Ukraine", res); err != nil {
		t.Errorf("on-topic result rejected: %v", err)
	}
}

func TestKeywordChecker_BoilerplateRejected(t *testing.T) {
	c := &KeywordChecker{Threshold: 0.3}
	// Generic filler with zero topical overlap; exactly the failure mode the
	// check exists to catch.
	res := resultWithText(
		"AI Revolution in Business",
		"Artificial intelligence is transforming companies everywhere. Leaders must adapt to stay competitive.")

	err := c.Check("the war in Ukraine", res)
	if err == nil {
		t.Fatal("generic boilerplate accepted; want rejection")
	}
}

func TestKeywordChecker_PrefixMatches(t *testing.T) {
	c := &KeywordChecker{Threshold: 1.0}
	res := resultWithText("Grain exports under pressure", "Exporters rerouted wheat as wars disrupted the usual routes.")

	// "export" must match "exports"/"exporters", "war" must match "wars".
	if err := c.Check("war export", res); err != nil {
		t.Errorf("prefix tokens should satisfy keywords: %v", err)
	}
}

func TestKeywordChecker_StopwordOnlyTopicPasses(t *testing.T) {
	c := &KeywordChecker{Threshold: 0.5}
	res := resultWithText("irrelevant", "nothing in common")

	if err := c.Check("the and for", res); err != nil {
		t.Errorf("topic with no significant keywords should pass: %v", err)
	}
}

func TestKeywordChecker_ThresholdBoundary(t *testing.T) {
	res := resultWithText("Casablanca tramway extension", "The tramway now reaches the port district.")

	// Keywords: casablanca, tramway, funding → 2/3 matched ≈ 0.67.
	strict := &KeywordChecker{Threshold: 0.7}
	if err := strict.Check("Casablanca tramway funding", res); err == nil {
		t.Error("expected rejection at threshold 0.7 with 2/3 matched")
	}

	loose := &KeywordChecker{Threshold: 0.6}
	if err := loose.Check("Casablanca tramway funding", res); err != nil {
		t.Errorf("expected pass at threshold 0.6 with 2/3 matched: %v", err)
	}
}

func TestNewChecker_DisabledIsNoOp(t *testing.T) {
	c := NewChecker(false, 0.9)
	res := resultWithText("totally unrelated", "nothing topical at all")

	if err := c.Check("quantum computing", res); err != nil {
		t.Errorf("disabled checker must accept everything: %v", err)
	}
}

func TestKeywords(t *testing.T) {
	got := keywords("The War in Ukraine, latest news!")
	want := []string{"war", "ukraine"}
	if len(got) != len(want) {
		t.Fatalf("keywords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keywords[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
