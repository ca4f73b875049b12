package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/ibrakm/morocco-trend-automator/internal/composer"
	"github.com/ibrakm/morocco-trend-automator/internal/provider"
)

func sampleResearch() *provider.ResearchResult {
	return &provider.ResearchResult{
		Topic:    "solar farms in Ouarzazate",
		Provider: "gemini",
		Headline: "Noor keeps growing",
		PostText: "The Ouarzazate complex added another field of mirrors.",
		Hook:     "The desert is a power plant now.",
	}
}

func sampleDraft() *composer.Draft {
	return &composer.Draft{
		Hook:     "The desert is a power plant now.",
		Body:     "The Ouarzazate complex added another field of mirrors.",
		Hashtags: []string{"Morocco", "Solar"},
	}
}

func assertViolation(t *testing.T, err error, command string, required Stage) {
	t.Helper()
	var sv *StateViolation
	if !errors.As(err, &sv) {
		t.Fatalf("error = %v (%T), want *StateViolation", err, err)
	}
	if sv.Command != command {
		t.Errorf("Command = %q, want %q", sv.Command, command)
	}
	if sv.Required != required {
		t.Errorf("Required = %q, want %q", sv.Required, required)
	}
}

func TestSetTopic(t *testing.T) {
	s := &Session{Stage: StageIdle}

	if err := s.SetTopic("  the war in Ukraine  "); err != nil {
		t.Fatalf("SetTopic() error = %v", err)
	}
	if s.Topic != "the war in Ukraine" {
		t.Errorf("Topic = %q, want trimmed", s.Topic)
	}
	if s.Stage != StageTopicSet {
		t.Errorf("Stage = %q, want %q", s.Stage, StageTopicSet)
	}
}

func TestSetTopic_Validation(t *testing.T) {
	tests := []struct {
		name  string
		topic string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too short", "ai"},
		{"too long", strings.Repeat("x", 201)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Stage: StageIdle}
			if err := s.SetTopic(tt.topic); err == nil {
				t.Error("expected validation error, got nil")
			}
			if s.Stage != StageIdle || s.Topic != "" {
				t.Errorf("rejected topic changed session: stage=%q topic=%q", s.Stage, s.Topic)
			}
		})
	}
}

func TestSetTopic_ReplacesUnresearchedTopic(t *testing.T) {
	s := &Session{Stage: StageIdle}
	s.SetTopic("first topic")

	if err := s.SetTopic("second topic"); err != nil {
		t.Fatalf("SetTopic() from topic_set error = %v", err)
	}
	if s.Topic != "second topic" {
		t.Errorf("Topic = %q", s.Topic)
	}
}

func TestSetTopic_RejectedWhilePreviewed(t *testing.T) {
	s := &Session{Stage: StagePreviewed, Draft: sampleDraft()}

	err := s.SetTopic("another topic")
	assertViolation(t, err, "topic", StageIdle)
	if s.Draft == nil {
		t.Error("violation cleared the draft")
	}
}

func TestStartScan_OnlyFromIdle(t *testing.T) {
	s := &Session{Stage: StageIdle}
	if err := s.StartScan(); err != nil {
		t.Fatalf("StartScan() from idle error = %v", err)
	}
	if s.Stage != StageIdle {
		t.Errorf("StartScan moved stage to %q", s.Stage)
	}

	for _, stage := range []Stage{StageTopicSet, StageResearching, StagePreviewed, StagePublishing} {
		s := &Session{Stage: stage}
		err := s.StartScan()
		assertViolation(t, err, "scan", StageIdle)
	}
}

func TestFullPublishCycle(t *testing.T) {
	s := &Session{Stage: StageIdle}

	if err := s.SetTopic("solar farms in Ouarzazate"); err != nil {
		t.Fatalf("SetTopic: %v", err)
	}
	if err := s.StartResearch(); err != nil {
		t.Fatalf("StartResearch: %v", err)
	}
	if s.Stage != StageResearching {
		t.Fatalf("Stage = %q, want researching", s.Stage)
	}
	if err := s.CompleteResearch(sampleResearch(), sampleDraft()); err != nil {
		t.Fatalf("CompleteResearch: %v", err)
	}
	if s.Stage != StagePreviewed {
		t.Fatalf("Stage = %q, want previewed", s.Stage)
	}

	d, err := s.PreviewDraft()
	if err != nil {
		t.Fatalf("PreviewDraft: %v", err)
	}
	if d.Hook == "" {
		t.Error("previewed draft is empty")
	}

	if err := s.BeginPublish(); err != nil {
		t.Fatalf("BeginPublish: %v", err)
	}
	if s.Stage != StagePublishing {
		t.Fatalf("Stage = %q, want publishing", s.Stage)
	}

	epochBefore := s.Epoch
	if err := s.CompletePublish(); err != nil {
		t.Fatalf("CompletePublish: %v", err)
	}
	if s.Stage != StageIdle {
		t.Errorf("Stage after publish = %q, want idle", s.Stage)
	}
	if s.Research != nil || s.Draft != nil || s.Topic != "" {
		t.Error("publish did not clear topic/research/draft")
	}
	if s.Epoch != epochBefore+1 {
		t.Errorf("Epoch = %d, want %d", s.Epoch, epochBefore+1)
	}

	// The cycle is over; preview must now be rejected.
	_, err = s.PreviewDraft()
	assertViolation(t, err, "preview", StagePreviewed)
}

func TestPublish_RejectedBeforePreview(t *testing.T) {
	for _, stage := range []Stage{StageIdle, StageTopicSet} {
		s := &Session{Stage: stage}
		err := s.BeginPublish()
		assertViolation(t, err, "publish", StagePreviewed)
		if s.Stage != stage {
			t.Errorf("violation moved stage from %q to %q", stage, s.Stage)
		}
	}
}

func TestFailResearch(t *testing.T) {
	s := &Session{Stage: StageIdle}
	s.SetTopic("desalination in Agadir")
	s.StartResearch()

	if err := s.FailResearch("all research tiers failed"); err != nil {
		t.Fatalf("FailResearch: %v", err)
	}
	if s.Stage != StageIdle {
		t.Errorf("Stage = %q, want idle", s.Stage)
	}
	if s.LastError == "" {
		t.Error("LastError not recorded")
	}
	if s.Topic != "desalination in Agadir" {
		t.Errorf("Topic = %q, want kept for diagnostics", s.Topic)
	}
}

func TestFailPublish_KeepsDraftForRetry(t *testing.T) {
	s := &Session{Stage: StageIdle}
	s.SetTopic("solar farms in Ouarzazate")
	s.StartResearch()
	s.CompleteResearch(sampleResearch(), sampleDraft())
	s.BeginPublish()

	if err := s.FailPublish("image upload failed"); err != nil {
		t.Fatalf("FailPublish: %v", err)
	}
	if s.Stage != StagePreviewed {
		t.Errorf("Stage = %q, want previewed", s.Stage)
	}
	if s.Draft == nil {
		t.Fatal("draft lost on publish failure")
	}

	// Retry without regenerating.
	if err := s.BeginPublish(); err != nil {
		t.Errorf("retry BeginPublish: %v", err)
	}
}

func TestReset_FromAnyStage(t *testing.T) {
	stages := []Stage{StageIdle, StageTopicSet, StageResearching, StagePreviewed, StagePublishing}
	for _, stage := range stages {
		s := &Session{
			Stage:           stage,
			Topic:           "something",
			Research:        sampleResearch(),
			Draft:           sampleDraft(),
			TrendCandidates: []provider.Trend{{Title: "t"}},
			LastError:       "old",
			Epoch:           4,
		}
		s.Reset()

		if s.Stage != StageIdle {
			t.Errorf("Reset from %q: Stage = %q", stage, s.Stage)
		}
		if s.Topic != "" || s.Research != nil || s.Draft != nil || s.LastError != "" {
			t.Errorf("Reset from %q left state behind", stage)
		}
		if s.TrendCandidates != nil {
			t.Errorf("Reset from %q kept trend candidates", stage)
		}
		if s.Epoch != 5 {
			t.Errorf("Reset from %q: Epoch = %d, want 5", stage, s.Epoch)
		}
	}
}

func TestCompleteResearch_RequiresBothParts(t *testing.T) {
	s := &Session{Stage: StageResearching}

	if err := s.CompleteResearch(sampleResearch(), nil); err == nil {
		t.Error("accepted research without draft")
	}
	if err := s.CompleteResearch(nil, sampleDraft()); err == nil {
		t.Error("accepted draft without research")
	}
	if s.Stage != StageResearching {
		t.Errorf("Stage = %q after rejected commit", s.Stage)
	}
}

func TestCompleteResearch_AfterReset(t *testing.T) {
	// A reset during research returns the session to idle; the late commit
	// must be refused.
	s := &Session{Stage: StageIdle}
	s.SetTopic("a topic that was abandoned")
	s.StartResearch()
	s.Reset()

	err := s.CompleteResearch(sampleResearch(), sampleDraft())
	assertViolation(t, err, "research", StageResearching)
	if s.Research != nil {
		t.Error("stale research committed after reset")
	}
}
