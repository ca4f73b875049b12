package session

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ibrakm/morocco-trend-automator/internal/composer"
	"github.com/ibrakm/morocco-trend-automator/internal/provider"
)

const (
	minTopicRunes = 3
	maxTopicRunes = 200
)

// StartScan validates that a trend scan may run. Only an idle session may
// scan; candidates are advisory and cause no stage transition.
func (s *Session) StartScan() error {
	if s.Stage != StageIdle {
		return &StateViolation{Command: "scan", Current: s.Stage, Required: StageIdle}
	}
	return nil
}

// SetTopic validates and records a topic, entering topic_set. Valid from
// idle, or from topic_set to replace an unresearched topic. Validation runs
// before any transition; a rejected topic leaves the session unchanged.
func (s *Session) SetTopic(topic string) error {
	if s.Stage != StageIdle && s.Stage != StageTopicSet {
		return &StateViolation{Command: "topic", Current: s.Stage, Required: StageIdle}
	}

	topic = strings.TrimSpace(topic)
	switch n := utf8.RuneCountInString(topic); {
	case n == 0:
		return fmt.Errorf("topic is empty")
	case n < minTopicRunes:
		return fmt.Errorf("topic too short: %d characters, need at least %d", n, minTopicRunes)
	case n > maxTopicRunes:
		return fmt.Errorf("topic too long: %d characters, maximum %d", n, maxTopicRunes)
	}

	s.Topic = topic
	s.Stage = StageTopicSet
	s.Research = nil
	s.Draft = nil
	s.LastError = ""
	return nil
}

// StartResearch moves topic_set to researching.
func (s *Session) StartResearch() error {
	if s.Stage != StageTopicSet {
		return &StateViolation{Command: "research", Current: s.Stage, Required: StageTopicSet}
	}
	s.Stage = StageResearching
	return nil
}

// CompleteResearch commits a research result and its draft in one step,
// moving researching to previewed. Result and draft always land together so
// a session never holds one without the other.
func (s *Session) CompleteResearch(res *provider.ResearchResult, d *composer.Draft) error {
	if s.Stage != StageResearching {
		return &StateViolation{Command: "research", Current: s.Stage, Required: StageResearching}
	}
	if res == nil || d == nil {
		return fmt.Errorf("completing research: result and draft are both required")
	}
	s.Research = res
	s.Draft = d
	s.Stage = StagePreviewed
	s.LastError = ""
	return nil
}

// FailResearch records a research failure and returns the session to idle.
// The topic is kept for diagnostics; research and draft stay empty.
func (s *Session) FailResearch(reason string) error {
	if s.Stage != StageResearching {
		return &StateViolation{Command: "research", Current: s.Stage, Required: StageResearching}
	}
	s.Stage = StageIdle
	s.LastError = reason
	return nil
}

// PreviewDraft returns the draft for rendering. Valid only in previewed;
// causes no transition.
func (s *Session) PreviewDraft() (*composer.Draft, error) {
	if s.Stage != StagePreviewed {
		return nil, &StateViolation{Command: "preview", Current: s.Stage, Required: StagePreviewed}
	}
	return s.Draft, nil
}

// BeginPublish moves previewed to publishing. A draft must be present.
func (s *Session) BeginPublish() error {
	if s.Stage != StagePreviewed {
		return &StateViolation{Command: "publish", Current: s.Stage, Required: StagePreviewed}
	}
	if s.Draft == nil {
		return fmt.Errorf("publishing: session has no draft")
	}
	s.Stage = StagePublishing
	return nil
}

// CompletePublish finishes the publishing stage. Published is terminal: the
// session immediately returns to idle with topic, research, and draft
// cleared, ready for the next cycle. The epoch advances so any result still
// in flight for the old cycle is discarded.
func (s *Session) CompletePublish() error {
	if s.Stage != StagePublishing {
		return &StateViolation{Command: "publish", Current: s.Stage, Required: StagePublishing}
	}
	s.clear()
	return nil
}

// FailPublish returns a failed publish to previewed with the draft intact,
// so the user can retry without regenerating content.
func (s *Session) FailPublish(reason string) error {
	if s.Stage != StagePublishing {
		return &StateViolation{Command: "publish", Current: s.Stage, Required: StagePublishing}
	}
	s.Stage = StagePreviewed
	s.LastError = reason
	return nil
}

// Reset discards all workflow state from any stage.
func (s *Session) Reset() {
	s.clear()
	s.TrendCandidates = nil
}

func (s *Session) clear() {
	s.Stage = StageIdle
	s.Topic = ""
	s.Research = nil
	s.Draft = nil
	s.LastError = ""
	s.Epoch++
}
