package session

import (
	"fmt"
	"time"

	"github.com/ibrakm/morocco-trend-automator/internal/composer"
	"github.com/ibrakm/morocco-trend-automator/internal/provider"
)

// Stage is a session's position in the topic-to-publish workflow.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageTopicSet    Stage = "topic_set"
	StageResearching Stage = "researching"
	StagePreviewed   Stage = "previewed"
	StagePublishing  Stage = "publishing"
	StagePublished   Stage = "published"
)

// Session is one user's workflow state. Owned exclusively by the Store; all
// reads outside a mutation see deep copies. Epoch increments on every reset
// so results from before the reset can be recognized as stale and discarded.
type Session struct {
	UserID          int64
	Stage           Stage
	Topic           string
	Research        *provider.ResearchResult
	Draft           *composer.Draft
	TrendCandidates []provider.Trend
	LastError       string
	Epoch           uint64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StateViolation reports a command issued outside its valid stage. The
// session is left untouched.
type StateViolation struct {
	Command  string
	Current  Stage
	Required Stage
}

func (e *StateViolation) Error() string {
	return fmt.Sprintf("cannot %s: session is %s, requires %s", e.Command, e.Current, e.Required)
}

func copySession(s *Session) Session {
	if s == nil {
		return Session{}
	}
	cp := *s

	if s.Research != nil {
		r := *s.Research
		if s.Research.Insights != nil {
			r.Insights = make([]string, len(s.Research.Insights))
			copy(r.Insights, s.Research.Insights)
		}
		if s.Research.Hashtags != nil {
			r.Hashtags = make([]string, len(s.Research.Hashtags))
			copy(r.Hashtags, s.Research.Hashtags)
		}
		cp.Research = &r
	}
	if s.Draft != nil {
		d := *s.Draft
		if s.Draft.Hashtags != nil {
			d.Hashtags = make([]string, len(s.Draft.Hashtags))
			copy(d.Hashtags, s.Draft.Hashtags)
		}
		cp.Draft = &d
	}
	if s.TrendCandidates != nil {
		cp.TrendCandidates = make([]provider.Trend, len(s.TrendCandidates))
		copy(cp.TrendCandidates, s.TrendCandidates)
	}
	return cp
}
