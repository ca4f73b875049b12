package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ibrakm/morocco-trend-automator/internal/provider"
)

// Orchestrator runs the tiered fallback chain: providers are tried in fixed
// priority order, the first result that passes the relevance check wins, and
// every tier failure is recorded rather than masked. There is no tie-break;
// a later tier is never consulted once an earlier one succeeds.
type Orchestrator struct {
	tiers []provider.ContentProvider
	check Checker
}

// NewOrchestrator creates an Orchestrator over tiers in priority order.
func NewOrchestrator(tiers []provider.ContentProvider, check Checker) *Orchestrator {
	if check == nil {
		check = &NoOpChecker{}
	}
	return &Orchestrator{tiers: tiers, check: check}
}

// TierCause records why one tier failed.
type TierCause struct {
	Tier string
	Err  *provider.Error
}

// AllTiersFailed aggregates the per-tier causes when no provider produced an
// acceptable result. Causes holds exactly one entry per tier, in priority
// order; they are for diagnostics and logs, not for direct user display.
type AllTiersFailed struct {
	Topic  string
	Causes []TierCause
}

func (e *AllTiersFailed) Error() string {
	parts := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		parts[i] = fmt.Sprintf("%s: %s", c.Tier, c.Err.Kind)
	}
	return fmt.Sprintf("all %d research tiers failed for topic %q (%s)",
		len(e.Causes), e.Topic, strings.Join(parts, "; "))
}

// Research runs the chain for one topic. It returns either a ResearchResult
// tagged with the producing tier or an *AllTiersFailed; a single tier's
// failure is recovered locally and never surfaced on its own.
func (o *Orchestrator) Research(ctx context.Context, topic string) (*provider.ResearchResult, error) {
	causes := make([]TierCause, 0, len(o.tiers))

	for _, tier := range o.tiers {
		res, err := tier.ResearchAndDraft(ctx, topic)
		if err != nil {
			perr := asProviderError(tier.Name(), err)
			causes = append(causes, TierCause{Tier: tier.Name(), Err: perr})
			slog.Warn("research tier failed",
				"tier", tier.Name(), "kind", string(perr.Kind), "topic", topic, "error", perr.Err)
			continue
		}

		if err := o.check.Check(topic, res); err != nil {
			perr := &provider.Error{Provider: tier.Name(), Kind: provider.KindOffTopic, Err: err}
			causes = append(causes, TierCause{Tier: tier.Name(), Err: perr})
			slog.Warn("research tier rejected as off-topic",
				"tier", tier.Name(), "topic", topic, "error", err)
			continue
		}

		slog.Info("research succeeded", "tier", tier.Name(), "topic", topic)
		return res, nil
	}

	return nil, &AllTiersFailed{Topic: topic, Causes: causes}
}

// asProviderError normalizes an error into the taxonomy. Conforming clients
// always return *provider.Error already.
func asProviderError(tierName string, err error) *provider.Error {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr
	}
	return &provider.Error{Provider: tierName, Kind: provider.KindNetworkFailure, Err: err}
}
