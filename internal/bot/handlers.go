package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibrakm/morocco-trend-automator/internal/composer"
	"github.com/ibrakm/morocco-trend-automator/internal/provider"
	"github.com/ibrakm/morocco-trend-automator/internal/publish"
	"github.com/ibrakm/morocco-trend-automator/internal/research"
	"github.com/ibrakm/morocco-trend-automator/internal/session"
	"github.com/ibrakm/morocco-trend-automator/internal/storage"
)

const trendsPerRegion = 5

// errStaleEpoch marks a result whose session was reset or recycled while the
// work ran. Stale results are logged and dropped, never committed.
var errStaleEpoch = errors.New("session changed while work was in flight")

func (b *Bot) cmdStart(ctx context.Context, userID int64) {
	if _, err := b.sessions.Mutate(userID, func(s *session.Session) error {
		s.Reset()
		return nil
	}); err != nil {
		b.logger.Warn("resetting session failed", "user_id", userID, "error", err)
	}
	b.reply(ctx, userID, "Hi! I research trending topics and draft LinkedIn posts you can publish with one command.\n\n"+helpText)
}

func (b *Bot) cmdReset(ctx context.Context, userID int64) {
	if _, err := b.sessions.Mutate(userID, func(s *session.Session) error {
		s.Reset()
		return nil
	}); err != nil {
		b.logger.Warn("resetting session failed", "user_id", userID, "error", err)
	}
	b.reply(ctx, userID, "Session cleared. Send /topic <text> or /scan to start fresh.")
}

func (b *Bot) cmdTopic(ctx context.Context, userID int64, arg string) {
	if strings.TrimSpace(arg) == "" {
		b.reply(ctx, userID, "Give me a topic, e.g. /topic Moroccan argan oil exports.")
		return
	}
	b.startTopic(ctx, userID, arg)
}

// handleFreeText routes plain messages: a bare number picks from the last
// trend scan, anything else gets a usage hint.
func (b *Bot) handleFreeText(ctx context.Context, userID int64, text string) {
	if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
		b.pickTrend(ctx, userID, n)
		return
	}
	b.reply(ctx, userID, "Send /topic <text> to draft a post, /scan for trend ideas, or /help for all commands.")
}

func (b *Bot) pickTrend(ctx context.Context, userID int64, n int) {
	sess, ok := b.sessions.Get(userID)
	if !ok || len(sess.TrendCandidates) == 0 {
		b.reply(ctx, userID, "There is no trend list to pick from. Send /scan first.")
		return
	}
	if n < 1 || n > len(sess.TrendCandidates) {
		b.reply(ctx, userID, fmt.Sprintf("Pick a number between 1 and %d.", len(sess.TrendCandidates)))
		return
	}
	b.startTopic(ctx, userID, sess.TrendCandidates[n-1].Title)
}

// startTopic stages a topic and runs the research chain for it. Results are
// committed only if the session epoch is unchanged, so a /reset issued while
// research runs wins over the late result.
func (b *Bot) startTopic(ctx context.Context, userID int64, topic string) {
	if !b.allowOrExplain(ctx, userID) {
		return
	}

	var epoch uint64
	_, err := b.sessions.Mutate(userID, func(s *session.Session) error {
		if err := s.SetTopic(topic); err != nil {
			return err
		}
		if err := s.StartResearch(); err != nil {
			return err
		}
		epoch = s.Epoch
		return nil
	})
	if err != nil {
		var sv *session.StateViolation
		if errors.As(err, &sv) {
			b.reply(ctx, userID, violationText(sv))
		} else {
			b.reply(ctx, userID, fmt.Sprintf("That topic won't work: %v. Try /topic <a few words about your subject>.", err))
		}
		return
	}

	b.reply(ctx, userID, fmt.Sprintf("Researching %q. This usually takes under a minute.", topic))
	if err := b.tg.SendChatAction(ctx, userID, "typing"); err != nil {
		b.logger.Debug("chat action failed", "chat_id", userID, "error", err)
	}

	res, rerr := b.research.Research(ctx, topic)
	if rerr != nil {
		b.failResearch(ctx, userID, epoch, topic, rerr)
		return
	}

	draft, cerr := b.compose.Compose(res)
	if cerr != nil {
		b.failResearch(ctx, userID, epoch, topic, fmt.Errorf("composing draft: %w", cerr))
		return
	}

	_, err = b.sessions.Mutate(userID, func(s *session.Session) error {
		if s.Epoch != epoch {
			return errStaleEpoch
		}
		return s.CompleteResearch(res, &draft)
	})
	if err != nil {
		b.logger.Warn("stale research result discarded",
			"user_id", userID, "topic", topic, "error", err)
		return
	}

	b.reply(ctx, userID, fmt.Sprintf(
		"Draft ready (researched via %s). Send /preview to see it or /publish to post it.", res.Provider))
}

// failResearch records a research failure, returns the session to idle, and
// tells the user what happened and what to do next.
func (b *Bot) failResearch(ctx context.Context, userID int64, epoch uint64, topic string, cause error) {
	b.health.RecordError(cause.Error())
	b.journal("research_failed", cause.Error(), researchFailureContext(topic, cause))

	_, err := b.sessions.Mutate(userID, func(s *session.Session) error {
		if s.Epoch != epoch {
			return errStaleEpoch
		}
		return s.FailResearch(cause.Error())
	})
	if err != nil {
		b.logger.Warn("stale research failure discarded", "user_id", userID, "error", err)
		return
	}

	var all *research.AllTiersFailed
	if errors.As(cause, &all) {
		var sb strings.Builder
		sb.WriteString("Research failed on every provider:\n")
		for _, c := range all.Causes {
			fmt.Fprintf(&sb, "- %s: %s\n", c.Tier, c.Err.Kind)
		}
		sb.WriteString("\nTry again shortly, rephrase the topic, or /reset.")
		b.reply(ctx, userID, sb.String())
		return
	}
	b.reply(ctx, userID, fmt.Sprintf("Research failed: %v\n\nTry again shortly, rephrase the topic, or /reset.", cause))
}

// researchFailureContext builds the journal context for a failed research
// run, including per-tier failure kinds when the whole chain was exhausted.
func researchFailureContext(topic string, cause error) map[string]any {
	data := map[string]any{"topic": topic}
	var all *research.AllTiersFailed
	if errors.As(cause, &all) {
		tiers := make(map[string]string, len(all.Causes))
		for _, c := range all.Causes {
			tiers[c.Tier] = string(c.Err.Kind)
		}
		data["tiers"] = tiers
	}
	return data
}

func (b *Bot) cmdScan(ctx context.Context, userID int64) {
	if b.scanner == nil {
		b.reply(ctx, userID, "Trend scanning is not configured; it needs the Perplexity tier. You can still use /topic <text>.")
		return
	}
	if _, err := b.sessions.Mutate(userID, func(s *session.Session) error {
		return s.StartScan()
	}); err != nil {
		var sv *session.StateViolation
		if errors.As(err, &sv) {
			b.reply(ctx, userID, violationText(sv))
			return
		}
		b.reply(ctx, userID, fmt.Sprintf("Scan refused: %v", err))
		return
	}
	if !b.allowOrExplain(ctx, userID) {
		return
	}

	b.reply(ctx, userID, "Scanning global and Moroccan trends...")
	if err := b.tg.SendChatAction(ctx, userID, "typing"); err != nil {
		b.logger.Debug("chat action failed", "chat_id", userID, "error", err)
	}

	regions := []string{"worldwide", "Morocco"}
	perRegion := make([][]provider.Trend, len(regions))
	g, gCtx := errgroup.WithContext(ctx)
	for i, region := range regions {
		g.Go(func() error {
			trends, err := b.scanner.DiscoverTrends(gCtx, region, trendsPerRegion)
			if err != nil {
				return fmt.Errorf("scanning %s trends: %w", region, err)
			}
			perRegion[i] = trends
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.health.RecordError(err.Error())
		b.journal("trend_scan_failed", err.Error(), nil)
		b.reply(ctx, userID, fmt.Sprintf("Trend scan failed: %v\n\nTry again in a moment or go straight to /topic <text>.", err))
		return
	}

	var candidates []provider.Trend
	for _, trends := range perRegion {
		candidates = append(candidates, trends...)
	}
	if len(candidates) == 0 {
		b.reply(ctx, userID, "No trends came back this time. Try again in a moment or use /topic <text>.")
		return
	}

	if _, err := b.sessions.Mutate(userID, func(s *session.Session) error {
		s.TrendCandidates = candidates
		return nil
	}); err != nil {
		b.logger.Warn("storing trend candidates failed", "user_id", userID, "error", err)
	}

	b.reply(ctx, userID, formatTrendList(candidates))
}

func (b *Bot) cmdPreview(ctx context.Context, userID int64) {
	sess, err := b.sessions.Mutate(userID, func(s *session.Session) error {
		_, err := s.PreviewDraft()
		return err
	})
	if err != nil {
		var sv *session.StateViolation
		if errors.As(err, &sv) {
			b.reply(ctx, userID, violationText(sv))
			return
		}
		b.reply(ctx, userID, fmt.Sprintf("Preview failed: %v", err))
		return
	}

	draft := *sess.Draft
	if image, rerr := b.cards.Render(sess.Topic, draft.ImageTheme); rerr != nil {
		b.logger.Warn("card render failed", "theme", draft.ImageTheme, "error", rerr)
	} else if perr := b.tg.SendPhoto(ctx, userID, image, draft.Hook); perr != nil {
		b.logger.Warn("sending preview card failed", "chat_id", userID, "error", perr)
	}

	b.reply(ctx, userID, composer.FormatPost(draft)+"\n\n— Send /publish to post it, or /reset to discard.")
}

func (b *Bot) cmdPublish(ctx context.Context, userID int64) {
	if b.gateway == nil {
		b.reply(ctx, userID, "Publishing is not configured. Store the LinkedIn credentials first: trendbot vault set linkedin_access_token <token> and trendbot config set publish.author_urn <urn>.")
		return
	}

	var epoch uint64
	sess, err := b.sessions.Mutate(userID, func(s *session.Session) error {
		if err := s.BeginPublish(); err != nil {
			return err
		}
		epoch = s.Epoch
		return nil
	})
	if err != nil {
		var sv *session.StateViolation
		if errors.As(err, &sv) {
			b.reply(ctx, userID, violationText(sv))
			return
		}
		b.reply(ctx, userID, fmt.Sprintf("Publishing refused: %v. Use /reset and start over.", err))
		return
	}

	draft := *sess.Draft
	b.reply(ctx, userID, "Publishing to LinkedIn...")

	image, rerr := b.cards.Render(sess.Topic, draft.ImageTheme)
	if rerr != nil {
		// A missing card downgrades the post to text-only rather than blocking it.
		b.logger.Warn("card render failed, publishing text-only", "theme", draft.ImageTheme, "error", rerr)
		image = nil
	}

	out, perr := b.gateway.Publish(ctx, draft, image)
	if perr != nil {
		b.failPublish(ctx, userID, epoch, sess.Topic, perr)
		return
	}

	post := storage.Post{Topic: sess.Topic, PostURN: out.PostID}
	if sess.Research != nil {
		post.Provider = sess.Research.Provider
	}
	if _, serr := b.store.SavePost(post); serr != nil {
		b.logger.Warn("saving post record failed", "post_urn", out.PostID, "error", serr)
	}

	if _, err := b.sessions.Mutate(userID, func(s *session.Session) error {
		if s.Epoch != epoch {
			return errStaleEpoch
		}
		return s.CompletePublish()
	}); err != nil {
		b.logger.Warn("publish completion not committed", "user_id", userID, "error", err)
	}

	// The post is live regardless of session bookkeeping, so always say so.
	b.reply(ctx, userID, fmt.Sprintf("Published! LinkedIn post %s is live.\n\nSend /topic or /scan to start the next one.", out.PostID))
}

// failPublish records the failure, returns the session to previewed so the
// draft survives, and names the failed stage for the user.
func (b *Bot) failPublish(ctx context.Context, userID int64, epoch uint64, topic string, cause error) {
	b.health.RecordError(cause.Error())

	stage := "request"
	var perr *publish.Error
	if errors.As(cause, &perr) {
		stage = perr.Stage
	}
	b.journal("publish_failed", cause.Error(), map[string]any{"topic": topic, "stage": stage})

	if _, err := b.sessions.Mutate(userID, func(s *session.Session) error {
		if s.Epoch != epoch {
			return errStaleEpoch
		}
		return s.FailPublish(cause.Error())
	}); err != nil {
		b.logger.Warn("publish failure not committed", "user_id", userID, "error", err)
		return
	}

	b.reply(ctx, userID, fmt.Sprintf(
		"Publishing failed during the %s step: %v\n\nYour draft is safe. /publish to retry or /reset to drop it.", stage, cause))
}

func (b *Bot) cmdStatus(ctx context.Context, userID int64) {
	st := b.health.Snapshot()
	mood := "healthy"
	if !st.Healthy {
		mood = "degraded"
	}

	posts, err := b.store.CountPosts()
	if err != nil {
		b.logger.Warn("counting posts failed", "error", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Bot: %s\nUptime: %s\nRequests: %d (%d errors)\nPublished posts: %d\n",
		mood, st.Uptime, st.Requests, st.Errors, posts)
	if st.LastError != "" {
		fmt.Fprintf(&sb, "Last error: %s\n", st.LastError)
	}

	if sess, ok := b.sessions.Get(userID); ok {
		fmt.Fprintf(&sb, "\nYour session: %s", sess.Stage)
		if sess.Topic != "" {
			fmt.Fprintf(&sb, "\nTopic: %s", sess.Topic)
		}
	} else {
		sb.WriteString("\nYour session: none yet. Send /topic or /scan to begin.")
	}
	b.reply(ctx, userID, sb.String())
}

func (b *Bot) cmdErrors(ctx context.Context, userID int64) {
	entries, err := b.store.RecentErrors(5)
	if err != nil {
		b.reply(ctx, userID, fmt.Sprintf("Couldn't read the error journal: %v", err))
		return
	}
	if len(entries) == 0 {
		b.reply(ctx, userID, "No failures recorded. All clear.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Recent failures:\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "\n%d. [%s] %s\n   %s\n",
			i+1, e.Kind, e.OccurredAt.Format(time.RFC3339), e.Message)
	}
	b.reply(ctx, userID, sb.String())
}

// allowOrExplain applies the per-user rate limit to research-triggering
// commands and tells the user how long to wait when denied.
func (b *Bot) allowOrExplain(ctx context.Context, userID int64) bool {
	if b.limiter.Allow(userID) {
		return true
	}
	wait := b.limiter.Retry(userID).Round(time.Second)
	if wait <= 0 {
		wait = time.Second
	}
	b.reply(ctx, userID, fmt.Sprintf("Rate limit reached. Try again in about %s.", wait))
	return false
}

// journal writes an entry to the persistent error journal. Journal failures
// are logged, never surfaced to the user.
func (b *Bot) journal(kind, message string, context map[string]any) {
	entry := storage.ErrorEntry{Kind: kind, Message: message}
	if len(context) > 0 {
		if raw, err := json.Marshal(context); err == nil {
			entry.ContextJSON = string(raw)
		}
	}
	if err := b.store.LogError(entry); err != nil {
		b.logger.Warn("journal write failed", "kind", kind, "error", err)
	}
}

// violationText turns a state violation into a chat reply that names the
// current stage and the way out of it.
func violationText(sv *session.StateViolation) string {
	var hint string
	switch sv.Current {
	case session.StageIdle:
		hint = "Start with /topic <text> or /scan."
	case session.StageTopicSet, session.StageResearching:
		hint = "Research is running; results land here when it finishes."
	case session.StagePreviewed:
		hint = "You have a draft waiting: /preview it, /publish it, or /reset."
	case session.StagePublishing:
		hint = "Publishing is in progress; hold on."
	default:
		hint = "Send /status to see where things stand."
	}
	return fmt.Sprintf("Can't %s right now: session is %s. %s", sv.Command, sv.Current, hint)
}

// formatTrendList renders candidates as one numbered list grouped by region,
// so a reply of "3" maps straight back to the third entry.
func formatTrendList(trends []provider.Trend) string {
	var sb strings.Builder
	sb.WriteString("Trending now:\n")
	lastRegion := ""
	for i, t := range trends {
		if t.Region != lastRegion {
			fmt.Fprintf(&sb, "\n%s:\n", regionHeading(t.Region))
			lastRegion = t.Region
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, t.Title)
		if t.Angle != "" {
			fmt.Fprintf(&sb, " - %s", t.Angle)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("\nReply with a number to draft a post about it.")
	return sb.String()
}

func regionHeading(region string) string {
	if region == "" || strings.EqualFold(region, "worldwide") {
		return "Global"
	}
	return region
}
