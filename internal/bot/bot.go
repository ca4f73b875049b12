// Package bot binds the Telegram chat surface to the research, session, and
// publish machinery: one long-poll loop, a command router, and per-user rate
// limiting.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ibrakm/morocco-trend-automator/internal/composer"
	"github.com/ibrakm/morocco-trend-automator/internal/health"
	"github.com/ibrakm/morocco-trend-automator/internal/provider"
	"github.com/ibrakm/morocco-trend-automator/internal/publish"
	"github.com/ibrakm/morocco-trend-automator/internal/session"
	"github.com/ibrakm/morocco-trend-automator/internal/storage"
	"github.com/ibrakm/morocco-trend-automator/internal/telegram"
)

// Messenger is the Telegram surface the bot needs.
type Messenger interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	Updates(ctx context.Context, offset int64, pollTimeout int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// Researcher runs the tiered research chain for a topic.
type Researcher interface {
	Research(ctx context.Context, topic string) (*provider.ResearchResult, error)
}

// CardRenderer produces the share-card image for a draft's theme.
type CardRenderer interface {
	Render(topic, theme string) ([]byte, error)
}

// Journal is the durable history the bot records to.
type Journal interface {
	SavePost(p storage.Post) (storage.Post, error)
	LogError(e storage.ErrorEntry) error
	RecentErrors(limit int) ([]storage.ErrorEntry, error)
	CountPosts() (int, error)
}

// Deps wires the bot to its collaborators.
type Deps struct {
	Telegram    Messenger
	Sessions    *session.Store
	Research    Researcher
	Scanner     provider.TrendScanner
	Composer    *composer.Composer
	Gateway     publish.Gateway
	Cards       CardRenderer
	Store       Journal
	Health      *health.Tracker
	Limiter     *RateLimiter
	PollTimeout int
}

// Bot consumes Telegram updates and drives per-user sessions through the
// topic-research-preview-publish workflow.
type Bot struct {
	tg          Messenger
	sessions    *session.Store
	research    Researcher
	scanner     provider.TrendScanner
	compose     *composer.Composer
	gateway     publish.Gateway
	cards       CardRenderer
	store       Journal
	health      *health.Tracker
	limiter     *RateLimiter
	pollTimeout int
	logger      *slog.Logger
}

// New creates a Bot from its dependencies.
// If PollTimeout <= 0, it defaults to 30 seconds.
func New(d Deps) *Bot {
	if d.PollTimeout <= 0 {
		d.PollTimeout = 30
	}
	if d.Limiter == nil {
		d.Limiter = NewRateLimiter(0, 0)
	}
	return &Bot{
		tg:          d.Telegram,
		sessions:    d.Sessions,
		research:    d.Research,
		scanner:     d.Scanner,
		compose:     d.Composer,
		gateway:     d.Gateway,
		cards:       d.Cards,
		store:       d.Store,
		health:      d.Health,
		limiter:     d.Limiter,
		pollTimeout: d.PollTimeout,
		logger:      slog.Default(),
	}
}

// Run long-polls for updates until ctx is cancelled. Each message is handled
// on its own goroutine; per-user ordering is enforced by the session state
// machine, not the dispatcher.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.tg.GetMe(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("bot online", "username", me.Username)

	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := b.tg.Updates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("polling updates failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, up := range updates {
			if up.ID >= offset {
				offset = up.ID + 1
			}
			if up.Message == nil || strings.TrimSpace(up.Message.Text) == "" {
				continue
			}
			go b.handleMessage(ctx, up.Message)
		}
	}
}

// handleMessage routes one incoming message to its command handler.
func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	b.health.RecordRequest()

	userID := msg.Chat.ID
	command, arg := parseCommand(msg.Text)

	switch command {
	case "start":
		b.cmdStart(ctx, userID)
	case "help":
		b.reply(ctx, userID, helpText)
	case "scan":
		b.cmdScan(ctx, userID)
	case "topic":
		b.cmdTopic(ctx, userID, arg)
	case "preview":
		b.cmdPreview(ctx, userID)
	case "publish":
		b.cmdPublish(ctx, userID)
	case "reset":
		b.cmdReset(ctx, userID)
	case "status":
		b.cmdStatus(ctx, userID)
	case "errors":
		b.cmdErrors(ctx, userID)
	case "":
		b.handleFreeText(ctx, userID, arg)
	default:
		b.reply(ctx, userID, "Unknown command. Send /help for the list.")
	}
}

// parseCommand splits "/topic@SomeBot argan oil" into ("topic", "argan oil").
// Non-command text comes back as ("", text).
func parseCommand(text string) (command, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	rest := text[1:]
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		command, arg = rest[:i], strings.TrimSpace(rest[i+1:])
	} else {
		command = rest
	}
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	return strings.ToLower(command), arg
}

// reply sends text to the user, logging delivery failures.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.tg.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Warn("sending reply failed", "chat_id", chatID, "error", err)
	}
}

const helpText = `Here is what I can do:

/scan - list trending topics (global + Morocco)
/topic <text> - research a topic and draft a post
/preview - show the current draft
/publish - post the draft to LinkedIn
/reset - discard the current draft
/status - bot health and session state
/errors - recent failures
/help - this message

After /scan, reply with a number to pick a trend.`
