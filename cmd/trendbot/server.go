package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ibrakm/morocco-trend-automator/internal/api"
	"github.com/ibrakm/morocco-trend-automator/internal/bot"
	"github.com/ibrakm/morocco-trend-automator/internal/composer"
	"github.com/ibrakm/morocco-trend-automator/internal/config"
	"github.com/ibrakm/morocco-trend-automator/internal/health"
	"github.com/ibrakm/morocco-trend-automator/internal/imagecard"
	"github.com/ibrakm/morocco-trend-automator/internal/provider"
	"github.com/ibrakm/morocco-trend-automator/internal/publish"
	"github.com/ibrakm/morocco-trend-automator/internal/research"
	"github.com/ibrakm/morocco-trend-automator/internal/session"
	"github.com/ibrakm/morocco-trend-automator/internal/storage"
	"github.com/ibrakm/morocco-trend-automator/internal/telegram"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the trendbot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running trendbot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show trendbot system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "trendbot.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "trendbot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Admin bearer token lives in the vault; generated on first start.
	vault, err := config.OpenDefaultVault()
	if err != nil {
		return fmt.Errorf("opening credential vault: %w", err)
	}
	adminToken, err := config.AdminToken(vault)
	if err != nil {
		return fmt.Errorf("initializing admin token: %w", err)
	}
	slog.Info("admin bearer token available")

	// Write PID file. Check if the server is already running via the health
	// endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://%s:%d/health", cfg.Server.Bind, cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, probeErr := healthClient.Get(healthURL); probeErr == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("trendbot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("trendbot is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Assemble the research chain from the configured providers, in
	// priority order. At least one tier must be configured.
	researchTimeout := cfg.Research.TimeoutDuration()
	var tiers []provider.ContentProvider
	var scanner provider.TrendScanner
	if cfg.Gemini.APIKey != "" {
		tiers = append(tiers, provider.NewGeminiWithBaseURL(cfg.Gemini.APIKey, cfg.Gemini.Model, researchTimeout, cfg.Gemini.BaseURL))
	}
	if cfg.OpenAI.APIKey != "" {
		tiers = append(tiers, provider.NewOpenAIWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.Model, researchTimeout, cfg.OpenAI.BaseURL))
	}
	if cfg.Perplexity.APIKey != "" {
		px := provider.NewPerplexityWithBaseURL(cfg.Perplexity.APIKey, cfg.Perplexity.Model, researchTimeout, cfg.Perplexity.BaseURL)
		tiers = append(tiers, px)
		scanner = px
	}
	if len(tiers) == 0 {
		return fmt.Errorf("no research providers configured; set at least one of TREND_GEMINI_API_KEY, TREND_OPENAI_API_KEY, TREND_PERPLEXITY_API_KEY")
	}
	slog.Info("research chain assembled", "tiers", len(tiers), "trend_scanner", scanner != nil)

	checker := research.NewChecker(cfg.Research.RelevanceEnabled, cfg.Research.RelevanceThreshold)
	orchestrator := research.NewOrchestrator(tiers, checker)

	// Publishing is optional at startup; the bot tells users when it is not
	// configured.
	var gateway publish.Gateway
	if cfg.Publish.AccessToken != "" && cfg.Publish.AuthorURN != "" {
		gateway = publish.NewLinkedInWithBaseURL(cfg.Publish.AccessToken, cfg.Publish.AuthorURN, cfg.Publish.BaseURL, cfg.Publish.TimeoutDuration())
		slog.Info("LinkedIn publishing configured", "author", cfg.Publish.AuthorURN)
	} else {
		slog.Warn("LinkedIn publishing not configured; /publish will be refused")
	}

	sessions := session.NewStore(cfg.Session.TTLDuration())
	tracker := health.NewTracker()
	comp := composer.New(0)

	chatBot := bot.New(bot.Deps{
		Telegram:    telegram.New(cfg.Telegram.BotToken),
		Sessions:    sessions,
		Research:    orchestrator,
		Scanner:     scanner,
		Composer:    comp,
		Gateway:     gateway,
		Cards:       imagecard.New(),
		Store:       store,
		Health:      tracker,
		Limiter:     bot.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.WindowDuration()),
		PollTimeout: cfg.Telegram.PollTimeout,
	})

	appHandler := api.NewAppHandler(api.AppDeps{
		Sessions: sessions,
		Store:    store,
		Health:   tracker,
		Token:    adminToken,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Bind, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Optionally serve MCP tools over stdio.
	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:    store,
			Research: orchestrator,
			Composer: comp,
			Health:   tracker,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Run the poller, the session janitor, and the admin server together;
	// the first hard failure tears the rest down.
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := chatBot.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("telegram poller: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sessions.Run(gCtx, 0)
		return nil
	})
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "trendbot admin API listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "shutdown complete")
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("trendbot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop trendbot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to trendbot (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://%s:%d", cfg.Server.Bind, cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	var tierNames []string
	if cfg.Gemini.APIKey != "" {
		tierNames = append(tierNames, "gemini")
	}
	if cfg.OpenAI.APIKey != "" {
		tierNames = append(tierNames, "openai")
	}
	if cfg.Perplexity.APIKey != "" {
		tierNames = append(tierNames, "perplexity")
	}
	if len(tierNames) == 0 {
		printStatus("Research tiers", "none configured")
	} else {
		printStatus("Research tiers", "%s", strings.Join(tierNames, ", "))
	}

	if cfg.Publish.AccessToken != "" && cfg.Publish.AuthorURN != "" {
		printStatus("Publishing", "configured (%s)", cfg.Publish.AuthorURN)
	} else {
		printStatus("Publishing", "not configured")
	}

	// Show live counters when the server is up.
	if running {
		if apiCli, err := newAPIClient(); err == nil {
			statusResp, err := apiCli.get(context.Background(), "/status")
			if err == nil {
				var status struct {
					ActiveSessions int `json:"active_sessions"`
					PublishedPosts int `json:"published_posts"`
					JournalErrors  int `json:"journal_errors"`
					SchemaVersion  int `json:"schema_version"`
				}
				if decodeJSON(statusResp, &status) == nil {
					printStatus("Active sessions", "%d", status.ActiveSessions)
					printStatus("Published posts", "%d", status.PublishedPosts)
					printStatus("Journal errors", "%d", status.JournalErrors)
					printStatus("Schema version", "%d", status.SchemaVersion)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
