package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibrakm/morocco-trend-automator/internal/config"
)

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- vault ---

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage encrypted credentials",
	Long: `Manage the encrypted credential vault.

Secrets are sealed with AES-256-GCM using the passphrase in TREND_VAULT_KEY.
The OpenAI API key is the exception: it is read from the environment only
(TREND_OPENAI_API_KEY or OPENAI_API_KEY) and never stored in the vault.

Examples:
  trendbot vault set telegram_bot_token 123456:ABC-DEF
  trendbot vault set linkedin_access_token AQX...
  trendbot vault list`,
}

var vaultSetCmd = &cobra.Command{
	Use:   "set <account> [value]",
	Short: "Store a credential in the vault",
	Long: `Store a credential in the vault. When the value is omitted it is read
from stdin, which keeps the secret out of shell history.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account := args[0]

		known := false
		for _, name := range config.VaultAccounts() {
			if name == account {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown vault account %q; valid accounts: %v", account, config.VaultAccounts())
		}

		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			fmt.Fprintf(os.Stderr, "Value for %s: ", account)
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading value from stdin: %w", err)
			}
			value = strings.TrimSpace(line)
		}
		if value == "" {
			return fmt.Errorf("empty value for %s", account)
		}

		vault, err := config.OpenDefaultVault()
		if err != nil {
			return fmt.Errorf("opening credential vault: %w", err)
		}
		if err := vault.Set(account, value); err != nil {
			return fmt.Errorf("storing credential: %w", err)
		}

		printSuccess("Stored %s", account)
		return nil
	},
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vault accounts and whether each is set",
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := config.OpenDefaultVault()
		if err != nil {
			return fmt.Errorf("opening credential vault: %w", err)
		}

		present := make(map[string]bool)
		for _, name := range vault.Accounts() {
			present[name] = true
		}

		names := config.VaultAccounts()
		sort.Strings(names)
		for _, name := range names {
			state := "unset"
			if present[name] {
				state = colorize(colorGreen, "set")
			}
			fmt.Printf("  %s = %s\n", colorize(colorBold, name), state)
		}
		return nil
	},
}

func init() {
	vaultCmd.AddCommand(vaultSetCmd)
	vaultCmd.AddCommand(vaultListCmd)
}

// --- posts ---

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Inspect the published-post history",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List published LinkedIn posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(context.Background(), fmt.Sprintf("/posts?limit=%d", limit))
		if err != nil {
			return err
		}

		var posts []struct {
			ID          string
			Topic       string
			Provider    string
			PostURN     string
			PublishedAt time.Time
		}
		if err := decodeJSON(resp, &posts); err != nil {
			return err
		}

		if len(posts) == 0 {
			fmt.Println("No posts published yet.")
			return nil
		}

		for _, p := range posts {
			fmt.Printf("%s  %s  %s  (%s)\n",
				colorize(colorCyan, p.PublishedAt.Format("2006-01-02 15:04")),
				p.PostURN,
				p.Topic,
				p.Provider,
			)
		}
		return nil
	},
}

func init() {
	postsListCmd.Flags().Int("limit", 20, "maximum number of posts to list")
	postsCmd.AddCommand(postsListCmd)
}

// --- errors ---

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Inspect the error journal",
}

var errorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent entries from the error journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(context.Background(), fmt.Sprintf("/errors?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			OccurredAt time.Time
			Kind       string
			Message    string
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No failures recorded.")
			return nil
		}

		for _, e := range entries {
			msg := e.Message
			if len(msg) > 120 {
				msg = msg[:120] + "..."
			}
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, e.OccurredAt.Format("2006-01-02 15:04")),
				colorize(colorBold, e.Kind),
				msg,
			)
		}
		return nil
	},
}

func init() {
	errorsListCmd.Flags().Int("limit", 20, "maximum number of entries to list")
	errorsCmd.AddCommand(errorsListCmd)
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect or reset chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(context.Background(), "/sessions")
		if err != nil {
			return err
		}

		var sessions []struct {
			UserID    int64  `json:"user_id"`
			Stage     string `json:"stage"`
			Topic     string `json:"topic"`
			HasDraft  bool   `json:"has_draft"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No active sessions.")
			return nil
		}

		for _, s := range sessions {
			line := fmt.Sprintf("%s  %s",
				colorize(colorCyan, strconv.FormatInt(s.UserID, 10)),
				colorize(colorBold, s.Stage),
			)
			if s.Topic != "" {
				line += "  " + s.Topic
			}
			if s.HasDraft {
				line += "  [draft]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var sessionsResetCmd = &cobra.Command{
	Use:   "reset <userID>",
	Short: "Force-reset a stuck session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user ID %q: %w", args[0], err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(context.Background(), fmt.Sprintf("/sessions/%d", userID))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session %d reset", userID)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsResetCmd)
}
