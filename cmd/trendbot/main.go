package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "trendbot",
	Short: "Telegram bot that researches trends and drafts LinkedIn posts",
	Long: `trendbot runs a Telegram bot that researches topics through a chain of
AI providers (Gemini, OpenAI, Perplexity), composes a LinkedIn post with a
branded image card, and publishes it once you confirm in chat.

Start the bot with 'trendbot start', then talk to it on Telegram.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(sessionsCmd)

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
