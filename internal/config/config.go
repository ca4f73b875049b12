package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Storage    StorageConfig
	Telegram   TelegramConfig
	Session    SessionConfig
	RateLimit  RateLimitConfig
	Research   ResearchConfig
	Gemini     GeminiConfig
	OpenAI     OpenAIConfig
	Perplexity PerplexityConfig
	Publish    PublishConfig
	Vault      VaultConfig
}

type ServerConfig struct {
	Bind string
	Port int
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

type TelegramConfig struct {
	BotToken    string
	PollTimeout int // long-poll timeout in seconds
}

type SessionConfig struct {
	TTL string
}

// TTLDuration parses Session.TTL, falling back to 30m on a bad value.
func (c SessionConfig) TTLDuration() time.Duration {
	return parseDuration(c.TTL, 30*time.Minute)
}

type RateLimitConfig struct {
	Requests int
	Window   string
}

func (c RateLimitConfig) WindowDuration() time.Duration {
	return parseDuration(c.Window, time.Minute)
}

type ResearchConfig struct {
	Timeout            string
	RelevanceEnabled   bool
	RelevanceThreshold float64
}

func (c ResearchConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 45*time.Second)
}

type GeminiConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type PerplexityConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type PublishConfig struct {
	BaseURL     string
	AuthorURN   string
	Timeout     string
	AccessToken string
}

func (c PublishConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 60*time.Second)
}

type VaultConfig struct {
	Path string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 8090,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Telegram: TelegramConfig{
			PollTimeout: 30,
		},
		Session: SessionConfig{
			TTL: "30m",
		},
		RateLimit: RateLimitConfig{
			Requests: 10,
			Window:   "1m",
		},
		Research: ResearchConfig{
			Timeout:            "45s",
			RelevanceEnabled:   true,
			RelevanceThreshold: 0.3,
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.5-flash",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o-mini",
		},
		Perplexity: PerplexityConfig{
			BaseURL: "https://api.perplexity.ai",
			Model:   "sonar",
		},
		Publish: PublishConfig{
			BaseURL: "https://api.linkedin.com",
			Timeout: "60s",
		},
		Vault: VaultConfig{
			Path: filepath.Join(dataDir, "credentials.enc"),
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the encrypted credential vault.
//
// On macOS the backend is UserDefaults (domain: com.trendbot.app); on Linux
// it is a JSON file at $XDG_CONFIG_HOME/trendbot/config.json. Environment
// variables (TREND_*) override backend values on all platforms. Secrets are
// resolved from the environment first, then from the vault at Vault.Path,
// decrypted with the passphrase in TREND_VAULT_KEY. A vault file that exists
// but cannot be decrypted is a fatal load error.
func Load() (Config, error) {
	// A .env file next to the process is honored for development setups.
	_ = godotenv.Load()

	cfg := defaults()
	if err := applyBackend(&cfg, newPlatformBackend()); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	vault := NewVault(cfg.Vault.Path, os.Getenv(vaultKeyEnv))
	if err := vault.Load(); err != nil {
		return Config{}, fmt.Errorf("opening credential vault: %w", err)
	}
	return finishLoad(cfg, vault)
}

// secretSource abstracts the vault for testing.
type secretSource interface {
	Get(account string) (string, error)
}

// finishLoad resolves secrets and validates required fields. Backend and env
// values are already applied to cfg.
func finishLoad(cfg Config, sec secretSource) (Config, error) {
	for _, s := range specs {
		if !s.secret || s.account == "" {
			continue
		}
		if v, _ := s.extract(cfg).(string); v != "" {
			continue // already set via environment
		}
		if val, err := sec.Get(s.account); err == nil && val != "" {
			s.apply(&cfg, val)
		}
	}

	// The OpenAI key is deploy-time environment configuration, never vaulted.
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if cfg.Telegram.BotToken == "" {
		msg := "missing required config: Telegram bot token. " +
			"Set it via environment variable TREND_TELEGRAM_BOT_TOKEN " +
			"or store it with 'trendbot vault set telegram_bot_token'"
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
