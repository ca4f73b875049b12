package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	account string // vault account name for secrets
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.bind", typ: kString, env: "TREND_SERVER_BIND",
		apply:   func(cfg *Config, v any) { cfg.Server.Bind = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Bind },
	},
	{
		key: "server.port", typ: kInt, env: "TREND_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "TREND_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TREND_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "telegram.poll_timeout", typ: kInt, env: "TREND_TELEGRAM_POLL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Telegram.PollTimeout = v.(int) },
		extract: func(cfg Config) any { return cfg.Telegram.PollTimeout },
	},
	{
		key: "telegram.bot_token", typ: kString, env: "TREND_TELEGRAM_BOT_TOKEN",
		secret: true, account: "telegram_bot_token",
		apply:   func(cfg *Config, v any) { cfg.Telegram.BotToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Telegram.BotToken },
	},
	{
		key: "session.ttl", typ: kString, env: "TREND_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Session.TTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.TTL },
	},
	{
		key: "ratelimit.requests", typ: kInt, env: "TREND_RATELIMIT_REQUESTS",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Requests = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.Requests },
	},
	{
		key: "ratelimit.window", typ: kString, env: "TREND_RATELIMIT_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Window = v.(string) },
		extract: func(cfg Config) any { return cfg.RateLimit.Window },
	},
	{
		key: "research.timeout", typ: kString, env: "TREND_RESEARCH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Research.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Research.Timeout },
	},
	{
		key: "research.relevance_enabled", typ: kBool, env: "TREND_RESEARCH_RELEVANCE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Research.RelevanceEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Research.RelevanceEnabled },
	},
	{
		key: "research.relevance_threshold", typ: kFloat, env: "TREND_RESEARCH_RELEVANCE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Research.RelevanceThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Research.RelevanceThreshold },
	},
	{
		key: "gemini.base_url", typ: kString, env: "TREND_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.model", typ: kString, env: "TREND_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.api_key", typ: kString, env: "TREND_GEMINI_API_KEY",
		secret: true, account: "gemini_api_key",
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "TREND_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.model", typ: kString, env: "TREND_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Model },
	},
	{
		// Paid-tier credential: environment only, never written to the vault.
		key: "openai.api_key", typ: kString, env: "TREND_OPENAI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "perplexity.base_url", typ: kString, env: "TREND_PERPLEXITY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Perplexity.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Perplexity.BaseURL },
	},
	{
		key: "perplexity.model", typ: kString, env: "TREND_PERPLEXITY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Perplexity.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Perplexity.Model },
	},
	{
		key: "perplexity.api_key", typ: kString, env: "TREND_PERPLEXITY_API_KEY",
		secret: true, account: "perplexity_api_key",
		apply:   func(cfg *Config, v any) { cfg.Perplexity.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Perplexity.APIKey },
	},
	{
		key: "publish.base_url", typ: kString, env: "TREND_PUBLISH_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Publish.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.BaseURL },
	},
	{
		key: "publish.author_urn", typ: kString, env: "TREND_PUBLISH_AUTHOR_URN",
		apply:   func(cfg *Config, v any) { cfg.Publish.AuthorURN = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.AuthorURN },
	},
	{
		key: "publish.timeout", typ: kString, env: "TREND_PUBLISH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Publish.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.Timeout },
	},
	{
		key: "publish.access_token", typ: kString, env: "TREND_LINKEDIN_ACCESS_TOKEN",
		secret: true, account: "linkedin_access_token",
		apply:   func(cfg *Config, v any) { cfg.Publish.AccessToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.AccessToken },
	},
	{
		key: "vault.path", typ: kString, env: "TREND_VAULT_PATH",
		apply:   func(cfg *Config, v any) { cfg.Vault.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Vault.Path },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
