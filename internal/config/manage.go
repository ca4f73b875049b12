package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the platform backend.
func SetKey(key, value string) error {
	b := newPlatformBackend()

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			if s.account == "" {
				return fmt.Errorf("cannot set secret %q via config; supply it via environment variable %s", key, s.env)
			}
			return fmt.Errorf("cannot set secret %q via config; use 'trendbot vault set %s'", key, s.account)
		}
		switch s.typ {
		case kString:
			return b.SetString(key, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		case kBool:
			if _, err := strconv.ParseBool(value); err != nil {
				return fmt.Errorf("invalid bool value for %s: %w", key, err)
			}
			return b.SetString(key, value)
		case kFloat:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return fmt.Errorf("invalid float value for %s: %w", key, err)
			}
			return b.SetString(key, value)
		}
	}

	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// VaultAccounts returns the account names the loader resolves from the vault.
func VaultAccounts() []string {
	var names []string
	for _, s := range specs {
		if s.secret && s.account != "" {
			names = append(names, s.account)
		}
	}
	names = append(names, adminTokenAccount)
	return names
}

const adminTokenAccount = "admin_api_token"

// AdminToken returns the bearer token protecting the management API,
// generating and persisting one on first use. The TREND_ADMIN_TOKEN
// environment variable overrides the stored value.
func AdminToken(v *Vault) (string, error) {
	if tok := os.Getenv("TREND_ADMIN_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := v.Get(adminTokenAccount); err == nil {
		return tok, nil
	}
	tok, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating admin token: %w", err)
	}
	if err := v.Set(adminTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing admin token: %w", err)
	}
	return tok, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
