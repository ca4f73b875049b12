package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// vaultKeyEnv names the environment variable holding the vault passphrase.
// The derived key never leaves the process.
const vaultKeyEnv = "TREND_VAULT_KEY"

// Vault is an encrypted-at-rest credential store. Secrets are kept as a flat
// account->value map, sealed with AES-256-GCM under a key derived from the
// operator's passphrase, and decrypted once at startup.
type Vault struct {
	path    string
	key     []byte // nil when no passphrase is configured
	secrets map[string]string
}

// NewVault creates a Vault for the file at path. An empty passphrase yields a
// disabled vault: Load succeeds only if the file does not exist, and Get
// returns nothing.
func NewVault(path, passphrase string) *Vault {
	v := &Vault{path: path, secrets: make(map[string]string)}
	if passphrase != "" {
		key := sha256.Sum256([]byte(passphrase))
		v.key = key[:]
	}
	return v
}

// Load reads and decrypts the vault file. A missing file is not an error (the
// vault starts empty). A file that exists but cannot be decrypted is an error;
// callers treat that as fatal.
func (v *Vault) Load() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading vault file: %w", err)
	}
	if v.key == nil {
		return fmt.Errorf("vault file %s exists but %s is not set", v.path, vaultKeyEnv)
	}
	plain, err := openSealed(v.key, data)
	if err != nil {
		return fmt.Errorf("decrypting vault file %s (wrong %s?): %w", v.path, vaultKeyEnv, err)
	}
	if err := json.Unmarshal(plain, &v.secrets); err != nil {
		return fmt.Errorf("parsing vault contents: %w", err)
	}
	if v.secrets == nil {
		v.secrets = make(map[string]string)
	}
	return nil
}

// Get returns the secret for account, or an error if it is absent.
func (v *Vault) Get(account string) (string, error) {
	val, ok := v.secrets[account]
	if !ok || val == "" {
		return "", fmt.Errorf("account %q not found in vault", account)
	}
	return val, nil
}

// Set stores a secret and rewrites the encrypted file.
func (v *Vault) Set(account, value string) error {
	if v.key == nil {
		return fmt.Errorf("%s is not set; cannot write to the vault", vaultKeyEnv)
	}
	v.secrets[account] = value
	return v.save()
}

// Accounts returns the stored account names, sorted. Values are never listed.
func (v *Vault) Accounts() []string {
	names := make([]string, 0, len(v.secrets))
	for name := range v.secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *Vault) save() error {
	plain, err := json.Marshal(v.secrets)
	if err != nil {
		return err
	}
	sealed, err := seal(v.key, plain)
	if err != nil {
		return fmt.Errorf("encrypting vault: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return fmt.Errorf("creating vault dir: %w", err)
	}
	return os.WriteFile(v.path, sealed, 0o600)
}

// seal encrypts plain with AES-256-GCM; the nonce is prepended to the output.
func seal(key, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func openSealed(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("vault file truncated")
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed")
	}
	return plain, nil
}

// OpenDefaultVault builds the vault from the resolved config path and the
// process environment, without requiring a full config load to have
// succeeded. Used by CLI vault commands and admin-token bootstrap.
func OpenDefaultVault() (*Vault, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, newPlatformBackend()); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	v := NewVault(cfg.Vault.Path, os.Getenv(vaultKeyEnv))
	if err := v.Load(); err != nil {
		return nil, err
	}
	return v, nil
}
