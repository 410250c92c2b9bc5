// Package config loads the CLI configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
	"github.com/yamnikov-oleg/rooster/internal/storage"
	"github.com/yamnikov-oleg/rooster/internal/vault"
)

const (
	EnvConfig   = "ROOSTER_CONFIG"
	EnvFile     = "ROOSTER_FILE"
	EnvLogLevel = "ROOSTER_LOG_LEVEL"

	defaultVaultName = ".passwords.rooster"
)

// KDF selects the key derivation used for new vaults and password changes.
// Non-zero cost fields override the profile's values.
type KDF struct {
	Algorithm   string `json:"algorithm"`
	Profile     string `json:"profile,omitempty"`
	Cost        uint32 `json:"cost,omitempty"`
	BlockSize   uint32 `json:"block_size,omitempty"`
	Parallelism uint32 `json:"parallelism,omitempty"`
}

type Config struct {
	VaultPath          string         `json:"vault_path"`
	LogLevel           string         `json:"log_level"`
	KDF                KDF            `json:"kdf"`
	Remote             storage.Config `json:"remote"`
	MinPassphraseScore int            `json:"min_passphrase_score"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	vaultPath := defaultVaultName
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		vaultPath = filepath.Join(home, defaultVaultName)
	}
	return &Config{
		VaultPath:          vaultPath,
		LogLevel:           "info",
		KDF:                KDF{Algorithm: "scrypt"},
		MinPassphraseScore: 3,
	}
}

// DefaultPath is $ROOSTER_CONFIG, or config.json under the user's config
// directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "rooster.json"
	}
	return filepath.Join(dir, "rooster", "config.json")
}

// Load reads the configuration at path (DefaultPath when empty). A missing
// file yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := DefaultConfig()

	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvFile); v != "" {
		c.VaultPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return fmt.Errorf("vault_path is empty")
	}
	if c.MinPassphraseScore < 0 || c.MinPassphraseScore > 4 {
		return fmt.Errorf("invalid min_passphrase_score: %d", c.MinPassphraseScore)
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("invalid kdf: %w", err)
	}
	return nil
}

// Policy resolves the kdf section into vault parameters.
func (c *Config) Policy() (vault.Policy, error) {
	p, err := cr.Preset(c.KDF.Algorithm, c.KDF.Profile)
	if err != nil {
		return vault.Policy{}, err
	}
	if c.KDF.Cost != 0 {
		p.Cost = c.KDF.Cost
	}
	if c.KDF.BlockSize != 0 {
		p.BlockSize = c.KDF.BlockSize
	}
	if c.KDF.Parallelism != 0 {
		p.Parallelism = c.KDF.Parallelism
	}
	if err := p.Validate(); err != nil {
		return vault.Policy{}, err
	}
	return vault.Policy{KDF: p}, nil
}

// SaveConfig saves the configuration to a JSON file
func (c *Config) SaveConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config file: %w", err)
	}
	return nil
}
