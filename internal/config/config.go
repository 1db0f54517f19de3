// Package config loads and saves the credvault YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miratopia/credvault/internal/store"
	"github.com/miratopia/credvault/internal/vault"
)

// File names inside the data directories.
const (
	VaultFileName = "vault.hold"
	SaltFileName  = "salt.txt"
)

// DefaultPasswordEnv is the environment variable read for the vault password.
const DefaultPasswordEnv = "CREDVAULT_PASSWORD"

// Config represents the credvault configuration
type Config struct {
	DataDir      string        `yaml:"data_dir"`
	LocalDataDir string        `yaml:"local_data_dir"`
	KDF          KDFConfig     `yaml:"kdf"`
	PasswordEnv  string        `yaml:"password_env"`
	ClipboardTTL time.Duration `yaml:"clipboard_ttl"`
	LogLevel     string        `yaml:"log_level"`
}

// KDFConfig represents the Argon2id parameters used to derive the vault key.
// Changing them makes an existing vault unreadable.
type KDFConfig struct {
	Memory      uint32 `yaml:"memory"`
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
}

// Params converts the configuration to KDF parameters.
func (k KDFConfig) Params() vault.Argon2Params {
	return vault.Argon2Params{
		Memory:      k.Memory,
		Iterations:  k.Iterations,
		Parallelism: k.Parallelism,
	}
}

// DefaultConfigPath returns $HOME/.config/credvault/config.yaml.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "credvault", "config.yaml")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "credvault")
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		dataDir = filepath.Join(xdg, "credvault")
	}
	localDir := filepath.Join(home, ".local", "state", "credvault")
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		localDir = filepath.Join(xdg, "credvault")
	}

	params := vault.DefaultArgon2Params()
	return &Config{
		DataDir:      dataDir,
		LocalDataDir: localDir,
		KDF: KDFConfig{
			Memory:      params.Memory,
			Iterations:  params.Iterations,
			Parallelism: params.Parallelism,
		},
		PasswordEnv:  DefaultPasswordEnv,
		ClipboardTTL: 30 * time.Second,
		LogLevel:     "warn",
	}
}

// Paths returns the vault and salt file locations.
func (c *Config) Paths() store.Paths {
	return store.Paths{
		VaultPath: filepath.Join(c.DataDir, VaultFileName),
		SaltPath:  filepath.Join(c.LocalDataDir, SaltFileName),
	}
}

// Level parses LogLevel. Unknown values fall back to warn.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.LocalDataDir == "" {
		return fmt.Errorf("local_data_dir must be set")
	}
	if c.PasswordEnv == "" {
		return fmt.Errorf("password_env must be set")
	}
	if c.ClipboardTTL < 0 {
		return fmt.Errorf("clipboard_ttl must not be negative")
	}
	if err := c.KDF.Params().Validate(); err != nil {
		return fmt.Errorf("invalid kdf parameters: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from file or returns default
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(cfg, configPath); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(cfg *Config, configPath string) error {
	cleanPath := filepath.Clean(configPath)

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cleanPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
