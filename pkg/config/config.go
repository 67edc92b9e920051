/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ssargent/actionkv/pkg/logging"
	"github.com/ssargent/actionkv/pkg/store"
	"gopkg.in/yaml.v3"
)

// Config represents the ActionKV configuration
type Config struct {
	DataFile      string        `yaml:"data_file"`
	FsyncInterval time.Duration `yaml:"fsync_interval"`
	Index         Index         `yaml:"index"`
	Server        Server        `yaml:"server"`
	RESP          RESP          `yaml:"resp"`
	Logging       Logging       `yaml:"logging"`
}

// Index selects the in-memory index and whether its snapshot is persisted
type Index struct {
	Type  string `yaml:"type"`
	Cache bool   `yaml:"cache"`
}

// Server configures the REST API
type Server struct {
	Bind   string `yaml:"bind"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// RESP configures the Redis protocol listener. Port 0 disables it.
type RESP struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataFile:      "./data/actionkv.akv",
		FsyncInterval: 0,
		Index: Index{
			Type:  string(store.IndexHash),
			Cache: false,
		},
		Server: Server{
			Bind:   "127.0.0.1",
			Port:   8080,
			APIKey: "auto",
		},
		RESP: RESP{
			Bind: "127.0.0.1",
			Port: 6380,
		},
		Logging: Logging{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so a partial file only overrides what it names
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that every setting is usable
func (c *Config) Validate() error {
	if c.DataFile == "" {
		return fmt.Errorf("data_file is required")
	}
	if c.FsyncInterval < 0 {
		return fmt.Errorf("fsync_interval must not be negative")
	}
	if _, err := store.ParseIndexType(c.Index.Type); err != nil {
		return fmt.Errorf("invalid index type: %w", err)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.RESP.Port < 0 || c.RESP.Port > 65535 {
		return fmt.Errorf("invalid resp port %d", c.RESP.Port)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// StoreConfig maps the file settings onto a store configuration
func (c *Config) StoreConfig() store.KVStoreConfig {
	return store.KVStoreConfig{
		Path:          c.DataFile,
		FsyncInterval: c.FsyncInterval,
		IndexType:     store.IndexType(c.Index.Type),
		IndexCache:    c.Index.Cache,
	}
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates a new configuration with a generated API key and saves it
func BootstrapConfig(configPath string, dataFile string) (*Config, error) {
	config := DefaultConfig()
	if dataFile != "" {
		config.DataFile = dataFile
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Server.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./actionkv.yaml"
	}

	// For Linux/macOS, use ~/.config/actionkv/config.yaml
	configDir := filepath.Join(homeDir, ".config", "actionkv")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
