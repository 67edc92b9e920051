package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ssargent/actionkv/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "./data/actionkv.akv", config.DataFile)
	assert.Equal(t, time.Duration(0), config.FsyncInterval)
	assert.Equal(t, "hash", config.Index.Type)
	assert.False(t, config.Index.Cache)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Bind)
	assert.Equal(t, "auto", config.Server.APIKey)
	assert.Equal(t, 6380, config.RESP.Port)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "console", config.Logging.Format)
	assert.NoError(t, config.Validate())
}

func TestGenerateSecureKey(t *testing.T) {
	t.Run("generate 32 byte key", func(t *testing.T) {
		key, err := GenerateSecureKey(32)
		require.NoError(t, err)
		assert.Len(t, key, 64) // 32 bytes = 64 hex characters

		_, err = hex.DecodeString(key)
		assert.NoError(t, err)
	})

	t.Run("generate different keys", func(t *testing.T) {
		key1, err := GenerateSecureKey(16)
		require.NoError(t, err)
		key2, err := GenerateSecureKey(16)
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})

	t.Run("zero length", func(t *testing.T) {
		key, err := GenerateSecureKey(0)
		require.NoError(t, err)
		assert.Empty(t, key)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("load existing config", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		expectedConfig := &Config{
			DataFile:      "/custom/data/store.akv",
			FsyncInterval: 250 * time.Millisecond,
			Index:         Index{Type: "btree", Cache: true},
			Server:        Server{Bind: "0.0.0.0", Port: 9000, APIKey: "test-api-key"},
			RESP:          RESP{Bind: "0.0.0.0", Port: 0},
			Logging:       Logging{Level: "debug", Format: "json"},
		}

		err := SaveConfig(expectedConfig, configPath)
		require.NoError(t, err)

		loadedConfig, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, expectedConfig, loadedConfig)
	})

	t.Run("partial config keeps defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "partial.yaml")
		err := os.WriteFile(configPath, []byte("data_file: /tmp/x.akv\nindex:\n  type: art\n"), 0600)
		require.NoError(t, err)

		loadedConfig, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/x.akv", loadedConfig.DataFile)
		assert.Equal(t, "art", loadedConfig.Index.Type)
		assert.Equal(t, 8080, loadedConfig.Server.Port)
		assert.Equal(t, "info", loadedConfig.Logging.Level)
	})

	t.Run("load non-existent config", func(t *testing.T) {
		_, err := LoadConfig("/non/existent/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})

	t.Run("load invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644)
		require.NoError(t, err)

		_, err = LoadConfig(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	config := DefaultConfig()

	err := SaveConfig(config, configPath)
	require.NoError(t, err)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestBootstrapConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	dataFile := "/custom/data/dir/store.akv"

	config, err := BootstrapConfig(configPath, dataFile)
	require.NoError(t, err)

	assert.Equal(t, dataFile, config.DataFile)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Bind)
	assert.Equal(t, "info", config.Logging.Level)

	assert.NotEqual(t, "auto", config.Server.APIKey)
	_, err = hex.DecodeString(config.Server.APIKey)
	assert.NoError(t, err)

	assert.True(t, ConfigExists(configPath))

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing data file", func(c *Config) { c.DataFile = "" }, "data_file is required"},
		{"negative fsync", func(c *Config) { c.FsyncInterval = -time.Second }, "fsync_interval"},
		{"unknown index", func(c *Config) { c.Index.Type = "skiplist" }, "invalid index type"},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"bad resp port", func(c *Config) { c.RESP.Port = -1 }, "invalid resp port"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "unknown log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "unknown log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStoreConfig(t *testing.T) {
	config := DefaultConfig()
	config.DataFile = "/tmp/a.akv"
	config.Index = Index{Type: "btree", Cache: true}
	config.FsyncInterval = time.Second

	sc := config.StoreConfig()
	assert.Equal(t, "/tmp/a.akv", sc.Path)
	assert.Equal(t, store.IndexBTree, sc.IndexType)
	assert.True(t, sc.IndexCache)
	assert.Equal(t, time.Second, sc.FsyncInterval)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "actionkv")
	assert.Contains(t, path, "yaml")
}

func TestConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingPath := filepath.Join(tmpDir, "exists.yaml")
	nonExistentPath := filepath.Join(tmpDir, "does-not-exist.yaml")

	err := os.WriteFile(existingPath, []byte("test"), 0644)
	require.NoError(t, err)

	assert.True(t, ConfigExists(existingPath))
	assert.False(t, ConfigExists(nonExistentPath))
}

func TestConfigYAMLDurations(t *testing.T) {
	var config Config
	err := yaml.Unmarshal([]byte("fsync_interval: 1500ms\n"), &config)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, config.FsyncInterval)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	config := DefaultConfig()

	// A regular file where a directory is expected cannot be created over
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	err := SaveConfig(config, filepath.Join(blocker, "sub", "config.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}
