package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ssargent/actionkv/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runAKV executes the command tree with args and returns stdout and stderr
func runAKV(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func dataFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "cli.akv")
}

func TestCLI_InsertGetShow(t *testing.T) {
	file := dataFile(t)

	out, _, err := runAKV(t, "", "-f", file, "insert", "name", "ada lovelace")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)

	out, _, err = runAKV(t, "", "-f", file, "get", "name")
	require.NoError(t, err)
	assert.Equal(t, "\"ada lovelace\"\n", out)

	out, _, err = runAKV(t, "", "-f", file, "show", "name")
	require.NoError(t, err)
	assert.Equal(t, "ada lovelace\n", out)
}

func TestCLI_UpdateDeleteAcrossRuns(t *testing.T) {
	file := dataFile(t)

	_, _, err := runAKV(t, "", "-f", file, "insert", "a", "1")
	require.NoError(t, err)
	_, _, err = runAKV(t, "", "-f", file, "insert", "b", "2")
	require.NoError(t, err)
	_, _, err = runAKV(t, "", "-f", file, "delete", "a")
	require.NoError(t, err)
	_, _, err = runAKV(t, "", "-f", file, "update", "b", "3")
	require.NoError(t, err)

	out, _, err := runAKV(t, "", "-f", file, "get", "a")
	require.NoError(t, err)
	assert.Equal(t, "(not found)\n", out)

	out, _, err = runAKV(t, "", "-f", file, "show", "b")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	_, _, err = runAKV(t, "", "-f", file, "delete", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key not found")
}

func TestCLI_Keys(t *testing.T) {
	file := dataFile(t)
	for _, k := range []string{"user:2", "user:1", "item:1"} {
		_, _, err := runAKV(t, "", "-f", file, "--index", "btree", "insert", k, "v")
		require.NoError(t, err)
	}

	out, _, err := runAKV(t, "", "-f", file, "keys", "user:")
	require.NoError(t, err)
	assert.Equal(t, "user:1\nuser:2\n", out)
}

func TestCLI_IndexCache(t *testing.T) {
	file := dataFile(t)

	_, _, err := runAKV(t, "", "-f", file, "--index-cache", "insert", "k", "v")
	require.NoError(t, err)
	assert.FileExists(t, file+".manifest")

	out, _, err := runAKV(t, "", "-f", file, "--index-cache", "get", "k")
	require.NoError(t, err)
	assert.Equal(t, "\"v\"\n", out)

	out, _, err = runAKV(t, "", "-f", file, "flush-index")
	require.NoError(t, err)
	assert.Contains(t, out, "flushed 1 keys")
}

func TestCLI_Stats(t *testing.T) {
	file := dataFile(t)
	_, _, err := runAKV(t, "", "-f", file, "insert", "a", "1")
	require.NoError(t, err)

	out, _, err := runAKV(t, "", "-f", file, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"keys": 1`)
	assert.Contains(t, out, `"data_size": 14`)
}

func TestCLI_RejectsReservedKey(t *testing.T) {
	_, _, err := runAKV(t, "", "-f", dataFile(t), "insert", "+index+", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestCLI_InvalidIndex(t *testing.T) {
	_, _, err := runAKV(t, "", "-f", dataFile(t), "--index", "skiplist", "get", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestCLI_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "akv.yaml")
	cfg := config.DefaultConfig()
	cfg.DataFile = filepath.Join(dir, "from-config.akv")
	cfg.Logging.Level = "error"
	require.NoError(t, config.SaveConfig(cfg, cfgPath))

	_, _, err := runAKV(t, "", "--config", cfgPath, "insert", "k", "v")
	require.NoError(t, err)
	assert.FileExists(t, cfg.DataFile)
}

func TestCLI_Init(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "akv.yaml")
	file := filepath.Join(dir, "store.akv")

	out, _, err := runAKV(t, "", "--config", cfgPath, "-f", file, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "API key: ")

	loaded, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, file, loaded.DataFile)
	assert.Len(t, loaded.Server.APIKey, 64)

	out, _, err = runAKV(t, "", "--config", cfgPath, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestCLI_Export(t *testing.T) {
	file := dataFile(t)
	_, _, err := runAKV(t, "", "-f", file, "insert", "a", "1")
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "out.db")
	out, _, err := runAKV(t, "", "-f", file, "export", "--format", "bolt", "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 keys")

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.Size() > 0)
}
