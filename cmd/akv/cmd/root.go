/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"
	"github.com/ssargent/actionkv/pkg/config"
	"github.com/ssargent/actionkv/pkg/logging"
	"github.com/ssargent/actionkv/pkg/store"
)

// options holds the global flags
type options struct {
	configPath string
	file       string
	index      string
	indexCache bool
	logLevel   string
	logFormat  string
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "akv",
		Short: "ActionKV - append-only log key-value store",
		Long: `ActionKV keeps key-value pairs in a single append-only data file and
rebuilds an in-memory index of record offsets when the file is loaded.

Run without a subcommand to start an interactive shell.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShellCommand(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default "+config.GetDefaultConfigPath()+" when present)")
	flags.StringVarP(&opts.file, "file", "f", "", "Data file for the store")
	flags.StringVar(&opts.index, "index", "", "Index type: hash, btree or art")
	flags.BoolVar(&opts.indexCache, "index-cache", false, "Restore the index from the cache record and flush it after each change")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")

	rootCmd.AddCommand(
		newGetCmd(opts),
		newShowCmd(opts),
		newInsertCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
		newKeysCmd(opts),
		newStatsCmd(opts),
		newFlushIndexCmd(opts),
		newShellCmd(opts),
		newServeCmd(opts),
		newExportCmd(opts),
		newInitCmd(opts),
	)
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides
func (o *options) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	path := o.configPath
	if path == "" && config.ConfigExists(config.GetDefaultConfigPath()) {
		path = config.GetDefaultConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("file") {
		cfg.DataFile = o.file
	}
	if flags.Changed("index") {
		cfg.Index.Type = o.index
	}
	if flags.Changed("index-cache") {
		cfg.Index.Cache = o.indexCache
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*log.Logger, error) {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
}

// openStore opens and loads the configured data file
func openStore(cfg *config.Config, logger *log.Logger) (*store.KVStore, error) {
	storeConfig := cfg.StoreConfig()
	storeConfig.Logger = logger

	kv, err := store.NewKVStore(storeConfig)
	if err != nil {
		return nil, err
	}
	if err := kv.Open(); err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	if _, err := kv.Load(); err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("unable to load data: %w", err)
	}
	return kv, nil
}

// withSession opens the store, runs fn and closes the store again
func withSession(cmd *cobra.Command, opts *options, fn func(*session) error) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	kv, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	s := &session{kv: kv, cache: cfg.Index.Cache, out: cmd.OutOrStdout()}
	runErr := fn(s)
	if closeErr := kv.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	return runErr
}
