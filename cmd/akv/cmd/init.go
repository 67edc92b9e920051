/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/ssargent/actionkv/pkg/config"
)

func newInitCmd(opts *options) *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with a generated API key",
		Long: `Write a configuration file for local development.

This command will:
- Generate a random API key for the REST API
- Record the data file path
- Save the file with 0600 permissions

Examples:
  akv init
  akv init --config ./akv.yaml -f ./data/store.akv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			path := opts.configPath
			if path == "" {
				path = config.GetDefaultConfigPath()
			}

			if config.ConfigExists(path) && !force {
				cmd.Printf("Config already exists at %s. Use --force to overwrite.\n", path)
				return nil
			}

			cfg, err := config.BootstrapConfig(path, opts.file)
			if err != nil {
				return err
			}

			cmd.Printf("Config written to %s\n", path)
			cmd.Printf("Data file: %s\n", cfg.DataFile)
			cmd.Printf("API key: %s\n", cfg.Server.APIKey)
			return nil
		},
	}

	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return initCmd
}
