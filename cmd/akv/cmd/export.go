/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/actionkv/pkg/storage"
)

func newExportCmd(opts *options) *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Copy live keys into a pebble or bolt database",
		Long: `Copy every live key, or those under --prefix, into another embedded
database for backup or migration. Deleted and superseded records are
left behind.

Examples:
  akv -f store.akv export --format pebble --out ./backup.pebble
  akv -f store.akv export --format bolt --out ./users.db --prefix user:`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")
			prefix, _ := cmd.Flags().GetString("prefix")

			return withSession(cmd, opts, func(s *session) error {
				sink, err := storage.OpenSink(format, out)
				if err != nil {
					return err
				}

				result, err := storage.Export(s.kv, sink, []byte(prefix), nil)
				if closeErr := sink.Close(); closeErr != nil && err == nil {
					err = closeErr
				}
				if err != nil {
					return fmt.Errorf("export failed: %w", err)
				}

				fmt.Fprintf(s.out, "exported %d keys (%d bytes) to %s %s\n", result.Keys, result.Bytes, format, out)
				return nil
			})
		},
	}

	exportCmd.Flags().String("format", storage.FormatPebble, "Target format: pebble or bolt")
	exportCmd.Flags().String("out", "", "Target path (required)")
	exportCmd.Flags().String("prefix", "", "Only export keys with this prefix")
	if err := exportCmd.MarkFlagRequired("out"); err != nil {
		panic(err)
	}
	return exportCmd
}
