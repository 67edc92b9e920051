/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
)

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve the value at key",
		Long: `Retrieve the value at key and print it as a quoted string, so
binary values stay readable.

Example:
  akv -f store.akv get mykey`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return s.get(args[0])
			})
		},
	}
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Retrieve the value at key as text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return s.show(args[0])
			})
		},
	}
}

func newInsertCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <key> <value>",
		Short: "Add a key-value pair",
		Long: `Add a key-value pair, replacing any previous value for the key.

Example:
  akv -f store.akv insert mykey myvalue`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return s.insert(args[0], args[1])
			})
		},
	}
}

func newUpdateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "update <key> <value>",
		Short: "Replace the value at key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return s.update(args[0], args[1])
			})
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return s.delete(args[0])
			})
		},
	}
}

func newKeysCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keys [prefix]",
		Short: "List live keys in order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return withSession(cmd, opts, func(s *session) error {
				return s.keys(prefix)
			})
		},
	}
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print key count and space usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return s.stats()
			})
		},
	}
}

func newFlushIndexCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "flush-index",
		Short: "Persist the index as a cache record",
		Long: `Write the current index into the data file under the reserved key
and point the manifest at it, so later loads with --index-cache skip
replaying the records before it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return s.flushIndex()
			})
		},
	}
}
