/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
)

func newShellCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive prompt",
		Long: `Start an interactive prompt that accepts get, show, insert, update,
delete, keys, stats and flush-index. Type exit or quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShellCommand(cmd, opts)
		},
	}
}

func runShellCommand(cmd *cobra.Command, opts *options) error {
	return withSession(cmd, opts, func(s *session) error {
		return runShell(cmd.InOrStdin(), cmd.ErrOrStderr(), s)
	})
}

// runShell reads commands line by line until exit, quit or end of input.
// Command errors are reported and the prompt continues.
func runShell(in io.Reader, errOut io.Writer, s *session) error {
	prompt := fmt.Sprintf("[%s]> ", s.kv.Path())
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for {
		fmt.Fprint(s.out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			return nil
		}

		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintln(errOut, "input is not valid shell words")
			continue
		}
		if err := s.exec(args); err != nil {
			fmt.Fprintln(errOut, err)
		}
	}
}
