/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ssargent/actionkv/pkg/api"
	"github.com/ssargent/actionkv/pkg/resp"
)

func newServeCmd(opts *options) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API and RESP servers",
		Long: `Serve the data file over HTTP and, unless --resp-port is 0, over the
Redis protocol. Both stop cleanly on SIGINT or SIGTERM.

Examples:
  akv -f store.akv serve --api-key=mysecretkey --port=8080
  akv -f store.akv serve --resp-port=6380
  redis-cli -p 6380 SET greeting hello`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("bind") {
				cfg.Server.Bind, _ = flags.GetString("bind")
				cfg.RESP.Bind = cfg.Server.Bind
			}
			if flags.Changed("port") {
				cfg.Server.Port, _ = flags.GetInt("port")
			}
			if flags.Changed("api-key") {
				cfg.Server.APIKey, _ = flags.GetString("api-key")
			}
			if flags.Changed("resp-port") {
				cfg.RESP.Port, _ = flags.GetInt("resp-port")
			}
			if cfg.Server.APIKey == "auto" {
				return fmt.Errorf("no API key configured: pass --api-key or run 'akv init'")
			}

			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			kv, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer kv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			servers := 1
			errCh := make(chan error, 2)
			go func() {
				errCh <- api.StartServer(ctx, kv, api.ServerConfig{
					Bind:   cfg.Server.Bind,
					Port:   cfg.Server.Port,
					APIKey: cfg.Server.APIKey,
				}, logger)
			}()

			if cfg.RESP.Port != 0 {
				servers++
				respAddr := net.JoinHostPort(cfg.RESP.Bind, strconv.Itoa(cfg.RESP.Port))
				go func() {
					errCh <- resp.NewServer(kv, logger).ListenAndServe(ctx, respAddr, nil)
				}()
			}

			cmd.Printf("Serving %s on http://%s (metrics at /metrics)\n",
				kv.Path(), net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Server.Port)))

			// The first server to stop takes the other one down with it
			var firstErr error
			for i := 0; i < servers; i++ {
				if err := <-errCh; err != nil && firstErr == nil {
					firstErr = err
				}
				cancel()
			}
			return firstErr
		},
	}

	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind both servers to")
	serveCmd.Flags().Int("port", 8080, "Port for the REST API")
	serveCmd.Flags().String("api-key", "", "API key clients send in X-API-Key (empty disables auth)")
	serveCmd.Flags().Int("resp-port", 6380, "Port for the RESP server, 0 to disable")
	return serveCmd
}
