// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nickandperla.net/xpr/internal/server"
)

func newServeCmd(g *globals) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP evaluation API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := g.logger()
			if err != nil {
				return err
			}
			p, reg, err := g.metricsParser()
			if err != nil {
				return err
			}
			defer p.Close()

			srv := server.New(p,
				server.WithLogger(log),
				server.WithGatherer(reg),
				server.WithTimeout(timeout),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe(addr) }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Maximum wait for asynchronous results")
	return cmd
}
