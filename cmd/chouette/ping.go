package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/config"
	"github.com/tinytelemetry/chouette/internal/storage"
)

func newPingCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured Redis is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			return ping(cmd.Context(), cmd.OutOrStdout(), cfg.Client, logger)
		},
	}
}

func ping(ctx context.Context, out io.Writer, cfg config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s := storage.Get(ctx, storage.KindRedis, cfg, logger)
	if s == nil {
		return fmt.Errorf("%w at %s", errUnreachable, cfg.Addr())
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	start := time.Now()
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", cfg.Addr(), err)
	}
	fmt.Fprintf(out, "PONG %s %s\n", cfg.Addr(), time.Since(start).Round(time.Microsecond))
	return nil
}
