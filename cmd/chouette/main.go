// Command chouette relays metrics and logs into the chouette Redis queues
// and offers small tools to submit and check them.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/logging"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

type rootOptions struct {
	configPath string
	logLevel   string
	jsonLogs   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "chouette",
		Short:        "Queue metrics and logs for the chouette collection agent",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is $HOME/.config/chouette/config.yml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "diagnostic log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.jsonLogs, "json-logs", false, "write diagnostic logs as JSON")

	cmd.AddCommand(
		newRelayCmd(opts),
		newSendCmd(opts),
		newLogCmd(opts),
		newPingCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// setup loads the configuration and builds the diagnostic logger.
func (o *rootOptions) setup() (appConfig, *zap.Logger, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(o.logLevel, o.jsonLogs)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func newRelayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Accept metrics and logs over TCP, HTTP, OTLP and stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runRelay(cmd.Context(), cfg, logger)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chouette - metrics and logs queue client\n")
			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Built:      %s\n", buildTime)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
		},
	}
}
