package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette"
	"github.com/tinytelemetry/chouette/internal/config"
	"github.com/tinytelemetry/chouette/internal/ingest"
	"github.com/tinytelemetry/chouette/internal/logformat"
	"github.com/tinytelemetry/chouette/internal/logparse"
	"github.com/tinytelemetry/chouette/internal/model"
)

var (
	errNotStored   = errors.New("record was not stored")
	errUnreachable = errors.New("redis is unreachable")
)

type sendOptions struct {
	tags      []string
	timestamp float64
	timeout   time.Duration
}

func newSendCmd(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send <count|gauge|rate|set|histogram> <name> <value>...",
		Short: "Submit one metric and print its queue key",
		Long: "Submit one metric and wait until it is stored. Set metrics take one or more members;\n" +
			"every other kind takes exactly one number.",
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			return sendMetric(cmd.Context(), cmd.OutOrStdout(), cfg.Client, logger, args[0], args[1], args[2:], *opts)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.tags, "tag", "t", nil, "tag as key:value (repeatable)")
	cmd.Flags().Float64Var(&opts.timestamp, "timestamp", 0, "unix timestamp in seconds (default now)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "how long to wait for the record to be stored")
	return cmd
}

func sendMetric(ctx context.Context, out io.Writer, cfg config.Config, logger *zap.Logger, kindName, name string, values []string, opts sendOptions) error {
	kind, err := model.ParseMetricKind(strings.ToLower(kindName))
	if err != nil {
		return err
	}
	value, err := sendValue(kind, values)
	if err != nil {
		return err
	}
	tags, err := ingest.TagMap(opts.tags)
	if err != nil {
		return err
	}

	client, err := connect(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	h, err := client.Submit(kind, name, value, chouette.WithTimestamp(opts.timestamp), chouette.WithTags(tags))
	if err != nil {
		return err
	}
	return printKey(ctx, out, h, opts.timeout)
}

// sendValue parses the positional values for kind.
func sendValue(kind model.MetricKind, values []string) (any, error) {
	if !kind.Numeric() {
		return values, nil
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s takes exactly one value, got %d", kind, len(values))
	}
	f, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", kind, values[0], err)
	}
	return f, nil
}

type logOptions struct {
	service string
	level   string
	tags    []string
	timeout time.Duration
}

func newLogCmd(root *rootOptions) *cobra.Command {
	opts := &logOptions{}
	cmd := &cobra.Command{
		Use:   "log <message>...",
		Short: "Submit one log record and print its queue key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			return sendLog(cmd.Context(), cmd.OutOrStdout(), cfg.Client, logger, strings.Join(args, " "), *opts)
		},
	}
	cmd.Flags().StringVarP(&opts.service, "service", "s", "chouette-cli", "service name")
	cmd.Flags().StringVarP(&opts.level, "level", "l", "INFO", "severity")
	cmd.Flags().StringArrayVarP(&opts.tags, "tag", "t", nil, "tag as key:value (repeatable)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "how long to wait for the record to be stored")
	return cmd
}

func sendLog(ctx context.Context, out io.Writer, cfg config.Config, logger *zap.Logger, message string, opts logOptions) error {
	client, err := connect(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	rec := logformat.Format(logformat.Event{
		Time:    time.Now(),
		Level:   logparse.LevelName(logparse.SeverityLevel(opts.level)),
		Message: message,
		Tags:    opts.tags,
	}, opts.service)
	return printKey(ctx, out, client.SubmitLog(rec), opts.timeout)
}

func connect(cfg config.Config, logger *zap.Logger) (*chouette.Client, error) {
	client := chouette.New(chouette.WithConfig(cfg), chouette.WithLogger(logger))
	if !client.Available() {
		_ = client.Close()
		return nil, fmt.Errorf("%w at %s", errUnreachable, cfg.Addr())
	}
	return client, nil
}

func printKey(ctx context.Context, out io.Writer, h *chouette.Handle, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key, ok, err := h.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for the record: %w", err)
	}
	if !ok {
		return errNotStored
	}
	fmt.Fprintln(out, key)
	return nil
}
