package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/chouette"
	"github.com/tinytelemetry/chouette/internal/httpserver"
	"github.com/tinytelemetry/chouette/internal/ingest"
	"github.com/tinytelemetry/chouette/internal/otlpreceiver"
)

// runRelay accepts metrics and logs on the configured inputs and enqueues
// them until ctx is cancelled or SIGINT/SIGTERM arrives.
func runRelay(ctx context.Context, cfg appConfig, logger *zap.Logger) error {
	client := chouette.New(chouette.WithConfig(cfg.Client), chouette.WithLogger(logger))
	defer client.Close()

	processor, err := ingest.NewEnvelopeProcessor(cfg.Processor, client, cfg.Service, logger)
	if err != nil {
		return err
	}
	// HTTP and OTLP inputs are structured, so they always parse.
	parser := ingest.NewProcessor(client, cfg.Service, logger)

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, parser, client, httpserver.Options{
			WaitTimeout: cfg.WaitTimeout,
			Logger:      logger,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	if cfg.OTLPEnabled {
		receiver := otlpreceiver.New(cfg.OTLPAddr, parser, logger)
		if err := receiver.Start(); err != nil {
			return fmt.Errorf("failed to start OTLP receiver: %w", err)
		}
		defer receiver.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	inputs := InputPluginConfig{
		TCPEnabled: cfg.TCPEnabled,
		TCPAddr:    cfg.TCPAddr,
		Logger:     logger,
	}
	if !cfg.StdinEnabled {
		inputs.StdinPiped = new(bool)
	}
	plugins := buildInputPlugins(inputs)
	sources := startSources(ctx, plugins, logger)

	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize, logger)
	mux.Start()

	printStartupBanner(cfg, client.Available(), processor.Name(), mux.SourceNames())

	g, gctx := errgroup.WithContext(ctx)

	if mux.HasSources() {
		g.Go(func() error {
			for env := range mux.Lines() {
				processor.ProcessEnvelope(env)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Relay stopped with an error", zap.Error(err))
	}

	cancel()
	mux.Stop()

	stats := processor.Stats()
	pool := client.Stats()
	logger.Info("Relay stopped",
		zap.Int64("accepted", stats.Accepted),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("stored", pool.Stored),
		zap.Int64("dropped", pool.Dropped),
		zap.Any("lines", mux.Counts()),
	)
	return nil
}

func printStartupBanner(cfg appConfig, storageUp bool, processorName string, inputs []string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	status := func(enabled bool, label, addr string) string {
		if enabled {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(addr))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
	}

	separator := dim.Render("    ─────────────────────────────────")

	lines := []string{
		"",
		cyan.Bold(true).Render("    chouette relay"),
		"    " + dim.Render("v"+version),
		"",
		separator,
		"",
		bold.Render("    Inputs"),
		"",
		status(cfg.APIEnabled, "HTTP API", cfg.APIAddr),
		status(cfg.TCPEnabled, "TCP Lines", cfg.TCPAddr),
		status(cfg.OTLPEnabled, "OTLP gRPC", cfg.OTLPAddr),
		fmt.Sprintf("    %s  %-14s %s", check, "Line Sources", dim.Render(strings.Join(inputs, ", "))),
		"",
		bold.Render("    Queue"),
		"",
	}

	if storageUp {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Redis", cyan.Render(cfg.Client.Addr())))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", red.Render("●"), "Redis", red.Render(cfg.Client.Addr()+" (unreachable, dropping)")))
	}
	lines = append(lines,
		fmt.Sprintf("    %s  %-14s %s", check, "Workers", dim.Render(fmt.Sprintf("%d (queue %d)", cfg.Client.Workers, cfg.Client.QueueSize))),
		fmt.Sprintf("    %s  %-14s %s", check, "Processor", dim.Render(processorName)),
		fmt.Sprintf("    %s  %-14s %s", check, "Service", dim.Render(cfg.Service)),
		"",
	)

	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dim.Render(cfg.ConfigPath)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines,
		"",
		separator,
		"",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"),
		"",
	)

	fmt.Println(strings.Join(lines, "\n"))
}
