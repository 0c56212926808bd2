package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/logsource"
	"github.com/tinytelemetry/chouette/internal/tcpserver"
)

// NamedLogSource is a line source feeding the relay's envelope processor.
type NamedLogSource = logsource.LogSource

// InputSourcePlugin builds one line input when the relay configuration asks for it.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedLogSource, error)
}

// InputPluginConfig selects the line inputs.
type InputPluginConfig struct {
	TCPEnabled bool
	TCPAddr    string
	// StdinPiped overrides terminal detection; nil means detect.
	StdinPiped *bool
	Logger     *zap.Logger
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	stdin := stdinInputPlugin{logger: cfg.Logger}
	if cfg.StdinPiped != nil {
		stdin.piped = *cfg.StdinPiped
	} else {
		stdin.piped = stdinIsPiped()
	}
	return []InputSourcePlugin{
		tcpInputPlugin{addr: cfg.TCPAddr, enabled: cfg.TCPEnabled, logger: cfg.Logger},
		stdin,
	}
}

// startSources builds every enabled plugin. An input that fails to start is
// logged and skipped so the remaining inputs still relay.
func startSources(ctx context.Context, plugins []InputSourcePlugin, logger *zap.Logger) []NamedLogSource {
	sources := make([]NamedLogSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			logger.Error("Failed to start line input", zap.String("input", plugin.Name()), zap.Error(err))
			continue
		}
		sources = append(sources, src)
	}
	return sources
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
	logger  *zap.Logger
}

func (p tcpInputPlugin) Name() string  { return tcpserver.SourceName }
func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(_ context.Context) (NamedLogSource, error) {
	server := tcpserver.NewServer(p.addr, tcpserver.ServerConfig{Logger: p.logger})
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("listen on %s: %w", p.addr, err)
	}
	return logsource.NewTCPSource(server), nil
}

type stdinInputPlugin struct {
	piped  bool
	logger *zap.Logger
}

func (p stdinInputPlugin) Name() string  { return "stdin" }
func (p stdinInputPlugin) Enabled() bool { return p.piped }

func (p stdinInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	return logsource.NewStdinSource(ctx, logsource.StdinConfig{Logger: p.logger}), nil
}

func stdinIsPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}
