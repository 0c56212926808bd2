package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBuildInputPlugins_RegistersPrimitives(t *testing.T) {
	t.Parallel()

	piped := true
	plugins := buildInputPlugins(InputPluginConfig{
		TCPEnabled: true,
		TCPAddr:    "127.0.0.1:0",
		StdinPiped: &piped,
	})

	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0].Name() != "tcp" || plugins[1].Name() != "stdin" {
		t.Fatalf("plugin names = %q, %q", plugins[0].Name(), plugins[1].Name())
	}
	if !plugins[0].Enabled() || !plugins[1].Enabled() {
		t.Fatal("expected both plugins to be enabled")
	}
}

func TestBuildInputPlugins_Disabled(t *testing.T) {
	t.Parallel()

	piped := false
	plugins := buildInputPlugins(InputPluginConfig{TCPAddr: "127.0.0.1:0", StdinPiped: &piped})
	if plugins[0].Enabled() || plugins[1].Enabled() {
		t.Fatal("expected tcp and stdin to be disabled")
	}
	if got := startSources(context.Background(), plugins, zap.NewNop()); len(got) != 0 {
		t.Fatalf("startSources built %d sources, want 0", len(got))
	}
}

func TestStartSources_SkipsFailingInput(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	piped := false
	plugins := buildInputPlugins(InputPluginConfig{
		TCPEnabled: true,
		TCPAddr:    busy.Addr().String(),
		StdinPiped: &piped,
	})
	if got := startSources(context.Background(), plugins, zap.NewNop()); len(got) != 0 {
		t.Fatalf("startSources built %d sources, want 0 for a busy port", len(got))
	}
}

func TestStartSources_TCP(t *testing.T) {
	t.Parallel()

	piped := false
	plugins := buildInputPlugins(InputPluginConfig{
		TCPEnabled: true,
		TCPAddr:    "127.0.0.1:0",
		StdinPiped: &piped,
	})
	sources := startSources(context.Background(), plugins, zap.NewNop())
	if len(sources) != 1 || sources[0].Name() != "tcp" {
		t.Fatalf("sources = %v", sources)
	}
	sources[0].Stop()
}

func TestLoadConfig_AddressResolution(t *testing.T) {
	resetChouetteEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		wantHost     string
		wantTCPAddr  string
		wantAPIAddr  string
		wantOTLPAddr string
	}{
		{
			name:         "defaults",
			configYAML:   `service: relay-test`,
			wantHost:     "127.0.0.1",
			wantTCPAddr:  "127.0.0.1:4560",
			wantAPIAddr:  "127.0.0.1:4561",
			wantOTLPAddr: "127.0.0.1:4317",
		},
		{
			name: "host applies to derived addresses",
			configYAML: `
host: 0.0.0.0
tcp-port: 4200
api-port: 3200
otlp-port: 5317
`,
			wantHost:     "0.0.0.0",
			wantTCPAddr:  "0.0.0.0:4200",
			wantAPIAddr:  "0.0.0.0:3200",
			wantOTLPAddr: "0.0.0.0:5317",
		},
		{
			name: "explicit addresses override host and ports",
			configYAML: `
host: 0.0.0.0
tcp-addr: 10.0.0.5:9999
api-addr: 10.0.0.5:8888
otlp-addr: 10.0.0.5:7777
`,
			wantHost:     "0.0.0.0",
			wantTCPAddr:  "10.0.0.5:9999",
			wantAPIAddr:  "10.0.0.5:8888",
			wantOTLPAddr: "10.0.0.5:7777",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeTempConfig(t, tt.configYAML))
			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if cfg.Host != tt.wantHost {
				t.Fatalf("Host = %q, want %q", cfg.Host, tt.wantHost)
			}
			if cfg.TCPAddr != tt.wantTCPAddr {
				t.Fatalf("TCPAddr = %q, want %q", cfg.TCPAddr, tt.wantTCPAddr)
			}
			if cfg.APIAddr != tt.wantAPIAddr {
				t.Fatalf("APIAddr = %q, want %q", cfg.APIAddr, tt.wantAPIAddr)
			}
			if cfg.OTLPAddr != tt.wantOTLPAddr {
				t.Fatalf("OTLPAddr = %q, want %q", cfg.OTLPAddr, tt.wantOTLPAddr)
			}
		})
	}
}

func TestLoadConfig_ClientSettings(t *testing.T) {
	resetChouetteEnv(t)

	tests := []struct {
		name       string
		configYAML string
		env        map[string]string
		wantErr    string
		assert     func(t *testing.T, cfg appConfig)
	}{
		{
			name:       "defaults",
			configYAML: `tcp-port: 4000`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.Client.RedisHost != "redis" || cfg.Client.RedisPort != 6379 {
					t.Fatalf("redis = %s, want redis:6379", cfg.Client.Addr())
				}
				if cfg.Client.LogLevel != "NOTSET" {
					t.Fatalf("log level = %q, want NOTSET", cfg.Client.LogLevel)
				}
				if cfg.WaitTimeout != 5*time.Second {
					t.Fatalf("wait timeout = %s", cfg.WaitTimeout)
				}
				if cfg.Processor != "" || cfg.OTLPEnabled || !cfg.StdinEnabled {
					t.Fatalf("processor = %q otlp = %v stdin = %v", cfg.Processor, cfg.OTLPEnabled, cfg.StdinEnabled)
				}
			},
		},
		{
			name: "file values",
			configYAML: `
redis-host: cache.internal
redis-port: 6380
workers: 3
queue-size: 50
log-level: warning
processor: passthrough
`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.Client.Addr() != "cache.internal:6380" {
					t.Fatalf("addr = %q", cfg.Client.Addr())
				}
				if cfg.Client.Workers != 3 || cfg.Client.QueueSize != 50 {
					t.Fatalf("pool = %d/%d", cfg.Client.Workers, cfg.Client.QueueSize)
				}
				if cfg.Processor != "passthrough" {
					t.Fatalf("processor = %q", cfg.Processor)
				}
			},
		},
		{
			name:       "environment overrides file",
			configYAML: `redis-host: cache.internal`,
			env:        map[string]string{"REDIS_HOST": "10.1.1.1", "REDIS_PORT": "7000", "CHOUETTE_WORKERS": "7"},
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.Client.Addr() != "10.1.1.1:7000" {
					t.Fatalf("addr = %q", cfg.Client.Addr())
				}
				if cfg.Client.Workers != 7 {
					t.Fatalf("workers = %d", cfg.Client.Workers)
				}
			},
		},
		{
			name:       "invalid port rejected",
			configYAML: `tcp-port: 70000`,
			wantErr:    "invalid tcp-port",
		},
		{
			name:       "invalid redis port rejected",
			configYAML: `redis-port: 0`,
			wantErr:    "redis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := loadConfig(writeTempConfig(t, tt.configYAML))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %q, want substring %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			tt.assert(t, cfg)
		})
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	resetChouetteEnv(t)

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.ConfigPath != "" {
		t.Fatalf("ConfigPath = %q, want empty", cfg.ConfigPath)
	}
	if cfg.TCPAddr != "127.0.0.1:4560" {
		t.Fatalf("TCPAddr = %q", cfg.TCPAddr)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// resetChouetteEnv clears variables that would leak into loadConfig.
func resetChouetteEnv(t *testing.T) {
	t.Helper()

	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(key, "CHOUETTE_") || key == "REDIS_HOST" || key == "REDIS_PORT" {
			// Setenv restores the original value on cleanup.
			t.Setenv(key, "")
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("unset %s: %v", key, err)
			}
		}
	}
}
