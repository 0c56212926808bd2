package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/chouette/internal/config"
)

const (
	defaultBindHost      = "127.0.0.1"
	defaultTCPPort       = 4560
	defaultAPIPort       = 4561
	defaultOTLPPort      = 4317
	defaultMuxBufferSize = DefaultMuxBuffer
	defaultService       = "chouette-relay"
	defaultWaitTimeout   = 5 * time.Second
)

// appConfig is the relay's runtime configuration. The embedded client
// settings share keys with the library (redis-host, workers, ...).
type appConfig struct {
	Client config.Config `mapstructure:",squash"`

	Host          string        `mapstructure:"host"`
	Processor     string        `mapstructure:"processor"`
	Service       string        `mapstructure:"service"`
	StdinEnabled  bool          `mapstructure:"stdin-enabled"`
	TCPEnabled    bool          `mapstructure:"tcp-enabled"`
	TCPPort       int           `mapstructure:"tcp-port"`
	TCPAddr       string        `mapstructure:"tcp-addr"`
	APIEnabled    bool          `mapstructure:"api-enabled"`
	APIPort       int           `mapstructure:"api-port"`
	APIAddr       string        `mapstructure:"api-addr"`
	OTLPEnabled   bool          `mapstructure:"otlp-enabled"`
	OTLPPort      int           `mapstructure:"otlp-port"`
	OTLPAddr      string        `mapstructure:"otlp-addr"`
	MuxBufferSize int           `mapstructure:"mux-buffer-size"`
	WaitTimeout   time.Duration `mapstructure:"wait-timeout"`
	ConfigPath    string        `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	config.Bind(v)

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("processor", "")
	v.SetDefault("service", defaultService)
	v.SetDefault("stdin-enabled", true)
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("otlp-enabled", false)
	v.SetDefault("otlp-port", defaultOTLPPort)
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("wait-timeout", defaultWaitTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".config", "chouette", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Client.Validate(); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	for name, port := range map[string]int{"tcp-port": cfg.TCPPort, "api-port": cfg.APIPort, "otlp-port": cfg.OTLPPort} {
		if port <= 0 || port > 65535 {
			return cfg, fmt.Errorf("invalid %s: %d", name, port)
		}
	}

	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}
	if cfg.OTLPAddr == "" {
		cfg.OTLPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.OTLPPort))
	}

	return cfg, nil
}
