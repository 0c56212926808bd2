// Package config resolves client settings from the environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tinytelemetry/chouette/internal/model"
)

// EnvPrefix scopes chouette-specific environment variables.
const EnvPrefix = "CHOUETTE"

// Config is the client runtime configuration.
type Config struct {
	RedisHost     string        `mapstructure:"redis-host"`
	RedisPort     int           `mapstructure:"redis-port"`
	RedisDB       int           `mapstructure:"redis-db"`
	RedisPassword string        `mapstructure:"redis-password"`
	DialTimeout   time.Duration `mapstructure:"dial-timeout"`
	LogLevel      string        `mapstructure:"log-level"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue-size"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		RedisHost:   model.DefaultRedisHost,
		RedisPort:   model.DefaultRedisPort,
		DialTimeout: model.DefaultDialTimeout,
		LogLevel:    model.DefaultLogLevel,
		Workers:     DefaultWorkers(),
		QueueSize:   model.DefaultQueueSize,
	}
}

// DefaultWorkers mirrors the usual thread pool sizing: min(32, cpus+4).
func DefaultWorkers() int {
	n := runtime.NumCPU() + 4
	if n > 32 {
		n = 32
	}
	return n
}

// Addr returns the Redis address as host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}

// Validate checks ranges that would otherwise fail later and less clearly.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RedisHost) == "" {
		return errors.New("config: redis-host is empty")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("config: invalid redis-port: %d", c.RedisPort)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: invalid workers: %d", c.Workers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("config: invalid queue-size: %d", c.QueueSize)
	}
	return nil
}

// Bind registers defaults and environment bindings on v. REDIS_HOST and
// REDIS_PORT are honoured unprefixed because the collection agent reads
// the same variables.
func Bind(v *viper.Viper) {
	d := Default()

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("redis-host", d.RedisHost)
	v.SetDefault("redis-port", d.RedisPort)
	v.SetDefault("redis-db", 0)
	v.SetDefault("redis-password", "")
	v.SetDefault("dial-timeout", d.DialTimeout)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("queue-size", d.QueueSize)

	_ = v.BindEnv("redis-host", "REDIS_HOST", EnvPrefix+"_REDIS_HOST")
	_ = v.BindEnv("redis-port", "REDIS_PORT", EnvPrefix+"_REDIS_PORT")
}

// FromViper decodes and validates a Config from a bound viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load reads the environment and, when configPath is set, a config file.
// A missing file is not an error.
func Load(configPath string) (Config, error) {
	v := viper.New()
	Bind(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}
	return FromViper(v)
}

// FromEnv is Load without a config file.
func FromEnv() (Config, error) {
	return Load("")
}
