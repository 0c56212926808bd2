package chouette

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/config"
	"github.com/tinytelemetry/chouette/internal/executor"
	"github.com/tinytelemetry/chouette/internal/logging"
	"github.com/tinytelemetry/chouette/internal/metric"
	"github.com/tinytelemetry/chouette/internal/model"
	"github.com/tinytelemetry/chouette/internal/storage"
)

type (
	// Handle resolves to the stored key, or absent.
	Handle = executor.Handle
	// MetricRecord is the stored metric shape.
	MetricRecord = model.MetricRecord
	// LogRecord is the stored log shape.
	LogRecord = model.LogRecord
	// MetricKind names a metric type.
	MetricKind = model.MetricKind
	// Config holds connection and pool settings.
	Config = config.Config
	// PoolStats reports submission counters.
	PoolStats = executor.Stats
)

const (
	KindCount     = model.KindCount
	KindGauge     = model.KindGauge
	KindRate      = model.KindRate
	KindSet       = model.KindSet
	KindHistogram = model.KindHistogram
)

// Storage is the store the client writes to. The Redis adapter is used
// unless WithStorage supplies another one.
type Storage = model.RecordStore

// Client submits records through a lazily started worker pool.
type Client struct {
	cfg        Config
	storage    Storage
	closer     func() error
	logger     *zap.Logger
	normalizer metric.Normalizer

	poolMu sync.Mutex
	pool   *executor.Pool
	closed bool
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	cfg        *Config
	storage    Storage
	hasStorage bool
	logger     *zap.Logger
	workers    int
	queueSize  int
	now        func() time.Time
}

// WithConfig uses cfg instead of reading the environment.
func WithConfig(cfg Config) Option {
	return func(o *clientOptions) { o.cfg = &cfg }
}

// WithStorage bypasses the storage factory. A nil storage puts the client
// in degraded mode.
func WithStorage(s Storage) Option {
	return func(o *clientOptions) {
		o.storage = s
		o.hasStorage = true
	}
}

// WithLogger sets the logger for the client's own warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithPoolSize overrides the worker count and queue capacity.
func WithPoolSize(workers, queueSize int) Option {
	return func(o *clientOptions) {
		o.workers = workers
		o.queueSize = queueSize
	}
}

// WithClock replaces the clock used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) { o.now = now }
}

// New builds a client. Unless WithStorage is given it connects to Redis
// and probes it once; on failure the client is returned in degraded mode.
func New(opts ...Option) *Client {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.OrDefault(o.logger)

	var cfg Config
	if o.cfg != nil {
		cfg = *o.cfg
	} else {
		loaded, err := config.FromEnv()
		if err != nil {
			logger.Warn("Invalid chouette configuration, using defaults", zap.Error(err))
			loaded = config.Default()
		}
		cfg = loaded
	}
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
	if o.queueSize > 0 {
		cfg.QueueSize = o.queueSize
	}

	c := &Client{
		cfg:        cfg,
		logger:     logger,
		normalizer: metric.Normalizer{Now: o.now},
	}

	if o.hasStorage {
		c.storage = o.storage
		return c
	}

	// A nil *RedisStorage must not become a non-nil Storage.
	if s := storage.Get(context.Background(), storage.KindRedis, cfg, logger); s != nil {
		c.storage = s
		c.closer = s.Close
	}
	return c
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// Available reports whether a storage is configured.
func (c *Client) Available() bool {
	return c.storage != nil
}

// Count submits a count metric.
func (c *Client) Count(name string, value any, opts ...MetricOption) (*Handle, error) {
	return c.Submit(KindCount, name, value, opts...)
}

// Increment is Count with a positive delta.
func (c *Client) Increment(name string, value any, opts ...MetricOption) (*Handle, error) {
	return c.Submit(KindCount, name, value, opts...)
}

// Decrement is Count with the value negated.
func (c *Client) Decrement(name string, value any, opts ...MetricOption) (*Handle, error) {
	negated, err := metric.Negate(value)
	if err != nil {
		return nil, err
	}
	return c.Submit(KindCount, name, negated, opts...)
}

// Gauge submits a gauge metric.
func (c *Client) Gauge(name string, value any, opts ...MetricOption) (*Handle, error) {
	return c.Submit(KindGauge, name, value, opts...)
}

// Rate submits a rate metric.
func (c *Client) Rate(name string, value any, opts ...MetricOption) (*Handle, error) {
	return c.Submit(KindRate, name, value, opts...)
}

// Set submits a set metric. value is a slice or array of members, or a
// map whose keys are the members.
func (c *Client) Set(name string, value any, opts ...MetricOption) (*Handle, error) {
	return c.Submit(KindSet, name, value, opts...)
}

// Histogram submits a histogram metric.
func (c *Client) Histogram(name string, value any, opts ...MetricOption) (*Handle, error) {
	return c.Submit(KindHistogram, name, value, opts...)
}

// Submit normalizes and submits a metric of any kind. The error is
// non-nil only for malformed input.
func (c *Client) Submit(kind MetricKind, name string, value any, opts ...MetricOption) (*Handle, error) {
	mo := applyMetricOptions(opts)
	rec, err := c.normalizer.Normalize(name, kind, value, mo.timestamp, mo.tags)
	if err != nil {
		return nil, err
	}
	return c.SubmitMetric(rec), nil
}

// SubmitMetric submits an already normalized record.
func (c *Client) SubmitMetric(rec *MetricRecord) *Handle {
	s := c.storage
	if s == nil || rec == nil {
		return executor.Resolved("", false)
	}
	p := c.executor()
	if p == nil {
		return executor.Resolved("", false)
	}
	return p.Submit(func() (string, bool) {
		return s.StoreMetric(context.Background(), rec)
	})
}

// SubmitLog submits an already formatted log record.
func (c *Client) SubmitLog(rec *LogRecord) *Handle {
	s := c.storage
	if s == nil || rec == nil {
		return executor.Resolved("", false)
	}
	p := c.executor()
	if p == nil {
		return executor.Resolved("", false)
	}
	return p.Submit(func() (string, bool) {
		return s.StoreLog(context.Background(), rec)
	})
}

// Stats returns the pool counters; zero until the first submission.
func (c *Client) Stats() PoolStats {
	c.poolMu.Lock()
	p := c.pool
	c.poolMu.Unlock()
	if p == nil {
		return PoolStats{}
	}
	return p.Stats()
}

// executor returns the pool, starting it on first use. It returns nil
// once the client is closed.
func (c *Client) executor() *executor.Pool {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	if c.pool == nil && !c.closed {
		c.pool = executor.NewPool(executor.PoolConfig{
			Workers:   c.cfg.Workers,
			QueueSize: c.cfg.QueueSize,
		}, c.logger)
	}
	return c.pool
}

// Close waits for queued records to be stored and releases the Redis
// connection. Submissions after Close resolve absent.
func (c *Client) Close() error {
	c.poolMu.Lock()
	if c.closed {
		c.poolMu.Unlock()
		return nil
	}
	c.closed = true
	p := c.pool
	c.poolMu.Unlock()

	if p != nil {
		p.Close()
	}
	if c.closer != nil {
		return c.closer()
	}
	return nil
}
