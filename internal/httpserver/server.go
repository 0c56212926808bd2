// Package httpserver exposes the relay over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/executor"
	"github.com/tinytelemetry/chouette/internal/ingest"
	"github.com/tinytelemetry/chouette/internal/logging"
)

const (
	// DefaultAddr is used when no listen address is configured.
	DefaultAddr = "127.0.0.1:4561"

	// DefaultWaitTimeout bounds how long a request waits for its records
	// to be stored.
	DefaultWaitTimeout = 5 * time.Second

	maxBodyBytes = 8 << 20
)

// Ingestor submits parsed items.
type Ingestor interface {
	ProcessItems([]ingest.Item) *ingest.ProcessResult
	Stats() ingest.Stats
}

// Backend reports storage availability and pool counters.
type Backend interface {
	Available() bool
	Stats() executor.Stats
}

// Options tunes the server.
type Options struct {
	WaitTimeout time.Duration
	Logger      *zap.Logger
}

// Server accepts metrics and logs over HTTP.
type Server struct {
	addr        string
	ingestor    Ingestor
	backend     Backend
	waitTimeout time.Duration
	logger      *zap.Logger
	server      *http.Server
	listener    net.Listener
	ctx         context.Context
	cancel      context.CancelFunc
	startTime   time.Time
}

// NewServer creates a new HTTP relay server.
func NewServer(addr string, ingestor Ingestor, backend Backend, opts Options) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		ingestor:    ingestor,
		backend:     backend,
		waitTimeout: opts.WaitTimeout,
		logger:      logging.OrDefault(opts.Logger).Named("http"),
		ctx:         ctx,
		cancel:      cancel,
		startTime:   time.Now(),
	}
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.POST("/v1/metrics", s.handleMetrics)
	r.POST("/v1/logs", s.handleLogs)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.waitTimeout + 30*time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Addr returns the active listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if !s.backend.Available() {
		status = "degraded"
	}
	pool := s.backend.Stats()
	in := s.ingestor.Stats()

	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"uptime":  time.Since(s.startTime).String(),
		"storage": s.backend.Available(),
		"pool": gin.H{
			"submitted": pool.Submitted,
			"stored":    pool.Stored,
			"failed":    pool.Failed,
			"dropped":   pool.Dropped,
		},
		"ingest": gin.H{
			"accepted": in.Accepted,
			"rejected": in.Rejected,
		},
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	s.handleIngest(c, func(it ingest.Item) bool { return it.Metric != nil }, "metric")
}

func (s *Server) handleLogs(c *gin.Context) {
	s.handleIngest(c, func(it ingest.Item) bool { return it.Log != nil }, "log")
}

func (s *Server) handleIngest(c *gin.Context, accept func(ingest.Item) bool, what string) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	items, err := ingest.ParsePayload(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no " + what + " records in body"})
		return
	}
	for _, it := range items {
		if !accept(it) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must contain only " + what + " records"})
			return
		}
	}

	if !s.backend.Available() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}

	res := s.ingestor.ProcessItems(items)
	if len(res.Handles) == 0 {
		msg := "no records accepted"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	keys, pending := s.wait(c.Request.Context(), res.Handles)
	resp := gin.H{
		"keys":    keys,
		"stored":  len(keys),
		"pending": pending,
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// wait collects the keys of stored records until the wait timeout.
// Records still queued at the deadline are counted as pending.
func (s *Server) wait(ctx context.Context, handles []*executor.Handle) ([]string, int) {
	ctx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	keys := make([]string, 0, len(handles))
	for i, h := range handles {
		key, ok, err := h.WaitContext(ctx)
		if err != nil {
			return keys, len(handles) - i
		}
		if ok {
			keys = append(keys, key)
		}
	}
	return keys, 0
}
