// Package otlpreceiver accepts OTLP logs and metrics over gRPC and relays
// them into the chouette queues.
package otlpreceiver

import (
	"context"
	"errors"
	"net"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/tinytelemetry/chouette/internal/ingest"
	"github.com/tinytelemetry/chouette/internal/logging"
)

// DefaultAddr is the standard OTLP gRPC port on loopback.
const DefaultAddr = "127.0.0.1:4317"

// Ingestor submits parsed items. *ingest.Processor implements it.
type Ingestor interface {
	ProcessItems([]ingest.Item) *ingest.ProcessResult
}

// Receiver serves the OTLP Logs and Metrics services.
type Receiver struct {
	addr     string
	ingestor Ingestor
	logger   *zap.Logger
	server   *grpc.Server
	listener net.Listener
}

// New creates a receiver. Call Start to listen.
func New(addr string, ingestor Ingestor, logger *zap.Logger) *Receiver {
	if addr == "" {
		addr = DefaultAddr
	}
	r := &Receiver{
		addr:     addr,
		ingestor: ingestor,
		logger:   logging.OrDefault(logger).Named("otlp"),
	}
	r.server = grpc.NewServer()
	r.Register(r.server)
	return r
}

// Register adds the OTLP services to s.
func (r *Receiver) Register(s grpc.ServiceRegistrar) {
	collogspb.RegisterLogsServiceServer(s, &logsService{r: r})
	colmetricspb.RegisterMetricsServiceServer(s, &metricsService{r: r})
}

// Start listens on the configured address and serves in the background.
func (r *Receiver) Start() error {
	lis, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	return r.Serve(lis)
}

// Serve serves on lis in the background.
func (r *Receiver) Serve(lis net.Listener) error {
	r.listener = lis
	go func() {
		if err := r.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			r.logger.Error("OTLP receiver stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop waits for in-flight exports and stops the server.
func (r *Receiver) Stop() {
	r.server.GracefulStop()
}

// Addr returns the active listen address.
func (r *Receiver) Addr() string {
	if r.listener != nil {
		return r.listener.Addr().String()
	}
	return r.addr
}

type logsService struct {
	collogspb.UnimplementedLogsServiceServer
	r *Receiver
}

func (s *logsService) Export(_ context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	items := ingest.LogItems(req.GetResourceLogs())
	rejected, msg := s.r.process(items)
	resp := &collogspb.ExportLogsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: rejected,
			ErrorMessage:       msg,
		}
	}
	return resp, nil
}

type metricsService struct {
	colmetricspb.UnimplementedMetricsServiceServer
	r *Receiver
}

func (s *metricsService) Export(_ context.Context, req *colmetricspb.ExportMetricsServiceRequest) (*colmetricspb.ExportMetricsServiceResponse, error) {
	items := ingest.MetricItems(req.GetResourceMetrics())
	rejected, msg := s.r.process(items)
	resp := &colmetricspb.ExportMetricsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &colmetricspb.ExportMetricsPartialSuccess{
			RejectedDataPoints: rejected,
			ErrorMessage:       msg,
		}
	}
	return resp, nil
}

func (r *Receiver) process(items []ingest.Item) (int64, string) {
	if len(items) == 0 {
		return 0, ""
	}
	res := r.ingestor.ProcessItems(items)
	rejected := int64(len(items) - len(res.Handles))
	if rejected == 0 {
		return 0, ""
	}
	msg := "records rejected"
	if res.Err != nil {
		msg = res.Err.Error()
	}
	r.logger.Debug("Rejected OTLP records", zap.Int64("count", rejected), zap.String("reason", msg))
	return rejected, msg
}
