package ingest

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/executor"
	"github.com/tinytelemetry/chouette/internal/model"
)

const (
	// ProcessorModeParse parses metrics, OTEL JSON logs, JSON logs and text.
	ProcessorModeParse = "parse"
	// ProcessorModePassthrough ships every line as a plain-text log.
	ProcessorModePassthrough = "passthrough"
)

// Sink accepts records for storage. *chouette.Client implements it.
type Sink interface {
	SubmitMetric(*model.MetricRecord) *executor.Handle
	SubmitLog(*model.LogRecord) *executor.Handle
}

// EnvelopeProcessor consumes source-tagged relay lines and submits records.
type EnvelopeProcessor interface {
	Name() string
	ProcessEnvelope(model.IngestEnvelope) *ProcessResult
	Stats() Stats
}

// NewEnvelopeProcessor creates a processor for mode. An empty mode parses.
func NewEnvelopeProcessor(mode string, sink Sink, service string, logger *zap.Logger) (EnvelopeProcessor, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ProcessorModeParse:
		return NewProcessor(sink, service, logger), nil
	case ProcessorModePassthrough:
		return NewPassthroughProcessor(sink, service), nil
	default:
		return nil, fmt.Errorf("ingest: unknown processor mode %q", mode)
	}
}
