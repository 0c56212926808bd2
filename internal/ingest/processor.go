// Package ingest turns relay input into stored metric and log records.
package ingest

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/executor"
	"github.com/tinytelemetry/chouette/internal/logformat"
	"github.com/tinytelemetry/chouette/internal/logging"
	"github.com/tinytelemetry/chouette/internal/metric"
	"github.com/tinytelemetry/chouette/internal/model"
)

// ErrNoSink is returned when a processor has nowhere to send records.
var ErrNoSink = errors.New("ingest: no sink configured")

// Stats counts processed items.
type Stats struct {
	Accepted int64
	Rejected int64
}

// ProcessResult holds the handles of submitted records and the first
// rejection, if any.
type ProcessResult struct {
	Handles []*executor.Handle
	Metrics int
	Logs    int
	Err     error
}

// Processor parses lines and submits what they contain. It is safe for
// concurrent use.
type Processor struct {
	sink       Sink
	service    string
	normalizer metric.Normalizer
	logger     *zap.Logger

	accepted atomic.Int64
	rejected atomic.Int64
}

// NewProcessor creates a processor submitting logs as service unless a
// line names its own.
func NewProcessor(sink Sink, service string, logger *zap.Logger) *Processor {
	return &Processor{
		sink:    sink,
		service: service,
		logger:  logging.OrDefault(logger),
	}
}

func (p *Processor) Name() string { return ProcessorModeParse }

// ProcessLine processes a line without source metadata.
func (p *Processor) ProcessLine(line string) *ProcessResult {
	return p.ProcessEnvelope(model.IngestEnvelope{Line: line})
}

// ProcessEnvelope parses one line and submits its items. Empty lines
// return nil.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	items := ParseLine(env.Line)
	if len(items) == 0 {
		return nil
	}
	if env.Remote != "" {
		for _, it := range items {
			if it.Log == nil {
				continue
			}
			if it.Log.Fields == nil {
				it.Log.Fields = make(map[string]any, 1)
			}
			it.Log.Fields["remote_addr"] = env.Remote
		}
	}
	return p.ProcessItems(items)
}

// ProcessItems submits already parsed items. Invalid metrics are counted
// as rejected and the first error is reported; the rest are still submitted.
func (p *Processor) ProcessItems(items []Item) *ProcessResult {
	res := &ProcessResult{}
	if p.sink == nil {
		p.rejected.Add(int64(len(items)))
		res.Err = ErrNoSink
		return res
	}

	for _, it := range items {
		switch {
		case it.Metric != nil:
			rec, err := it.Metric.Normalize(p.normalizer)
			if err != nil {
				p.reject(err, it.Metric.Name)
				if res.Err == nil {
					res.Err = err
				}
				continue
			}
			res.Handles = append(res.Handles, p.sink.SubmitMetric(rec))
			res.Metrics++
		case it.Log != nil:
			service := it.Service
			if service == "" {
				service = p.service
			}
			res.Handles = append(res.Handles, p.sink.SubmitLog(logformat.Format(*it.Log, service)))
			res.Logs++
		default:
			continue
		}
		p.accepted.Add(1)
	}
	return res
}

func (p *Processor) reject(err error, name string) {
	p.rejected.Add(1)
	p.logger.Debug("Rejected relay metric", zap.String("metric", name), zap.Error(err))
}

// Stats returns the accepted and rejected counts.
func (p *Processor) Stats() Stats {
	return Stats{Accepted: p.accepted.Load(), Rejected: p.rejected.Load()}
}
