package ingest

import (
	"sync/atomic"

	"github.com/tinytelemetry/chouette/internal/executor"
	"github.com/tinytelemetry/chouette/internal/logformat"
	"github.com/tinytelemetry/chouette/internal/model"
)

// PassthroughProcessor ships every line as a plain-text log without
// trying to parse JSON.
type PassthroughProcessor struct {
	sink    Sink
	service string

	accepted atomic.Int64
	rejected atomic.Int64
}

// NewPassthroughProcessor creates a new passthrough processor.
func NewPassthroughProcessor(sink Sink, service string) *PassthroughProcessor {
	return &PassthroughProcessor{sink: sink, service: service}
}

func (p *PassthroughProcessor) Name() string { return ProcessorModePassthrough }

// ProcessEnvelope processes one source-tagged line.
func (p *PassthroughProcessor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	if env.Line == "" {
		return nil
	}
	if p.sink == nil {
		p.rejected.Add(1)
		return &ProcessResult{Err: ErrNoSink}
	}

	item := TextItem(env.Line)
	if env.Remote != "" {
		item.Log.Fields = map[string]any{"remote_addr": env.Remote}
	}
	h := p.sink.SubmitLog(logformat.Format(*item.Log, p.service))
	p.accepted.Add(1)
	return &ProcessResult{Handles: []*executor.Handle{h}, Logs: 1}
}

// Stats returns the accepted and rejected counts.
func (p *PassthroughProcessor) Stats() Stats {
	return Stats{Accepted: p.accepted.Load(), Rejected: p.rejected.Load()}
}
