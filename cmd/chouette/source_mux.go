package main

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/chouette/internal/logging"
	"github.com/tinytelemetry/chouette/internal/model"
)

// DefaultMuxBuffer is the default channel buffer size for the source multiplexer.
const DefaultMuxBuffer = 10_000

// SourceMultiplexer fans the envelopes of several line sources into one
// channel. Blank lines are skipped. The output closes once every source has
// ended or Stop is called.
type SourceMultiplexer struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	sources []NamedLogSource
	counts  []atomic.Int64
	lines   chan model.IngestEnvelope
	group   *errgroup.Group

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

func NewSourceMultiplexer(parent context.Context, sources []NamedLogSource, buffer int, logger *zap.Logger) *SourceMultiplexer {
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &SourceMultiplexer{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logging.OrDefault(logger),
		sources: sources,
		counts:  make([]atomic.Int64, len(sources)),
		lines:   make(chan model.IngestEnvelope, buffer),
		group:   &errgroup.Group{},
		done:    make(chan struct{}),
	}
}

func (m *SourceMultiplexer) Start() {
	m.startOnce.Do(func() {
		for i, src := range m.sources {
			m.group.Go(func() error {
				m.forward(i, src)
				return nil
			})
		}
		go func() {
			_ = m.group.Wait()
			close(m.lines)
			close(m.done)
		}()
	})
}

// Stop cancels forwarding, stops every source and waits for the output to close.
func (m *SourceMultiplexer) Stop() {
	m.Start()
	m.stopOnce.Do(func() {
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		<-m.done
	})
}

func (m *SourceMultiplexer) HasSources() bool {
	return len(m.sources) > 0
}

func (m *SourceMultiplexer) SourceNames() []string {
	names := make([]string, 0, len(m.sources))
	for _, src := range m.sources {
		names = append(names, src.Name())
	}
	return names
}

func (m *SourceMultiplexer) Lines() <-chan model.IngestEnvelope {
	return m.lines
}

// Counts returns the number of lines forwarded per source name.
func (m *SourceMultiplexer) Counts() map[string]int64 {
	out := make(map[string]int64, len(m.sources))
	for i, src := range m.sources {
		out[src.Name()] += m.counts[i].Load()
	}
	return out
}

func (m *SourceMultiplexer) forward(i int, src NamedLogSource) {
	in := src.Lines()
	for {
		select {
		case <-m.ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				m.logger.Debug("Line source ended", zap.String("source", src.Name()), zap.Int64("lines", m.counts[i].Load()))
				return
			}
			if strings.TrimSpace(env.Line) == "" {
				continue
			}
			select {
			case m.lines <- env:
				m.counts[i].Add(1)
			case <-m.ctx.Done():
				return
			}
		}
	}
}
