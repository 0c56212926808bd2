package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/model"
)

type fakeSource struct {
	name    string
	lines   chan model.IngestEnvelope
	stopped chan struct{}
}

func newFakeSource(name string, buffer int) *fakeSource {
	return &fakeSource{
		name:    name,
		lines:   make(chan model.IngestEnvelope, buffer),
		stopped: make(chan struct{}),
	}
}

func (s *fakeSource) Lines() <-chan model.IngestEnvelope { return s.lines }
func (s *fakeSource) Name() string                       { return s.name }

func (s *fakeSource) Stop() {
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
		close(s.lines)
	}
}

func TestSourceMultiplexer_ForwardsFromAllSources(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newFakeSource("a", 2)
	b := newFakeSource("b", 2)

	mux := NewSourceMultiplexer(ctx, []NamedLogSource{a, b}, 16, zap.NewNop())
	mux.Start()
	defer mux.Stop()

	a.lines <- model.IngestEnvelope{Source: "a", Line: `{"metric":"m","type":"count","value":1}`}
	b.lines <- model.IngestEnvelope{Source: "b", Line: "plain text"}
	a.Stop()
	b.Stop()

	got := map[string]string{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range mux.Lines() {
			got[env.Source] = env.Line
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the output to close")
	}

	if len(got) != 2 || got["b"] != "plain text" {
		t.Fatalf("lines = %+v", got)
	}
	counts := mux.Counts()
	if counts["a"] != 1 || counts["b"] != 1 {
		t.Fatalf("Counts() = %v", counts)
	}
}

func TestSourceMultiplexer_SkipsBlankLines(t *testing.T) {
	t.Parallel()

	src := newFakeSource("x", 3)
	mux := NewSourceMultiplexer(context.Background(), []NamedLogSource{src}, 4, zap.NewNop())
	mux.Start()
	defer mux.Stop()

	src.lines <- model.IngestEnvelope{Source: "x", Line: "   "}
	src.lines <- model.IngestEnvelope{Source: "x", Line: "kept"}
	src.Stop()

	var got []string
	for env := range mux.Lines() {
		got = append(got, env.Line)
	}
	if len(got) != 1 || got[0] != "kept" {
		t.Fatalf("lines = %v, want [kept]", got)
	}
}

func TestSourceMultiplexer_ClosesWhenAllSourcesEnd(t *testing.T) {
	t.Parallel()

	src := newFakeSource("x", 1)
	mux := NewSourceMultiplexer(context.Background(), []NamedLogSource{src}, 4, zap.NewNop())
	mux.Start()
	defer mux.Stop()

	src.Stop()

	select {
	case _, ok := <-mux.Lines():
		if ok {
			t.Fatal("expected no lines")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("output was not closed after sources ended")
	}
}

func TestSourceMultiplexer_StopInvokesSourceStop(t *testing.T) {
	t.Parallel()

	src := newFakeSource("x", 1)
	mux := NewSourceMultiplexer(context.Background(), []NamedLogSource{src}, 8, zap.NewNop())
	mux.Start()
	mux.Stop()

	select {
	case <-src.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("expected source Stop() to be called")
	}
}

func TestSourceMultiplexer_SourceNames(t *testing.T) {
	t.Parallel()

	mux := NewSourceMultiplexer(context.Background(), []NamedLogSource{newFakeSource("tcp", 1), newFakeSource("stdin", 1)}, 1, zap.NewNop())
	names := mux.SourceNames()
	if len(names) != 2 || names[0] != "tcp" || names[1] != "stdin" {
		t.Fatalf("SourceNames() = %v", names)
	}
	if !mux.HasSources() {
		t.Fatal("HasSources() = false")
	}
}
