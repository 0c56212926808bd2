package ingest

import (
	"errors"
	"sync"
	"testing"

	"github.com/tinytelemetry/chouette/internal/model"
)

func TestProcessor_RoutesMetricsAndLogs(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(sink, "relay", nil)

	p.ProcessLine(`{"metric":"hits","type":"count","value":2}`)
	p.ProcessEnvelope(model.IngestEnvelope{Source: "tcp", Remote: "127.0.0.1:9", Line: "ERROR boom"})
	p.ProcessLine(`{"msg":"from app","service":"billing"}`)

	if len(sink.metrics) != 1 {
		t.Fatalf("metrics = %d, want 1", len(sink.metrics))
	}
	if got := sink.metrics[0]; got.Name != "hits" || got.Value != 2.0 || got.Timestamp == 0 {
		t.Errorf("metric = %+v", got)
	}

	if len(sink.logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(sink.logs))
	}
	text := sink.logs[0]
	if text.Service != "relay" || text.Level != "ERROR" || text.Extra["remote_addr"] != "127.0.0.1:9" {
		t.Errorf("text log = %+v", text)
	}
	if sink.logs[1].Service != "billing" || sink.logs[1].Source != "billing" {
		t.Errorf("json log service = %q", sink.logs[1].Service)
	}

	if got := p.Stats(); got.Accepted != 3 || got.Rejected != 0 {
		t.Errorf("stats = %+v", got)
	}
}

func TestProcessor_RejectsInvalidMetric(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(sink, "relay", nil)

	res := p.ProcessLine(`[{"metric":"ok","type":"gauge","value":1},{"metric":"bad","type":"gauge","value":"high"}]`)
	if res.Err == nil {
		t.Fatal("expected an error for the invalid metric")
	}
	if res.Metrics != 1 || len(res.Handles) != 1 {
		t.Errorf("result = %+v, want one submitted metric", res)
	}
	if got := p.Stats(); got.Accepted != 1 || got.Rejected != 1 {
		t.Errorf("stats = %+v", got)
	}
}

func TestProcessor_OutOfRangeValueIsRejected(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(sink, "relay", nil)

	res := p.ProcessLine(`{"metric":"huge","type":"count","value":1e400}`)
	if res == nil || res.Err == nil {
		t.Fatalf("result = %+v, want a rejection", res)
	}
	if len(sink.metrics) != 0 || len(sink.logs) != 0 {
		t.Errorf("submitted %d metrics and %d logs, want none", len(sink.metrics), len(sink.logs))
	}
	if got := p.Stats(); got.Accepted != 0 || got.Rejected != 1 {
		t.Errorf("stats = %+v", got)
	}
}

func TestProcessor_NoSink(t *testing.T) {
	t.Parallel()

	p := NewProcessor(nil, "relay", nil)
	res := p.ProcessLine("hello")
	if !errors.Is(res.Err, ErrNoSink) {
		t.Fatalf("err = %v, want ErrNoSink", res.Err)
	}
	if got := p.Stats(); got.Rejected != 1 {
		t.Errorf("stats = %+v", got)
	}
}

func TestProcessor_Concurrent(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(sink, "relay", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.ProcessLine(`{"metric":"c","type":"count","value":1}`)
		}()
	}
	wg.Wait()

	if len(sink.metrics) != 50 {
		t.Fatalf("metrics = %d, want 50", len(sink.metrics))
	}
	if got := p.Stats().Accepted; got != 50 {
		t.Errorf("accepted = %d, want 50", got)
	}
}
