package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/tinytelemetry/chouette/internal/metric"
)

func TestParseLine_Metric(t *testing.T) {
	t.Parallel()
	items := ParseLine(`{"metric":"cpu.load","type":"gauge","value":0.75,"timestamp":3600,"tags":{"host":"web1"}}`)
	if len(items) != 1 || items[0].Metric == nil {
		t.Fatalf("items = %+v, want one metric", items)
	}

	rec, err := items[0].Metric.Normalize(metric.Normalizer{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Name != "cpu.load" || rec.Kind != "gauge" || rec.Value != 0.75 || rec.Timestamp != 3600 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Tags["host"] != "web1" {
		t.Errorf("tags = %v", rec.Tags)
	}
}

func TestParseLine_MetricArrayAndTagList(t *testing.T) {
	t.Parallel()
	items := ParseLine(`[{"metric":"a","type":"count","value":1,"tags":["env:prod","solo"]},{"metric":"b","type":"set","value":["x","y"]}]`)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	rec, err := items[0].Metric.Normalize(metric.Normalizer{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Tags["env"] != "prod" {
		t.Errorf("env tag = %q", rec.Tags["env"])
	}
	if v, ok := rec.Tags["solo"]; !ok || v != "" {
		t.Errorf("solo tag = %q, %v", v, ok)
	}

	set, err := items[1].Metric.Normalize(metric.Normalizer{})
	if err != nil {
		t.Fatalf("Normalize set: %v", err)
	}
	members, ok := set.Value.([]string)
	if !ok || len(members) != 2 {
		t.Errorf("set value = %#v", set.Value)
	}
}

func TestMetricInput_UnknownKind(t *testing.T) {
	t.Parallel()
	_, err := MetricInput{Name: "x", Kind: "summary", Value: 1.0}.Normalize(metric.Normalizer{})
	if !errors.Is(err, metric.ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if err.Error() != `unknown metric kind "summary"` {
		t.Errorf("err = %q", err.Error())
	}
}

func TestParseLine_OutOfRangeMetricValue(t *testing.T) {
	t.Parallel()
	items := ParseLine(`{"metric":"huge","type":"gauge","value":1e400,"timestamp":1700000000}`)
	if len(items) != 1 || items[0].Metric == nil {
		t.Fatalf("items = %+v, want one metric", items)
	}
	if items[0].Metric.Timestamp != 1_700_000_000 {
		t.Errorf("timestamp = %v", items[0].Metric.Timestamp)
	}
	if _, err := items[0].Metric.Normalize(metric.Normalizer{}); !errors.Is(err, metric.ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
}

func TestParseLine_MessageJSON(t *testing.T) {
	t.Parallel()
	line := `{"level":"error","message":"connection refused","timestamp":"2024-01-15T10:30:45.000Z","service":"api","ddtags":["env:prod"],"exc_info":"Traceback","request_id":"abc"}`
	items := ParseLine(line)
	if len(items) != 1 || items[0].Log == nil {
		t.Fatalf("items = %+v, want one log", items)
	}

	it := items[0]
	ev := it.Log
	if it.Service != "api" {
		t.Errorf("service = %q, want api", it.Service)
	}
	if ev.Level != "ERROR" {
		t.Errorf("level = %q, want ERROR", ev.Level)
	}
	if ev.Message != "connection refused" {
		t.Errorf("message = %q", ev.Message)
	}
	if ev.ExcText != "Traceback" {
		t.Errorf("exc = %q", ev.ExcText)
	}
	if want := time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC); !ev.Time.Equal(want) {
		t.Errorf("time = %v, want %v", ev.Time, want)
	}
	if ev.Fields["request_id"] != "abc" {
		t.Errorf("fields = %v", ev.Fields)
	}
	if _, ok := ev.Fields["service"]; ok {
		t.Error("service must not be copied into fields")
	}
}

func TestParseLine_StoredShapeAndPinoLevel(t *testing.T) {
	t.Parallel()
	items := ParseLine(`{"message":{"msg":"nested"},"level":40,"time":1705312245000}`)
	if len(items) != 1 || items[0].Log == nil {
		t.Fatalf("items = %+v", items)
	}
	ev := items[0].Log
	if ev.Message != "nested" {
		t.Errorf("message = %q, want nested", ev.Message)
	}
	if ev.Level != "WARNING" {
		t.Errorf("level = %q, want WARNING (pino 40)", ev.Level)
	}
	if ev.Time.UnixMilli() != 1705312245000 {
		t.Errorf("time = %v", ev.Time)
	}
}

func TestParseLine_OTELEnvelope(t *testing.T) {
	t.Parallel()
	line := `{"resourceLogs":[{"resource":{"attributes":[{"key":"service.name","value":{"stringValue":"checkout"}}]},"scopeLogs":[{"scope":{"name":"lib"},"logRecords":[{"timeUnixNano":"1700000000000000000","severityNumber":17,"body":{"stringValue":"payment failed"},"attributes":[{"key":"order","value":{"intValue":"42"}}],"traceId":"abc"}]}]}]}`
	items := ParseLine(line)
	if len(items) != 1 || items[0].Log == nil {
		t.Fatalf("items = %+v, want one log", items)
	}

	it := items[0]
	if it.Service != "checkout" {
		t.Errorf("service = %q, want checkout", it.Service)
	}
	if it.Log.Level != "ERROR" {
		t.Errorf("level = %q, want ERROR", it.Log.Level)
	}
	if it.Log.Message != "payment failed" {
		t.Errorf("message = %q", it.Log.Message)
	}
	if it.Log.Time.Unix() != 1_700_000_000 {
		t.Errorf("time = %v", it.Log.Time)
	}
	for k, want := range map[string]string{"order": "42", "trace.id": "abc", "otel.scope.name": "lib"} {
		if it.Log.Fields[k] != want {
			t.Errorf("field %s = %v, want %s", k, it.Log.Fields[k], want)
		}
	}
}

func TestParseLine_PlainText(t *testing.T) {
	t.Parallel()
	items := ParseLine("2024-01-15 WARN: disk\tnearly full\n")
	if len(items) != 1 || items[0].Log == nil {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Log.Level != "WARNING" {
		t.Errorf("level = %q, want WARNING", items[0].Log.Level)
	}
	if items[0].Log.Message != "2024-01-15 WARN: disk nearly full" {
		t.Errorf("message = %q", items[0].Log.Message)
	}
}

func TestParseLine_InvalidJSONFallsBackToText(t *testing.T) {
	t.Parallel()
	items := ParseLine(`{"broken": `)
	if len(items) != 1 || items[0].Log == nil {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Log.Message != `{"broken": ` {
		t.Errorf("message = %q", items[0].Log.Message)
	}
}

func TestParseLine_Empty(t *testing.T) {
	t.Parallel()
	if items := ParseLine("   "); items != nil {
		t.Fatalf("items = %+v, want nil", items)
	}
}

func TestParsePayload_RejectsScalars(t *testing.T) {
	t.Parallel()
	for _, body := range []string{`42`, `"text"`, `[1,2]`, `not json`} {
		if _, err := ParsePayload([]byte(body)); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("ParsePayload(%s) err = %v, want ErrInvalidPayload", body, err)
		}
	}
}

func TestTagMap(t *testing.T) {
	t.Parallel()
	got, err := TagMap(map[string]any{"n": 3.0, "s": "x"})
	if err != nil {
		t.Fatalf("TagMap: %v", err)
	}
	if got["n"] != "3" || got["s"] != "x" {
		t.Errorf("TagMap = %v", got)
	}
	if _, err := TagMap(7.0); err == nil {
		t.Error("expected error for numeric tags")
	}
}

func TestOTELLevelName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text   string
		number int
		want   string
	}{
		{"", 0, "INFO"},
		{"", 5, "DEBUG"},
		{"", 13, "WARNING"},
		{"", 21, "CRITICAL"},
		{"Error", 0, "ERROR"},
	}
	for _, tt := range tests {
		if got := OTELLevelName(tt.text, tt.number); got != tt.want {
			t.Errorf("OTELLevelName(%q, %d) = %q, want %q", tt.text, tt.number, got, tt.want)
		}
	}
}

func TestParsePayload_RejectsTrailingData(t *testing.T) {
	t.Parallel()
	if _, err := ParsePayload([]byte(`{"a":1} {"b":2}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
}
