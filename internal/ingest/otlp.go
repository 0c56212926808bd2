package ingest

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"

	"github.com/tinytelemetry/chouette/internal/logformat"
	"github.com/tinytelemetry/chouette/internal/logparse"
	"github.com/tinytelemetry/chouette/internal/model"
)

// LogItems converts OTLP resource logs into relay items. Resource and scope
// attributes are inherited by every record beneath them.
func LogItems(resourceLogs []*logspb.ResourceLogs) []Item {
	var items []Item
	for _, rl := range resourceLogs {
		resAttrs := resourceAttributes(rl.GetResource())
		for _, sl := range rl.GetScopeLogs() {
			scopeAttrs := withScope(resAttrs, sl.GetScope())
			for _, lr := range sl.GetLogRecords() {
				items = append(items, logItem(lr, scopeAttrs))
			}
		}
	}
	return items
}

func logItem(lr *logspb.LogRecord, inherited map[string]string) Item {
	attrs := cloneAttrs(inherited)
	mergeKeyValues(attrs, lr.GetAttributes())
	if id := lr.GetTraceId(); len(id) > 0 {
		attrs["trace.id"] = hex.EncodeToString(id)
	}
	if id := lr.GetSpanId(); len(id) > 0 {
		attrs["span.id"] = hex.EncodeToString(id)
	}

	ts := lr.GetTimeUnixNano()
	if ts == 0 {
		ts = lr.GetObservedTimeUnixNano()
	}
	when := time.Now()
	if ts > 0 {
		when = time.Unix(0, int64(ts))
	}

	fields := make(map[string]any, len(attrs))
	for k, v := range attrs {
		fields[k] = v
	}

	return Item{
		Log: &logformat.Event{
			Time:    when,
			Level:   OTELLevelName(lr.GetSeverityText(), int(lr.GetSeverityNumber())),
			Message: sanitizeLogMessage(AnyValueString(lr.GetBody())),
			Fields:  fields,
		},
		Service: ExtractService(attrs),
	}
}

// MetricItems converts OTLP resource metrics into relay items. Gauges stay
// gauges, monotonic delta sums become counts, other sums become gauges and
// histograms and summaries become a histogram of their mean.
func MetricItems(resourceMetrics []*metricspb.ResourceMetrics) []Item {
	var items []Item
	for _, rm := range resourceMetrics {
		resAttrs := resourceAttributes(rm.GetResource())
		for _, sm := range rm.GetScopeMetrics() {
			scopeAttrs := withScope(resAttrs, sm.GetScope())
			for _, m := range sm.GetMetrics() {
				items = append(items, metricItems(m, scopeAttrs)...)
			}
		}
	}
	return items
}

func metricItems(m *metricspb.Metric, inherited map[string]string) []Item {
	var items []Item
	add := func(kind model.MetricKind, value float64, tsNano uint64, attrs []*commonpb.KeyValue) {
		tags := cloneAttrs(inherited)
		mergeKeyValues(tags, attrs)
		items = append(items, Item{Metric: &MetricInput{
			Name:      m.GetName(),
			Kind:      string(kind),
			Value:     value,
			Timestamp: unixSeconds(tsNano),
			Tags:      tags,
		}})
	}

	switch {
	case m.GetGauge() != nil:
		for _, dp := range m.GetGauge().GetDataPoints() {
			add(model.KindGauge, numberValue(dp), dp.GetTimeUnixNano(), dp.GetAttributes())
		}
	case m.GetSum() != nil:
		sum := m.GetSum()
		kind := model.KindGauge
		if sum.GetIsMonotonic() && sum.GetAggregationTemporality() == metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_DELTA {
			kind = model.KindCount
		}
		for _, dp := range sum.GetDataPoints() {
			add(kind, numberValue(dp), dp.GetTimeUnixNano(), dp.GetAttributes())
		}
	case m.GetHistogram() != nil:
		for _, dp := range m.GetHistogram().GetDataPoints() {
			if dp.GetCount() == 0 {
				continue
			}
			add(model.KindHistogram, dp.GetSum()/float64(dp.GetCount()), dp.GetTimeUnixNano(), dp.GetAttributes())
		}
	case m.GetSummary() != nil:
		for _, dp := range m.GetSummary().GetDataPoints() {
			if dp.GetCount() == 0 {
				continue
			}
			add(model.KindHistogram, dp.GetSum()/float64(dp.GetCount()), dp.GetTimeUnixNano(), dp.GetAttributes())
		}
	}
	return items
}

func numberValue(dp *metricspb.NumberDataPoint) float64 {
	if v, ok := dp.GetValue().(*metricspb.NumberDataPoint_AsInt); ok {
		return float64(v.AsInt)
	}
	return dp.GetAsDouble()
}

// unixSeconds returns 0 for an unset time so the normalizer uses now.
func unixSeconds(nano uint64) float64 {
	if nano == 0 {
		return 0
	}
	return float64(nano) / float64(time.Second)
}

func resourceAttributes(res *resourcepb.Resource) map[string]string {
	out := map[string]string{}
	mergeKeyValues(out, res.GetAttributes())
	return out
}

func withScope(inherited map[string]string, scope *commonpb.InstrumentationScope) map[string]string {
	out := cloneAttrs(inherited)
	if scope == nil {
		return out
	}
	if name := scope.GetName(); name != "" {
		out["otel.scope.name"] = name
	}
	if version := scope.GetVersion(); version != "" {
		out["otel.scope.version"] = version
	}
	mergeKeyValues(out, scope.GetAttributes())
	return out
}

func mergeKeyValues(dst map[string]string, kvs []*commonpb.KeyValue) {
	for _, kv := range kvs {
		if kv.GetKey() == "" {
			continue
		}
		if v := AnyValueString(kv.GetValue()); v != "" {
			dst[kv.GetKey()] = v
		}
	}
}

func cloneAttrs(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AnyValueString renders an OTLP value as text. Arrays are joined with
// commas and key/value lists render as "k=v" pairs.
func AnyValueString(v *commonpb.AnyValue) string {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'f', -1, 64)
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		parts := make([]string, 0, len(val.ArrayValue.GetValues()))
		for _, el := range val.ArrayValue.GetValues() {
			if s := AnyValueString(el); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	case *commonpb.AnyValue_KvlistValue:
		parts := make([]string, 0, len(val.KvlistValue.GetValues()))
		for _, kv := range val.KvlistValue.GetValues() {
			parts = append(parts, kv.GetKey()+"="+AnyValueString(kv.GetValue()))
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// SeverityFromOTELNumber maps an OTEL severity number (1..24) to a severity
// name, or "" when out of range.
func SeverityFromOTELNumber(number int) string {
	switch {
	case number >= 1 && number <= 4:
		return "TRACE"
	case number >= 5 && number <= 8:
		return "DEBUG"
	case number >= 9 && number <= 12:
		return "INFO"
	case number >= 13 && number <= 16:
		return "WARN"
	case number >= 17 && number <= 20:
		return "ERROR"
	case number >= 21 && number <= 24:
		return "FATAL"
	default:
		return ""
	}
}

// OTELLevelName maps an OTEL severity text or number to the shipped level
// name. A record with neither ships as INFO.
func OTELLevelName(text string, number int) string {
	if text == "" {
		text = SeverityFromOTELNumber(number)
	}
	if text == "" {
		return logparse.LevelName(0)
	}
	return levelName(text)
}
