package chouette

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/logformat"
	"github.com/tinytelemetry/chouette/internal/logparse"
)

// Attribute keys with special meaning to the log integrations.
const (
	TagsKey      = "tags"
	ExcInfoKey   = "exc_info"
	ErrorAttrKey = "error"
)

// HandlerOption configures NewLogHandler and NewZapCore.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	client *Client
	level  *slog.Level
}

// HandlerClient submits through c instead of the default client.
func HandlerClient(c *Client) HandlerOption {
	return func(o *handlerOptions) { o.client = c }
}

// HandlerLevel overrides the threshold read from CHOUETTE_LOG_LEVEL.
func HandlerLevel(level slog.Level) HandlerOption {
	return func(o *handlerOptions) { o.level = &level }
}

func resolveHandlerOptions(opts []HandlerOption) (*Client, slog.Level) {
	var o handlerOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	c := o.client
	if c == nil {
		c = Default()
	}
	if o.level != nil {
		return c, *o.level
	}
	level, err := logparse.ParseThreshold(c.cfg.LogLevel)
	if err != nil {
		c.logger.Warn("Invalid log level, shipping every level",
			zap.String("level", c.cfg.LogLevel), zap.Error(err))
		level = logparse.LevelNotSet
	}
	return c, level
}

// Exception returns an attribute that LogHandler stores as exc_info.
func Exception(err error) slog.Attr {
	return slog.Any(ExcInfoKey, err)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// withStack attaches the logging call's stack to err unless err already
// carries one, so exc_info always holds a trace.
func withStack(err error) error {
	if err == nil {
		return nil
	}
	var st stackTracer
	if errors.As(err, &st) {
		return err
	}
	return errors.WithStack(err)
}

// LogHandler is a slog.Handler that enqueues records for the agent.
type LogHandler struct {
	client  *Client
	service string
	level   slog.Level

	fields map[string]any
	groups []string
	// tags and exception set through WithAttrs before any group.
	tags any
	err  error
	exc  string
}

// NewLogHandler returns a handler shipping records as service.
func NewLogHandler(service string, opts ...HandlerOption) *LogHandler {
	c, level := resolveHandlerOptions(opts)
	return &LogHandler{client: c, service: service, level: level}
}

// Enabled reports false when there is no storage or level is below the
// threshold, so filtered records are never formatted.
func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.client.Available() && level >= h.level
}

// Handle formats r and submits it. It never returns an error.
func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	if !h.Enabled(context.Background(), r.Level) {
		return nil
	}
	ev := logformat.Event{
		Time:    r.Time,
		Level:   logparse.LevelName(r.Level),
		Message: r.Message,
		Tags:    h.tags,
		Err:     h.err,
		ExcText: h.exc,
		Fields:  cloneFields(h.fields),
	}
	r.Attrs(func(a slog.Attr) bool {
		h.addAttr(&ev, a)
		return true
	})
	ev.Err = withStack(ev.Err)
	h.client.SubmitLog(logformat.Format(ev, h.service))
	return nil
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	ev := logformat.Event{Tags: h2.tags, Err: h2.err, ExcText: h2.exc, Fields: h2.fields}
	for _, a := range attrs {
		h2.addAttr(&ev, a)
	}
	h2.tags, h2.err, h2.exc, h2.fields = ev.Tags, ev.Err, ev.ExcText, ev.Fields
	return h2
}

// WithGroup returns a handler that nests later attributes under name.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(slices.Clip(h2.groups), name)
	return h2
}

func (h *LogHandler) clone() *LogHandler {
	h2 := *h
	h2.fields = cloneFields(h.fields)
	return &h2
}

// addAttr routes a into ev. The special keys are only recognized outside
// any group.
func (h *LogHandler) addAttr(ev *logformat.Event, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if len(h.groups) == 0 && special(ev, a) {
		return
	}
	if ev.Fields == nil {
		ev.Fields = make(map[string]any)
	}
	target := ev.Fields
	for _, g := range h.groups {
		next, ok := target[g].(map[string]any)
		if !ok {
			next = make(map[string]any)
			target[g] = next
		}
		target = next
	}
	putAttr(target, a)
}

func special(ev *logformat.Event, a slog.Attr) bool {
	switch a.Key {
	case TagsKey:
		ev.Tags = attrValue(a.Value)
		return true
	case ExcInfoKey:
		switch v := a.Value.Any().(type) {
		case error:
			ev.Err = v
		case string:
			ev.ExcText = v
		default:
			return false
		}
		return true
	case ErrorAttrKey:
		if err, ok := a.Value.Any().(error); ok {
			ev.Err = err
			return true
		}
	}
	return false
}

func putAttr(target map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		// An unnamed group is inlined.
		if a.Key == "" {
			for _, ga := range attrs {
				putAttr(target, ga)
			}
			return
		}
		sub, ok := target[a.Key].(map[string]any)
		if !ok {
			sub = make(map[string]any, len(attrs))
			target[a.Key] = sub
		}
		for _, ga := range attrs {
			putAttr(sub, ga)
		}
		return
	}
	target[a.Key] = attrValue(a.Value)
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		m := make(map[string]any)
		for _, a := range v.Group() {
			putAttr(m, a)
		}
		return m
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}

func cloneFields(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		if sub, ok := v.(map[string]any); ok {
			out[k] = cloneFields(sub)
		}
	}
	return out
}
