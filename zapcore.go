package chouette

import (
	"log/slog"

	"go.uber.org/zap/zapcore"

	"github.com/tinytelemetry/chouette/internal/logformat"
	"github.com/tinytelemetry/chouette/internal/logparse"
)

type zapCore struct {
	client  *Client
	service string
	level   slog.Level
	fields  []zapcore.Field
}

// NewZapCore returns a zapcore.Core shipping entries as service. Combine
// it with an existing core through zapcore.NewTee. Fields named "tags"
// become tags; zap.Error and zap.NamedError("exc_info", ...) become the
// exception.
func NewZapCore(service string, opts ...HandlerOption) zapcore.Core {
	c, level := resolveHandlerOptions(opts)
	return &zapCore{client: c, service: service, level: level}
}

func (z *zapCore) Enabled(level zapcore.Level) bool {
	return z.client.Available() && zapLevel(level) >= z.level
}

func (z *zapCore) With(fields []zapcore.Field) zapcore.Core {
	if len(fields) == 0 {
		return z
	}
	z2 := *z
	z2.fields = append(append(make([]zapcore.Field, 0, len(z.fields)+len(fields)), z.fields...), fields...)
	return &z2
}

func (z *zapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if z.Enabled(ent.Level) {
		return ce.AddCore(ent, z)
	}
	return ce
}

func (z *zapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	ev := logformat.Event{
		Time:    ent.Time,
		Level:   logparse.LevelName(zapLevel(ent.Level)),
		Message: ent.Message,
	}
	for _, group := range [][]zapcore.Field{z.fields, fields} {
		for _, f := range group {
			switch {
			case f.Type == zapcore.ErrorType && (f.Key == ErrorAttrKey || f.Key == ExcInfoKey):
				if err, ok := f.Interface.(error); ok {
					ev.Err = err
					continue
				}
			case f.Key == TagsKey:
				tmp := zapcore.NewMapObjectEncoder()
				f.AddTo(tmp)
				ev.Tags = tmp.Fields[TagsKey]
				continue
			}
			f.AddTo(enc)
		}
	}
	if len(enc.Fields) > 0 {
		ev.Fields = enc.Fields
	}
	ev.Err = withStack(ev.Err)
	z.client.SubmitLog(logformat.Format(ev, z.service))
	return nil
}

// Sync is a no-op; Client.Close drains pending records.
func (z *zapCore) Sync() error {
	return nil
}

func zapLevel(l zapcore.Level) slog.Level {
	switch {
	case l <= zapcore.DebugLevel:
		return slog.LevelDebug
	case l == zapcore.InfoLevel:
		return slog.LevelInfo
	case l == zapcore.WarnLevel:
		return slog.LevelWarn
	case l == zapcore.ErrorLevel:
		return slog.LevelError
	default:
		return logparse.LevelCritical
	}
}
