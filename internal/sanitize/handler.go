package sanitize

import (
	"context"
	"log/slog"
)

// logHandler redacts the record message and every string-valued
// attribute before delegating to the wrapped handler. Installed around
// the daemon's root handler so redaction covers all logging, the
// success path's incidental lines included.
type logHandler struct {
	next slog.Handler
}

// NewLogHandler wraps a handler with credential redaction.
func NewLogHandler(next slog.Handler) slog.Handler {
	return &logHandler{next: next}
}

func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *logHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, Message(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = sanitizeAttr(a)
	}
	return &logHandler{next: h.next.WithAttrs(clean)}
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	return &logHandler{next: h.next.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Message(v.String()))
	case slog.KindGroup:
		members := v.Group()
		clean := make([]any, 0, len(members))
		for _, m := range members {
			clean = append(clean, sanitizeAttr(m))
		}
		return slog.Group(a.Key, clean...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, Error(err))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
