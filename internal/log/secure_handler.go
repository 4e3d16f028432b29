package log

import (
	"context"
	"io"
	"log/slog"
)

// SecureHandler is an slog.Handler that scrubs credentials before records
// reach the wrapped handler. Cookies and headers from the host
// configuration, proxy passwords and signed URL parameters never make it
// into the output.
type SecureHandler struct {
	next slog.Handler
}

// NewSecureHandler wraps next. A nil next wraps slog.Default().Handler().
func NewSecureHandler(next slog.Handler) *SecureHandler {
	if next == nil {
		next = slog.Default().Handler()
	}
	return &SecureHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler. The message goes through RedactURLs since
// callers sometimes format URLs into it.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, RedactURLs(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(scrub(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SecureHandler{next: h.next.WithAttrs(scrubAll(attrs))}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{next: h.next.WithGroup(name)}
}

func scrubAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = scrub(a)
	}
	return out
}

// scrub returns a with its value masked or redacted as needed. Groups are
// walked; LogValuers are resolved first so they cannot smuggle secrets.
func scrub(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(scrubAll(v.Group())...)}
	}
	if isSecretKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
		if isSensitiveValue(s) {
			return slog.String(a.Key, MaskValue)
		}
	case slog.KindAny:
		err, ok := v.Any().(error)
		if !ok || err == nil {
			return slog.Attr{Key: a.Key, Value: v}
		}
		s = err.Error()
	default:
		return slog.Attr{Key: a.Key, Value: v}
	}

	if r := RedactURLs(s); r != s {
		return slog.String(a.Key, r)
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// NewSecureLogger returns a text logger on w behind a SecureHandler.
// verbose enables Debug and Info records; otherwise only warnings and
// errors are written.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, levelFor(verbose))))
}

// NewSecureJSONLogger is NewSecureLogger with JSON records.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, levelFor(verbose))))
}

func levelFor(verbose bool) *slog.HandlerOptions {
	if verbose {
		return &slog.HandlerOptions{Level: slog.LevelDebug}
	}
	return &slog.HandlerOptions{Level: slog.LevelWarn}
}
