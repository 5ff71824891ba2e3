// Package reqlog builds opinionated slog loggers for applications embedding
// reqwrap: colorized console output, an optional rotating JSON log file and
// an optional error-only file, with sensitive attributes masked everywhere.
package reqlog

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options defines parameters for logger creation.
type Options struct {
	// Env selects console formatting: "dev" uses short kitchen timestamps,
	// anything else RFC3339.
	Env string
	// ConsoleLevel is the minimum level for console output (default info).
	ConsoleLevel string
	// FileLevel is the minimum level for the general log file (default debug).
	FileLevel string
	// File, when set, enables a rotating JSON log file.
	File string
	// ErrorFile, when set, enables a second rotating file receiving only
	// error-level records.
	ErrorFile string
	// App tags every record with the application name.
	App string
}

// sensitiveKeys are masked in every emitted record.
var sensitiveKeys = []string{"authorization", "proxy-authorization", "api_key", "token", "secret"}

var closers sync.Map

// New creates a configured *slog.Logger. Call Close when shutting down to
// release file handles.
func New(o Options) *slog.Logger {
	consoleLvl := levelFromString(o.ConsoleLevel, slog.LevelInfo)
	fileLvl := levelFromString(o.FileLevel, slog.LevelDebug)

	timeFormat := time.RFC3339
	if o.Env == "dev" {
		timeFormat = time.Kitchen
	}

	handlers := []slog.Handler{
		newMaskingHandler(
			tint.NewHandler(os.Stdout, &tint.Options{Level: consoleLvl, TimeFormat: timeFormat}),
			sensitiveKeys,
		),
	}

	var closeFns []func() error

	if o.File != "" {
		writer := newRotatingWriter(o.File)
		closeFns = append(closeFns, writer.Close)
		handlers = append(handlers, newMaskingHandler(
			slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: fileLvl}),
			sensitiveKeys,
		))
	}

	if o.ErrorFile != "" {
		writer := newRotatingWriter(o.ErrorFile)
		closeFns = append(closeFns, writer.Close)
		handlers = append(handlers, newMaskingHandler(
			slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelError}),
			sensitiveKeys,
		))
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = newTeeHandler(handlers...)
	}

	l := slog.New(h)
	if o.App != "" {
		l = l.With(slog.String("app", o.App))
	}

	if len(closeFns) > 0 {
		closers.Store(l, closeFns)
	}
	return l
}

// Close releases the file handles behind a logger built by New.
func Close(logger *slog.Logger) error {
	v, ok := closers.Load(logger)
	if !ok {
		return nil
	}
	closers.Delete(logger)
	var first error
	for _, fn := range v.([]func() error) {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newRotatingWriter(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

func levelFromString(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

// maskingHandler replaces the values of sensitive attributes before they
// reach the wrapped handler.
type maskingHandler struct {
	inner slog.Handler
	keys  map[string]struct{}
}

func newMaskingHandler(inner slog.Handler, sensitive []string) *maskingHandler {
	keys := make(map[string]struct{}, len(sensitive))
	for _, k := range sensitive {
		keys[strings.ToLower(k)] = struct{}{}
	}
	return &maskingHandler{inner: inner, keys: keys}
}

// Enabled implements slog.Handler.
func (h *maskingHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

// Handle implements slog.Handler.
func (h *maskingHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	var attrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool { attrs = append(attrs, a); return true })
	nr.AddAttrs(h.mask(attrs...)...)
	return h.inner.Handle(ctx, nr)
}

// WithAttrs implements slog.Handler.
func (h *maskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &maskingHandler{inner: h.inner.WithAttrs(h.mask(attrs...)), keys: h.keys}
}

// WithGroup implements slog.Handler.
func (h *maskingHandler) WithGroup(name string) slog.Handler {
	return &maskingHandler{inner: h.inner.WithGroup(name), keys: h.keys}
}

func (h *maskingHandler) mask(attrs ...slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		if _, ok := h.keys[strings.ToLower(a.Key)]; ok {
			out = append(out, slog.String(a.Key, "[REDACTED]"))
			continue
		}
		out = append(out, a)
	}
	return out
}

// teeHandler fans records out to several handlers.
type teeHandler struct {
	handlers []slog.Handler
}

func newTeeHandler(handlers ...slog.Handler) *teeHandler {
	return &teeHandler{handlers: handlers}
}

// Enabled implements slog.Handler.
func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler.
func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &teeHandler{handlers: handlers}
}

// WithGroup implements slog.Handler.
func (h *teeHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &teeHandler{handlers: handlers}
}
