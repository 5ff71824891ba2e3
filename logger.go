package reqwrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Logger is the minimal structured logging contract the client speaks.
// Key-value pairs alternate keys and values, slog style. The default is no
// logging; supply one via WithLogger or WithSimpleLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SimpleLogger writes human-readable lines to stderr. Useful for quick
// debugging without wiring a real logging stack.
type SimpleLogger struct{}

// NewSimpleLogger returns a console logger.
func NewSimpleLogger() *SimpleLogger { return &SimpleLogger{} }

func (l *SimpleLogger) log(level, msg string, keysAndValues ...any) {
	line := fmt.Sprintf("%s [%s] %s", time.Now().Format(time.RFC3339), level, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		line += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	fmt.Fprintln(os.Stderr, line)
}

// Debug implements Logger.
func (l *SimpleLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", msg, keysAndValues...) }

// Info implements Logger.
func (l *SimpleLogger) Info(msg string, keysAndValues ...any) { l.log("INFO", msg, keysAndValues...) }

// Warn implements Logger.
func (l *SimpleLogger) Warn(msg string, keysAndValues ...any) { l.log("WARN", msg, keysAndValues...) }

// Error implements Logger.
func (l *SimpleLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR", msg, keysAndValues...) }

// SlogLogger bridges the Logger contract onto a *slog.Logger, typically one
// built by the reqlog package.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps an slog logger.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// Debug implements Logger.
func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

// Info implements Logger.
func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

// Warn implements Logger.
func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

// Error implements Logger.
func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelError, msg, keysAndValues...)
}
