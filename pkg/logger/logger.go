// Package logger provides structured, component-tagged logging used across
// the orchestrator. Call sites pass a component name and a flat field map,
// e.g. logger.WarnCF("mcp", "server unreachable", map[string]interface{}{"name": name}).
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

var (
	mu  sync.RWMutex
	std = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// SetHandler swaps the backing slog handler (used by tests to capture output).
func SetHandler(h slog.Handler) {
	mu.Lock()
	defer mu.Unlock()
	std = slog.New(h)
}

func logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

func attrs(component string, fields map[string]interface{}) []any {
	out := make([]any, 0, 2+2*len(fields))
	out = append(out, "component", component)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

// Info logs a plain informational message with no component tag.
func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

// InfoCF logs at info level with a component tag and structured fields.
func InfoCF(component, message string, fields map[string]interface{}) {
	logger().Info(message, attrs(component, fields)...)
}

// WarnCF logs at warn level with a component tag and structured fields.
func WarnCF(component, message string, fields map[string]interface{}) {
	logger().Warn(message, attrs(component, fields)...)
}

// ErrorCF logs at error level with a component tag and structured fields.
func ErrorCF(component, message string, fields map[string]interface{}) {
	logger().Error(message, attrs(component, fields)...)
}

// DebugCF logs at debug level with a component tag and structured fields.
func DebugCF(component, message string, fields map[string]interface{}) {
	logger().Debug(message, attrs(component, fields)...)
}

// WithContext returns a logger carrying values from ctx (currently a no-op
// hook point; kept so call sites can start threading trace ids through
// without a second API migration later).
func WithContext(ctx context.Context) *slog.Logger {
	return logger()
}
