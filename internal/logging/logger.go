// Package logging carries the request id through context and writes
// level-tagged log lines that include it.
package logging

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
)

// Levels accepted by SetLevel, lowest first.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var minLevel atomic.Int32

func rank(level string) int32 {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case LevelWarn, "warning":
		return 1
	case LevelError:
		return 2
	default:
		return 0
	}
}

// SetLevel drops lines below level. Unknown values mean info.
func SetLevel(level string) {
	minLevel.Store(rank(level))
}

func enabled(level string) bool {
	return rank(level) >= minLevel.Load()
}

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying rid.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestID extracts the request ID from a standard context
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

// Logger provides structured logging for services
type Logger struct {
	requestID string
}

// NewLogger creates a logger with request context
func NewLogger(ctx context.Context) *Logger {
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = "unknown"
	}
	return &Logger{requestID: requestID}
}

// LogError logs an error with context
func (l *Logger) LogError(operation string, err error) {
	log.Printf("[error] request_id=%s operation=%s error=%v", l.requestID, operation, err)
}

// LogErrorf logs a formatted error with context
func (l *Logger) LogErrorf(operation string, format string, args ...interface{}) {
	log.Printf("[error] request_id=%s operation=%s "+format, append([]interface{}{l.requestID, operation}, args...)...)
}

// LogInfof logs a formatted info message with context
func (l *Logger) LogInfof(operation string, format string, args ...interface{}) {
	if !enabled(LevelInfo) {
		return
	}
	log.Printf("[info] request_id=%s operation=%s "+format, append([]interface{}{l.requestID, operation}, args...)...)
}

// LogWarnf logs a formatted warning with context
func (l *Logger) LogWarnf(operation string, format string, args ...interface{}) {
	if !enabled(LevelWarn) {
		return
	}
	log.Printf("[warn] request_id=%s operation=%s "+format, append([]interface{}{l.requestID, operation}, args...)...)
}
