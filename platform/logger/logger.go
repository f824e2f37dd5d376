// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// RunIDKey is the context key for a pipeline run ID
	RunIDKey contextKey = "run_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id and run_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("request_id", requestID)),
		}
	}

	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("run_id", runID)),
		}
	}

	return newLogger
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// StageError logs a pipeline stage failure. Stage failures are isolated
// per run, so these are warnings rather than errors.
func (l *Logger) StageError(stage string, generation uint64, err error) {
	l.Warn("stage_error",
		slog.String("stage", stage),
		slog.Uint64("generation", generation),
		slog.String("error", err.Error()),
	)
}

// FetchRetry logs a retried upstream fetch attempt.
func (l *Logger) FetchRetry(source string, attempt int, delay time.Duration, err error) {
	l.Warn("fetch_retry",
		slog.String("source", source),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

// CacheEvent logs cache hits, misses, and purges.
func (l *Logger) CacheEvent(event, key string) {
	l.Debug("cache_event",
		slog.String("event", event),
		slog.String("key", key),
	)
}

// RateLimitExceeded logs a rejected request.
func (l *Logger) RateLimitExceeded(ip, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", ip),
		slog.String("path", path),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
