// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// CorrelationIDKey is the context key for the job correlation ID
	CorrelationIDKey contextKey = "correlation_id"
	// TenantIDKey is the context key for tenant ID
	TenantIDKey contextKey = "tenant_id"
	// LeadIDKey is the context key for lead ID
	LeadIDKey contextKey = "lead_id"
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
// Supports correlation_id, tenant_id, and lead_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok && correlationID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("correlation_id", correlationID)),
		}
	}

	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok && tenantID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("tenant_id", tenantID)),
		}
	}

	if leadID, ok := ctx.Value(LeadIDKey).(string); ok && leadID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("lead_id", leadID)),
		}
	}

	return newLogger
}

// WithJob returns a logger carrying the identifiers of one queue job.
func (l *Logger) WithJob(taskType, correlationID string) *Logger {
	return &Logger{
		Logger: l.With(
			slog.String("task", taskType),
			slog.String("correlation_id", correlationID),
		),
	}
}

// AIRequest logs one completed call to the language model provider.
func (l *Logger) AIRequest(model string, tokensUsed int, latencyMs int64, attempts int) {
	l.Info("ai_request",
		slog.String("model", model),
		slog.Int("tokens_used", tokensUsed),
		slog.Int64("latency_ms", latencyMs),
		slog.Int("attempts", attempts),
	)
}

// SecurityEvent logs a detected security incident.
func (l *Logger) SecurityEvent(incidentType, severity, detectionLayer string, flags []string) {
	l.Warn("security_event",
		slog.String("incident_type", incidentType),
		slog.String("severity", severity),
		slog.String("detection_layer", detectionLayer),
		slog.Any("flags", flags),
	)
}

// QueueError logs a failed queue job attempt.
func (l *Logger) QueueError(queue, taskType string, attempt int, err error) {
	l.Error("queue_error",
		slog.String("queue", queue),
		slog.String("task", taskType),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

// BreakerStateChange logs a circuit breaker transition.
func (l *Logger) BreakerStateChange(from, to string) {
	l.Warn("breaker_state_change",
		slog.String("from", from),
		slog.String("to", to),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
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

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
