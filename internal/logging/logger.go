// Package logging provides structured, leveled logging for the memory core.
// Core algorithms are pure and never log; effectful paths (storage adapters,
// safe-edit application, the server pipeline) log through an injected Logger.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logging interface used across the core.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	WithComponent(component string) Logger
}

// LogLevel represents logging levels.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// ParseLogLevel parses a level name, defaulting to INFO.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// LogEntry is a single structured log line.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	TraceID   string         `json:"trace_id,omitempty"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// StructuredLogger writes JSON or text log lines to stderr.
type StructuredLogger struct {
	level     LogLevel
	component string
	traceID   string
	useJSON   bool
}

// NewLogger creates a structured logger at the given level. JSON output is
// the default; set LOG_JSON=false for text.
func NewLogger(level LogLevel) Logger {
	useJSON := true
	if v := os.Getenv("LOG_JSON"); v != "" {
		useJSON = v == "true" || v == "1"
	}
	return &StructuredLogger{level: level, useJSON: useJSON}
}

// WithComponent returns a logger scoped to a component name.
func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{level: l.level, component: component, traceID: l.traceID, useJSON: l.useJSON}
}

// Debug logs a debug message.
func (l *StructuredLogger) Debug(msg string, fields ...any) { l.log(DEBUG, "DEBUG", msg, fields) }

// Info logs an info message.
func (l *StructuredLogger) Info(msg string, fields ...any) { l.log(INFO, "INFO", msg, fields) }

// Warn logs a warning message.
func (l *StructuredLogger) Warn(msg string, fields ...any) { l.log(WARN, "WARN", msg, fields) }

// Error logs an error message.
func (l *StructuredLogger) Error(msg string, fields ...any) { l.log(ERROR, "ERROR", msg, fields) }

func (l *StructuredLogger) log(level LogLevel, name, msg string, fields []any) {
	if l.level > level {
		return
	}
	fieldMap := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		fieldMap[fmt.Sprintf("%v", fields[i])] = fields[i+1]
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     name,
		Message:   msg,
		TraceID:   l.traceID,
		Component: l.component,
		Fields:    fieldMap,
	}
	if l.useJSON {
		data, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
			return
		}
		fmt.Fprintln(os.Stderr, string(data))
		return
	}
	parts := []string{entry.Timestamp, "[" + entry.Level + "]"}
	if entry.Component != "" {
		parts = append(parts, "component:"+entry.Component)
	}
	parts = append(parts, entry.Message)
	for k, v := range fieldMap {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	fmt.Fprintln(os.Stderr, strings.Join(parts, " "))
}

// ContextKey is the type for context values owned by this package.
type ContextKey string

// TraceIDKey carries the request trace id through contexts.
const TraceIDKey ContextKey = "trace_id"

// GenerateTraceID returns a fresh trace id.
func GenerateTraceID() string {
	return uuid.New().String()
}

// WithTraceID stores a trace id on the context, generating one if empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID extracts the trace id from a context, or "".
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}
