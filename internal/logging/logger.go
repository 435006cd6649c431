// Package logging provides structured logging for the SBRGA painting engine
// and its job server.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in
	// production.
	DebugLevel LogLevel = "DEBUG"
	// InfoLevel is the default logging priority.
	InfoLevel LogLevel = "INFO"
	// WarnLevel logs are more important than Info, but don't need individual
	// human review.
	WarnLevel LogLevel = "WARN"
	// ErrorLevel logs are high-priority. If an application is running smoothly,
	// it shouldn't generate any error-level logs.
	ErrorLevel LogLevel = "ERROR"
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel LogLevel = "FATAL"
)

// Field names shared by every component that logs about a painting run.
const (
	FieldRunID      = "run_id"
	FieldGeneration = "generation"
	FieldService    = "service"
	FieldCommand    = "command"
)

// levelRank orders the levels; unknown levels are never logged.
var levelRank = map[LogLevel]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
	FatalLevel: 4,
}

// Format selects how entries are encoded.
type Format string

const (
	// JSONFormat writes one JSON object per line.
	JSONFormat Format = "json"
	// TextFormat writes "time LEVEL message key=value ..." lines.
	TextFormat Format = "text"
)

// Logger represents an active logging object.
type Logger struct {
	level  LogLevel
	format Format
	output io.Writer
	fields map[string]interface{}
}

// New creates a new JSON Logger with the specified log level and output.
func New(level LogLevel, output io.Writer) *Logger {
	return &Logger{
		level:  level,
		format: JSONFormat,
		output: output,
		fields: make(map[string]interface{}),
	}
}

// WithFormat returns a copy of the logger that encodes entries as f.
func (l *Logger) WithFormat(f Format) *Logger {
	return &Logger{
		level:  l.level,
		format: f,
		output: l.output,
		fields: l.fields,
	}
}

// WithFields returns a new Logger with the specified fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		level:  l.level,
		format: l.format,
		output: l.output,
		fields: newFields,
	}
}

// WithField returns a new Logger with the specified key-value pair.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithError returns a new Logger with the error field set.
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

// ForRun returns a Logger that tags every entry with the painting run id.
func (l *Logger) ForRun(runID string) *Logger {
	return l.WithField(FieldRunID, runID)
}

// ForGeneration returns a Logger that tags every entry with a generation.
func (l *Logger) ForGeneration(gen int) *Logger {
	return l.WithField(FieldGeneration, gen)
}

// RunID returns the run id attached with ForRun, or "".
func (l *Logger) RunID() string {
	id, _ := l.fields[FieldRunID].(string)
	return id
}

// log writes a log entry with the given level and message.
func (l *Logger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}

	// Get caller info
	_, file, line, ok := runtime.Caller(2) // Adjust the depth as needed
	if !ok {
		file = "???"
		line = 0
	} else {
		// Only keep the last two parts of the file path
		parts := strings.Split(file, "/")
		if len(parts) > 2 {
			file = strings.Join(parts[len(parts)-2:], "/")
		}
	}

	// Merge fields
	allFields := make(map[string]interface{})
	for k, v := range l.fields {
		allFields[k] = v
	}
	for k, v := range fields {
		allFields[k] = v
	}

	// Create log entry
	entry := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"message":   msg,
		"caller":    fmt.Sprintf("%s:%d", file, line),
	}

	// Add fields to entry
	for k, v := range allFields {
		entry[k] = v
	}

	if l.format == TextFormat {
		l.writeText(entry)
		if level == FatalLevel {
			os.Exit(1)
		}
		return
	}

	// Encode to JSON
	jsonData, err := json.Marshal(entry)
	if err != nil {
		// Fallback to simple log if JSON encoding fails
		fmt.Fprintf(l.output, "%s [%s] %s: %+v\n",
			time.Now().Format(time.RFC3339), level, msg, allFields)
		return
	}

	// Write to output
	jsonData = append(jsonData, '\n')
	_, _ = l.output.Write(jsonData)

	// Handle fatal level
	if level == FatalLevel {
		os.Exit(1)
	}
}

// writeText writes entry as a single human-readable line with sorted fields.
func (l *Logger) writeText(entry map[string]interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", entry["timestamp"], entry["level"], entry["message"])

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "timestamp", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry[k])
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(l.output, b.String())
}

// shouldLog reports whether level passes the logger's threshold.
func (l *Logger) shouldLog(level LogLevel) bool {
	rank, ok := levelRank[level]
	if !ok {
		return false
	}
	threshold, ok := levelRank[l.level]
	return ok && rank >= threshold
}

func firstFields(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(DebugLevel, msg, firstFields(fields))
}

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(InfoLevel, msg, firstFields(fields))
}

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(WarnLevel, msg, firstFields(fields))
}

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(ErrorLevel, msg, firstFields(fields))
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...map[string]interface{}) {
	l.log(FatalLevel, msg, firstFields(fields))
}

// CtxLogger is a logger that can be used with context.
type CtxLogger struct {
	*Logger
}

// FromContext returns a logger from the context or a new one if none exists.
func FromContext(ctx context.Context) *CtxLogger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*CtxLogger); ok {
		return logger
	}
	return &CtxLogger{New(InfoLevel, os.Stderr)}
}

// WithContext returns a new context with the logger.
func (l *CtxLogger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, l)
}

type ctxLoggerKey struct{}
