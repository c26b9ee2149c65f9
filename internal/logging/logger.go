package logging

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
)

var defaultDebug atomic.Bool

// SetDefaultDebug sets the debug flag of loggers created afterwards.
func SetDefaultDebug(on bool) {
	defaultDebug.Store(on)
}

type requestIDKey struct{}

// WithRequestID stores a request ID on the context so loggers built from it
// can tag their lines.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestID returns the request ID carried by ctx, if any.
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

// Logger writes key=value lines through the standard log package.
type Logger struct {
	component string
	requestID string
	debug     bool
}

// New creates a logger for a component
func New(component string) *Logger {
	return &Logger{component: component, debug: defaultDebug.Load()}
}

// FromContext creates a logger tagged with the request ID from ctx
func FromContext(ctx context.Context, component string) *Logger {
	l := New(component)
	l.requestID = RequestID(ctx)
	return l
}

// SetDebug toggles debug output. LOG_LEVEL=debug turns it on at startup.
func (l *Logger) SetDebug(on bool) *Logger {
	l.debug = on
	return l
}

// ParseLevel reports whether the configured level enables debug lines.
func ParseLevel(level string) bool {
	return strings.EqualFold(strings.TrimSpace(level), "debug")
}

func (l *Logger) prefix(level, operation string) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level)
	b.WriteString("] component=")
	b.WriteString(l.component)
	if l.requestID != "" {
		b.WriteString(" request_id=")
		b.WriteString(l.requestID)
	}
	b.WriteString(" operation=")
	b.WriteString(operation)
	return b.String()
}

// Error logs an error with context
func (l *Logger) Error(operation string, err error) {
	log.Printf("%s error=%v", l.prefix("error", operation), err)
}

// Errorf logs a formatted error with context
func (l *Logger) Errorf(operation string, format string, args ...interface{}) {
	log.Printf(l.prefix("error", operation)+" "+format, args...)
}

// Info logs an info message with context
func (l *Logger) Info(operation string, message string) {
	log.Printf("%s message=%s", l.prefix("info", operation), message)
}

// Infof logs a formatted info message with context
func (l *Logger) Infof(operation string, format string, args ...interface{}) {
	log.Printf(l.prefix("info", operation)+" "+format, args...)
}

// Warn logs a warning with context
func (l *Logger) Warn(operation string, message string) {
	log.Printf("%s message=%s", l.prefix("warn", operation), message)
}

// Warnf logs a formatted warning with context
func (l *Logger) Warnf(operation string, format string, args ...interface{}) {
	log.Printf(l.prefix("warn", operation)+" "+format, args...)
}

// Debugf logs only when debug output is enabled
func (l *Logger) Debugf(operation string, format string, args ...interface{}) {
	if !l.debug {
		return
	}
	log.Printf(l.prefix("debug", operation)+" "+format, args...)
}
