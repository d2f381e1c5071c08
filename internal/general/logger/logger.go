package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// ErrorObject is attached to ERROR lines only.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

// LogEntry is the single-line JSON shape written to stdout. Log collectors
// key on service+action; message is for humans.
type LogEntry struct {
	Timestamp string       `json:"timestamp"`
	Level     string       `json:"level"` // DEBUG | INFO | ERROR
	Service   string       `json:"service"`
	Action    string       `json:"action"`
	Message   string       `json:"message"`
	Hostname  string       `json:"hostname"`
	RequestID string       `json:"request_id,omitempty"`
	BookingID string       `json:"booking_id,omitempty"`
	Details   any          `json:"details,omitempty"`
	Error     *ErrorObject `json:"error,omitempty"`
}

// Logger writes structured JSON lines for one service mode. The request id
// and booking id travel in the context so call sites never thread them by
// hand.
type Logger struct {
	service  string
	hostname string
	mu       sync.Mutex
}

// New creates a logger stamped with the service name and hostname.
func New(service string) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}
	return &Logger{service: service, hostname: hn}
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.log(ctx, "DEBUG", action, msg, details, nil)
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.log(ctx, "INFO", action, msg, details, nil)
}

// Error writes an ERROR line with the error message and a stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	l.log(ctx, "ERROR", action, msg, details, &ErrorObject{
		Msg:   strings.TrimSpace(err.Error()),
		Stack: string(debug.Stack()),
	})
}

func (l *Logger) log(ctx context.Context, level, action, msg string, details any, errObj *ErrorObject) {
	action = strings.TrimSpace(action)
	if action == "" {
		action = "unspecified"
	}

	l.emit(LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Service:   l.service,
		Action:    action,
		Message:   strings.TrimSpace(msg),
		Hostname:  l.hostname,
		RequestID: fromCtx(ctx, ctxKeyRequestID),
		BookingID: fromCtx(ctx, ctxKeyBookingID),
		Details:   details,
		Error:     errObj,
	})
}

// emit marshals and prints one JSON line. Details is the usual marshal
// failure source, so a failed encode is retried without it before falling
// back to a minimal self-describing error line.
func (l *Logger) emit(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := json.Marshal(e)
	if err == nil {
		fmt.Println(string(b))
		return
	}

	e.Details = nil
	if b, err := json.Marshal(e); err == nil {
		fmt.Println(string(b))
		return
	}

	fallback := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"level":     "ERROR",
		"service":   l.service,
		"action":    "logger_marshal_failed",
		"message":   "failed to encode log entry",
		"hostname":  l.hostname,
		"error": ErrorObject{
			Msg:   strings.TrimSpace(err.Error()),
			Stack: string(debug.Stack()),
		},
	}
	if fb, err := json.Marshal(fallback); err == nil {
		fmt.Println(string(fb))
	} else {
		fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
	}
}

// ----- context carriers -----

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "mechdispatch_request_id"
	ctxKeyBookingID ctxKey = "mechdispatch_booking_id"
)

// WithRequestID returns a context carrying request_id for subsequent lines.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	if strings.TrimSpace(reqID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, reqID)
}

// WithBookingID returns a context carrying booking_id for subsequent lines.
func (l *Logger) WithBookingID(ctx context.Context, id string) context.Context {
	if strings.TrimSpace(id) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyBookingID, id)
}

func fromCtx(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}
