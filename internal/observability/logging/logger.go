package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/distguard/distguard/internal/observability"
)

// Logger takes a component name, a message and alternating key/value
// fields. Event records a named lifecycle event for the current op.
type Logger interface {
	Debug(component, msg string, fields ...any)
	Info(component, msg string, fields ...any)
	Warn(component, msg string, fields ...any)
	Error(component, msg string, fields ...any)
	Event(ctx context.Context, event string, fields map[string]any)
	Close() error
}

type loggerKey struct{}

func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// From never returns nil.
func From(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return noopLogger{}
}

func NewLogger(cfg Config) (Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var w io.Writer = os.Stderr
	var closer io.Closer
	if cfg.Output != "" && cfg.Output != "stderr" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		w = f
		closer = f
	}

	if cfg.Format == FormatJSONL {
		return newJSONL(w, closer, cfg.Level), nil
	}
	return newPretty(w, closer, cfg.Level), nil
}

// record is one entry before encoding. rule_id and category fields are
// lifted out of Fields so both formats can key on them.
type record struct {
	Time      time.Time
	Level     string
	Component string
	Event     string
	OpID      string
	RuleID    string
	Category  string
	Msg       string
	Fields    map[string]any
}

// setField files one key/value pair, lifting the rule keys.
func (r *record) setField(key string, value any) {
	switch key {
	case "rule_id":
		r.RuleID = fmt.Sprint(value)
	case "category":
		r.Category = fmt.Sprint(value)
	default:
		if r.Fields == nil {
			r.Fields = map[string]any{}
		}
		r.Fields[key] = value
	}
}

// logger holds what both formats share: level filtering, field pairing and
// serialized writes. encode renders a record as one line.
type logger struct {
	writer     io.Writer
	closer     io.Closer
	minLevel   int
	eventLevel string
	encode     func(record) ([]byte, error)
	mu         sync.Mutex
}

func (l *logger) enabled(level string) bool {
	return levelPriority(level) >= l.minLevel
}

func (l *logger) log(level, component, msg string, fields ...any) {
	if !l.enabled(level) {
		return
	}
	r := record{Time: time.Now(), Level: level, Component: component, Msg: msg}
	// A trailing key without a value is dropped.
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			r.setField(key, fields[i+1])
		}
	}
	l.write(r)
}

func (l *logger) Event(ctx context.Context, event string, fields map[string]any) {
	if !l.enabled(l.eventLevel) {
		return
	}
	r := record{
		Time:      time.Now(),
		Level:     l.eventLevel,
		Component: "cli",
		Event:     "distguard." + event,
		OpID:      observability.OpID(ctx),
	}
	for k, v := range fields {
		r.setField(k, v)
	}
	l.write(r)
}

func (l *logger) write(r record) {
	line, err := l.encode(r)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.writer.Write(append(line, '\n'))
}

func (l *logger) Debug(component, msg string, fields ...any) {
	l.log(LevelDebug, component, msg, fields...)
}

func (l *logger) Info(component, msg string, fields ...any) {
	l.log(LevelInfo, component, msg, fields...)
}

func (l *logger) Warn(component, msg string, fields ...any) {
	l.log(LevelWarn, component, msg, fields...)
}

func (l *logger) Error(component, msg string, fields ...any) {
	l.log(LevelError, component, msg, fields...)
}

func (l *logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(component, msg string, fields ...any)                    {}
func (noopLogger) Info(component, msg string, fields ...any)                     {}
func (noopLogger) Warn(component, msg string, fields ...any)                     {}
func (noopLogger) Error(component, msg string, fields ...any)                    {}
func (noopLogger) Event(ctx context.Context, event string, fields map[string]any) {}
func (noopLogger) Close() error                                                  { return nil }
