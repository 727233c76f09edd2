package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/distguard/distguard/internal/observability"
)

func decodeLines(t *testing.T, data string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line is not valid JSON: %v\n%s", err, line)
		}
		out = append(out, entry)
	}
	return out
}

func TestJSONL_CheckLifecycle(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONL(&buf, nil, LevelInfo)

	ctx := observability.WithOpID(context.Background())
	log.Event(ctx, "check.start", map[string]any{"document": "dnsdist.yml"})
	log.Event(ctx, "check.complete", map[string]any{"duration_ms": 12, "result": "blocked"})

	lines := decodeLines(t, buf.String())
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, want := range []string{"distguard.check.start", "distguard.check.complete"} {
		e := lines[i]
		if e["event"] != want {
			t.Errorf("line %d event = %v, want %s", i, e["event"], want)
		}
		if e["op_id"] != observability.OpID(ctx) {
			t.Errorf("line %d op_id = %v, want %s", i, e["op_id"], observability.OpID(ctx))
		}
		for _, key := range []string{"ts", "level", "component", "schema_version", "distguard_version", "go_version"} {
			if _, ok := e[key]; !ok {
				t.Errorf("line %d missing %s", i, key)
			}
		}
	}
	fields, _ := lines[1]["fields"].(map[string]any)
	if fields["duration_ms"] != float64(12) || fields["result"] != "blocked" {
		t.Errorf("check.complete fields = %v", fields)
	}
	if lines[0]["schema_version"] != SchemaVersion {
		t.Errorf("schema_version = %v, want %s", lines[0]["schema_version"], SchemaVersion)
	}
}

func TestJSONL_RuleKeysTopLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONL(&buf, nil, LevelWarn)

	log.Warn("engine", "rule skipped", "rule_id", "HA-02", "category", "finding", "reason", "bad input", "dangling")

	lines := decodeLines(t, buf.String())
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	e := lines[0]
	if e["rule_id"] != "HA-02" || e["category"] != "finding" {
		t.Errorf("rule_id/category = %v/%v, want HA-02/finding", e["rule_id"], e["category"])
	}
	if e["component"] != "engine" || e["msg"] != "rule skipped" {
		t.Errorf("component/msg = %v/%v", e["component"], e["msg"])
	}
	fields, _ := e["fields"].(map[string]any)
	if len(fields) != 1 || fields["reason"] != "bad input" {
		t.Errorf("fields = %v, want only reason", fields)
	}
	if _, ok := e["op_id"]; ok {
		t.Error("op_id should be omitted outside events")
	}
}

func TestLevelFiltering(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		build func(*bytes.Buffer, string) *logger
		level string
		emit  func(Logger)
		want  bool
	}{
		{"jsonl debug hidden at info", newJSONLBuf, LevelInfo, func(l Logger) { l.Debug("engine", "evaluation complete") }, false},
		{"jsonl warn shown at info", newJSONLBuf, LevelInfo, func(l Logger) { l.Warn("watch", "file watcher error") }, true},
		{"jsonl events at info", newJSONLBuf, LevelInfo, func(l Logger) { l.Event(ctx, "diff.reports", nil) }, true},
		{"jsonl events hidden at warn", newJSONLBuf, LevelWarn, func(l Logger) { l.Event(ctx, "diff.reports", nil) }, false},
		{"jsonl error shown at error", newJSONLBuf, LevelError, func(l Logger) { l.Error("cli", "receipt write failed") }, true},
		{"pretty info hidden at warn", newPrettyBuf, LevelWarn, func(l Logger) { l.Info("cli", "watching") }, false},
		{"pretty events hidden at info", newPrettyBuf, LevelInfo, func(l Logger) { l.Event(ctx, "check.start", nil) }, false},
		{"pretty events at debug", newPrettyBuf, LevelDebug, func(l Logger) { l.Event(ctx, "check.start", nil) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.emit(tt.build(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.want {
				t.Errorf("wrote output = %v, want %v: %q", got, tt.want, buf.String())
			}
		})
	}
}

func newJSONLBuf(buf *bytes.Buffer, level string) *logger  { return newJSONL(buf, nil, level) }
func newPrettyBuf(buf *bytes.Buffer, level string) *logger { return newPretty(buf, nil, level) }

func TestPretty_Lines(t *testing.T) {
	var buf bytes.Buffer
	log := newPretty(&buf, nil, LevelInfo)

	log.Debug("engine", "evaluation complete", "rules", 31)
	log.Warn("engine", "rule skipped", "reason", "bad input", "category", "finding", "rule_id", "HA-02")
	log.Event(context.Background(), "check.start", map[string]any{"document": "a.yml"})

	got := buf.String()
	want := "warn  engine: rule skipped rule_id=HA-02 category=finding reason=\"bad input\"\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPretty_EventsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := newPretty(&buf, nil, LevelDebug)

	log.Event(context.Background(), "diff.reports", map[string]any{"removed": 0, "added": 2})

	want := "debug event: distguard.diff.reports added=2 removed=0\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestNewLogger_Formats(t *testing.T) {
	tests := []struct {
		format     string
		eventLevel string
	}{
		{"", LevelDebug},
		{FormatPretty, LevelDebug},
		{FormatJSONL, LevelInfo},
	}
	for _, tt := range tests {
		l, err := NewLogger(Config{Format: tt.format})
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", tt.format, err)
		}
		got, ok := l.(*logger)
		if !ok {
			t.Fatalf("NewLogger(%q) returned %T", tt.format, l)
		}
		if got.eventLevel != tt.eventLevel {
			t.Errorf("format %q: events at %s, want %s", tt.format, got.eventLevel, tt.eventLevel)
		}
		l.Close()
	}
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	for _, cfg := range []Config{{Format: "xml"}, {Level: "trace"}} {
		if _, err := NewLogger(cfg); err == nil {
			t.Errorf("NewLogger(%+v) expected error", cfg)
		}
	}
}

// Each watch rerun opens the log again; lines must accumulate.
func TestNewLogger_FileAppends(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "distguard.log")

	for _, result := range []string{"success", "blocked"} {
		l, err := NewLogger(Config{Format: FormatJSONL, Output: logFile})
		if err != nil {
			t.Fatalf("NewLogger: %v", err)
		}
		ctx := observability.WithOpID(context.Background())
		l.Event(ctx, "check.complete", map[string]any{"result": result})
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := decodeLines(t, string(data))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["op_id"] == lines[1]["op_id"] {
		t.Error("each run should carry its own op_id")
	}
}

func TestFrom(t *testing.T) {
	noop := From(context.Background())
	if noop == nil {
		t.Fatal("From should never return nil")
	}
	noop.Warn("engine", "rule skipped", "rule_id", "X-01")
	noop.Event(context.Background(), "check.start", nil)

	var buf bytes.Buffer
	stored := newJSONL(&buf, nil, LevelInfo)
	ctx := WithLogger(context.Background(), stored)
	if From(ctx) != Logger(stored) {
		t.Error("From should return the logger stored in context")
	}
}
