package logging

import (
	"encoding/json"
	"io"
	"runtime"
	"time"

	"github.com/distguard/distguard/internal/version"
)

// SchemaVersion of one JSONL line.
const SchemaVersion = "1.1"

// jsonlLine is the wire shape. Rule defects carry rule_id and category at
// the top level so log pipelines can group them without reaching into
// fields.
type jsonlLine struct {
	Timestamp        string         `json:"ts"`
	Level            string         `json:"level"`
	Event            string         `json:"event,omitempty"`
	Component        string         `json:"component"`
	OpID             string         `json:"op_id,omitempty"`
	RuleID           string         `json:"rule_id,omitempty"`
	Category         string         `json:"category,omitempty"`
	Message          string         `json:"msg,omitempty"`
	Fields           map[string]any `json:"fields,omitempty"`
	SchemaVersion    string         `json:"schema_version"`
	DistguardVersion string         `json:"distguard_version"`
	GoVersion        string         `json:"go_version"`
}

// newJSONL logs events at info level.
func newJSONL(w io.Writer, closer io.Closer, level string) *logger {
	return &logger{
		writer:     w,
		closer:     closer,
		minLevel:   levelPriority(level),
		eventLevel: LevelInfo,
		encode:     encodeJSONL,
	}
}

func encodeJSONL(r record) ([]byte, error) {
	return json.Marshal(jsonlLine{
		Timestamp:        r.Time.UTC().Format(time.RFC3339Nano),
		Level:            r.Level,
		Event:            r.Event,
		Component:        r.Component,
		OpID:             r.OpID,
		RuleID:           r.RuleID,
		Category:         r.Category,
		Message:          r.Msg,
		Fields:           r.Fields,
		SchemaVersion:    SchemaVersion,
		DistguardVersion: version.BuildVersion(),
		GoVersion:        runtime.Version(),
	})
}
