package logging

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// newPretty writes one human readable line per entry. Events are only
// shown at debug level.
func newPretty(w io.Writer, closer io.Closer, level string) *logger {
	return &logger{
		writer:     w,
		closer:     closer,
		minLevel:   levelPriority(level),
		eventLevel: LevelDebug,
		encode:     encodePretty,
	}
}

func encodePretty(r record) ([]byte, error) {
	var sb strings.Builder
	if r.Event != "" {
		fmt.Fprintf(&sb, "%-5s event: %s", r.Level, r.Event)
	} else {
		fmt.Fprintf(&sb, "%-5s %s: %s", r.Level, r.Component, r.Msg)
	}
	if r.RuleID != "" {
		writeField(&sb, "rule_id", r.RuleID)
	}
	if r.Category != "" {
		writeField(&sb, "category", r.Category)
	}
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(&sb, k, r.Fields[k])
	}
	return []byte(sb.String()), nil
}

func writeField(sb *strings.Builder, key string, value any) {
	s := fmt.Sprint(value)
	if strings.ContainsAny(s, " \t\"") {
		s = fmt.Sprintf("%q", s)
	}
	fmt.Fprintf(sb, " %s=%s", key, s)
}
