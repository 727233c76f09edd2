package differ

import (
	"strings"

	"github.com/wI2L/jsondiff"
)

// Translate patches to english
func Translate(patches jsondiff.Patch) []string {
	if len(patches) == 0 {
		return nil
	}

	var translations []string
	seen := make(map[string]bool)

	for _, op := range patches {
		translation := translateOperation(op)
		if translation != "" && !seen[translation] {
			seen[translation] = true
			translations = append(translations, translation)
		}
	}

	return translations
}

func translateOperation(op jsondiff.Operation) string {
	section, rest := splitPointer(op.Path)
	where := describe(section, rest)

	switch op.Type {
	case jsondiff.OperationAdd:
		if rest == "" {
			return "Section '" + section + "' added."
		}
		return where + " added."
	case jsondiff.OperationRemove:
		if rest == "" {
			return "Section '" + section + "' removed."
		}
		return where + " removed."
	case jsondiff.OperationReplace:
		return where + " changed."
	case jsondiff.OperationMove, jsondiff.OperationCopy:
		return where + " reordered."
	default:
		return ""
	}
}

// splitPointer turns "/backends/0/address" into ("backends", "0/address").
func splitPointer(ptr string) (string, string) {
	ptr = strings.TrimPrefix(ptr, "/")
	section, rest, _ := strings.Cut(ptr, "/")
	return unescape(section), rest
}

func describe(section, rest string) string {
	if section == "" {
		return "Configuration"
	}
	if rest == "" {
		return "Section '" + section + "'"
	}
	parts := strings.Split(rest, "/")
	for i := range parts {
		parts[i] = unescape(parts[i])
	}
	return "'" + section + "." + strings.Join(parts, ".") + "'"
}

// unescape a JSON pointer token
func unescape(tok string) string {
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(tok)
}

// SeverityLevel 0=safe, 1=mod, 2=crit
type SeverityLevel int

const (
	SeveritySafe SeverityLevel = iota
	SeverityModerate
	SeverityCritical
)

// criticalSections change who can reach the service or where queries go.
var criticalSections = map[string]bool{
	"acl":       true,
	"binds":     true,
	"backends":  true,
	"console":   true,
	"webserver": true,
}

// GetSeverity classifies a patch operation by the section it touches.
func GetSeverity(op jsondiff.Operation) SeverityLevel {
	section, rest := splitPointer(op.Path)
	last := rest
	if i := strings.LastIndex(rest, "/"); i >= 0 {
		last = rest[i+1:]
	}

	switch last {
	case "name", "description", "comment":
		return SeveritySafe
	}
	if criticalSections[section] {
		return SeverityCritical
	}
	if op.Type == jsondiff.OperationRemove && rest == "" {
		return SeverityCritical
	}
	return SeverityModerate
}
