package differ

import (
	"fmt"
	"strings"
)

func (s SeverityLevel) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityModerate:
		return "moderate"
	case SeveritySafe:
		return "info"
	default:
		return "unknown"
	}
}

// ParseSeverity accepts the names printed by String. "safe" is an alias
// for info.
func ParseSeverity(s string) (SeverityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, nil
	case "moderate":
		return SeverityModerate, nil
	case "info", "safe":
		return SeveritySafe, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}
