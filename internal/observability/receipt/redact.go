package receipt

import (
	"regexp"
	"strings"
)

// sensitiveFlags never have their values recorded. Matching ignores
// leading dashes and case.
var sensitiveFlags = map[string]bool{
	"token":         true,
	"key":           true,
	"console-key":   true,
	"password":      true,
	"secret":        true,
	"api-key":       true,
	"apikey":        true,
	"auth":          true,
	"credential":    true,
	"credentials":   true,
	"bearer":        true,
	"otel-headers":  true,
	"private-key":   true,
	"access-token":  true,
	"refresh-token": true,
}

// sensitivePrefixes mark values that are secrets on their own.
var sensitivePrefixes = []string{
	"$scrypt$", // hashed dnsdist webserver password
	"sk-",
	"ghp_",
	"github_pat_",
	"xoxb-",
	"xoxp-",
	"AKIA",
	"AIza",
	"ya29.",
}

// jwtRegex is a heuristic and may match other dotted strings.
var jwtRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}$`)

// longSecretRegex matches base64 blobs such as a dnsdist console key.
var longSecretRegex = regexp.MustCompile(`^[A-Za-z0-9+/=_-]{32,}$`)

const redactedValue = "[REDACTED]"

// RedactArgs replaces secret values in CLI arguments and reports whether
// anything was replaced.
func RedactArgs(args []string) ([]string, bool) {
	if len(args) == 0 {
		return args, false
	}

	redacted := make([]string, len(args))
	wasRedacted := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// --flag=value
		if eq := strings.Index(arg, "="); eq > 0 && strings.HasPrefix(arg, "-") {
			if sensitiveFlags[flagName(arg[:eq])] || isSensitiveValue(arg[eq+1:]) {
				redacted[i] = arg[:eq+1] + redactedValue
				wasRedacted = true
				continue
			}
			redacted[i] = arg
			continue
		}

		// --flag value
		if strings.HasPrefix(arg, "-") && sensitiveFlags[flagName(arg)] && i+1 < len(args) {
			redacted[i] = arg
			i++
			redacted[i] = redactedValue
			wasRedacted = true
			continue
		}

		if isSensitiveValue(arg) {
			redacted[i] = redactedValue
			wasRedacted = true
			continue
		}

		redacted[i] = arg
	}

	return redacted, wasRedacted
}

func flagName(s string) string {
	s = strings.TrimPrefix(s, "--")
	s = strings.TrimPrefix(s, "-")
	return strings.ToLower(s)
}

func isSensitiveValue(value string) bool {
	for _, prefix := range sensitivePrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}

	if jwtRegex.MatchString(value) {
		return true
	}

	// paths and URLs are long too
	if strings.ContainsAny(value, "/.") {
		return false
	}
	return longSecretRegex.MatchString(value)
}
