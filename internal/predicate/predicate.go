// Package predicate is the shared library of named value functions that rule
// packs call by name. Every function is total and pure: any input of the
// wrong shape yields false (predicates) or undefined (derivations).
package predicate

import (
	"sort"
	"strconv"
	"strings"
)

// Kind distinguishes boolean tests from value derivations.
type Kind int

const (
	// KindPredicate functions answer yes/no about a value.
	KindPredicate Kind = iota
	// KindDerivation functions compute a new value, or nothing.
	KindDerivation
)

// Func is one library entry.
type Func struct {
	Name        string
	Kind        Kind
	Description string
	Test        func(v any) bool
	Derive      func(v any) (any, bool)
}

// Protocol allow-lists per surface
var (
	ListenerEncryptedProtocols = []string{"DoT", "DoH", "DoQ", "DoH3"}
	BackendEncryptedProtocols  = []string{"DoT", "DoH"}
	KnownProtocols             = []string{"Do53", "DoT", "DoH", "DoQ", "DoH3"}
)

// Action and selector type tags
var (
	LoggingActions = []string{
		"Log", "LogResponse", "RemoteLog", "RemoteLogResponse",
		"Dnstap", "DnstapResponse",
	}
	RateLimitSelectors = []string{"MaxQPS", "MaxQPSIP"}
)

var library = map[string]Func{}

func register(f Func) {
	library[f.Name] = f
}

func init() {
	register(Func{Name: "ipv4", Kind: KindPredicate, Description: "address literal is IPv4", Test: IsIPv4})
	register(Func{Name: "ipv6", Kind: KindPredicate, Description: "address literal is IPv6 (contains '[' or '::')", Test: IsIPv6})
	register(Func{Name: "loopback", Kind: KindPredicate, Description: "host is a loopback address", Test: IsLoopback})
	register(Func{Name: "wildcard", Kind: KindPredicate, Description: "host is 0.0.0.0 or ::", Test: IsWildcard})
	register(Func{Name: "known_protocol", Kind: KindPredicate, Description: "protocol tag is known to dnsdist", Test: oneOf(KnownProtocols)})
	register(Func{Name: "encrypted_listener_protocol", Kind: KindPredicate, Description: "listener protocol is encrypted", Test: oneOf(ListenerEncryptedProtocols)})
	register(Func{Name: "encrypted_backend_protocol", Kind: KindPredicate, Description: "backend protocol is encrypted", Test: oneOf(BackendEncryptedProtocols)})
	register(Func{Name: "logging_action", Kind: KindPredicate, Description: "action type logs queries or responses", Test: oneOf(LoggingActions)})
	register(Func{Name: "rate_limit_selector", Kind: KindPredicate, Description: "selector type limits query rate", Test: oneOf(RateLimitSelectors)})
	register(Func{Name: "subnet", Kind: KindDerivation, Description: "first three dot-separated segments of an address", Derive: Subnet})
	register(Func{Name: "host", Kind: KindDerivation, Description: "address without port", Derive: Host})
	register(Func{Name: "port", Kind: KindDerivation, Description: "port of an address", Derive: Port})
}

// Lookup finds a library function by name.
func Lookup(name string) (Func, bool) {
	f, ok := library[name]
	return f, ok
}

// Names lists every library function, sorted.
func Names() []string {
	names := make([]string, 0, len(library))
	for name := range library {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func oneOf(allowed []string) func(any) bool {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return func(v any) bool {
		s, ok := v.(string)
		return ok && set[s]
	}
}

// IsIPv6 classifies by literal form only.
func IsIPv6(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return strings.Contains(s, "[") || strings.Contains(s, "::")
}

// IsIPv4 is true for dotted-quad literals, with or without a port.
func IsIPv4(v any) bool {
	s, ok := v.(string)
	if !ok || IsIPv6(s) {
		return false
	}
	h, _ := Host(s)
	host, _ := h.(string)
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 || p[0] == '+' {
			return false
		}
	}
	return true
}

// IsLoopback accepts hosts with or without a port.
func IsLoopback(v any) bool {
	h, ok := Host(v)
	if !ok {
		return false
	}
	host := h.(string)
	return host == "::1" || host == "localhost" || strings.HasPrefix(host, "127.")
}

// IsWildcard is true for the any-address in both families.
func IsWildcard(v any) bool {
	h, ok := Host(v)
	if !ok {
		return false
	}
	host := h.(string)
	return host == "0.0.0.0" || host == "::"
}

// Subnet returns the first three dot-separated segments, undefined when
// there are fewer than three.
func Subnet(v any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ".")
	if len(parts) < 3 {
		return nil, false
	}
	return strings.Join(parts[:3], "."), true
}

// Host strips a trailing port: "[::1]:53" -> "::1", "10.0.0.1:53" -> "10.0.0.1".
// Bare IPv6 literals are returned unchanged.
func Host(v any) (any, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return nil, false
		}
		return s[1:end], true
	}
	if strings.Count(s, ":") == 1 {
		return s[:strings.Index(s, ":")], true
	}
	return s, true
}

// Port returns the port of "host:port" or "[v6]:port", undefined otherwise.
func Port(v any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]:")
		if end < 0 || end+2 >= len(s) {
			return nil, false
		}
		return s[end+2:], true
	}
	if strings.Count(s, ":") != 1 {
		return nil, false
	}
	port := s[strings.Index(s, ":")+1:]
	if port == "" {
		return nil, false
	}
	return port, true
}
