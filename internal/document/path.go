package document

import "strings"

// Path is a sequence of map keys and sequence indices. Numeric segments
// index into sequences; negative indices count from the end.
type Path []string

// ParsePath splits a dotted path. The empty string is the root path.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, "."))
}

// Child returns a copy of p extended by seg.
func (p Path) Child(seg string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// String renders the dotted form, "$" for the root.
func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	return strings.Join(p, ".")
}
