// Package document provides total, read-only navigation over a parsed
// dnsdist configuration tree.
//
// A Document is built once per run and never mutated. Every lookup is total:
// a missing key, an out-of-range index or a type mismatch yields "absent"
// rather than an error.
package document

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Default traversal limits
const (
	DefaultMaxDepth      = 64
	DefaultMaxCollection = 1024
	DefaultMaxIterations = 1 << 22
)

// Limits bound how deep and how wide a document may be. MaxIterations caps
// the quantifier elements one rule may visit in total, so nested
// quantifiers over wide collections cannot multiply past it.
type Limits struct {
	MaxDepth      int
	MaxCollection int
	MaxIterations int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:      DefaultMaxDepth,
		MaxCollection: DefaultMaxCollection,
		MaxIterations: DefaultMaxIterations,
	}
}

// orDefault fills zero fields
func (l Limits) orDefault() Limits {
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	if l.MaxCollection <= 0 {
		l.MaxCollection = DefaultMaxCollection
	}
	if l.MaxIterations <= 0 {
		l.MaxIterations = DefaultMaxIterations
	}
	return l
}

// Document is an immutable configuration tree made of map[string]any,
// []any and scalars (string, int64, float64, bool, nil).
type Document struct {
	name   string
	root   any
	limits Limits
}

// New normalizes root and checks it against limits. The returned error is a
// *LimitError when the tree is too deep or a collection too large.
func New(name string, root any, limits Limits) (*Document, error) {
	limits = limits.orDefault()

	normalized, err := normalize(root, nil, 0, limits)
	if err != nil {
		return nil, err
	}
	if normalized == nil {
		normalized = map[string]any{}
	}

	return &Document{name: name, root: normalized, limits: limits}, nil
}

// Name identifies where the document came from (usually a file path).
func (d *Document) Name() string {
	return d.name
}

// Root returns the normalized tree.
func (d *Document) Root() any {
	return d.root
}

// Limits returns the limits the document was checked against.
func (d *Document) Limits() Limits {
	return d.limits
}

// Get resolves path from the document root.
func (d *Document) Get(path Path) (any, bool) {
	return Lookup(d.root, path)
}

// Exists reports whether path resolves to a value (including an explicit null).
func (d *Document) Exists(path Path) bool {
	_, ok := d.Get(path)
	return ok
}

// Iterate returns the elements at path, or nil when absent or not a collection.
func (d *Document) Iterate(path Path) []Entry {
	v, ok := d.Get(path)
	if !ok {
		return nil
	}
	return Entries(v)
}

// Count returns the size of the collection at path, 0 when absent.
func (d *Document) Count(path Path) int {
	v, ok := d.Get(path)
	if !ok {
		return 0
	}
	return Size(v)
}

// Entry is one element of a sequence or map. Index is an int64 position for
// sequences and the string key for maps.
type Entry struct {
	Index any
	Value any
}

// Lookup walks path starting at v.
func Lookup(v any, path Path) (any, bool) {
	cur := v
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, false
			}
			if idx < 0 {
				idx += len(node)
			}
			if idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Entries lists the elements of a collection in deterministic order: by
// position for sequences and by sorted key for maps. Scalars have no entries.
func Entries(v any) []Entry {
	switch node := v.(type) {
	case []any:
		out := make([]Entry, len(node))
		for i, elem := range node {
			out[i] = Entry{Index: int64(i), Value: elem}
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Entry, len(keys))
		for i, k := range keys {
			out[i] = Entry{Index: k, Value: node[k]}
		}
		return out
	default:
		return nil
	}
}

// Size returns the number of elements of a collection, or 0.
func Size(v any) int {
	switch node := v.(type) {
	case []any:
		return len(node)
	case map[string]any:
		return len(node)
	default:
		return 0
	}
}

// normalize converts decoder output into the canonical tree shape and
// enforces limits on the way down.
func normalize(v any, path Path, depth int, limits Limits) (any, error) {
	if depth > limits.MaxDepth {
		return nil, &LimitError{Kind: ErrTooDeep, Path: path.String(), Limit: limits.MaxDepth}
	}

	switch node := v.(type) {
	case map[string]any:
		if len(node) > limits.MaxCollection {
			return nil, &LimitError{Kind: ErrTooLarge, Path: path.String(), Limit: limits.MaxCollection}
		}
		out := make(map[string]any, len(node))
		for k, elem := range node {
			n, err := normalize(elem, path.Child(k), depth+1, limits)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		if len(node) > limits.MaxCollection {
			return nil, &LimitError{Kind: ErrTooLarge, Path: path.String(), Limit: limits.MaxCollection}
		}
		out := make(map[string]any, len(node))
		for k, elem := range node {
			key := fmt.Sprint(k)
			n, err := normalize(elem, path.Child(key), depth+1, limits)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		if len(node) > limits.MaxCollection {
			return nil, &LimitError{Kind: ErrTooLarge, Path: path.String(), Limit: limits.MaxCollection}
		}
		out := make([]any, len(node))
		for i, elem := range node {
			n, err := normalize(elem, path.Child(strconv.Itoa(i)), depth+1, limits)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(node))
		for i, s := range node {
			out[i] = s
		}
		return normalize(out, path, depth, limits)
	case int:
		return int64(node), nil
	case int8:
		return int64(node), nil
	case int16:
		return int64(node), nil
	case int32:
		return int64(node), nil
	case int64:
		return node, nil
	case uint:
		return normalizeUnsigned(uint64(node)), nil
	case uint8:
		return int64(node), nil
	case uint16:
		return int64(node), nil
	case uint32:
		return int64(node), nil
	case uint64:
		return normalizeUnsigned(node), nil
	case float32:
		return float64(node), nil
	case float64, string, bool, nil:
		return node, nil
	default:
		return fmt.Sprint(node), nil
	}
}

// Canonical normalizes a decoded value without enforcing limits.
func Canonical(v any) any {
	n, _ := normalize(v, nil, 0, Limits{MaxDepth: math.MaxInt, MaxCollection: math.MaxInt})
	return n
}

func normalizeUnsigned(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}
