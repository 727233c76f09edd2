package document

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
binds:
  - listen_address: "0.0.0.0:53"
    protocol: Do53
  - listen_address: "[::]:853"
    protocol: DoT
backends:
  - address: "10.0.1.10:53"
    weight: 2
console:
  log_connections: false
general:
  verbose: true
`

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := Parse("test.yaml", []byte(src), DefaultLimits())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return doc
}

func TestGet_TotalOnMissingAndMismatch(t *testing.T) {
	doc := mustParse(t, sampleYAML)

	tests := []struct {
		path string
		ok   bool
	}{
		{"binds", true},
		{"binds.0.protocol", true},
		{"binds.-1.protocol", true},
		{"binds.2.protocol", false},
		{"binds.x", false},
		{"backends.0.address.deeper", false},
		{"console.log_connections", true},
		{"console.key", false},
		{"missing.entirely", false},
		{"general.verbose.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, ok := doc.Get(ParsePath(tt.path))
			if ok != tt.ok {
				t.Errorf("Get(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			}
		})
	}
}

func TestGet_NegativeIndex(t *testing.T) {
	doc := mustParse(t, sampleYAML)

	v, ok := doc.Get(ParsePath("binds.-1.protocol"))
	if !ok || v != "DoT" {
		t.Errorf("binds.-1.protocol = %v (%v), want DoT", v, ok)
	}
}

func TestIterateAndCount(t *testing.T) {
	doc := mustParse(t, sampleYAML)

	if n := doc.Count(ParsePath("binds")); n != 2 {
		t.Errorf("Count(binds) = %d, want 2", n)
	}
	if n := doc.Count(ParsePath("nothing")); n != 0 {
		t.Errorf("Count(nothing) = %d, want 0", n)
	}
	if entries := doc.Iterate(ParsePath("console.log_connections")); entries != nil {
		t.Errorf("Iterate over scalar = %v, want nil", entries)
	}

	entries := doc.Iterate(ParsePath("binds"))
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Index != int64(1) {
		t.Errorf("entries[1].Index = %v (%T), want int64(1)", entries[1].Index, entries[1].Index)
	}
}

func TestEntries_MapOrderIsSorted(t *testing.T) {
	doc := mustParse(t, "pools:\n  zeta: {}\n  alpha: {}\n  mid: {}\n")

	entries := doc.Iterate(ParsePath("pools"))
	want := []string{"alpha", "mid", "zeta"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, w := range want {
		if entries[i].Index != w {
			t.Errorf("entries[%d].Index = %v, want %s", i, entries[i].Index, w)
		}
	}
}

func TestExists_ExplicitFalseIsPresent(t *testing.T) {
	doc := mustParse(t, sampleYAML)

	if !doc.Exists(ParsePath("console.log_connections")) {
		t.Error("explicit false should exist")
	}
	v, _ := doc.Get(ParsePath("console.log_connections"))
	if v != false {
		t.Errorf("console.log_connections = %v, want false", v)
	}
}

func TestNew_NormalizesNumbers(t *testing.T) {
	doc := mustParse(t, sampleYAML)

	v, ok := doc.Get(ParsePath("backends.0.weight"))
	if !ok {
		t.Fatal("weight missing")
	}
	if _, isInt := v.(int64); !isInt {
		t.Errorf("weight type = %T, want int64", v)
	}
}

func TestNew_DepthGuard(t *testing.T) {
	var root any = "leaf"
	for i := 0; i < 10; i++ {
		root = map[string]any{"n": root}
	}

	_, err := New("deep", root, Limits{MaxDepth: 5, MaxCollection: 100})
	if err == nil {
		t.Fatal("expected depth error")
	}
	if !errors.Is(err, ErrTooDeep) {
		t.Errorf("error = %v, want ErrTooDeep", err)
	}

	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LimitError, got %T", err)
	}
	if le.Path != "n.n.n.n.n.n" {
		t.Errorf("Path = %q, want n.n.n.n.n.n", le.Path)
	}
}

func TestNew_CollectionGuard(t *testing.T) {
	items := make([]any, 11)
	for i := range items {
		items[i] = i
	}

	_, err := New("wide", map[string]any{"backends": items}, Limits{MaxDepth: 10, MaxCollection: 10})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("error = %v, want ErrTooLarge", err)
	}
	var le *LimitError
	if errors.As(err, &le) && le.Path != "backends" {
		t.Errorf("Path = %q, want backends", le.Path)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"malformed", "binds: [unterminated"},
		{"scalar root", "just a string"},
		{"sequence root", "- a\n- b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.name, []byte(tt.src), DefaultLimits())
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("error = %v, want *LoadError", err)
			}
		})
	}
}

func TestParse_EmptyIsEmptyMap(t *testing.T) {
	doc, err := Parse("empty", nil, DefaultLimits())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, ok := doc.Root().(map[string]any); !ok {
		t.Errorf("root = %T, want map", doc.Root())
	}
}

func TestLoad_JSONAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dnsdist.json")
	if err := os.WriteFile(path, []byte(`{"backends": [{"address": "192.0.2.1"}]}`), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := Load(path, DefaultLimits())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Count(ParsePath("backends")) != 1 {
		t.Error("expected one backend")
	}

	_, err = Load(filepath.Join(dir, "missing.yaml"), DefaultLimits())
	var le *LoadError
	if !errors.As(err, &le) {
		t.Errorf("error = %v, want *LoadError", err)
	}
}

func TestCompare_LargeIntegers(t *testing.T) {
	const big = int64(1) << 53
	if Equal(big+1, big) {
		t.Errorf("%d and %d must not be equal", big+1, big)
	}
	if c, ok := Compare(big+1, big); !ok || c != 1 {
		t.Errorf("Compare(%d, %d) = %d, %v; want 1, true", big+1, big, c, ok)
	}
	if c, ok := Compare(int64(-3), float64(2.5)); !ok || c != -1 {
		t.Errorf("Compare(-3, 2.5) = %d, %v; want -1, true", c, ok)
	}
	if _, ok := Compare("1", int64(1)); ok {
		t.Error("strings must not compare as numbers")
	}
}

func TestEqualAndFormat(t *testing.T) {
	if !Equal(int64(53), float64(53)) {
		t.Error("53 == 53.0 should be equal")
	}
	if Equal("53", int64(53)) {
		t.Error("string and number must not be equal")
	}
	if Equal(false, nil) {
		t.Error("false and null must not be equal")
	}
	if got := Format(float64(1000000)); got != "1000000" {
		t.Errorf("Format(1e6) = %q", got)
	}
	if got := Format([]any{"a", int64(1)}); got != `["a",1]` {
		t.Errorf("Format(list) = %q", got)
	}
}
