package rules

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/distguard/distguard/internal/models"
)

func TestBuiltinRegistry(t *testing.T) {
	reg, err := BuiltinRegistry()
	if err != nil {
		t.Fatalf("BuiltinRegistry() error: %v", err)
	}

	counts := map[models.Category]int{}
	for _, r := range reg.Rules() {
		counts[r.Category]++
		if !strings.HasPrefix(r.Source, "builtin:") {
			t.Errorf("%s: source = %q", r.ID, r.Source)
		}
	}
	for _, cat := range models.Categories {
		if counts[cat] == 0 {
			t.Errorf("no built-in rules in category %s", cat)
		}
	}

	if got := reg.MaxScore(); got != 9 {
		t.Errorf("MaxScore() = %d, want 9", got)
	}
	if reg.MaxScore() != reg.DistinctRuleIDs(models.CategoryFinding) {
		t.Error("MaxScore must equal the number of distinct finding rules")
	}

	for _, r := range reg.RulesIn(models.CategoryViolation) {
		if len(r.ControlRefs) == 0 {
			t.Errorf("%s: compliance rule without control_refs", r.ID)
		}
	}

	if _, ok := reg.Helper("has_encrypted_listener"); !ok {
		t.Error("helper has_encrypted_listener not registered")
	}
	if len(reg.HelperNames()) < 7 {
		t.Errorf("HelperNames() = %v", reg.HelperNames())
	}
}

func TestBuiltinRegistry_Sorted(t *testing.T) {
	reg, err := BuiltinRegistry()
	if err != nil {
		t.Fatal(err)
	}
	rules := reg.Rules()
	for i := 1; i < len(rules); i++ {
		if rules[i-1].ID >= rules[i].ID {
			t.Fatalf("rules not sorted: %s before %s", rules[i-1].ID, rules[i].ID)
		}
	}
	if _, ok := reg.Rule("COMP-08"); !ok {
		t.Error("Rule(COMP-08) not found")
	}
	if _, ok := reg.Rule("NOPE-01"); ok {
		t.Error("Rule(NOPE-01) should not exist")
	}
}

const minimalPack = `name: site
category: deny
rules:
  - id: SITE-01
    title: Backends required
    message: "no backends"
    when:
      - not: {exists: backends}
`

func TestBuild_DuplicateRuleID(t *testing.T) {
	_, err := Build(
		Source{Name: "a.yaml", Data: []byte(minimalPack)},
		Source{Name: "b.yaml", Data: []byte(minimalPack)},
	)
	if err == nil {
		t.Fatal("expected duplicate rule id error")
	}
	var de *DefinitionError
	if !errors.As(err, &de) {
		t.Fatalf("error %T is not a DefinitionError", err)
	}
	if !strings.Contains(err.Error(), "duplicate rule id") || !strings.Contains(err.Error(), "a.yaml") {
		t.Errorf("error = %v", err)
	}
}

func TestBuild_Helpers(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
		wantErr string
	}{
		{
			name: "shared across packs",
			sources: []string{
				"name: h\nhelpers:\n  has_acl:\n    - count: {path: acl, op: \">\", value: 0}\n",
				"name: r\ncategory: warn\nrules:\n  - id: R-01\n    title: t\n    message: m\n    when:\n      - not: {helper: has_acl}\n",
			},
		},
		{
			name: "duplicate helper",
			sources: []string{
				"name: h1\nhelpers:\n  x:\n    - exists: acl\n",
				"name: h2\nhelpers:\n  x:\n    - exists: binds\n",
			},
			wantErr: `duplicate helper "x"`,
		},
		{
			name: "cycle",
			sources: []string{
				"name: h\nhelpers:\n  a:\n    - helper: b\n  b:\n    - helper: a\n",
			},
			wantErr: "refers to itself",
		},
		{
			name: "unresolved",
			sources: []string{
				"name: r\ncategory: warn\nrules:\n  - id: R-01\n    title: t\n    message: m\n    when:\n      - helper: missing\n",
			},
			wantErr: `unresolved helper "missing"`,
		},
		{
			name: "unreferenced helper still compiled",
			sources: []string{
				"name: h\nhelpers:\n  bad:\n    - call: {fn: subnet, path: acl}\n",
			},
			wantErr: "subnet is a derivation",
		},
		{
			name: "helpers cannot see caller variables",
			sources: []string{
				"name: h\nhelpers:\n  leaky:\n    - exists: $b.address\n",
			},
			wantErr: "unbound variable $b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var srcs []Source
			for i, s := range tt.sources {
				srcs = append(srcs, Source{Name: string(rune('a'+i)) + ".yaml", Data: []byte(s)})
			}
			reg, err := Build(srcs...)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Build() error: %v", err)
				}
				if reg == nil {
					t.Fatal("nil registry")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Build() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuild_ReportsAllErrors(t *testing.T) {
	pack := `name: bad
category: deny
rules:
  - id: BAD-01
    title: t
    message: m
    when:
      - call: {fn: nope, path: acl}
  - id: BAD-02
    title: t
    message: "{$x}"
    when:
      - exists: acl
`
	_, err := Build(Source{Name: "bad.yaml", Data: []byte(pack)})
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "BAD-01") || !strings.Contains(msg, "BAD-02") {
		t.Errorf("both rules should be reported: %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte(minimalPack), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: empty\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	srcs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	if len(srcs) != 2 {
		t.Fatalf("LoadDir() = %d sources, want 2", len(srcs))
	}
	reg, err := Build(srcs...)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(reg.Rules()) != 1 {
		t.Errorf("rules = %d, want 1", len(reg.Rules()))
	}
	if reg.MaxScore() != 0 {
		t.Errorf("MaxScore() = %d, want 0", reg.MaxScore())
	}

	if _, err := LoadDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("LoadDir on a missing directory should fail")
	}
}

func TestLoad_FileOrDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "site.yaml")
	if err := os.WriteFile(file, []byte(minimalPack), 0644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{dir, file} {
		srcs, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error: %v", path, err)
		}
		if len(srcs) != 1 || srcs[0].Name != file {
			t.Errorf("Load(%s) = %+v, want one source named %s", path, srcs, file)
		}
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load on a missing path should fail")
	}
}
