// Package rules compiles rule packs into an immutable registry of rules and
// shared helper fragments.
package rules

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/distguard/distguard/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed packs/*.yaml
var packFS embed.FS

// Source is one rule pack document.
type Source struct {
	Name string
	Data []byte
}

// Registry holds every compiled rule, keyed by unique id.
type Registry struct {
	rules   []*Rule
	byID    map[string]*Rule
	helpers map[string]*Helper
}

// Build compiles sources into a registry. All definition errors found are
// returned together.
func Build(sources ...Source) (*Registry, error) {
	env, err := NewCELEnv()
	if err != nil {
		return nil, err
	}

	var errs []error
	type loaded struct {
		source string
		pack   models.RulePack
	}
	var packs []loaded

	for _, src := range sources {
		if err := validateShape(src.Name, src.Data); err != nil {
			errs = append(errs, err)
			continue
		}
		var pack models.RulePack
		if err := yaml.Unmarshal(src.Data, &pack); err != nil {
			errs = append(errs, defErr(src.Name, "", "invalid YAML: %v", err))
			continue
		}
		packs = append(packs, loaded{source: src.Name, pack: pack})
	}

	c := newCompiler(env)

	// helpers are global across packs
	for _, p := range packs {
		for _, name := range sortedKeys(p.pack.Helpers) {
			if prev, ok := c.helperSpecs[name]; ok {
				errs = append(errs, defErr(p.source, "", "duplicate helper %q (first defined in %s)", name, prev.source))
				continue
			}
			c.helperSpecs[name] = helperSpec{source: p.source, specs: p.pack.Helpers[name]}
		}
	}

	reg := &Registry{byID: map[string]*Rule{}}
	for _, p := range packs {
		for _, spec := range p.pack.Rules {
			rule, err := c.compileRule(p.source, p.pack, spec)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if prev, ok := reg.byID[rule.ID]; ok {
				errs = append(errs, defErr(p.source, rule.ID, "duplicate rule id (first defined in %s)", prev.Source))
				continue
			}
			reg.byID[rule.ID] = rule
			reg.rules = append(reg.rules, rule)
		}
	}

	// unreferenced helpers still have to compile
	for _, name := range sortedKeys(c.helperSpecs) {
		spec := c.helperSpecs[name]
		if _, err := c.helper(site{source: spec.source}, name); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(dedupErrors(errs)...)
	}

	sort.Slice(reg.rules, func(i, j int) bool { return reg.rules[i].ID < reg.rules[j].ID })
	reg.helpers = c.helpers
	return reg, nil
}

// Builtin returns the embedded baseline, compliance and hardening packs.
func Builtin() ([]Source, error) {
	entries, err := packFS.ReadDir("packs")
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in packs: %w", err)
	}
	var sources []Source
	for _, e := range entries {
		data, err := packFS.ReadFile("packs/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in pack %s: %w", e.Name(), err)
		}
		sources = append(sources, Source{Name: "builtin:" + e.Name(), Data: data})
	}
	return sources, nil
}

var (
	builtinOnce sync.Once
	builtinReg  *Registry
	builtinErr  error
)

// BuiltinRegistry compiles the embedded packs once.
func BuiltinRegistry() (*Registry, error) {
	builtinOnce.Do(func() {
		sources, err := Builtin()
		if err != nil {
			builtinErr = err
			return
		}
		builtinReg, builtinErr = Build(sources...)
	})
	return builtinReg, builtinErr
}

// LoadDir reads every *.yaml and *.yml file of dir as a rule pack source.
func LoadDir(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory: %w", err)
	}
	var sources []Source
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule pack: %w", err)
		}
		sources = append(sources, Source{Name: path, Data: data})
	}
	return sources, nil
}

// LoadFile reads a single rule pack.
func LoadFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to read rule pack: %w", err)
	}
	return Source{Name: path, Data: data}, nil
}

// Load reads path as a directory of packs or as one pack file.
func Load(path string) ([]Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	src, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return []Source{src}, nil
}

// Rules returns every rule ordered by id.
func (r *Registry) Rules() []*Rule {
	return r.rules
}

// Rule looks up a rule by id.
func (r *Registry) Rule(id string) (*Rule, bool) {
	rule, ok := r.byID[id]
	return rule, ok
}

// RulesIn returns the rules of one category ordered by id.
func (r *Registry) RulesIn(cat models.Category) []*Rule {
	var out []*Rule
	for _, rule := range r.rules {
		if rule.Category == cat {
			out = append(out, rule)
		}
	}
	return out
}

// DistinctRuleIDs counts the rules registered in a category. For the
// finding category this is the maximum hardening score.
func (r *Registry) DistinctRuleIDs(cat models.Category) int {
	return len(r.RulesIn(cat))
}

// MaxScore is the hardening maximum
func (r *Registry) MaxScore() int {
	return r.DistinctRuleIDs(models.CategoryFinding)
}

// Helper looks up a compiled helper.
func (r *Registry) Helper(name string) (*Helper, bool) {
	h, ok := r.helpers[name]
	return h, ok
}

// HelperNames lists helpers in sorted order.
func (r *Registry) HelperNames() []string {
	return sortedKeys(r.helpers)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// dedupErrors drops repeated messages, e.g. a broken helper reported by
// every rule that uses it.
func dedupErrors(errs []error) []error {
	seen := map[string]bool{}
	out := errs[:0]
	for _, err := range errs {
		msg := err.Error()
		if seen[msg] {
			continue
		}
		seen[msg] = true
		out = append(out, err)
	}
	return out
}
