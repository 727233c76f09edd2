package rules

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/distguard/distguard/internal/document"
	"github.com/distguard/distguard/internal/models"
	"github.com/distguard/distguard/internal/predicate"
	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// site locates a compile error
type site struct {
	source string
	ruleID string
}

func (s site) errorf(format string, args ...any) error {
	return defErr(s.source, s.ruleID, format, args...)
}

// scope is the set of variables bound at a point of a clause
type scope map[string]bool

func (s scope) with(names ...string) scope {
	out := make(scope, len(s)+len(names))
	for k := range s {
		out[k] = true
	}
	for _, n := range names {
		if n != "" {
			out[n] = true
		}
	}
	return out
}

type helperSpec struct {
	source string
	specs  []models.ConditionSpec
}

type compiler struct {
	env         *cel.Env
	helperSpecs map[string]helperSpec
	helpers     map[string]*Helper
	visiting    map[string]bool
}

func newCompiler(env *cel.Env) *compiler {
	return &compiler{
		env:         env,
		helperSpecs: map[string]helperSpec{},
		helpers:     map[string]*Helper{},
		visiting:    map[string]bool{},
	}
}

// compileRule turns a RuleSpec into a Rule.
func (c *compiler) compileRule(source string, pack models.RulePack, spec models.RuleSpec) (*Rule, error) {
	at := site{source: source, ruleID: spec.ID}

	if spec.ID == "" {
		return nil, at.errorf("rule without id")
	}

	category := spec.Category
	if category == "" {
		category = pack.Category
	}
	if !category.Valid() {
		return nil, at.errorf("invalid category %q", category)
	}

	if len(spec.When) > 0 && len(spec.Clauses) > 0 {
		return nil, at.errorf("use either when or clauses, not both")
	}
	clauseSpecs := spec.Clauses
	if len(spec.When) > 0 {
		clauseSpecs = [][]models.ConditionSpec{spec.When}
	}
	if len(clauseSpecs) == 0 {
		return nil, at.errorf("rule has no clauses")
	}

	msg, err := ParseTemplate(spec.Message)
	if err != nil {
		return nil, at.errorf("%v", err)
	}

	rule := &Rule{
		ID:          spec.ID,
		Title:       spec.Title,
		Description: spec.Description,
		Category:    category,
		Message:     msg,
		ControlRefs: spec.ControlRefs,
		Source:      source,
	}

	for i, specs := range clauseSpecs {
		if len(specs) == 0 {
			return nil, at.errorf("clause %d is empty", i)
		}
		clause, final, err := c.compileClause(at, specs, scope{})
		if err != nil {
			return nil, err
		}
		for _, v := range msg.Vars() {
			if !final[v] {
				return nil, at.errorf("message refers to $%s which clause %d does not bind", v, i)
			}
		}
		rule.Clauses = append(rule.Clauses, clause)
	}

	return rule, nil
}

// compileClause compiles conditions in order, threading the scope.
func (c *compiler) compileClause(at site, specs []models.ConditionSpec, sc scope) (Clause, scope, error) {
	clause := make(Clause, 0, len(specs))
	for _, spec := range specs {
		cond, bound, err := c.compileCondition(at, spec, sc)
		if err != nil {
			return nil, nil, err
		}
		clause = append(clause, cond)
		if len(bound) > 0 {
			sc = sc.with(bound...)
		}
	}
	return clause, sc, nil
}

// compileCondition returns the condition and the variables it binds for
// the rest of the clause.
func (c *compiler) compileCondition(at site, spec models.ConditionSpec, sc scope) (Condition, []string, error) {
	if len(spec) != 1 {
		return nil, nil, at.errorf("condition must have exactly one kind, got %d keys", len(spec))
	}

	var kind string
	var arg any
	for k, v := range spec {
		kind, arg = k, document.Canonical(v)
	}

	switch kind {
	case "exists":
		s, ok := arg.(string)
		if !ok {
			return nil, nil, at.errorf("exists takes a path")
		}
		ref, err := c.ref(at, s, sc)
		if err != nil {
			return nil, nil, err
		}
		return Exists{Ref: ref}, nil, nil

	case "not":
		inner, ok := arg.(map[string]any)
		if !ok {
			return nil, nil, at.errorf("not takes a condition")
		}
		cond, _, err := c.compileCondition(at, inner, sc)
		if err != nil {
			return nil, nil, err
		}
		return Not{Inner: cond}, nil, nil

	case "eq":
		var a struct {
			Path  string `yaml:"path"`
			Value any    `yaml:"value"`
			Ref   string `yaml:"ref"`
		}
		if err := decodeArgs(arg, &a); err != nil {
			return nil, nil, at.errorf("eq: %v", err)
		}
		left, err := c.ref(at, a.Path, sc)
		if err != nil {
			return nil, nil, err
		}
		cond := Equal{Left: left, Value: document.Canonical(a.Value)}
		if a.Ref != "" {
			right, err := c.ref(at, a.Ref, sc)
			if err != nil {
				return nil, nil, err
			}
			cond.Right = &right
		} else if a.Value == nil {
			return nil, nil, at.errorf("eq needs value or ref")
		}
		return cond, nil, nil

	case "in":
		var a struct {
			Path   string `yaml:"path"`
			Values []any  `yaml:"values"`
		}
		if err := decodeArgs(arg, &a); err != nil {
			return nil, nil, at.errorf("in: %v", err)
		}
		ref, err := c.ref(at, a.Path, sc)
		if err != nil {
			return nil, nil, err
		}
		if len(a.Values) == 0 {
			return nil, nil, at.errorf("in needs values")
		}
		values := make([]any, len(a.Values))
		for i, v := range a.Values {
			values[i] = document.Canonical(v)
		}
		return Member{Ref: ref, Values: values}, nil, nil

	case "cmp":
		var a struct {
			Path  string `yaml:"path"`
			Op    string `yaml:"op"`
			Value any    `yaml:"value"`
			Ref   string `yaml:"ref"`
		}
		if err := decodeArgs(arg, &a); err != nil {
			return nil, nil, at.errorf("cmp: %v", err)
		}
		left, err := c.ref(at, a.Path, sc)
		if err != nil {
			return nil, nil, err
		}
		op, ok := parseOp(a.Op)
		if !ok {
			return nil, nil, at.errorf("cmp: unknown operator %q", a.Op)
		}
		cond := Compare{Left: left, Op: op}
		if a.Ref != "" {
			right, err := c.ref(at, a.Ref, sc)
			if err != nil {
				return nil, nil, err
			}
			cond.Right = &right
		} else {
			n, ok := document.Number(document.Canonical(a.Value))
			if !ok {
				return nil, nil, at.errorf("cmp needs a numeric value or a ref")
			}
			cond.Value = n
		}
		return cond, nil, nil

	case "count":
		var a struct {
			Path  string `yaml:"path"`
			Op    string `yaml:"op"`
			Value int    `yaml:"value"`
		}
		if err := decodeArgs(arg, &a); err != nil {
			return nil, nil, at.errorf("count: %v", err)
		}
		ref, err := c.ref(at, a.Path, sc)
		if err != nil {
			return nil, nil, err
		}
		op, ok := parseOp(a.Op)
		if !ok {
			return nil, nil, at.errorf("count: unknown operator %q", a.Op)
		}
		return Count{Ref: ref, Op: op, Value: a.Value}, nil, nil

	case "str":
		var a struct {
			Path  string `yaml:"path"`
			Op    string `yaml:"op"`
			Value string `yaml:"value"`
		}
		if err := decodeArgs(arg, &a); err != nil {
			return nil, nil, at.errorf("str: %v", err)
		}
		ref, err := c.ref(at, a.Path, sc)
		if err != nil {
			return nil, nil, err
		}
		op, ok := parseStringOp(a.Op)
		if !ok {
			return nil, nil, at.errorf("str: unknown operator %q", a.Op)
		}
		return StringTest{Ref: ref, Op: op, Value: a.Value}, nil, nil

	case "split":
		var a struct {
			Path  string `yaml:"path"`
			Sep   string `yaml:"sep"`
			Index int    `yaml:"index"`
			Op    string `yaml:"op"`
			Value string `yaml:"value"`
		}
		if err := decodeArgs(arg, &a); err != nil {
			return nil, nil, at.errorf("split: %v", err)
		}
		ref, err := c.ref(at, a.Path, sc)
		if err != nil {
			return nil, nil, err
		}
		if a.Sep == "" {
			return nil, nil, at.errorf("split needs a separator")
		}
		op, ok := parseStringOp(a.Op)
		if !ok {
			return nil, nil, at.errorf("split: unknown operator %q", a.Op)
		}
		return Split{Ref: ref, Sep: a.Sep, Index: a.Index, Op: op, Value: a.Value}, nil, nil

	case "some", "every":
		var a struct {
			In    string                 `yaml:"in"`
			As    string                 `yaml:"as"`
			Index string                 `yaml:"index"`
			Each  bool                   `yaml:"each"`
			Where []models.ConditionSpec `yaml:"where"`
		}
		if err := decodeArgs(arg, &a); err != nil {
			return nil, nil, at.errorf("%s: %v", kind, err)
		}
		in, err := c.ref(at, a.In, sc)
		if err != nil {
			return nil, nil, err
		}
		if err := c.checkNewVar(at, a.As, sc); err != nil {
			return nil, nil, err
		}
		if a.Index != "" {
			if err := c.checkNewVar(at, a.Index, sc); err != nil {
				return nil, nil, err
			}
			if a.Index == a.As {
				return nil, nil, at.errorf("%s: index and element share the name %q", kind, a.As)
			}
		}
		if len(a.Where) == 0 {
			return nil, nil, at.errorf("%s needs a where clause", kind)
		}
		where, _, err := c.compileClause(at, a.Where, sc.with(a.As, a.Index))
		if err != nil {
			return nil, nil, err
		}
		if kind == "every" {
			if a.Each {
				return nil, nil, at.errorf("every does not support each")
			}
			return Every{In: in, As: a.As, Index: a.Index, Where: where}, nil, nil
		}
		cond := Some{In: in, As: a.As, Index: a.Index, Each: a.Each, Where: where}
		if a.Each {
			return cond, []string{a.As, a.Index}, nil
		}
		return cond, nil, nil

	case "call":
		var a struct {
			Fn   string `yaml:"fn"`
			Path string `yaml:"path"`
		}
		if err := decodeArgs(arg, &a); err != nil {
			return nil, nil, at.errorf("call: %v", err)
		}
		fn, err := c.libraryFunc(at, a.Fn, predicate.KindPredicate)
		if err != nil {
			return nil, nil, err
		}
		ref, err := c.ref(at, a.Path, sc)
		if err != nil {
			return nil, nil, err
		}
		return Call{Fn: fn, Ref: ref}, nil, nil

	case "let":
		var a struct {
			Name    string `yaml:"name"`
			Fn      string `yaml:"fn"`
			Path    string `yaml:"path"`
			Collect *struct {
				In   string `yaml:"in"`
				As   string `yaml:"as"`
				Fn   string `yaml:"fn"`
				Path string `yaml:"path"`
			} `yaml:"collect"`
		}
		if err := decodeArgs(arg, &a); err != nil {
			return nil, nil, at.errorf("let: %v", err)
		}
		if err := c.checkNewVar(at, a.Name, sc); err != nil {
			return nil, nil, err
		}
		if a.Collect != nil {
			if a.Fn != "" || a.Path != "" {
				return nil, nil, at.errorf("let: use either fn/path or collect")
			}
			in, err := c.ref(at, a.Collect.In, sc)
			if err != nil {
				return nil, nil, err
			}
			if err := c.checkNewVar(at, a.Collect.As, sc); err != nil {
				return nil, nil, err
			}
			fn, err := c.libraryFunc(at, a.Collect.Fn, predicate.KindDerivation)
			if err != nil {
				return nil, nil, err
			}
			ref, err := c.ref(at, a.Collect.Path, sc.with(a.Collect.As))
			if err != nil {
				return nil, nil, err
			}
			return Collect{Name: a.Name, In: in, As: a.Collect.As, Fn: fn, Ref: ref}, []string{a.Name}, nil
		}
		fn, err := c.libraryFunc(at, a.Fn, predicate.KindDerivation)
		if err != nil {
			return nil, nil, err
		}
		ref, err := c.ref(at, a.Path, sc)
		if err != nil {
			return nil, nil, err
		}
		return Let{Name: a.Name, Fn: fn, Ref: ref}, []string{a.Name}, nil

	case "helper":
		name, ok := arg.(string)
		if !ok {
			return nil, nil, at.errorf("helper takes a name")
		}
		h, err := c.helper(at, name)
		if err != nil {
			return nil, nil, err
		}
		return HelperCall{Helper: h}, nil, nil

	case "expr":
		src, ok := arg.(string)
		if !ok {
			return nil, nil, at.errorf("expr takes a CEL expression")
		}
		prg, err := compileCEL(c.env, src)
		if err != nil {
			return nil, nil, at.errorf("%v", err)
		}
		return Expr{Source: src, Program: prg}, nil, nil

	default:
		return nil, nil, at.errorf("unknown condition kind %q", kind)
	}
}

// ref parses a reference and checks its variable is bound.
func (c *compiler) ref(at site, s string, sc scope) (Ref, error) {
	ref, ok := ParseRef(s)
	if !ok {
		return Ref{}, at.errorf("invalid path %q", s)
	}
	if ref.Var != "" && !sc[ref.Var] {
		return Ref{}, at.errorf("unbound variable $%s", ref.Var)
	}
	return ref, nil
}

func (c *compiler) checkNewVar(at site, name string, sc scope) error {
	if !identPattern.MatchString(name) {
		return at.errorf("invalid variable name %q", name)
	}
	if sc[name] {
		return at.errorf("variable $%s is already bound", name)
	}
	return nil
}

func (c *compiler) libraryFunc(at site, name string, kind predicate.Kind) (predicate.Func, error) {
	fn, ok := predicate.Lookup(name)
	if !ok {
		return predicate.Func{}, at.errorf("unknown function %q", name)
	}
	if fn.Kind != kind {
		if kind == predicate.KindPredicate {
			return predicate.Func{}, at.errorf("%s is a derivation; use let", name)
		}
		return predicate.Func{}, at.errorf("%s is a predicate; use call", name)
	}
	return fn, nil
}

// helper compiles a helper on first use. Helpers are closed: they see the
// document but none of the caller's variables.
func (c *compiler) helper(at site, name string) (*Helper, error) {
	if h, ok := c.helpers[name]; ok {
		return h, nil
	}
	if c.visiting[name] {
		return nil, at.errorf("helper %q refers to itself", name)
	}
	spec, ok := c.helperSpecs[name]
	if !ok {
		return nil, at.errorf("unresolved helper %q", name)
	}

	c.visiting[name] = true
	defer delete(c.visiting, name)

	clause, _, err := c.compileClause(site{source: spec.source, ruleID: "helper " + name}, spec.specs, scope{})
	if err != nil {
		return nil, err
	}
	h := &Helper{Name: name, Source: spec.source, Clause: clause}
	c.helpers[name] = h
	return h, nil
}

// decodeArgs maps a condition argument onto a struct, rejecting unknown fields.
func decodeArgs(arg any, out any) error {
	if _, ok := arg.(map[string]any); !ok {
		return fmt.Errorf("expected a mapping, got %T", arg)
	}
	data, err := yaml.Marshal(arg)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
