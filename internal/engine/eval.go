package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/distguard/distguard/internal/document"
	"github.com/distguard/distguard/internal/rules"
)

// scope is an immutable chain of variable bindings. Extending it never
// affects other branches holding the parent.
type scope struct {
	name   string
	value  any
	parent *scope
}

func (s *scope) bind(name string, value any) *scope {
	if name == "" {
		return s
	}
	return &scope{name: name, value: value, parent: s}
}

func (s *scope) lookup(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.value, true
		}
	}
	return nil, false
}

// vars flattens the chain; inner bindings win.
func (s *scope) vars() map[string]any {
	out := map[string]any{}
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := out[cur.name]; !ok {
			out[cur.name] = cur.value
		}
	}
	return out
}

// cancelEvery is how many quantifier steps run between context checks.
const cancelEvery = 256

// evaluator holds the state of one rule evaluation.
type evaluator struct {
	ctx     context.Context
	doc     *document.Document
	limits  document.Limits
	helpers map[*rules.Helper]bool
	steps   int
}

func newEvaluator(ctx context.Context, doc *document.Document) *evaluator {
	return &evaluator{
		ctx:     ctx,
		doc:     doc,
		limits:  doc.Limits(),
		helpers: map[*rules.Helper]bool{},
	}
}

// step charges one quantifier element to the rule's iteration budget.
func (ev *evaluator) step(ref rules.Ref) error {
	ev.steps++
	if ev.steps > ev.limits.MaxIterations {
		return &document.LimitError{Kind: document.ErrTooManyIterations, Path: ref.String(), Limit: ev.limits.MaxIterations}
	}
	if ev.steps%cancelEvery == 0 {
		return ev.ctx.Err()
	}
	return nil
}

// solve returns every binding environment satisfying clause, starting from
// env. Conditions are applied in order and stop at the first one no
// environment survives.
func (ev *evaluator) solve(clause rules.Clause, env *scope) ([]*scope, error) {
	envs := []*scope{env}
	for _, cond := range clause {
		var next []*scope
		for _, en := range envs {
			out, err := ev.apply(cond, en)
			if err != nil {
				return nil, err
			}
			next = append(next, out...)
		}
		if len(next) == 0 {
			return nil, nil
		}
		envs = next
	}
	return envs, nil
}

// holds reports whether cond is satisfied at least once in env.
func (ev *evaluator) holds(cond rules.Condition, env *scope) (bool, error) {
	out, err := ev.apply(cond, env)
	return len(out) > 0, err
}

func keep(env *scope, ok bool) []*scope {
	if ok {
		return []*scope{env}
	}
	return nil
}

// apply maps one environment to the environments that satisfy cond.
func (ev *evaluator) apply(cond rules.Condition, env *scope) ([]*scope, error) {
	switch c := cond.(type) {
	case rules.Exists:
		_, ok := ev.resolve(c.Ref, env)
		return keep(env, ok), nil

	case rules.Not:
		ok, err := ev.holds(c.Inner, env)
		if err != nil {
			return nil, err
		}
		return keep(env, !ok), nil

	case rules.Equal:
		left, ok := ev.resolve(c.Left, env)
		if !ok {
			return nil, nil
		}
		right := c.Value
		if c.Right != nil {
			if right, ok = ev.resolve(*c.Right, env); !ok {
				return nil, nil
			}
		}
		return keep(env, document.Equal(left, right)), nil

	case rules.Member:
		v, ok := ev.resolve(c.Ref, env)
		if !ok {
			return nil, nil
		}
		for _, candidate := range c.Values {
			if document.Equal(v, candidate) {
				return keep(env, true), nil
			}
		}
		return nil, nil

	case rules.Compare:
		lv, ok := ev.resolve(c.Left, env)
		if !ok {
			return nil, nil
		}
		var right any = c.Value
		if c.Right != nil {
			rv, ok := ev.resolve(*c.Right, env)
			if !ok {
				return nil, nil
			}
			right = rv
		}
		cmp, ok := document.Compare(lv, right)
		if !ok {
			return nil, nil
		}
		return keep(env, c.Op.Holds(cmp)), nil

	case rules.Count:
		n := 0
		if v, ok := ev.resolve(c.Ref, env); ok {
			n = document.Size(v)
		}
		return keep(env, c.Op.Apply(float64(n), float64(c.Value))), nil

	case rules.StringTest:
		v, _ := ev.resolve(c.Ref, env)
		s, ok := v.(string)
		return keep(env, ok && c.Op.Apply(s, c.Value)), nil

	case rules.Split:
		v, _ := ev.resolve(c.Ref, env)
		s, ok := v.(string)
		if !ok {
			return nil, nil
		}
		parts := strings.Split(s, c.Sep)
		idx := c.Index
		if idx < 0 {
			idx += len(parts)
		}
		if idx < 0 || idx >= len(parts) {
			return nil, nil
		}
		return keep(env, c.Op.Apply(parts[idx], c.Value)), nil

	case rules.Some:
		entries, err := ev.entries(c.In, env)
		if err != nil {
			return nil, err
		}
		var out []*scope
		for _, e := range entries {
			if err := ev.step(c.In); err != nil {
				return nil, err
			}
			inner := env.bind(c.As, e.Value).bind(c.Index, e.Index)
			sat, err := ev.solve(c.Where, inner)
			if err != nil {
				return nil, err
			}
			if len(sat) == 0 {
				continue
			}
			if !c.Each {
				return keep(env, true), nil
			}
			out = append(out, inner)
		}
		return out, nil

	case rules.Every:
		entries, err := ev.entries(c.In, env)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if err := ev.step(c.In); err != nil {
				return nil, err
			}
			inner := env.bind(c.As, e.Value).bind(c.Index, e.Index)
			sat, err := ev.solve(c.Where, inner)
			if err != nil {
				return nil, err
			}
			if len(sat) == 0 {
				return nil, nil
			}
		}
		return keep(env, true), nil

	case rules.Call:
		v, ok := ev.resolve(c.Ref, env)
		return keep(env, ok && c.Fn.Test(v)), nil

	case rules.Let:
		v, ok := ev.resolve(c.Ref, env)
		if !ok {
			return nil, nil
		}
		derived, ok := c.Fn.Derive(v)
		if !ok {
			return nil, nil
		}
		return []*scope{env.bind(c.Name, derived)}, nil

	case rules.Collect:
		set, err := ev.collect(c, env)
		if err != nil {
			return nil, err
		}
		return []*scope{env.bind(c.Name, set)}, nil

	case rules.HelperCall:
		ok, err := ev.helper(c.Helper)
		if err != nil {
			return nil, err
		}
		return keep(env, ok), nil

	case rules.Expr:
		ok, err := ev.expr(c, env)
		if err != nil {
			return nil, err
		}
		return keep(env, ok), nil

	default:
		return nil, &DefectError{Reason: fmt.Sprintf("unsupported condition %T", cond)}
	}
}

// resolve reads a reference. A variable that is not bound means the
// compiler let a broken rule through, which is a defect.
func (ev *evaluator) resolve(ref rules.Ref, env *scope) (any, bool) {
	if ref.Var == "" {
		return ev.doc.Get(ref.Path)
	}
	v, ok := env.lookup(ref.Var)
	if !ok {
		panic(fmt.Sprintf("variable $%s is not bound", ref.Var))
	}
	return document.Lookup(v, ref.Path)
}

// entries lists the collection at ref, enforcing the collection limit.
func (ev *evaluator) entries(ref rules.Ref, env *scope) ([]document.Entry, error) {
	v, ok := ev.resolve(ref, env)
	if !ok {
		return nil, nil
	}
	if n := document.Size(v); n > ev.limits.MaxCollection {
		return nil, &document.LimitError{Kind: document.ErrTooLarge, Path: ref.String(), Limit: ev.limits.MaxCollection}
	}
	return document.Entries(v), nil
}

// collect builds the sorted set of derived values over a collection.
// Elements whose value is absent or underivable are left out.
func (ev *evaluator) collect(c rules.Collect, env *scope) ([]any, error) {
	entries, err := ev.entries(c.In, env)
	if err != nil {
		return nil, err
	}

	seen := map[string]any{}
	for _, e := range entries {
		if err := ev.step(c.In); err != nil {
			return nil, err
		}
		v, ok := ev.resolve(c.Ref, env.bind(c.As, e.Value))
		if !ok {
			continue
		}
		derived, ok := c.Fn.Derive(v)
		if !ok {
			continue
		}
		seen[fmt.Sprintf("%T:%s", derived, document.Format(derived))] = derived
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	set := make([]any, len(keys))
	for i, k := range keys {
		set[i] = seen[k]
	}
	return set, nil
}

// helper evaluates a closed helper once per rule evaluation.
func (ev *evaluator) helper(h *rules.Helper) (bool, error) {
	if ok, cached := ev.helpers[h]; cached {
		return ok, nil
	}
	sat, err := ev.solve(h.Clause, nil)
	if err != nil {
		return false, err
	}
	ev.helpers[h] = len(sat) > 0
	return len(sat) > 0, nil
}

// expr runs a CEL condition. Runtime errors, such as selecting a missing
// field, count as unsatisfied; a non-boolean result is a defect.
func (ev *evaluator) expr(c rules.Expr, env *scope) (bool, error) {
	out, _, err := c.Program.Eval(map[string]any{
		"doc":  ev.doc.Root(),
		"vars": env.vars(),
	})
	if err != nil {
		return false, nil
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, &DefectError{Reason: fmt.Sprintf("expression %q returned %T, want bool", c.Source, out.Value())}
	}
	return b, nil
}
