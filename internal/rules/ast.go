package rules

import (
	"strings"

	"github.com/distguard/distguard/internal/document"
	"github.com/distguard/distguard/internal/models"
	"github.com/distguard/distguard/internal/predicate"
	"github.com/google/cel-go/cel"
)

// Rule is a compiled rule: it fires once per satisfying clause and binding.
type Rule struct {
	ID          string
	Title       string
	Description string
	Category    models.Category
	Message     *Template
	Clauses     []Clause
	ControlRefs []string
	Source      string
}

// Clause is an ordered conjunction; evaluation stops at the first
// unsatisfied condition.
type Clause []Condition

// Helper is a named, closed condition fragment shared by rules of any pack.
type Helper struct {
	Name   string
	Source string
	Clause Clause
}

// Ref addresses a value: a document path, or a path inside a bound variable
// when Var is set ("$b.address").
type Ref struct {
	Var  string
	Path document.Path
}

// ParseRef parses "$var.path" or "doc.path".
func ParseRef(s string) (Ref, bool) {
	if s == "" {
		return Ref{}, false
	}
	if !strings.HasPrefix(s, "$") {
		return Ref{Path: document.ParsePath(s)}, true
	}
	name, rest, _ := strings.Cut(s[1:], ".")
	if name == "" {
		return Ref{}, false
	}
	ref := Ref{Var: name, Path: document.Path{}}
	if rest != "" {
		ref.Path = document.ParsePath(rest)
	}
	return ref, true
}

func (r Ref) String() string {
	if r.Var == "" {
		return r.Path.String()
	}
	if len(r.Path) == 0 {
		return "$" + r.Var
	}
	return "$" + r.Var + "." + strings.Join(r.Path, ".")
}

// Condition is one compiled predicate. The concrete types below are the
// complete set; the engine switches over them.
type Condition interface {
	condition()
}

// Exists holds when the reference resolves.
type Exists struct {
	Ref Ref
}

// Not inverts a condition; bindings made inside are discarded.
type Not struct {
	Inner Condition
}

// Equal compares a reference with a literal or another reference.
type Equal struct {
	Left  Ref
	Value any
	Right *Ref
}

// Member holds when the referenced scalar equals one of Values.
type Member struct {
	Ref    Ref
	Values []any
}

// Compare is a numeric comparison. Non-numbers never satisfy it.
type Compare struct {
	Left  Ref
	Op    Op
	Value float64
	Right *Ref
}

// Count compares the size of a collection, 0 when absent.
type Count struct {
	Ref   Ref
	Op    Op
	Value int
}

// StringTest applies a string operator to a string value.
type StringTest struct {
	Ref   Ref
	Op    StringOp
	Value string
}

// Split splits a string, picks a segment and tests it.
type Split struct {
	Ref   Ref
	Sep   string
	Index int
	Op    StringOp
	Value string
}

// Some is the existential quantifier. With Each set the clause continues
// once per satisfying element, keeping the element bindings.
type Some struct {
	In    Ref
	As    string
	Index string
	Each  bool
	Where Clause
}

// Every is the universal quantifier; vacuously true over nothing.
type Every struct {
	In    Ref
	As    string
	Index string
	Where Clause
}

// Call applies a library predicate to a value.
type Call struct {
	Fn  predicate.Func
	Ref Ref
}

// Let binds a derived value; an undefined result fails the clause.
type Let struct {
	Name string
	Fn   predicate.Func
	Ref  Ref
}

// Collect binds the sorted, distinct derived values over a collection.
type Collect struct {
	Name string
	In   Ref
	As   string
	Fn   predicate.Func
	Ref  Ref
}

// HelperCall evaluates a shared helper fragment.
type HelperCall struct {
	Helper *Helper
}

// Expr is a CEL boolean expression over doc and vars.
type Expr struct {
	Source  string
	Program cel.Program
}

func (Exists) condition()     {}
func (Not) condition()        {}
func (Equal) condition()      {}
func (Member) condition()     {}
func (Compare) condition()    {}
func (Count) condition()      {}
func (StringTest) condition() {}
func (Split) condition()      {}
func (Some) condition()       {}
func (Every) condition()      {}
func (Call) condition()       {}
func (Let) condition()        {}
func (Collect) condition()    {}
func (HelperCall) condition() {}
func (Expr) condition()       {}

// Op is a comparison operator.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpEQ Op = "=="
	OpNE Op = "!="
)

func parseOp(s string) (Op, bool) {
	switch op := Op(s); op {
	case OpLT, OpLE, OpGT, OpGE, OpEQ, OpNE:
		return op, true
	default:
		return "", false
	}
}

// Apply compares a with b.
func (o Op) Apply(a, b float64) bool {
	switch o {
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpGT:
		return a > b
	case OpGE:
		return a >= b
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	default:
		return false
	}
}

// Holds applies the operator to the result of a three-way comparison.
func (o Op) Holds(cmp int) bool {
	switch o {
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	default:
		return false
	}
}

// StringOp is a string test operator.
type StringOp string

const (
	StrContains StringOp = "contains"
	StrPrefix   StringOp = "prefix"
	StrSuffix   StringOp = "suffix"
	StrEquals   StringOp = "equals"
)

func parseStringOp(s string) (StringOp, bool) {
	switch op := StringOp(s); op {
	case StrContains, StrPrefix, StrSuffix, StrEquals:
		return op, true
	default:
		return "", false
	}
}

// Apply tests s against value.
func (o StringOp) Apply(s, value string) bool {
	switch o {
	case StrContains:
		return strings.Contains(s, value)
	case StrPrefix:
		return strings.HasPrefix(s, value)
	case StrSuffix:
		return strings.HasSuffix(s, value)
	case StrEquals:
		return s == value
	default:
		return false
	}
}
