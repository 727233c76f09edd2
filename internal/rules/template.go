package rules

import (
	"fmt"
	"strings"

	"github.com/distguard/distguard/internal/document"
)

// Absent is rendered for placeholders that do not resolve.
const Absent = "<absent>"

// Template is a message with {ref} placeholders, e.g.
// "backend {$b.address} uses {$b.protocol}".
type Template struct {
	Source string
	parts  []templatePart
}

type templatePart struct {
	literal string
	ref     *Ref
}

// ParseTemplate compiles a message template.
func ParseTemplate(src string) (*Template, error) {
	t := &Template{Source: src}

	rest := src
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			t.parts = append(t.parts, templatePart{literal: rest})
			break
		}
		if open > 0 {
			t.parts = append(t.parts, templatePart{literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder in message %q", src)
		}
		inner := strings.TrimSpace(rest[open+1 : open+end])
		ref, ok := ParseRef(inner)
		if !ok {
			return nil, fmt.Errorf("invalid placeholder {%s} in message %q", inner, src)
		}
		t.parts = append(t.parts, templatePart{ref: &ref})
		rest = rest[open+end+1:]
	}

	return t, nil
}

// Vars lists the variables the template refers to.
func (t *Template) Vars() []string {
	var vars []string
	for _, p := range t.parts {
		if p.ref != nil && p.ref.Var != "" {
			vars = append(vars, p.ref.Var)
		}
	}
	return vars
}

// Render substitutes every placeholder using resolve.
func (t *Template) Render(resolve func(Ref) (any, bool)) string {
	var sb strings.Builder
	for _, p := range t.parts {
		if p.ref == nil {
			sb.WriteString(p.literal)
			continue
		}
		v, ok := resolve(*p.ref)
		if !ok {
			sb.WriteString(Absent)
			continue
		}
		sb.WriteString(document.Format(v))
	}
	return sb.String()
}
