package models

import (
	"fmt"
	"strings"
)

// Category is the bucket a rule reports into.
type Category string

const (
	CategoryDeny      Category = "deny"
	CategoryWarn      Category = "warn"
	CategoryViolation Category = "violation"
	CategoryFinding   Category = "finding"
)

// Categories in report order
var Categories = []Category{CategoryDeny, CategoryWarn, CategoryViolation, CategoryFinding}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryDeny, CategoryWarn, CategoryViolation, CategoryFinding:
		return true
	default:
		return false
	}
}

// Blocking categories fail a check
func (c Category) Blocking() bool {
	return c == CategoryDeny || c == CategoryViolation
}

// Package groups categories into the three policy packages.
type Package string

const (
	PackageBaseline   Package = "baseline"
	PackageCompliance Package = "compliance"
	PackageHardening  Package = "hardening"
)

// Packages in report order
var Packages = []Package{PackageBaseline, PackageCompliance, PackageHardening}

// Categories owned by the package
func (p Package) Categories() []Category {
	switch p {
	case PackageBaseline:
		return []Category{CategoryDeny, CategoryWarn}
	case PackageCompliance:
		return []Category{CategoryViolation}
	case PackageHardening:
		return []Category{CategoryFinding}
	default:
		return nil
	}
}

// ParsePackages accepts a package name or "all".
func ParsePackages(s string) ([]Package, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return Packages, nil
	case "baseline":
		return []Package{PackageBaseline}, nil
	case "compliance":
		return []Package{PackageCompliance}, nil
	case "hardening":
		return []Package{PackageHardening}, nil
	default:
		return nil, fmt.Errorf("invalid category: %s (use baseline, compliance, hardening or all)", s)
	}
}

// ConditionSpec is one condition object as written in a rule pack; exactly
// one key naming the condition kind.
type ConditionSpec = map[string]any

// RulePack from yaml
type RulePack struct {
	Name     string                     `yaml:"name" json:"name"`
	Category Category                   `yaml:"category,omitempty" json:"category,omitempty"`
	Helpers  map[string][]ConditionSpec `yaml:"helpers,omitempty" json:"helpers,omitempty"`
	Rules    []RuleSpec                 `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// RuleSpec is a rule as written in a pack. When is shorthand for a single
// clause; Clauses are alternatives (any one satisfied fires the rule).
type RuleSpec struct {
	ID          string            `yaml:"id" json:"id"`
	Title       string            `yaml:"title" json:"title"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Category    Category          `yaml:"category,omitempty" json:"category,omitempty"`
	Message     string            `yaml:"message" json:"message"`
	When        []ConditionSpec   `yaml:"when,omitempty" json:"when,omitempty"`
	Clauses     [][]ConditionSpec `yaml:"clauses,omitempty" json:"clauses,omitempty"`
	ControlRefs []string          `yaml:"control_refs,omitempty" json:"control_refs,omitempty"`
}
