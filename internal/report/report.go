// Package report aggregates raw findings into deduplicated per-category
// buckets and exposes them to the CLI, the override stage and the differ.
package report

import (
	"fmt"
	"sort"

	"github.com/distguard/distguard/internal/engine"
	"github.com/distguard/distguard/internal/models"
	"github.com/distguard/distguard/internal/rules"
)

// SchemaVersion of the JSON report
const SchemaVersion = "1.0"

// Compliance status values
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Report is an immutable view over one evaluation. Each category holds a
// set of findings keyed by message text, sorted by rule id then message.
type Report struct {
	buckets  map[models.Category][]models.Finding
	defects  []models.Defect
	maxScore int
}

// Aggregate builds a report from an engine result. The hardening maximum
// comes from the registry.
func Aggregate(reg *rules.Registry, res *engine.Result) *Report {
	return New(res.Findings, res.Defects, reg.MaxScore())
}

// New deduplicates findings per category by message text. When two rules
// render the same text, the lexicographically smallest rule id is kept.
func New(findings []models.Finding, defects []models.Defect, maxScore int) *Report {
	byText := map[models.Category]map[string]string{}
	for _, f := range findings {
		set, ok := byText[f.Category]
		if !ok {
			set = map[string]string{}
			byText[f.Category] = set
		}
		if prev, ok := set[f.Message]; !ok || f.RuleID < prev {
			set[f.Message] = f.RuleID
		}
	}

	r := &Report{
		buckets:  map[models.Category][]models.Finding{},
		maxScore: maxScore,
	}
	for cat, set := range byText {
		items := make([]models.Finding, 0, len(set))
		for msg, id := range set {
			items = append(items, models.Finding{RuleID: id, Category: cat, Message: msg})
		}
		sortFindings(items)
		r.buckets[cat] = items
	}

	r.defects = append([]models.Defect(nil), defects...)
	sort.SliceStable(r.defects, func(i, j int) bool { return r.defects[i].RuleID < r.defects[j].RuleID })

	return r
}

func sortFindings(items []models.Finding) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].RuleID != items[j].RuleID {
			return items[i].RuleID < items[j].RuleID
		}
		return items[i].Message < items[j].Message
	})
}

// All returns every finding, grouped by category in report order.
func (r *Report) All() []models.Finding {
	var out []models.Finding
	for _, cat := range models.Categories {
		out = append(out, r.buckets[cat]...)
	}
	return out
}

// Items lists one category's findings.
func (r *Report) Items(cat models.Category) []models.Item {
	findings := r.buckets[cat]
	items := make([]models.Item, len(findings))
	for i, f := range findings {
		items[i] = models.Item{RuleID: f.RuleID, Message: f.Message}
	}
	return items
}

// Count of distinct messages in a category
func (r *Report) Count(cat models.Category) int {
	return len(r.buckets[cat])
}

func (r *Report) Deny() []models.Item       { return r.Items(models.CategoryDeny) }
func (r *Report) Warn() []models.Item       { return r.Items(models.CategoryWarn) }
func (r *Report) Violations() []models.Item { return r.Items(models.CategoryViolation) }
func (r *Report) Findings() []models.Item   { return r.Items(models.CategoryFinding) }

// Defects lists rules that could not be evaluated.
func (r *Report) Defects() []models.Defect {
	return r.defects
}

// ComplianceSummary is FAIL iff there is at least one violation.
func (r *Report) ComplianceSummary() models.ComplianceSummary {
	n := r.Count(models.CategoryViolation)
	status := StatusPass
	if n > 0 {
		status = StatusFail
	}
	return models.ComplianceSummary{Status: status, TotalViolations: n}
}

// Compliance report
func (r *Report) Compliance() models.ComplianceReport {
	return models.ComplianceReport{
		ComplianceSummary: r.ComplianceSummary(),
		Items:             r.Violations(),
	}
}

// HardeningSummary scores passed checks out of the registered hardening
// rules. A rule counts as failed once however many messages it produced.
func (r *Report) HardeningSummary() models.HardeningSummary {
	failed := map[string]bool{}
	for _, f := range r.buckets[models.CategoryFinding] {
		failed[f.RuleID] = true
	}
	passed := r.maxScore - len(failed)
	if passed < 0 {
		passed = 0
	}
	return models.HardeningSummary{
		TotalFindings: r.Count(models.CategoryFinding),
		Score:         fmt.Sprintf("%d/%d", passed, r.maxScore),
		Passed:        passed,
		Max:           r.maxScore,
	}
}

// Hardening report
func (r *Report) Hardening() models.HardeningReport {
	return models.HardeningReport{
		HardeningSummary: r.HardeningSummary(),
		Items:            r.Findings(),
	}
}

// Bucket returns the output structure of one category.
func (r *Report) Bucket(cat models.Category) models.CategoryReport {
	b := models.CategoryReport{
		Category: cat,
		Count:    r.Count(cat),
		Items:    r.Items(cat),
	}
	switch cat {
	case models.CategoryViolation:
		b.Summary = r.ComplianceSummary()
	case models.CategoryFinding:
		b.Summary = r.HardeningSummary()
	}
	return b
}

// Blocking reports whether any selected package has deny or violation
// findings.
func (r *Report) Blocking(pkgs []models.Package) bool {
	for _, pkg := range pkgs {
		for _, cat := range pkg.Categories() {
			if cat.Blocking() && r.Count(cat) > 0 {
				return true
			}
		}
	}
	return false
}

// Filter returns a report without the findings keep rejects. Summaries
// are recomputed from what remains.
func (r *Report) Filter(keep func(models.Finding) bool) *Report {
	out := &Report{
		buckets:  map[models.Category][]models.Finding{},
		defects:  r.defects,
		maxScore: r.maxScore,
	}
	for cat, items := range r.buckets {
		var kept []models.Finding
		for _, f := range items {
			if keep(f) {
				kept = append(kept, f)
			}
		}
		if len(kept) > 0 {
			out.buckets[cat] = kept
		}
	}
	return out
}

// Output renders the machine-readable report for the selected packages.
// Defects of rules outside those packages are left out.
func (r *Report) Output(pkgs []models.Package, document string) models.ReportOutput {
	out := models.ReportOutput{
		SchemaVersion: SchemaVersion,
		Document:      document,
		Outcome:       StatusPass,
		Categories:    []models.CategoryReport{},
	}
	selected := map[models.Category]bool{}
	for _, pkg := range pkgs {
		for _, cat := range pkg.Categories() {
			selected[cat] = true
			out.Categories = append(out.Categories, r.Bucket(cat))
		}
	}
	for _, d := range r.defects {
		if selected[d.Category] {
			out.Defects = append(out.Defects, d)
		}
	}
	if r.Blocking(pkgs) {
		out.Outcome = StatusFail
	}
	return out
}
