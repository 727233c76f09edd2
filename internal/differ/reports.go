// Package differ compares two runs: the findings of two reports, or the
// two configuration documents behind them.
package differ

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/distguard/distguard/internal/models"
)

// CategoryDiff lists findings that appeared or disappeared in one category.
type CategoryDiff struct {
	Category models.Category `json:"category"`
	Added    []models.Item   `json:"added"`
	Resolved []models.Item   `json:"resolved"`
}

// ReportDiff is the drift between two reports.
type ReportDiff struct {
	HasChanges bool           `json:"has_changes"`
	Categories []CategoryDiff `json:"categories"`
}

// Totals of added and resolved findings
func (d *ReportDiff) Totals() (added, resolved int) {
	for _, c := range d.Categories {
		added += len(c.Added)
		resolved += len(c.Resolved)
	}
	return added, resolved
}

// LoadReport reads a JSON report written by "distguard check --format json".
func LoadReport(path string) (*models.ReportOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var out models.ReportOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &out, nil
}

// CompareReports matches findings by rule id and message. Categories
// present in either report are listed in report order.
func CompareReports(old, cur *models.ReportOutput) *ReportDiff {
	oldItems := itemsByCategory(old)
	curItems := itemsByCategory(cur)

	d := &ReportDiff{Categories: []CategoryDiff{}}
	for _, cat := range models.Categories {
		o, inOld := oldItems[cat]
		c, inCur := curItems[cat]
		if !inOld && !inCur {
			continue
		}
		cd := CategoryDiff{
			Category: cat,
			Added:    minus(c, o),
			Resolved: minus(o, c),
		}
		if len(cd.Added) > 0 || len(cd.Resolved) > 0 {
			d.HasChanges = true
		}
		d.Categories = append(d.Categories, cd)
	}
	return d
}

func itemsByCategory(r *models.ReportOutput) map[models.Category][]models.Item {
	out := map[models.Category][]models.Item{}
	if r == nil {
		return out
	}
	for _, c := range r.Categories {
		out[c.Category] = append(out[c.Category], c.Items...)
	}
	return out
}

// minus returns items of a missing from b, sorted by rule id then message.
func minus(a, b []models.Item) []models.Item {
	in := make(map[models.Item]bool, len(b))
	for _, it := range b {
		in[it] = true
	}
	out := []models.Item{}
	for _, it := range a {
		if !in[it] {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RuleID != out[j].RuleID {
			return out[i].RuleID < out[j].RuleID
		}
		return out[i].Message < out[j].Message
	})
	return out
}
