package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/distguard/distguard/internal/models"
	"github.com/distguard/distguard/internal/report"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

func categoryColor(cat models.Category) string {
	if cat.Blocking() {
		return colorRed
	}
	return colorYellow
}

// FormatTextOutput human readable
func FormatTextOutput(out models.ReportOutput, pkgs []models.Package) string {
	var sb strings.Builder

	if out.Outcome == report.StatusPass {
		sb.WriteString(fmt.Sprintf("%sdistguard check: PASS%s (category=%s)\n", colorGreen, colorReset, packageList(pkgs)))
	} else {
		sb.WriteString(fmt.Sprintf("%sdistguard check: FAIL%s (category=%s)\n", colorRed, colorReset, packageList(pkgs)))
	}
	sb.WriteString(fmt.Sprintf("Document: %s\n\n", out.Document))

	for _, c := range out.Categories {
		header := fmt.Sprintf("%s (%d)", strings.ToUpper(string(c.Category)), c.Count)
		switch s := c.Summary.(type) {
		case models.ComplianceSummary:
			header += " status=" + s.Status
		case models.HardeningSummary:
			header += " score=" + s.Score
		}

		if c.Count == 0 {
			sb.WriteString(fmt.Sprintf("%s\n", header))
			sb.WriteString(fmt.Sprintf("  %s✓ none%s\n\n", colorGreen, colorReset))
			continue
		}

		color := categoryColor(c.Category)
		sb.WriteString(fmt.Sprintf("%s%s%s\n", color, header, colorReset))
		for _, it := range c.Items {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", it.RuleID, it.Message))
		}
		sb.WriteString("\n")
	}

	if len(out.Suppressed) > 0 {
		sb.WriteString(fmt.Sprintf("SUPPRESSED (%d)\n", len(out.Suppressed)))
		for _, s := range out.Suppressed {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n    reason: %s\n", s.RuleID, s.Message, s.Reason))
		}
		sb.WriteString("\n")
	}

	if len(out.Defects) > 0 {
		sb.WriteString(fmt.Sprintf("%sDEFECTS (%d)%s rules skipped\n", colorYellow, len(out.Defects), colorReset))
		for _, d := range out.Defects {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", d.RuleID, d.Message))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatJSONOutput raw json
func FormatJSONOutput(out models.ReportOutput) ([]byte, error) {
	return json.MarshalIndent(out, "", "  ")
}
