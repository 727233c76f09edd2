package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/distguard/distguard/internal/models"
	"github.com/distguard/distguard/internal/rules"
	"github.com/spf13/cobra"
)

var (
	rulesPathFlag      string
	rulesNoBuiltinFlag bool
	rulesCategoryFlag  string
	rulesJSONFlag      bool
	rulesOutputFlag    string
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the rule registry",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&rulesPathFlag, "rules", "", "Rule pack file or directory of packs to add")
	pf.BoolVar(&rulesNoBuiltinFlag, "no-builtin", false, "Only use rule packs from --rules")
	pf.StringVarP(&rulesCategoryFlag, "category", "c", "all", "Policy package: baseline, compliance, hardening or all")
	pf.BoolVar(&rulesJSONFlag, "json", false, "Output JSON")

	list := &cobra.Command{
		Use:   "list",
		Short: "List rules by id",
		Args:  cobra.NoArgs,
		RunE:  runRulesList,
	}

	explain := &cobra.Command{
		Use:   "explain [rule-id...]",
		Short: "Output rules with their messages and control references",
		Long: `Display rules with their category, message template and control references
as a Markdown table or as JSON.

Example:
  distguard rules explain
  distguard rules explain COMP-03 HA-02 --json
  distguard rules explain --category compliance --output controls.md`,
		RunE: runRulesExplain,
	}
	explain.Flags().StringVar(&rulesOutputFlag, "output", "", "Write output to file (default: stdout)")

	cmd.AddCommand(list, explain)
	return cmd
}

// ExplainOutput is the JSON output schema
type ExplainOutput struct {
	SchemaVersion string        `json:"schema_version"`
	GeneratedAt   string        `json:"generated_at"`
	MaxScore      int           `json:"max_score"`
	Rules         []ExplainRule `json:"rules"`
}

// ExplainRule is a rule with all metadata for JSON output
type ExplainRule struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Message     string   `json:"message"`
	Clauses     int      `json:"clauses"`
	ControlRefs []string `json:"control_refs"`
	Source      string   `json:"source"`
}

// selectRules filters the registry by package and, when ids are given, by id.
func selectRules(reg *rules.Registry, category string, ids []string) ([]*rules.Rule, error) {
	pkgs, err := models.ParsePackages(category)
	if err != nil {
		return nil, err
	}
	wanted := map[models.Category]bool{}
	for _, pkg := range pkgs {
		for _, cat := range pkg.Categories() {
			wanted[cat] = true
		}
	}

	if len(ids) > 0 {
		var out []*rules.Rule
		for _, id := range ids {
			rule, ok := reg.Rule(id)
			if !ok {
				return nil, fmt.Errorf("unknown rule: %s", id)
			}
			out = append(out, rule)
		}
		return out, nil
	}

	var out []*rules.Rule
	for _, rule := range reg.Rules() {
		if wanted[rule.Category] {
			out = append(out, rule)
		}
	}
	return out, nil
}

func explainRules(selected []*rules.Rule) []ExplainRule {
	out := make([]ExplainRule, 0, len(selected))
	for _, r := range selected {
		refs := r.ControlRefs
		if refs == nil {
			refs = []string{}
		}
		out = append(out, ExplainRule{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Category:    string(r.Category),
			Message:     r.Message.Source,
			Clauses:     len(r.Clauses),
			ControlRefs: refs,
			Source:      r.Source,
		})
	}
	return out
}

func runRulesList(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(rulesPathFlag, rulesNoBuiltinFlag)
	if err != nil {
		return failure(err)
	}
	selected, err := selectRules(reg, rulesCategoryFlag, nil)
	if err != nil {
		return failure(err)
	}

	w := cmd.OutOrStdout()
	if rulesJSONFlag {
		data, err := json.MarshalIndent(explainRules(selected), "", "  ")
		if err != nil {
			return failure(fmt.Errorf("failed to marshal JSON: %w", err))
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tTITLE")
	for _, r := range selected {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Category, r.Title)
	}
	return tw.Flush()
}

func runRulesExplain(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(rulesPathFlag, rulesNoBuiltinFlag)
	if err != nil {
		return failure(err)
	}
	selected, err := selectRules(reg, rulesCategoryFlag, args)
	if err != nil {
		return failure(err)
	}

	var output string
	if rulesJSONFlag {
		output, err = generateExplainJSON(reg, selected)
	} else {
		output = generateExplainMarkdown(reg, selected)
	}
	if err != nil {
		return failure(err)
	}

	if rulesOutputFlag != "" {
		if err := os.WriteFile(rulesOutputFlag, []byte(output), 0644); err != nil {
			return failure(fmt.Errorf("failed to write output file: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Output written to %s\n", rulesOutputFlag)
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}

// generateExplainJSON produces JSON output
func generateExplainJSON(reg *rules.Registry, selected []*rules.Rule) (string, error) {
	output := ExplainOutput{
		SchemaVersion: "1.0",
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		MaxScore:      reg.MaxScore(),
		Rules:         explainRules(selected),
	}

	jsonBytes, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes) + "\n", nil
}

// generateExplainMarkdown produces Markdown table output
func generateExplainMarkdown(reg *rules.Registry, selected []*rules.Rule) string {
	var sb strings.Builder

	sb.WriteString("# distguard rules\n\n")
	sb.WriteString(fmt.Sprintf("**Hardening score maximum**: %d\n\n", reg.MaxScore()))

	sb.WriteString("| Rule | Category | Title | Control Refs | Message |\n")
	sb.WriteString("|------|----------|-------|--------------|---------|\n")
	for _, r := range selected {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | `%s` |\n",
			r.ID, r.Category, escapeMD(r.Title), formatSliceForMD(r.ControlRefs), escapeMD(r.Message.Source)))
	}

	sb.WriteString("\n")
	return sb.String()
}

// formatSliceForMD formats a string slice for Markdown table cell
func formatSliceForMD(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func escapeMD(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
