package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/distguard/distguard/internal/differ"
	"github.com/distguard/distguard/internal/document"
	"github.com/distguard/distguard/internal/observability/logging"
	"github.com/distguard/distguard/internal/observability/receipt"
	"github.com/spf13/cobra"
)

var (
	diffDocumentsFlag bool
	diffFailOnFlag    string
	diffFormatFlag    string
)

// FailOnLevel threshold for failure
type FailOnLevel string

const (
	FailOnCritical FailOnLevel = "critical"
	FailOnModerate FailOnLevel = "moderate"
	FailOnInfo     FailOnLevel = "info"
)

// ParseFailOnLevel from string
func ParseFailOnLevel(s string) (FailOnLevel, error) {
	level, err := differ.ParseSeverity(s)
	if err != nil {
		return "", fmt.Errorf("invalid fail-on level: %s (use critical, moderate, or info)", s)
	}
	return FailOnLevel(level.String()), nil
}

// ShouldFail reports whether a change of the given severity reaches f.
// Unknown levels behave like critical.
func (f FailOnLevel) ShouldFail(severity differ.SeverityLevel) bool {
	threshold, err := differ.ParseSeverity(string(f))
	if err != nil {
		threshold = differ.SeverityCritical
	}
	return severity >= threshold
}

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compare two reports or two configurations",
		Long: `Diff compares two JSON reports written by "distguard check --format json"
and lists the findings that appeared and the ones that were resolved.

With --documents, the arguments are two dnsdist configurations and every
change is translated and classified as critical, moderate or info.

Exit status is 1 when new deny or violation results appear (reports) or
when a change reaches --fail-on (documents).

Example:
  distguard diff yesterday.json today.json
  distguard diff --documents old/dnsdist.yml dnsdist.yml --fail-on moderate`,
		Args: cobra.ExactArgs(2),
		RunE: runDiff,
	}
	cmd.Flags().BoolVar(&diffDocumentsFlag, "documents", false, "Compare configuration documents instead of reports")
	cmd.Flags().StringVar(&diffFailOnFlag, "fail-on", "critical", "Document change severity that fails: critical, moderate or info")
	cmd.Flags().StringVar(&diffFormatFlag, "format", "text", "Output format: text or json")
	return cmd
}

func runDiff(cmd *cobra.Command, args []string) (err error) {
	if diffFormatFlag != "text" && diffFormatFlag != "json" {
		return failure(fmt.Errorf("invalid format: %s (use text or json)", diffFormatFlag))
	}

	sess := receipt.Start(cmd.Context(), "distguard diff", os.Args[1:])
	var driftOpt receipt.Option
	defer func() {
		var opts []receipt.Option
		if driftOpt != nil {
			opts = append(opts, driftOpt)
		}
		_ = sess.Finish(err, opts...)
	}()

	if diffDocumentsFlag {
		failOn, err := ParseFailOnLevel(diffFailOnFlag)
		if err != nil {
			return failure(err)
		}
		d, fail, err := diffDocuments(cmd.OutOrStdout(), args[0], args[1], failOn, diffFormatFlag)
		if err != nil {
			return failure(err)
		}
		driftOpt = receipt.WithDrift(len(d.Changes), 0, d.Critical(), driftSummary(differ.Translate(d.Patches)))
		logging.From(cmd.Context()).Event(cmd.Context(), "diff.documents", map[string]any{
			"changes":  len(d.Changes),
			"critical": d.Critical(),
		})
		if fail {
			return &ExitError{Code: ExitBlocking}
		}
		return nil
	}

	d, blocking, err := diffReports(cmd.OutOrStdout(), args[0], args[1], diffFormatFlag)
	if err != nil {
		return failure(err)
	}
	added, resolved := d.Totals()
	driftOpt = receipt.WithDrift(added, resolved, blocking, fmt.Sprintf("+%d -%d", added, resolved))
	logging.From(cmd.Context()).Event(cmd.Context(), "diff.reports", map[string]any{
		"added":    added,
		"resolved": resolved,
	})
	if blocking > 0 {
		return &ExitError{Code: ExitBlocking}
	}
	return nil
}

// diffReports prints the drift between two reports and returns the number of
// added results in blocking categories.
func diffReports(w io.Writer, oldPath, newPath, format string) (*differ.ReportDiff, int, error) {
	old, err := differ.LoadReport(oldPath)
	if err != nil {
		return nil, 0, err
	}
	cur, err := differ.LoadReport(newPath)
	if err != nil {
		return nil, 0, err
	}
	d := differ.CompareReports(old, cur)

	blocking := 0
	for _, c := range d.Categories {
		if c.Category.Blocking() {
			blocking += len(c.Added)
		}
	}

	if format == "json" {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return d, blocking, nil
	}

	if !d.HasChanges {
		fmt.Fprintf(w, "%s✓ No changes between reports%s\n", colorGreen, colorReset)
		return d, blocking, nil
	}
	for _, c := range d.Categories {
		if len(c.Added) == 0 && len(c.Resolved) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\n", strings.ToUpper(string(c.Category)))
		for _, it := range c.Added {
			fmt.Fprintf(w, "  %s+ [%s] %s%s\n", categoryColor(c.Category), it.RuleID, it.Message, colorReset)
		}
		for _, it := range c.Resolved {
			fmt.Fprintf(w, "  %s- [%s] %s%s\n", colorGreen, it.RuleID, it.Message, colorReset)
		}
		fmt.Fprintln(w)
	}
	return d, blocking, nil
}

// diffDocuments prints the translated changes between two configurations and
// reports whether any of them reaches failOn.
func diffDocuments(w io.Writer, oldPath, newPath string, failOn FailOnLevel, format string) (*differ.DocumentDiff, bool, error) {
	old, err := document.Load(oldPath, document.Limits{})
	if err != nil {
		return nil, false, err
	}
	cur, err := document.Load(newPath, document.Limits{})
	if err != nil {
		return nil, false, err
	}
	d, err := differ.CompareDocuments(old, cur)
	if err != nil {
		return nil, false, err
	}

	fail := false
	for _, c := range d.Changes {
		if failOn.ShouldFail(c.Level) {
			fail = true
			break
		}
	}

	if format == "json" {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return d, fail, nil
	}

	if len(d.Changes) == 0 {
		fmt.Fprintf(w, "%s✓ No changes detected%s\n", colorGreen, colorReset)
		return d, fail, nil
	}
	fmt.Fprintf(w, "%d changes (%d critical)\n", len(d.Changes), d.Critical())
	for _, c := range d.Changes {
		fmt.Fprintf(w, "  %s• %s%s\n", getColorForSeverity(c.Level), c.Translation, colorReset)
	}
	return d, fail, nil
}

// driftSummary keeps the first few translated changes for the receipt.
func driftSummary(lines []string) string {
	const keep = 3
	if len(lines) > keep {
		lines = append(lines[:keep:keep], fmt.Sprintf("(%d more)", len(lines)-keep))
	}
	return strings.Join(lines, " ")
}

func getColorForSeverity(severity differ.SeverityLevel) string {
	switch severity {
	case differ.SeverityCritical:
		return colorRed
	case differ.SeverityModerate:
		return colorYellow
	case differ.SeveritySafe:
		return colorGreen
	default:
		return colorReset
	}
}
