package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/distguard/distguard/internal/document"
	"github.com/distguard/distguard/internal/engine"
	"github.com/distguard/distguard/internal/models"
	"github.com/distguard/distguard/internal/observability"
	"github.com/distguard/distguard/internal/observability/logging"
	otelobs "github.com/distguard/distguard/internal/observability/otel"
	"github.com/distguard/distguard/internal/observability/receipt"
	"github.com/distguard/distguard/internal/override"
	"github.com/distguard/distguard/internal/report"
	"github.com/distguard/distguard/internal/rules"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

var (
	checkCategoryFlag      string
	checkFormatFlag        string
	checkRulesFlag         string
	checkNoBuiltinFlag     bool
	checkExceptionsFlag    string
	checkMaxDepthFlag      int
	checkMaxCollectionFlag int
	checkMaxIterationsFlag int
	checkWorkersFlag       int
	checkWatchFlag         bool
)

var errBlocking = &ExitError{Code: ExitBlocking, Err: errors.New("blocking findings")}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <document>",
		Short: "Evaluate a dnsdist configuration",
		Long: `Evaluates a dnsdist YAML configuration against the selected policy packages.

Exit status is 0 when the selected packages produce no deny or violation
results, 1 when they do and 2 when the document, the rule packs or the
exceptions file cannot be loaded.

Examples:
  # All packages, human-readable
  distguard check /etc/dnsdist/dnsdist.yml

  # Compliance only, JSON for CI
  distguard check dnsdist.yml --category compliance --format json

  # Accepted risks
  distguard check dnsdist.yml --exceptions exceptions.yaml

  # Re-run on every save
  distguard check dnsdist.yml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: runCheck,
	}

	f := cmd.Flags()
	f.StringVarP(&checkCategoryFlag, "category", "c", "all", "Policy package: baseline, compliance, hardening or all")
	f.StringVar(&checkFormatFlag, "format", "text", "Output format: text or json")
	f.StringVar(&checkRulesFlag, "rules", "", "Rule pack file or directory of packs to add")
	f.BoolVar(&checkNoBuiltinFlag, "no-builtin", false, "Only use rule packs from --rules")
	f.StringVar(&checkExceptionsFlag, "exceptions", "", "Exceptions file applied to the report")
	f.IntVar(&checkMaxDepthFlag, "max-depth", document.DefaultMaxDepth, "Maximum document nesting depth")
	f.IntVar(&checkMaxCollectionFlag, "max-collection", document.DefaultMaxCollection, "Maximum size of any list or map")
	f.IntVar(&checkMaxIterationsFlag, "max-iterations", document.DefaultMaxIterations, "Maximum quantifier steps one rule may take")
	f.IntVar(&checkWorkersFlag, "workers", 0, "Rules evaluated concurrently (default: number of CPUs)")
	f.BoolVar(&checkWatchFlag, "watch", false, "Re-run whenever the document, rules or exceptions change")

	return cmd
}

type checkOptions struct {
	document   string
	packages   []models.Package
	format     string
	rulesPath  string
	noBuiltin  bool
	exceptions string
	limits     document.Limits
	workers    int
}

func runCheck(cmd *cobra.Command, args []string) error {
	pkgs, err := models.ParsePackages(checkCategoryFlag)
	if err != nil {
		return failure(err)
	}
	if checkFormatFlag != "text" && checkFormatFlag != "json" {
		return failure(fmt.Errorf("invalid format: %s (use text or json)", checkFormatFlag))
	}

	opts := checkOptions{
		document:   args[0],
		packages:   pkgs,
		format:     checkFormatFlag,
		rulesPath:  checkRulesFlag,
		noBuiltin:  checkNoBuiltinFlag,
		exceptions: checkExceptionsFlag,
		limits: document.Limits{
			MaxDepth:      checkMaxDepthFlag,
			MaxCollection: checkMaxCollectionFlag,
			MaxIterations: checkMaxIterationsFlag,
		},
		workers: checkWorkersFlag,
	}

	if checkWatchFlag {
		return watchCheck(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
	}

	err = checkOnce(cmd.Context(), cmd.OutOrStdout(), opts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errBlocking):
		return &ExitError{Code: ExitBlocking}
	default:
		return failure(err)
	}
}

// checkOnce runs the full pipeline once and writes the report to w. It
// returns errBlocking when the selected packages fail.
func checkOnce(ctx context.Context, w io.Writer, opts checkOptions) (err error) {
	sess := receipt.Start(ctx, "distguard check", os.Args[1:])
	var summary *receipt.ReportSummary
	var ruleSet *receipt.RuleSet
	defer func() {
		ropts := []receipt.Option{
			receipt.WithDocument(opts.document),
			receipt.WithExceptions(opts.exceptions),
		}
		if ruleSet != nil {
			ropts = append(ropts, receipt.WithRuleSet(*ruleSet))
		}
		if summary != nil {
			ropts = append(ropts, receipt.WithReport(*summary))
		}
		_ = sess.Finish(err, ropts...)
	}()

	log := logging.From(ctx)
	start := time.Now()

	ctx, span := otelobs.Start(ctx, "distguard.check",
		attribute.String("distguard.op_id", observability.OpID(ctx)),
		attribute.String("distguard.document", opts.document),
		attribute.String("distguard.category", packageList(opts.packages)),
	)
	defer func() { otelobs.End(span, err) }()

	log.Event(ctx, "check.start", map[string]any{"document": opts.document})
	resultStatus := "fail"
	defer func() {
		log.Event(ctx, "check.complete", map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"result":      resultStatus,
		})
	}()

	reg, err := loadRegistry(opts.rulesPath, opts.noBuiltin)
	if err != nil {
		return err
	}
	ruleSet = &receipt.RuleSet{
		Builtin:  !opts.noBuiltin,
		Path:     opts.rulesPath,
		Rules:    len(reg.Rules()),
		MaxScore: reg.MaxScore(),
	}
	exceptions, err := override.Load(opts.exceptions)
	if err != nil {
		return err
	}
	doc, err := document.Load(opts.document, opts.limits)
	if err != nil {
		return err
	}

	res, err := engine.New(reg, engine.WithWorkers(opts.workers)).Evaluate(ctx, doc)
	if err != nil {
		return fmt.Errorf("evaluation aborted: %w", err)
	}

	rep, suppressed := override.Apply(report.Aggregate(reg, res), exceptions)
	out := rep.Output(opts.packages, opts.document)
	out.Suppressed = selectSuppressed(suppressed, opts.packages)

	if opts.format == "json" {
		data, err := FormatJSONOutput(out)
		if err != nil {
			return fmt.Errorf("failed to format JSON output: %w", err)
		}
		fmt.Fprintln(w, string(data))
	} else {
		fmt.Fprint(w, FormatTextOutput(out, opts.packages))
	}

	s := buildReceiptSummary(reg, out, opts.packages)
	summary = &s

	if out.Outcome == report.StatusFail {
		return errBlocking
	}
	resultStatus = "success"
	return nil
}

func selectSuppressed(all []models.Suppressed, pkgs []models.Package) []models.Suppressed {
	selected := map[models.Category]bool{}
	for _, pkg := range pkgs {
		for _, cat := range pkg.Categories() {
			selected[cat] = true
		}
	}
	var out []models.Suppressed
	for _, s := range all {
		if selected[s.Category] {
			out = append(out, s)
		}
	}
	return out
}

func buildReceiptSummary(reg *rules.Registry, out models.ReportOutput, pkgs []models.Package) receipt.ReportSummary {
	s := receipt.ReportSummary{
		Outcome:    strings.ToLower(out.Outcome),
		Suppressed: len(out.Suppressed),
		Defects:    len(out.Defects),
	}
	for _, pkg := range pkgs {
		s.Packages = append(s.Packages, string(pkg))
	}

	seen := map[string]bool{}
	for _, c := range out.Categories {
		s.Categories = append(s.Categories, receipt.CategoryCount{Category: string(c.Category), Count: c.Count})
		if h, ok := c.Summary.(models.HardeningSummary); ok {
			s.Score = h.Score
		}
		for _, it := range c.Items {
			if seen[it.RuleID] {
				continue
			}
			seen[it.RuleID] = true
			hit := receipt.RuleHit{RuleID: it.RuleID, Category: string(c.Category)}
			if rule, ok := reg.Rule(it.RuleID); ok {
				hit.ControlRefs = rule.ControlRefs
			}
			s.RulesHit = append(s.RulesHit, hit)
		}
	}
	return s
}

func packageList(pkgs []models.Package) string {
	names := make([]string, len(pkgs))
	for i, p := range pkgs {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}
