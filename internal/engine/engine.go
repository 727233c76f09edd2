// Package engine evaluates a rule registry against one configuration
// document. Evaluation is a pure function of its two inputs; rules run
// concurrently and results are merged in rule order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/distguard/distguard/internal/document"
	"github.com/distguard/distguard/internal/models"
	"github.com/distguard/distguard/internal/observability/logging"
	otelobs "github.com/distguard/distguard/internal/observability/otel"
	"github.com/distguard/distguard/internal/rules"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Result is the raw output of one evaluation: findings in rule order,
// possibly with duplicates, and the rules that could not be evaluated.
type Result struct {
	Findings []models.Finding
	Defects  []models.Defect
}

// Engine runs rules. It holds no per-run state and is safe for concurrent use.
type Engine struct {
	reg     *rules.Registry
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds how many rules are evaluated at once. Values below 1
// select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// New creates an engine over reg.
func New(reg *rules.Registry, opts ...Option) *Engine {
	e := &Engine{reg: reg}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	return e
}

// Registry returns the rules the engine evaluates.
func (e *Engine) Registry() *rules.Registry {
	return e.reg
}

type ruleResult struct {
	findings []models.Finding
	defect   *models.Defect
	err      error
}

// Evaluate runs every rule against doc. The only errors are a tripped
// traversal guard (*document.LimitError) and context cancellation; either
// stops the rules still running. Rule defects are reported in the Result.
func (e *Engine) Evaluate(ctx context.Context, doc *document.Document) (res *Result, err error) {
	all := e.reg.Rules()

	ctx, span := otelobs.Start(ctx, "distguard.evaluate",
		attribute.String("distguard.document", doc.Name()),
		attribute.Int("distguard.rules", len(all)),
	)
	defer func() {
		if res != nil {
			span.SetAttributes(
				attribute.Int("distguard.findings", len(res.Findings)),
				attribute.Int("distguard.defects", len(res.Defects)),
			)
		}
		otelobs.End(span, err)
	}()

	slots := make([]ruleResult, len(all))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, rule := range all {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = evalRule(gctx, doc, rule)
			return slots[i].err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log := logging.From(ctx)
	res = &Result{}
	for _, slot := range slots {
		if slot.defect != nil {
			log.Warn("engine", "rule skipped",
				"rule_id", slot.defect.RuleID,
				"category", string(slot.defect.Category),
				"reason", slot.defect.Message,
			)
			res.Defects = append(res.Defects, *slot.defect)
			continue
		}
		res.Findings = append(res.Findings, slot.findings...)
	}
	log.Debug("engine", "evaluation complete",
		"rules", len(all),
		"findings", len(res.Findings),
		"defects", len(res.Defects),
	)

	return res, nil
}

// evalRule evaluates every clause of rule. A defect anywhere discards the
// rule's findings.
func evalRule(ctx context.Context, doc *document.Document, rule *rules.Rule) (out ruleResult) {
	defect := func(msg string) ruleResult {
		return ruleResult{defect: &models.Defect{RuleID: rule.ID, Category: rule.Category, Message: msg}}
	}

	defer func() {
		if r := recover(); r != nil {
			out = defect(fmt.Sprintf("panic: %v", r))
		}
	}()

	ev := newEvaluator(ctx, doc)
	for _, clause := range rule.Clauses {
		envs, err := ev.solve(clause, nil)
		if err != nil {
			var d *DefectError
			if errors.As(err, &d) {
				return defect(d.Reason)
			}
			return ruleResult{err: err}
		}
		for _, env := range envs {
			msg := rule.Message.Render(func(ref rules.Ref) (any, bool) {
				return ev.resolve(ref, env)
			})
			out.findings = append(out.findings, models.Finding{
				RuleID:   rule.ID,
				Category: rule.Category,
				Message:  msg,
			})
		}
	}
	return out
}

// DefectError is a totality violation inside one rule.
type DefectError struct {
	Reason string
}

func (e *DefectError) Error() string {
	return "evaluation defect: " + e.Reason
}
