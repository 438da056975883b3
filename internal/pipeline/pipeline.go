// Package pipeline runs the evaluate, diagnose, optimize, publish loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stellarlinkco/agent-evo/internal/adapter"
	"github.com/stellarlinkco/agent-evo/internal/config"
	"github.com/stellarlinkco/agent-evo/internal/evaluator"
	"github.com/stellarlinkco/agent-evo/internal/generator"
	"github.com/stellarlinkco/agent-evo/internal/gitpr"
	"github.com/stellarlinkco/agent-evo/internal/optimizer"
	"github.com/stellarlinkco/agent-evo/internal/report"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

// Pass rate at which a run without optimization still counts as an
// overall success. Independent of per-tag policy thresholds.
const successPassRate = 0.95

// PRCreator publishes file changes as a pull request.
type PRCreator interface {
	CreatePR(ctx context.Context, title, body string, changes []gitpr.Change) (string, error)
}

// Options select which phases run.
type Options struct {
	AutoFix  bool
	DryRun   bool
	CreatePR bool
	Tags     []string
	Tier     testcase.Tier
}

// Result is the outcome of one pipeline run.
type Result struct {
	Report  *evaluator.EvalReport
	PRURL   string
	Success bool
}

// Pipeline wires the execution, evaluation, diagnosis, and optimization
// stages together.
type Pipeline struct {
	Config  *config.Config
	Agent   adapter.Agent
	Gen     *generator.Generator
	Eval    *evaluator.Evaluator
	Agg     *optimizer.Aggregator
	Opt     *optimizer.Optimizer
	PR      PRCreator
	Printer *report.Printer
}

// LoadCases reads the configured test case glob and applies tag and
// tier filters.
func LoadCases(cfg *config.Config, tags []string, tier testcase.Tier) ([]testcase.TestCase, error) {
	suites, err := testcase.LoadGlob(cfg.TestCases)
	if err != nil {
		return nil, err
	}
	cases := testcase.Filter(testcase.Flatten(suites), tags, tier)
	if len(cases) == 0 {
		return nil, fmt.Errorf("pipeline: no test cases matched %q", cfg.TestCases)
	}
	return cases, nil
}

// Run executes the four pipeline phases over the given cases.
func (p *Pipeline) Run(ctx context.Context, cases []testcase.TestCase, opts Options) (*Result, error) {
	if p == nil || p.Gen == nil || p.Eval == nil {
		return nil, errors.New("pipeline: not configured")
	}
	if len(cases) == 0 {
		return nil, errors.New("pipeline: no test cases")
	}

	// Phase A: execute and evaluate.
	runs, err := p.Gen.RunAll(ctx, cases)
	if err != nil {
		return nil, fmt.Errorf("pipeline: execute cases: %w", err)
	}
	rep := p.Eval.EvaluateAll(ctx, runs)
	result := &Result{Report: rep}

	if p.Printer != nil {
		p.Printer.PrintReport(rep)
	}

	// Phase B: one aggregation call over the failure attributions.
	failedCount := rep.Failed + rep.Errors
	if opts.AutoFix && failedCount > 0 && p.Agg != nil {
		rep.Diagnosis = p.Agg.Aggregate(ctx, rep)
		if p.Printer != nil {
			p.Printer.PrintDiagnosis(rep.Diagnosis)
		}
	}

	// Phase C: optimize and regress. Dry runs stop at the printed
	// diagnosis and mutate nothing.
	if rep.Diagnosis != nil && len(rep.Diagnosis.SuggestedPromptChanges) > 0 && !opts.DryRun && p.Opt != nil {
		var failedIDs []string
		for _, cr := range rep.FailedResults() {
			failedIDs = append(failedIDs, cr.CaseID)
		}
		rep.Optimization = p.Opt.Run(ctx, cases, rep.Diagnosis, failedIDs)
		if p.Printer != nil {
			p.Printer.PrintOptimization(rep.Optimization)
		}
	}

	// Phase D: publish the accepted prompt.
	if opts.CreatePR && p.PR != nil && rep.Optimization != nil && rep.Optimization.Success &&
		p.Config != nil && p.Config.Git.IsEnabled() && p.Config.Git.PRCreation() {
		url, err := p.createPR(ctx, rep)
		if err != nil {
			result.Success = p.success(rep)
			return result, fmt.Errorf("pipeline: %w", err)
		}
		result.PRURL = url
	}

	result.Success = p.success(rep)
	return result, nil
}

func (p *Pipeline) success(rep *evaluator.EvalReport) bool {
	if rep.Optimization != nil {
		return rep.Optimization.Success
	}
	return rep.PassRate >= successPassRate
}

func (p *Pipeline) createPR(ctx context.Context, rep *evaluator.EvalReport) (string, error) {
	promptFile := p.Agent.PromptFile()
	if promptFile == "" {
		return "", errors.New("agent exposes no prompt file")
	}
	opt := rep.Optimization
	title := fmt.Sprintf("Optimize agent prompt (regression pass rate %.1f%%)", opt.RegressionPassRate*100)
	return p.PR.CreatePR(ctx, title, prBody(rep), []gitpr.Change{
		{Path: promptFile, Content: opt.OptimizedPrompt},
	})
}

func prBody(rep *evaluator.EvalReport) string {
	var sb strings.Builder
	opt := rep.Optimization
	fmt.Fprintf(&sb, "Automated prompt optimization.\n\n")
	fmt.Fprintf(&sb, "- Base pass rate: %.1f%% (%d/%d)\n", rep.PassRate*100, rep.Passed, rep.Total)
	fmt.Fprintf(&sb, "- Regression pass rate: %.1f%%\n", opt.RegressionPassRate*100)
	fmt.Fprintf(&sb, "- Iterations: %d\n", opt.Iterations)
	if len(opt.FixedCases) > 0 {
		fmt.Fprintf(&sb, "- Fixed cases: %s\n", strings.Join(opt.FixedCases, ", "))
	}
	if d := rep.Diagnosis; d != nil && len(d.CommonPatterns) > 0 {
		sb.WriteString("\nDiagnosed patterns:\n")
		for _, pat := range d.CommonPatterns {
			fmt.Fprintf(&sb, "- %s\n", pat)
		}
	}
	return sb.String()
}
