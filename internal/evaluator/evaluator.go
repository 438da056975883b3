package evaluator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stellarlinkco/agent-evo/internal/config"
	"github.com/stellarlinkco/agent-evo/internal/factor"
	"github.com/stellarlinkco/agent-evo/internal/generator"
)

const defaultConcurrency = 5

// Evaluator scores executed cases through its factor set and folds
// batches into reports.
type Evaluator struct {
	factors     []factor.Factor
	judge       config.JudgeConfig
	policies    map[string]config.TagPolicy
	concurrency int
}

// New builds an Evaluator from config and an ordered factor list.
func New(cfg *config.Config, factors ...factor.Factor) *Evaluator {
	judge := cfg.Judge
	if judge.PassThreshold <= 0 {
		judge.PassThreshold = 0.7
	}
	if len(judge.Factors) == 0 {
		judge.Factors = config.DefaultFactors()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Evaluator{
		factors:     factors,
		judge:       judge,
		policies:    cfg.TagPolicies,
		concurrency: concurrency,
	}
}

func (e *Evaluator) factorWeight(id string) float64 {
	if fc, ok := e.judge.Factors[id]; ok {
		return fc.Weight
	}
	return 1.0
}

func (e *Evaluator) factorFatal(id string) bool {
	fc, ok := e.judge.Factors[id]
	return ok && fc.Fatal
}

// EvaluateCase turns one executed case into a CaseResult.
func (e *Evaluator) EvaluateCase(ctx context.Context, run *generator.Result) CaseResult {
	c := run.Case
	cr := CaseResult{
		CaseID:          c.ID,
		CaseName:        c.Name,
		Input:           c.Input.Query,
		Output:          run.Output,
		Expected:        c.Expected.Output,
		Tags:            append([]string(nil), c.Tags...),
		ExecutionTimeMs: run.ExecutionTimeMs,
		Timestamp:       time.Now().UTC(),
	}

	if run.Error != "" {
		cr.Status = StatusError
		cr.ErrorMessage = run.Error
		return cr
	}

	var scores []factor.Result
	for _, f := range e.factors {
		if !f.Triggered(&c) {
			continue
		}
		results, err := f.Evaluate(ctx, &c, run.Output)
		if err != nil {
			results = []factor.Result{{
				Factor: f.ID(),
				Score:  0,
				Reason: fmt.Sprintf("factor error: %v", err),
			}}
		}
		scores = append(scores, results...)
	}
	cr.FactorScores = scores

	// No criteria configured at all: a case carrying only an output
	// hint should not hard-fail.
	if len(scores) == 0 {
		cr.Status = StatusPassed
		cr.Passed = true
		cr.WeightedScore = 1.0
		return cr
	}

	// Fatal factors are veto gates, not averaging inputs.
	for _, s := range scores {
		if e.factorFatal(s.Factor) && s.Score < 1.0 {
			cr.Status = StatusFailed
			cr.WeightedScore = 0.0
			cr.FailReason = fmt.Sprintf("fatal factor %s scored %.2f: %s",
				s.Factor, s.Score, s.Reason)
			return cr
		}
	}

	var weightedSum, weightTotal float64
	for _, s := range scores {
		w := e.factorWeight(s.Factor)
		weightedSum += w * s.Score
		weightTotal += w
	}
	if weightTotal > 0 {
		cr.WeightedScore = weightedSum / weightTotal
	}

	if cr.WeightedScore >= e.judge.PassThreshold {
		cr.Status = StatusPassed
		cr.Passed = true
		return cr
	}

	cr.Status = StatusFailed
	cr.FailReason = e.failReason(cr.WeightedScore, scores)
	return cr
}

func (e *Evaluator) failReason(score float64, scores []factor.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "weighted score %.2f below threshold %.2f", score, e.judge.PassThreshold)
	for _, s := range scores {
		if s.Score >= 1.0 {
			continue
		}
		fmt.Fprintf(&b, "; %s(%.2f): %s", s.Factor, s.Score, s.Reason)
	}
	return b.String()
}

// EvaluateAll evaluates every executed case with bounded concurrency and
// aggregates the results into an EvalReport. Aggregation is order
// independent, so per-case evaluation order does not matter.
func (e *Evaluator) EvaluateAll(ctx context.Context, runs []generator.Result) *EvalReport {
	started := time.Now().UTC()
	results := make([]CaseResult, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range runs {
		i := i
		g.Go(func() error {
			results[i] = e.EvaluateCase(gctx, &runs[i])
			return nil
		})
	}
	g.Wait()

	report := e.buildReport(results)
	report.StartedAt = started
	report.FinishedAt = time.Now().UTC()
	report.DurationSeconds = report.FinishedAt.Sub(started).Seconds()
	return report
}

// BuildReport aggregates precomputed case results. Useful when results
// were produced one at a time, as regression runs do.
func (e *Evaluator) BuildReport(results []CaseResult) *EvalReport {
	now := time.Now().UTC()
	report := e.buildReport(results)
	report.StartedAt = now
	report.FinishedAt = now
	return report
}

func (e *Evaluator) buildReport(results []CaseResult) *EvalReport {
	report := &EvalReport{
		Total:         len(results),
		Results:       results,
		StatsByTag:    make(map[string]TagStats),
		FactorSummary: make(map[string]FactorSummary),
		FailuresByTag: make(map[string][]string),
	}

	factorSums := make(map[string]float64)
	for _, cr := range results {
		switch cr.Status {
		case StatusPassed:
			report.Passed++
		case StatusFailed:
			report.Failed++
		case StatusError:
			report.Errors++
		case StatusSkipped:
			report.Skipped++
		}

		failed := cr.Status == StatusFailed || cr.Status == StatusError
		for _, tag := range cr.Tags {
			stats := report.StatsByTag[tag]
			stats.Total++
			if cr.Passed {
				stats.Passed++
			} else {
				stats.Failed++
			}
			report.StatsByTag[tag] = stats
			if failed {
				report.FailuresByTag[tag] = append(report.FailuresByTag[tag], cr.CaseID)
			}
		}

		for _, s := range cr.FactorScores {
			sum := report.FactorSummary[s.Factor]
			sum.ActivatedCount++
			if s.Score < 1.0 {
				sum.FailCount++
				if e.factorFatal(s.Factor) {
					sum.FatalFailCount++
				}
			}
			report.FactorSummary[s.Factor] = sum
			factorSums[s.Factor] += s.Score
		}
	}

	if report.Total > 0 {
		report.PassRate = float64(report.Passed) / float64(report.Total)
	}
	for id, sum := range report.FactorSummary {
		if sum.ActivatedCount > 0 {
			sum.AvgScore = factorSums[id] / float64(sum.ActivatedCount)
		}
		report.FactorSummary[id] = sum
	}

	for tag, stats := range report.StatsByTag {
		if stats.Total > 0 {
			stats.PassRate = float64(stats.Passed) / float64(stats.Total)
		}
		if policy, ok := e.policies[tag]; ok {
			stats.Threshold = policy.Threshold()
			meets := stats.PassRate >= stats.Threshold
			stats.MeetsThreshold = &meets
			if policy.RequiredForRelease && !meets {
				report.ReleaseBlocked = true
				report.BlockingTags = append(report.BlockingTags, tag)
			}
		}
		report.StatsByTag[tag] = stats
	}
	sort.Strings(report.BlockingTags)

	return report
}

// PassThreshold exposes the configured per-case pass threshold.
func (e *Evaluator) PassThreshold() float64 {
	return e.judge.PassThreshold
}
