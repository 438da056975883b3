package optimizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlinkco/agent-evo/internal/evaluator"
	"github.com/stellarlinkco/agent-evo/internal/llm"
)

// Aggregator condenses a run's failures into one cross-case diagnosis
// via a single LLM call.
type Aggregator struct {
	Provider llm.Provider
}

const diagnosePromptTemplate = `You are an agent quality analyst. A batch evaluation of an LLM agent produced the failures below. Find the common patterns behind them and propose prompt-level fixes.

## Failure Summary
{{FAILURES}}

## Per-Tag Failure Counts
{{TAG_COUNTS}}

## Your Task
1. Identify recurring failure patterns across cases (not per-case nitpicks).
2. Group the issues by tag where a tag clearly correlates with a pattern.
3. Rank fix priorities from most to least impactful.
4. Propose concrete changes to the agent's system prompt.
5. Estimate what fraction of the failures a prompt change alone could fix.

## Output Format
Return ONLY a JSON object, no markdown fences:
{
  "common_patterns": ["..."],
  "issues_by_tag": {"tag": ["..."]},
  "fix_priorities": ["..."],
  "suggested_prompt_changes": ["..."],
  "auto_fixable_ratio": 0.0
}`

// Aggregate diagnoses a report's failures. It never fails: any LLM or
// parse error degrades to a minimal diagnosis so the pipeline can
// continue.
func (a *Aggregator) Aggregate(ctx context.Context, report *evaluator.EvalReport) *evaluator.AggregatedDiagnosis {
	failures := report.FailedResults()
	if len(failures) == 0 {
		return nil
	}
	if a == nil || a.Provider == nil {
		return minimalDiagnosis(len(failures))
	}

	prompt := strings.ReplaceAll(diagnosePromptTemplate, "{{FAILURES}}", FailureSummary(failures))
	prompt = strings.ReplaceAll(prompt, "{{TAG_COUNTS}}", formatTagCounts(report))

	resp, err := a.Provider.Complete(ctx, &llm.Request{
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:    4096,
		Temperature:  0.2,
		JSONResponse: true,
	})
	if err != nil {
		return minimalDiagnosis(len(failures))
	}

	var parsed evaluator.AggregatedDiagnosis
	if err := llm.ParseJSON(strings.TrimSpace(llm.Text(resp)), &parsed); err != nil {
		return minimalDiagnosis(len(failures))
	}
	if len(parsed.CommonPatterns) == 0 && len(parsed.SuggestedPromptChanges) == 0 {
		return minimalDiagnosis(len(failures))
	}
	return &parsed
}

// FailureSummary renders a condensed attribution list: case id, tags,
// and sub-1.0 factor reasons only. Full inputs and outputs are left out
// to bound LLM context.
func FailureSummary(failures []evaluator.CaseResult) string {
	var sb strings.Builder
	for _, cr := range failures {
		sb.WriteString("- ")
		sb.WriteString(cr.CaseID)
		if len(cr.Tags) > 0 {
			fmt.Fprintf(&sb, " [tags: %s]", strings.Join(cr.Tags, ","))
		}
		if cr.Status == evaluator.StatusError {
			fmt.Fprintf(&sb, ": execution error: %s\n", truncate(cr.ErrorMessage, 300))
			continue
		}
		wrote := false
		for _, s := range cr.FactorScores {
			if s.Score >= 1.0 {
				continue
			}
			fmt.Fprintf(&sb, ": %s(%.2f): %s", s.Factor, s.Score, truncate(s.Reason, 300))
			wrote = true
		}
		if !wrote {
			fmt.Fprintf(&sb, ": weighted score %.2f", cr.WeightedScore)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

func formatTagCounts(report *evaluator.EvalReport) string {
	if len(report.FailuresByTag) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for tag, ids := range report.FailuresByTag {
		fmt.Fprintf(&sb, "- %s: %d failed (%s)\n", tag, len(ids), strings.Join(ids, ", "))
	}
	return strings.TrimSpace(sb.String())
}

func minimalDiagnosis(failed int) *evaluator.AggregatedDiagnosis {
	return &evaluator.AggregatedDiagnosis{
		CommonPatterns: []string{fmt.Sprintf("%d case(s) failed", failed)},
		FixPriorities:  []string{"inspect failing cases manually"},
	}
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
