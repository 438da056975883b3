package optimizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlinkco/agent-evo/internal/adapter"
	"github.com/stellarlinkco/agent-evo/internal/config"
	"github.com/stellarlinkco/agent-evo/internal/evaluator"
	"github.com/stellarlinkco/agent-evo/internal/generator"
	"github.com/stellarlinkco/agent-evo/internal/llm"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

// Optimizer iteratively rewrites the agent's system prompt and
// validates each rewrite with a full regression run.
type Optimizer struct {
	Provider llm.Provider
	Agent    adapter.Agent
	Gen      *generator.Generator
	Eval     *evaluator.Evaluator
	Config   config.OptimizationConfig
}

func New(provider llm.Provider, agent adapter.Agent, gen *generator.Generator, eval *evaluator.Evaluator, cfg config.OptimizationConfig) *Optimizer {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.RegressionThreshold <= 0 {
		cfg.RegressionThreshold = 0.95
	}
	return &Optimizer{Provider: provider, Agent: agent, Gen: gen, Eval: eval, Config: cfg}
}

const rewritePromptTemplate = `You are a prompt engineering expert. The agent below failed part of its evaluation suite. Rewrite its system prompt to fix the diagnosed problems while preserving its core purpose.

## Current System Prompt
<current_prompt>
{{PROMPT}}
</current_prompt>

## Failure Diagnosis
{{DIAGNOSIS}}

## Rewrite Guidelines
- Keep the original intent and scope.
- Address the diagnosed patterns directly.
- Add constraints where behavior was ambiguous.
- Make output format requirements explicit when structure failed.
- Return the COMPLETE rewritten prompt, not a diff.

## Output Format
Wrap the full rewritten prompt in tags, with nothing else outside them:
<optimized_prompt>
...the complete new system prompt...
</optimized_prompt>`

// Run performs the optimization loop. It never returns an error: all
// outcomes, including aborts, land in the OptimizationResult. On any
// failure path the original prompt is restored before returning.
func (o *Optimizer) Run(ctx context.Context, cases []testcase.TestCase, diag *evaluator.AggregatedDiagnosis, previouslyFailing []string) *evaluator.OptimizationResult {
	result := &evaluator.OptimizationResult{}

	if o == nil || o.Provider == nil || o.Agent == nil {
		result.ErrorMessage = "optimizer not configured"
		return result
	}

	original, err := adapter.ReadPrompt(o.Agent)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("read prompt: %v", err)
		return result
	}
	result.OriginalPrompt = original

	current := original
	for i := 1; i <= o.Config.MaxIterations; i++ {
		result.Iterations = i

		proposal, err := o.propose(ctx, current, diag)
		if err != nil {
			o.restore(original, result, err.Error())
			return result
		}

		// Write before validating so the regression run exercises the
		// real updated agent, not a staged copy.
		if err := o.Agent.UpdatePrompt(proposal); err != nil {
			o.restore(original, result, fmt.Sprintf("write prompt: %v", err))
			return result
		}

		if !o.Config.Regression() {
			result.Success = true
			result.OptimizedPrompt = proposal
			return result
		}

		report, err := o.regress(ctx, cases)
		if err != nil {
			o.restore(original, result, fmt.Sprintf("regression run: %v", err))
			return result
		}
		result.RegressionPassRate = report.PassRate

		if report.PassRate >= o.Config.RegressionThreshold {
			result.Success = true
			result.OptimizedPrompt = proposal
			result.FixedCases = fixedCases(report, previouslyFailing)
			return result
		}

		// Refine from the new draft rather than resetting to the
		// original each iteration.
		current = proposal
	}

	o.restore(original, result, fmt.Sprintf(
		"no candidate reached regression threshold %.2f after %d iteration(s); last pass rate %.2f",
		o.Config.RegressionThreshold, result.Iterations, result.RegressionPassRate))
	return result
}

func (o *Optimizer) propose(ctx context.Context, current string, diag *evaluator.AggregatedDiagnosis) (string, error) {
	prompt := strings.ReplaceAll(rewritePromptTemplate, "{{PROMPT}}", current)
	prompt = strings.ReplaceAll(prompt, "{{DIAGNOSIS}}", formatDiagnosis(diag))

	resp, err := o.Provider.Complete(ctx, &llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:   16384,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("optimizer: %w", err)
	}

	proposal, ok := ExtractPrompt(llm.Text(resp))
	if !ok {
		return "", fmt.Errorf("optimizer: no prompt found in response")
	}
	return proposal, nil
}

func (o *Optimizer) regress(ctx context.Context, cases []testcase.TestCase) (*evaluator.EvalReport, error) {
	if o.Gen == nil || o.Eval == nil {
		return nil, fmt.Errorf("optimizer: regression runner not configured")
	}
	runs, err := o.Gen.RunAll(ctx, cases)
	if err != nil {
		return nil, err
	}
	return o.Eval.EvaluateAll(ctx, runs), nil
}

func (o *Optimizer) restore(original string, result *evaluator.OptimizationResult, msg string) {
	result.Success = false
	result.ErrorMessage = msg
	if err := o.Agent.UpdatePrompt(original); err != nil {
		result.ErrorMessage = fmt.Sprintf("%s; restore original prompt: %v", msg, err)
	}
}

func fixedCases(report *evaluator.EvalReport, previouslyFailing []string) []string {
	if len(previouslyFailing) == 0 {
		return nil
	}
	passed := make(map[string]bool, len(report.Results))
	for _, cr := range report.Results {
		passed[cr.CaseID] = cr.Passed
	}
	var fixed []string
	for _, id := range previouslyFailing {
		if passed[id] {
			fixed = append(fixed, id)
		}
	}
	return fixed
}

func formatDiagnosis(diag *evaluator.AggregatedDiagnosis) string {
	if diag == nil {
		return "No structured diagnosis available. Improve the prompt's clarity and output format guidance."
	}
	var sb strings.Builder
	writeSection := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		sb.WriteString(title)
		sb.WriteByte('\n')
		for _, item := range items {
			sb.WriteString("- ")
			sb.WriteString(item)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	writeSection("Common failure patterns:", diag.CommonPatterns)
	writeSection("Fix priorities:", diag.FixPriorities)
	writeSection("Suggested prompt changes:", diag.SuggestedPromptChanges)
	if sb.Len() == 0 {
		return "No structured diagnosis available. Improve the prompt's clarity and output format guidance."
	}
	return strings.TrimSpace(sb.String())
}

// ExtractPrompt pulls the rewritten prompt out of an LLM response. It
// looks for the delimiter tags first, then falls back to scanning for a
// plausible prompt opening line.
func ExtractPrompt(text string) (string, bool) {
	const openTag, closeTag = "<optimized_prompt>", "</optimized_prompt>"
	if i := strings.Index(text, openTag); i >= 0 {
		rest := text[i+len(openTag):]
		if j := strings.Index(rest, closeTag); j >= 0 {
			if p := strings.TrimSpace(rest[:j]); p != "" {
				return p, true
			}
		}
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if strings.HasPrefix(t, "#") ||
			strings.HasPrefix(t, "你是") ||
			strings.HasPrefix(t, "你好") ||
			strings.HasPrefix(t, "You are") ||
			strings.HasPrefix(t, "As a") {
			if p := strings.TrimSpace(strings.Join(lines[i:], "\n")); p != "" {
				return p, true
			}
		}
	}
	return "", false
}
