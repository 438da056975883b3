package factor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/stellarlinkco/agent-evo/internal/llm"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

// Dimensions judged by the core factor, in stable order.
var Dimensions = []string{"content", "behavior", "structure"}

const judgePromptTemplate = `You are a strict evaluation judge for an LLM agent. Compare the agent's
answer to the reference answer and judge it along three dimensions:

- content: factual and semantic accuracy relative to the reference answer
- behavior: whether the agent handled the request the right way (tone,
  refusals, tool usage, escalation, following process)
- structure: format and structural completeness of the answer (JSON shape,
  required sections, formatting)

For each dimension first decide whether it applies to this case at all. A
plain knowledge question usually has no meaningful structure dimension; a
pure formatting task may have no behavior dimension. Mark such dimensions
as not applicable instead of guessing a score.

## Question
{{.Input}}

## Reference Answer
{{.Expected}}

## Agent Answer
{{.Output}}
{{if .Hints}}
## Additional Judging Guidance
{{.Hints}}
{{end}}
Output ONLY valid JSON in this exact format:
{"content": {"applicable": <bool>, "score": <number 0.0-1.0>, "reason": "<brief>"},
 "behavior": {"applicable": <bool>, "score": <number 0.0-1.0>, "reason": "<brief>"},
 "structure": {"applicable": <bool>, "score": <number 0.0-1.0>, "reason": "<brief>"}}`

var judgePromptTmpl = template.Must(template.New("judge").Parse(judgePromptTemplate))

type judgePromptData struct {
	Input    string
	Expected string
	Output   string
	Hints    string
}

type dimVerdict struct {
	Applicable bool    `json:"applicable"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason"`
}

// CoreJudgeFactor judges content, behavior, and structure in a single LLM
// call, then layers the case's deterministic checks on top. Per dimension
// the final score is the minimum across the LLM verdict and every check.
type CoreJudgeFactor struct {
	Provider llm.Provider

	// BaseDir resolves relative schema_file paths.
	BaseDir string

	// MaxTokens for the judge call. Zero means 1024.
	MaxTokens int
}

func (f *CoreJudgeFactor) ID() string {
	return "core"
}

// Triggered reports whether the case carries any criteria this factor
// judges. A validator on its own belongs to the custom factor; alongside
// other criteria it is additive and does not suppress the core factor.
func (f *CoreJudgeFactor) Triggered(c *testcase.TestCase) bool {
	if c == nil {
		return false
	}
	e := c.Expected
	e.Validator = ""
	return !e.Empty()
}

func (f *CoreJudgeFactor) Evaluate(ctx context.Context, c *testcase.TestCase, output string) ([]Result, error) {
	if f == nil {
		return nil, errors.New("factor: nil core judge")
	}
	if c == nil {
		return nil, errors.New("factor: nil case")
	}

	var llmScores map[string]dimVerdict
	if f.Provider != nil && c.Expected.Output != "" {
		llmScores = f.judge(ctx, c, output)
	}

	extras := f.runChecks(c, output)

	var results []Result
	for _, dim := range Dimensions {
		verdict, judged := llmScores[dim]
		dimChecks := extras[dim]

		// Dimension marked inapplicable by the judge and nothing precise
		// to verify: it does not participate in scoring at all.
		if judged && !verdict.Applicable && len(dimChecks) == 0 {
			continue
		}

		var checks []check
		if judged && verdict.Applicable {
			checks = append(checks, check{
				name:   "llm_" + dim,
				score:  verdict.Score,
				reason: verdict.Reason,
			})
		}
		checks = append(checks, dimChecks...)

		if len(checks) == 0 {
			continue
		}

		final := checks[0].score
		for _, ch := range checks[1:] {
			if ch.score < final {
				final = ch.score
			}
		}

		var failed []string
		for _, ch := range checks {
			if ch.score < 1.0 && ch.reason != "" {
				failed = append(failed, fmt.Sprintf("%s: %s", ch.name, ch.reason))
			}
		}
		reason := dim + " passed"
		if len(failed) > 0 {
			reason = strings.Join(failed, "; ")
		}

		detail := make([]map[string]any, 0, len(checks))
		for _, ch := range checks {
			detail = append(detail, map[string]any{
				"source": ch.name,
				"score":  ch.score,
				"reason": ch.reason,
			})
		}

		results = append(results, Result{
			Factor:  dim,
			Score:   final,
			Reason:  reason,
			Details: map[string]any{"checks": detail},
		})
	}

	return results, nil
}

// judge runs the single LLM call covering all three dimensions. A failed
// call degrades to zero scores with the error as reason rather than
// aborting the evaluation.
func (f *CoreJudgeFactor) judge(ctx context.Context, c *testcase.TestCase, output string) map[string]dimVerdict {
	var buf bytes.Buffer
	err := judgePromptTmpl.Execute(&buf, judgePromptData{
		Input:    c.Input.Query,
		Expected: c.Expected.Output,
		Output:   output,
		Hints:    strings.TrimSpace(c.JudgeHints),
	})
	if err == nil {
		maxTokens := f.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 1024
		}
		var resp *llm.Response
		resp, err = f.Provider.Complete(ctx, &llm.Request{
			Messages:     []llm.Message{{Role: "user", Content: buf.String()}},
			MaxTokens:    maxTokens,
			Temperature:  0.1,
			JSONResponse: true,
		})
		if err == nil {
			var parsed map[string]dimVerdict
			if perr := llm.ParseJSON(llm.Text(resp), &parsed); perr != nil {
				err = perr
			} else {
				out := make(map[string]dimVerdict, len(Dimensions))
				for _, dim := range Dimensions {
					if v, ok := parsed[dim]; ok {
						out[dim] = v
					}
				}
				return out
			}
		}
	}

	out := make(map[string]dimVerdict, len(Dimensions))
	for _, dim := range Dimensions {
		out[dim] = dimVerdict{
			Applicable: true,
			Score:      0.0,
			Reason:     fmt.Sprintf("judge call failed: %v", err),
		}
	}
	return out
}
