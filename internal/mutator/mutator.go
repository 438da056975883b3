// Package mutator expands seed test cases into LLM-generated variants
// and pre-reviews them before they enter the suite.
package mutator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/stellarlinkco/agent-evo/internal/config"
	"github.com/stellarlinkco/agent-evo/internal/llm"
	"github.com/stellarlinkco/agent-evo/internal/prompt"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

// Mutator generates mutation cases from seeds.
type Mutator struct {
	Provider llm.Provider
	Config   config.MutationConfig

	// Template overrides the built-in mutation prompt when set.
	Template string
}

func New(provider llm.Provider, cfg config.MutationConfig) *Mutator {
	if cfg.CountPerCase <= 0 {
		cfg.CountPerCase = 3
	}
	return &Mutator{Provider: provider, Config: cfg}
}

const mutatePromptTemplate = `You are a test case mutation expert. Generate meaningful variations of the seed case below. Each mutation must probe a different scenario or edge condition, carry real test value rather than paraphrasing, and come with an ideal answer.

## Seed Case
{{SEED}}

## Reference Mutation Directions
These are suggestions only; explore better angles where you see them.
{{HINTS}}

## Requirements
Generate exactly {{COUNT}} mutations.

## Output Format (JSON)
{
  "mutations": [
    {
      "input": "mutated user input",
      "name": "mutation case name",
      "mutation_strategy": "brief description of the chosen mutation angle",
      "expected_output": "ideal agent response",
      "tags": ["inherited or new tags"]
    }
  ]
}`

// Mutate generates variants for every seed. A failed LLM call for one
// seed skips that seed rather than aborting the batch.
func (m *Mutator) Mutate(ctx context.Context, seeds []testcase.TestCase) ([]testcase.TestCase, error) {
	if m == nil || m.Provider == nil {
		return nil, errors.New("mutator: nil provider")
	}
	var out []testcase.TestCase
	for i := range seeds {
		mutations, err := m.mutateSingle(ctx, &seeds[i])
		if err != nil {
			continue
		}
		out = append(out, mutations...)
	}
	return out, nil
}

func (m *Mutator) mutateSingle(ctx context.Context, seed *testcase.TestCase) ([]testcase.TestCase, error) {
	seedInfo := map[string]any{
		"id":    seed.ID,
		"name":  seed.Name,
		"input": seed.Input.Query,
		"tags":  seed.Tags,
	}
	if seed.ExpectedOutput != "" {
		seedInfo["expected_output"] = seed.ExpectedOutput
	} else if !seed.Expected.Empty() {
		seedInfo["expected"] = seed.Expected
	}
	seedJSON, err := json.MarshalIndent(seedInfo, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mutator: %w", err)
	}

	hints := "No specific direction; use your judgement."
	if len(m.Config.HintDirections) > 0 {
		var sb strings.Builder
		for _, h := range m.Config.HintDirections {
			sb.WriteString("- ")
			sb.WriteString(h)
			sb.WriteByte('\n')
		}
		hints = strings.TrimSpace(sb.String())
	}

	tmpl := m.Template
	if tmpl == "" {
		tmpl = mutatePromptTemplate
	}
	p := prompt.Render(tmpl, map[string]any{
		"SEED":  string(seedJSON),
		"HINTS": hints,
		"COUNT": m.Config.CountPerCase,
	})
	if m.Config.BusinessDocs != "" {
		p += "\n\n## Business Docs (reference)\n" + m.Config.BusinessDocs
	}

	resp, err := m.Provider.Complete(ctx, &llm.Request{
		Messages:     []llm.Message{{Role: "user", Content: p}},
		MaxTokens:    8192,
		Temperature:  0.8,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("mutator: %w", err)
	}

	var parsed struct {
		Mutations []struct {
			Input            string   `json:"input"`
			Name             string   `json:"name"`
			MutationStrategy string   `json:"mutation_strategy"`
			ExpectedOutput   string   `json:"expected_output"`
			Tags             []string `json:"tags"`
		} `json:"mutations"`
	}
	if err := llm.ParseJSON(llm.Text(resp), &parsed); err != nil {
		return nil, fmt.Errorf("mutator: parse response: %w", err)
	}

	var out []testcase.TestCase
	for i, mut := range parsed.Mutations {
		if strings.TrimSpace(mut.Input) == "" {
			continue
		}
		name := mut.Name
		if name == "" {
			name = fmt.Sprintf("%s mutation %d", seed.Name, i+1)
		}
		tags := mut.Tags
		if len(tags) == 0 {
			tags = append([]string(nil), seed.Tags...)
		}
		c := testcase.TestCase{
			ID:               fmt.Sprintf("%s-mut-%s", seed.ID, uuid.NewString()[:6]),
			Name:             name,
			ExpectedOutput:   mut.ExpectedOutput,
			Tags:             tags,
			Source:           testcase.SourceMutation,
			ParentID:         seed.ID,
			MutationStrategy: mut.MutationStrategy,
			ReviewStatus:     testcase.ReviewPending,
			Tier:             testcase.TierSilver,
		}
		c.Input.Query = mut.Input
		c.Normalize()
		out = append(out, c)
	}
	return out, nil
}

const reviewPromptTemplate = `You are a test case review expert. Check whether these mutation-generated test cases are sound.

## Cases to Review
{{CASES}}

## Review Criteria
1. Is the input clear and meaningful?
2. Is expected_output logically consistent with the input?
3. Does the case add test value beyond a simple restatement?

## Output Format (JSON)
{
  "reviews": [
    {"id": "case id", "approved": true, "reason": "review reason"}
  ]
}`

// Review runs the LLM pre-review pass, marking unsound cases rejected.
// A failed review call leaves all cases untouched; pre-review never
// blocks the workflow.
func (m *Mutator) Review(ctx context.Context, cases []testcase.TestCase) []testcase.TestCase {
	if m == nil || m.Provider == nil || len(cases) == 0 {
		return cases
	}

	info := make([]map[string]any, 0, len(cases))
	for i := range cases {
		info = append(info, map[string]any{
			"id":                cases[i].ID,
			"input":             cases[i].Input.Query,
			"expected_output":   cases[i].ExpectedOutput,
			"mutation_strategy": cases[i].MutationStrategy,
		})
	}
	infoJSON, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return cases
	}

	resp, err := m.Provider.Complete(ctx, &llm.Request{
		Messages:     []llm.Message{{Role: "user", Content: strings.ReplaceAll(reviewPromptTemplate, "{{CASES}}", string(infoJSON))}},
		MaxTokens:    4096,
		Temperature:  0.1,
		JSONResponse: true,
	})
	if err != nil {
		return cases
	}

	var parsed struct {
		Reviews []struct {
			ID       string `json:"id"`
			Approved *bool  `json:"approved"`
			Reason   string `json:"reason"`
		} `json:"reviews"`
	}
	if err := llm.ParseJSON(llm.Text(resp), &parsed); err != nil {
		return cases
	}

	rejected := make(map[string]string)
	for _, r := range parsed.Reviews {
		if r.Approved != nil && !*r.Approved {
			rejected[r.ID] = r.Reason
		}
	}
	for i := range cases {
		if reason, ok := rejected[cases[i].ID]; ok {
			cases[i].ReviewStatus = testcase.ReviewRejected
			cases[i].JudgeHints = fmt.Sprintf("[Pre-review rejected] %s", reason)
		}
	}
	return cases
}
