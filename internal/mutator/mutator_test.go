package mutator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stellarlinkco/agent-evo/internal/config"
	"github.com/stellarlinkco/agent-evo/internal/llm"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

type fakeProvider struct {
	text    string
	lastReq *llm.Request
	err     error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: []llm.ContentBlock{{Type: "text", Text: p.text}}}, nil
}

func seedCase() testcase.TestCase {
	c := testcase.TestCase{
		ID:             "refund-1",
		Name:           "basic refund",
		ExpectedOutput: "Refunds take 3-5 days.",
		Tags:           []string{"refund"},
	}
	c.Input.Query = "How do refunds work?"
	c.Normalize()
	return c
}

const mutationsJSON = `{
  "mutations": [
    {
      "input": "Can I get a refund after 90 days?",
      "name": "late refund request",
      "mutation_strategy": "boundary: expired window",
      "expected_output": "Refunds are only available within 30 days.",
      "tags": ["refund", "edge"]
    },
    {
      "input": "",
      "name": "broken",
      "expected_output": "x"
    },
    {
      "input": "refund for gift purchase?",
      "expected_output": "Gift purchases are refunded to the buyer."
    }
  ]
}`

func TestMutateProducesPendingSilverCases(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{text: mutationsJSON}
	m := New(provider, config.MutationConfig{CountPerCase: 3, HintDirections: []string{"boundary conditions"}})

	out, err := m.Mutate(context.Background(), []testcase.TestCase{seedCase()})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (empty input dropped)", len(out))
	}

	first := out[0]
	if !strings.HasPrefix(first.ID, "refund-1-mut-") {
		t.Errorf("ID = %q", first.ID)
	}
	if first.Source != testcase.SourceMutation || first.Tier != testcase.TierSilver {
		t.Errorf("lifecycle = %s/%s", first.Source, first.Tier)
	}
	if first.ReviewStatus != testcase.ReviewPending {
		t.Errorf("ReviewStatus = %q", first.ReviewStatus)
	}
	if first.ParentID != "refund-1" || first.MutationStrategy == "" {
		t.Errorf("parent = %q strategy = %q", first.ParentID, first.MutationStrategy)
	}
	if first.Expected.Output != first.ExpectedOutput {
		t.Error("expected output not synced")
	}

	// Unnamed mutation falls back to a derived name and inherits tags.
	second := out[1]
	if !strings.Contains(second.Name, "basic refund mutation") {
		t.Errorf("Name = %q", second.Name)
	}
	if len(second.Tags) != 1 || second.Tags[0] != "refund" {
		t.Errorf("Tags = %v", second.Tags)
	}

	if provider.lastReq.Temperature != 0.8 || !provider.lastReq.JSONResponse {
		t.Errorf("request = %+v", provider.lastReq)
	}
	if !strings.Contains(provider.lastReq.Messages[0].Content, "boundary conditions") {
		t.Error("hint directions missing from prompt")
	}
}

func TestMutateSkipsFailingSeed(t *testing.T) {
	t.Parallel()
	m := New(&fakeProvider{err: errors.New("down")}, config.MutationConfig{})
	out, err := m.Mutate(context.Background(), []testcase.TestCase{seedCase()})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len = %d", len(out))
	}
}

func TestReviewRejectsFlaggedCases(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{text: `{
  "reviews": [
    {"id": "m1", "approved": false, "reason": "expected answer contradicts input"},
    {"id": "m2", "approved": true}
  ]
}`}
	m := New(provider, config.MutationConfig{})

	c1 := seedCase()
	c1.ID = "m1"
	c1.ReviewStatus = testcase.ReviewPending
	c2 := seedCase()
	c2.ID = "m2"
	c2.ReviewStatus = testcase.ReviewPending

	out := m.Review(context.Background(), []testcase.TestCase{c1, c2})

	if out[0].ReviewStatus != testcase.ReviewRejected {
		t.Errorf("m1 status = %q", out[0].ReviewStatus)
	}
	if !strings.Contains(out[0].JudgeHints, "[Pre-review rejected] expected answer contradicts input") {
		t.Errorf("JudgeHints = %q", out[0].JudgeHints)
	}
	if out[1].ReviewStatus != testcase.ReviewPending {
		t.Errorf("m2 status = %q", out[1].ReviewStatus)
	}
	if provider.lastReq.Temperature != 0.1 {
		t.Errorf("Temperature = %v", provider.lastReq.Temperature)
	}
}

func TestReviewFailureLeavesCasesUntouched(t *testing.T) {
	t.Parallel()
	m := New(&fakeProvider{err: errors.New("down")}, config.MutationConfig{})
	c := seedCase()
	c.ReviewStatus = testcase.ReviewPending

	out := m.Review(context.Background(), []testcase.TestCase{c})
	if out[0].ReviewStatus != testcase.ReviewPending {
		t.Errorf("status = %q", out[0].ReviewStatus)
	}
}
