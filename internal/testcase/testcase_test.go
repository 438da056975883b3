package testcase

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestNormalizeSync(t *testing.T) {
	t.Parallel()

	c := TestCase{ID: "a", Input: Input{Query: "q"}, ExpectedOutput: "hello"}
	c.Normalize()
	if c.Expected.Output != "hello" {
		t.Fatalf("expected.output = %q, want hello", c.Expected.Output)
	}

	c2 := TestCase{ID: "b", Input: Input{Query: "q"}, Expected: ExpectedCriteria{Output: "world"}}
	c2.Normalize()
	if c2.ExpectedOutput != "world" {
		t.Fatalf("expected_output = %q, want world", c2.ExpectedOutput)
	}

	// Idempotent.
	before := c2
	c2.Normalize()
	if c2.ExpectedOutput != before.ExpectedOutput || c2.Expected.Output != before.Expected.Output {
		t.Fatal("Normalize is not idempotent")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	c := TestCase{ID: "a", Input: Input{Query: "q"}}
	c.Normalize()
	if c.Source != SourceManual {
		t.Errorf("source = %q, want manual", c.Source)
	}
	if c.ReviewStatus != ReviewApproved {
		t.Errorf("review_status = %q, want approved", c.ReviewStatus)
	}
	if c.Tier != TierGold {
		t.Errorf("tier = %q, want gold", c.Tier)
	}
}

func TestLoadFileScalarAndStructuredInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "suite.yaml", `
name: billing
cases:
  - id: plain
    name: plain input
    input: what is the refund policy
    expected_output: 30 days
  - id: rich
    name: structured input
    input:
      query: refund order 42
      context:
        user_id: u-9
    expected:
      output: refund issued
`)

	suite, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if suite.Name != "billing" {
		t.Errorf("suite name = %q", suite.Name)
	}
	if got := suite.Cases[0].Input.Query; got != "what is the refund policy" {
		t.Errorf("scalar input query = %q", got)
	}
	if got := suite.Cases[1].Input.Context["user_id"]; got != "u-9" {
		t.Errorf("context user_id = %v", got)
	}
	if suite.Cases[0].Expected.Output != "30 days" {
		t.Errorf("sync missed: expected.output = %q", suite.Cases[0].Expected.Output)
	}
	if suite.Cases[1].ExpectedOutput != "refund issued" {
		t.Errorf("sync missed: expected_output = %q", suite.Cases[1].ExpectedOutput)
	}
}

func TestLoadFileSuiteTier(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "suite.yaml", `
name: tiers
tier: silver
cases:
  - id: inherits
    name: inherits suite tier
    input: q
  - id: keeps
    name: keeps own tier
    tier: gold
    input: q
`)
	suite, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if suite.Cases[0].Tier != TierSilver {
		t.Errorf("case 0 tier = %q, want silver", suite.Cases[0].Tier)
	}
	if suite.Cases[1].Tier != TierGold {
		t.Errorf("case 1 tier = %q, want gold", suite.Cases[1].Tier)
	}
}

func TestLoadGlobDuplicateID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "cases:\n  - id: dup\n    name: a\n    input: q\n")
	writeFile(t, dir, "b.yaml", "cases:\n  - id: dup\n    name: b\n    input: q\n")

	_, err := LoadGlob(filepath.Join(dir, "*.yaml"))
	if err == nil || !strings.Contains(err.Error(), "duplicate case id") {
		t.Fatalf("want duplicate id error, got %v", err)
	}
}

func TestValidateRejectsBadOperator(t *testing.T) {
	t.Parallel()

	c := TestCase{
		ID:    "x",
		Input: Input{Query: "q"},
		Expected: ExpectedCriteria{
			PathAssertions: []PathAssertion{{Path: "$.a", Operator: "gt"}},
		},
	}
	c.Normalize()
	if err := Validate([]TestCase{c}); err == nil {
		t.Fatal("want error for unknown operator")
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	cases := []TestCase{
		{ID: "a", Tags: []string{"billing"}, Tier: TierGold, ReviewStatus: ReviewApproved},
		{ID: "b", Tags: []string{"safety"}, Tier: TierSilver, ReviewStatus: ReviewApproved},
		{ID: "c", Tags: []string{"billing"}, Tier: TierGold, ReviewStatus: ReviewRejected},
		{ID: "d", Tags: []string{"safety", "billing"}, Tier: TierGold, ReviewStatus: ReviewPending},
	}

	got := Filter(cases, []string{"billing"}, "")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "d" {
		t.Fatalf("tag filter: got %d cases", len(got))
	}

	got = Filter(cases, nil, TierSilver)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("tier filter: got %d cases", len(got))
	}
}

func TestSaveSuiteRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out", "suite.yaml")
	suite := &TestSuite{
		Name: "rt",
		Cases: []TestCase{{
			ID:             "c1",
			Name:           "case one",
			Input:          Input{Query: "q"},
			ExpectedOutput: "a",
			Expected:       ExpectedCriteria{Output: "a"},
			Source:         SourceManual,
			ReviewStatus:   ReviewApproved,
			Tier:           TierGold,
		}},
	}
	if err := SaveSuite(path, suite); err != nil {
		t.Fatalf("SaveSuite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, field := range []string{"source:", "review_status:", "tier:"} {
		if strings.Contains(string(data), field) {
			t.Errorf("serialized default %s should be omitted:\n%s", field, data)
		}
	}

	back, err := LoadFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	c := back.Cases[0]
	if c.Source != SourceManual || c.ReviewStatus != ReviewApproved || c.Tier != TierGold {
		t.Fatalf("defaults not restored: %+v", c)
	}
	if c.ExpectedOutput != "a" || c.Expected.Output != "a" {
		t.Fatalf("expected output lost: %+v", c)
	}
}

func TestUpdateReviewStatus(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "suite.yaml", `
cases:
  - id: p1
    name: pending one
    input: q
    review_status: pending
    source: mutation
  - id: p2
    name: pending two
    input: q
    review_status: pending
    source: mutation
`)
	n, err := UpdateReviewStatus(path, map[string]ReviewStatus{
		"p1": ReviewApproved,
		"zz": ReviewRejected,
	})
	if err != nil {
		t.Fatalf("UpdateReviewStatus: %v", err)
	}
	if n != 1 {
		t.Fatalf("updated = %d, want 1", n)
	}

	back, err := LoadFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if back.Cases[0].ReviewStatus != ReviewApproved {
		t.Errorf("p1 = %q, want approved", back.Cases[0].ReviewStatus)
	}
	if back.Cases[1].ReviewStatus != ReviewPending {
		t.Errorf("p2 = %q, want pending", back.Cases[1].ReviewStatus)
	}
}
