package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stellarlinkco/agent-evo/internal/config"
	"github.com/stellarlinkco/agent-evo/internal/llm"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

type fakeProvider struct {
	text string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(context.Context, *llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: []llm.ContentBlock{{Type: "text", Text: p.text}}}, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestParseJSONLSkipsMalformedLines(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "prod.jsonl", `
{"query": "how do I reset my password", "agent_response": "I cannot help"}
not json at all
{"agent_response": "missing query"}

{"query": "refund status", "agent_response": "wrong answer", "error_type": "factual"}
`)
	records, err := ParseJSONL(path)
	if err != nil {
		t.Fatalf("ParseJSONL: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d", len(records))
	}
	if records[1].ErrorType != "factual" {
		t.Errorf("records = %+v", records)
	}
}

func TestParseCSVWithMapping(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "prod.csv", "question,answer,fix\n"+
		"refund status,wrong,right\n"+
		",missing query,x\n")
	records, err := ParseCSV(path, map[string]string{
		"query":              "question",
		"agent_response":     "answer",
		"corrected_response": "fix",
	})
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len = %d", len(records))
	}
	if records[0].Query != "refund status" || records[0].CorrectedResponse != "right" {
		t.Errorf("records = %+v", records)
	}
}

func TestParseYAMLBothShapes(t *testing.T) {
	t.Parallel()
	bare := writeFile(t, "bare.yaml", "- query: q1\n  agent_response: a1\n")
	wrapped := writeFile(t, "wrapped.yaml", "records:\n  - query: q2\n    agent_response: a2\n")

	r1, err := ParseYAML(bare)
	if err != nil || len(r1) != 1 || r1[0].Query != "q1" {
		t.Fatalf("bare: %v %+v", err, r1)
	}
	r2, err := ParseYAML(wrapped)
	if err != nil || len(r2) != 1 || r2[0].Query != "q2" {
		t.Fatalf("wrapped: %v %+v", err, r2)
	}
}

func TestImportFileRefines(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "prod.jsonl",
		`{"query": "can I return opened items", "agent_response": "no idea"}`+"\n")
	provider := &fakeProvider{text: `{"name": "opened item return", "expected_output": "Opened items can be returned within 14 days.", "tags": ["regression", "returns"]}`}
	im := New(provider, config.ImportConfig{})

	cases, result, err := im.ImportFile(context.Background(), path, "jsonl", nil)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if result.TotalRecords != 1 || result.Imported != 1 || result.PendingReview != 1 {
		t.Errorf("result = %+v", result)
	}

	c := cases[0]
	if !strings.HasPrefix(c.ID, "prod-") || len(c.ID) != len("prod-")+8 {
		t.Errorf("ID = %q", c.ID)
	}
	if c.Name != "opened item return" || c.ExpectedOutput != "Opened items can be returned within 14 days." {
		t.Errorf("case = %+v", c)
	}
	if c.Source != testcase.SourceProduction || c.Tier != testcase.TierSilver || c.ReviewStatus != testcase.ReviewPending {
		t.Errorf("lifecycle = %s/%s/%s", c.Source, c.Tier, c.ReviewStatus)
	}
	if c.BadOutput != "no idea" {
		t.Errorf("BadOutput = %q", c.BadOutput)
	}
	if c.Expected.Output != c.ExpectedOutput {
		t.Error("expected output not synced")
	}
}

func TestImportFileWithoutRefine(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "prod.jsonl",
		`{"query": "where is my order", "agent_response": "shrug"}`+"\n")
	off := false
	im := New(nil, config.ImportConfig{AutoRefine: &off})

	cases, _, err := im.ImportFile(context.Background(), path, "", nil)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if cases[0].Name != "Production case: where is my order" {
		t.Errorf("Name = %q", cases[0].Name)
	}
	if len(cases[0].Tags) != 1 || cases[0].Tags[0] != "regression" {
		t.Errorf("Tags = %v", cases[0].Tags)
	}
}

func TestImportFileUnsupportedFormat(t *testing.T) {
	t.Parallel()
	im := New(nil, config.ImportConfig{})
	if _, _, err := im.ImportFile(context.Background(), "whatever", "xml", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeduplicate(t *testing.T) {
	t.Parallel()
	mk := func(id, query string) testcase.TestCase {
		c := testcase.TestCase{ID: id, Name: id}
		c.Input.Query = query
		c.Normalize()
		return c
	}
	existing := []testcase.TestCase{mk("e1", "Where is my order?")}
	incoming := []testcase.TestCase{
		mk("n1", "where is my order?  "), // matches existing after normalization
		mk("n2", "How do refunds work?"),
		mk("n3", "how do refunds work?"), // duplicate within the batch
	}

	unique := Deduplicate(incoming, existing)
	if len(unique) != 1 || unique[0].ID != "n2" {
		t.Fatalf("unique = %+v", unique)
	}
}
