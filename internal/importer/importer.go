// Package importer turns production bad-case records into reviewable
// test cases, optionally refining them with an LLM.
package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/stellarlinkco/agent-evo/internal/config"
	"github.com/stellarlinkco/agent-evo/internal/llm"
	"github.com/stellarlinkco/agent-evo/internal/prompt"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

// ProductionRecord is one raw record from a production export.
type ProductionRecord struct {
	Query             string         `json:"query" yaml:"query"`
	AgentResponse     string         `json:"agent_response" yaml:"agent_response"`
	IsCorrect         *bool          `json:"is_correct,omitempty" yaml:"is_correct,omitempty"`
	CorrectedResponse string         `json:"corrected_response,omitempty" yaml:"corrected_response,omitempty"`
	ErrorType         string         `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	SourceTimestamp   *time.Time     `json:"source_timestamp,omitempty" yaml:"source_timestamp,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Result summarizes one import run.
type Result struct {
	TotalRecords      int      `json:"total_records"`
	Imported          int      `json:"imported"`
	DuplicatesRemoved int      `json:"duplicates_removed"`
	PendingReview     int      `json:"pending_review"`
	Errors            []string `json:"errors,omitempty"`
}

// Importer converts production records into test cases.
type Importer struct {
	Provider llm.Provider
	Config   config.ImportConfig

	// Template overrides the built-in refine prompt when set.
	Template string
}

func New(provider llm.Provider, cfg config.ImportConfig) *Importer {
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = "jsonl"
	}
	if cfg.DefaultTier == "" {
		cfg.DefaultTier = string(testcase.TierSilver)
	}
	if cfg.DefaultTags == nil {
		cfg.DefaultTags = []string{"regression"}
	}
	return &Importer{Provider: provider, Config: cfg}
}

// ParseJSONL reads one record per line, skipping blank and malformed
// lines.
func ParseJSONL(path string) ([]ProductionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	defer f.Close()

	var records []ProductionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec ProductionRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Query == "" {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	return records, nil
}

// ParseCSV reads records from a CSV export. columnMapping maps record
// fields to CSV headers; nil means same-named columns.
func ParseCSV(path string, columnMapping map[string]string) ([]ProductionRecord, error) {
	mapping := map[string]string{
		"query":              "query",
		"agent_response":     "agent_response",
		"corrected_response": "corrected_response",
		"error_type":         "error_type",
	}
	for k, v := range columnMapping {
		mapping[k] = v
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("importer: parse csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	col := make(map[string]int)
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	field := func(row []string, key string) string {
		idx, ok := col[mapping[key]]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	var records []ProductionRecord
	for _, row := range rows[1:] {
		rec := ProductionRecord{
			Query:             field(row, "query"),
			AgentResponse:     field(row, "agent_response"),
			CorrectedResponse: field(row, "corrected_response"),
			ErrorType:         field(row, "error_type"),
		}
		if rec.Query == "" || rec.AgentResponse == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseYAML accepts either a bare record list or a {records: [...]}
// document.
func ParseYAML(path string) ([]ProductionRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}

	var list []ProductionRecord
	if err := yaml.Unmarshal(b, &list); err == nil && len(list) > 0 {
		return list, nil
	}
	var doc struct {
		Records []ProductionRecord `yaml:"records"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("importer: parse yaml: %w", err)
	}
	return doc.Records, nil
}

// ImportFile parses, refines, and converts a production export.
func (im *Importer) ImportFile(ctx context.Context, path, format string, columnMapping map[string]string) ([]testcase.TestCase, *Result, error) {
	if format == "" {
		format = im.Config.DefaultFormat
	}

	var (
		records []ProductionRecord
		err     error
	)
	switch format {
	case "jsonl":
		records, err = ParseJSONL(path)
	case "csv":
		records, err = ParseCSV(path, columnMapping)
	case "yaml":
		records, err = ParseYAML(path)
	default:
		return nil, nil, fmt.Errorf("importer: unsupported format %q", format)
	}
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errors.New("importer: no valid records found")
	}

	result := &Result{TotalRecords: len(records)}
	var cases []testcase.TestCase
	for i := range records {
		var (
			c      testcase.TestCase
			caseErr error
		)
		if im.Config.Refine() && im.Provider != nil {
			c, caseErr = im.refine(ctx, &records[i])
		} else {
			c = im.basicCase(&records[i])
		}
		if caseErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i+1, caseErr))
			continue
		}
		cases = append(cases, c)
	}

	result.Imported = len(cases)
	result.PendingReview = len(cases)
	return cases, result, nil
}

const refinePromptTemplate = `You are a test case refinement expert. Turn this production bad case into a standard test case.

## Production Data
- User input: {{QUERY}}
- Agent wrong response: {{RESPONSE}}
- Correction: {{CORRECTION}}
- Error type: {{ERROR_TYPE}}

## Task
1. Analyze what went wrong in the agent's response.
2. Write the ideal answer as expected_output.
3. Tag the case.

## Output Format (JSON)
{
  "name": "case name",
  "expected_output": "ideal agent response",
  "tags": ["regression", "other tags"]
}`

func (im *Importer) refine(ctx context.Context, rec *ProductionRecord) (testcase.TestCase, error) {
	correction := rec.CorrectedResponse
	if correction == "" {
		correction = "N/A"
	}
	errorType := rec.ErrorType
	if errorType == "" {
		errorType = "unknown"
	}
	tmpl := im.Template
	if tmpl == "" {
		tmpl = refinePromptTemplate
	}
	p := prompt.Render(tmpl, map[string]any{
		"QUERY":      rec.Query,
		"RESPONSE":   rec.AgentResponse,
		"CORRECTION": correction,
		"ERROR_TYPE": errorType,
	})

	resp, err := im.Provider.Complete(ctx, &llm.Request{
		Messages:     []llm.Message{{Role: "user", Content: p}},
		MaxTokens:    4096,
		Temperature:  0.3,
		JSONResponse: true,
	})
	if err != nil {
		return testcase.TestCase{}, fmt.Errorf("refine: %w", err)
	}

	var parsed struct {
		Name           string   `json:"name"`
		ExpectedOutput string   `json:"expected_output"`
		Tags           []string `json:"tags"`
	}
	if err := llm.ParseJSON(llm.Text(resp), &parsed); err != nil {
		return testcase.TestCase{}, fmt.Errorf("refine: parse response: %w", err)
	}

	c := im.basicCase(rec)
	if parsed.Name != "" {
		c.Name = parsed.Name
	}
	c.ExpectedOutput = parsed.ExpectedOutput
	if len(parsed.Tags) > 0 {
		c.Tags = parsed.Tags
	}
	c.Normalize()
	return c, nil
}

func (im *Importer) basicCase(rec *ProductionRecord) testcase.TestCase {
	c := testcase.TestCase{
		ID:           fmt.Sprintf("prod-%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
		Name:         fmt.Sprintf("Production case: %s", truncateRunes(rec.Query, 30)),
		Tags:         append([]string(nil), im.Config.DefaultTags...),
		Source:       testcase.SourceProduction,
		ReviewStatus: testcase.ReviewPending,
		Tier:         testcase.Tier(im.Config.DefaultTier),
		BadOutput:    rec.AgentResponse,
	}
	c.Input.Query = rec.Query
	c.Normalize()
	return c
}

// Deduplicate drops new cases whose normalized input already exists,
// either in the current suite or earlier in the import batch.
func Deduplicate(newCases, existing []testcase.TestCase) []testcase.TestCase {
	seen := make(map[string]struct{}, len(existing))
	for i := range existing {
		seen[normalizeInput(existing[i].Input.Query)] = struct{}{}
	}
	var unique []testcase.TestCase
	for _, c := range newCases {
		key := normalizeInput(c.Input.Query)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}

func normalizeInput(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
