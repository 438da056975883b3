package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stellarlinkco/agent-evo/internal/evaluator"
	"github.com/stellarlinkco/agent-evo/internal/store"
)

// Commands that read config or scaffold files chdir into a temp
// workspace, so they cannot run in parallel with each other.
var cliMu sync.Mutex

func chtemp(t *testing.T) string {
	t.Helper()

	cliMu.Lock()
	t.Cleanup(cliMu.Unlock)

	dir := t.TempDir()
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	return dir
}

func writeWorkspaceConfig(t *testing.T, dir string) {
	t.Helper()

	payload := `version: "1.0"
agent:
  command: ["echo"]
test_cases: ./tests/*.yaml
storage:
  type: sqlite
  path: ./history.db
`
	if err := os.WriteFile(filepath.Join(dir, "agentevo.yaml"), []byte(payload), 0o644); err != nil {
		t.Fatalf("WriteFile config: %v", err)
	}
}

func seedRun(t *testing.T, dir string, rep *evaluator.EvalReport) string {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()

	id, err := newRunID()
	if err != nil {
		t.Fatalf("newRunID: %v", err)
	}
	if err := st.SaveRun(context.Background(), id, rep); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	return id
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInitCmd_Scaffolds(t *testing.T) {
	dir := chtemp(t)

	out, err := execute(t, "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "Created agentevo.yaml") {
		t.Fatalf("output missing config notice:\n%s", out)
	}
	for _, path := range []string{"agentevo.yaml", filepath.Join("tests", "example.yaml")} {
		if _, err := os.Stat(filepath.Join(dir, path)); err != nil {
			t.Fatalf("expected %s: %v", path, err)
		}
	}

	if _, err := execute(t, "init"); err == nil {
		t.Fatal("expected second init to fail")
	}
}

func TestGateCheck_Blocked(t *testing.T) {
	dir := chtemp(t)
	writeWorkspaceConfig(t, dir)
	t.Setenv("GITHUB_ACTIONS", "")

	now := time.Now().UTC()
	seedRun(t, dir, &evaluator.EvalReport{
		Total: 4, Passed: 2, Failed: 2, PassRate: 0.5,
		ReleaseBlocked: true,
		BlockingTags:   []string{"safety"},
		StartedAt:      now, FinishedAt: now,
	})

	out, err := execute(t, "gate-check")
	if !errors.Is(err, errReleaseBlocked) {
		t.Fatalf("err: got %v want errReleaseBlocked", err)
	}
	if !strings.Contains(out, "Release BLOCKED") || !strings.Contains(out, "safety") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestGateCheck_Passes(t *testing.T) {
	dir := chtemp(t)
	writeWorkspaceConfig(t, dir)
	t.Setenv("GITHUB_ACTIONS", "")

	now := time.Now().UTC()
	seedRun(t, dir, &evaluator.EvalReport{
		Total: 4, Passed: 4, PassRate: 1.0,
		StartedAt: now, FinishedAt: now,
	})

	out, err := execute(t, "gate-check")
	if err != nil {
		t.Fatalf("gate-check: %v", err)
	}
	if !strings.Contains(out, "Release gate passed") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestGateCheck_NoRuns(t *testing.T) {
	dir := chtemp(t)
	writeWorkspaceConfig(t, dir)

	if _, err := execute(t, "gate-check"); err == nil {
		t.Fatal("expected error without recorded runs")
	}
}

func TestHistoryAndStats(t *testing.T) {
	dir := chtemp(t)
	writeWorkspaceConfig(t, dir)

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	seedRun(t, dir, &evaluator.EvalReport{
		Total: 10, Passed: 7, Failed: 3, PassRate: 0.7,
		StartedAt: base, FinishedAt: base.Add(time.Minute),
	})
	seedRun(t, dir, &evaluator.EvalReport{
		Total: 10, Passed: 9, Failed: 1, PassRate: 0.9,
		StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute),
	})

	out, err := execute(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "90.0%") || !strings.Contains(out, "70.0%") {
		t.Fatalf("history output:\n%s", out)
	}

	out, err = execute(t, "history", "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Runs: 2") {
		t.Fatalf("stats output:\n%s", out)
	}
	if !strings.Contains(out, "Average pass rate: 80.0%") {
		t.Fatalf("stats output:\n%s", out)
	}
	if !strings.Contains(out, "Latest pass rate:  90.0%") {
		t.Fatalf("stats output:\n%s", out)
	}
}

func TestReviewListAndApprove(t *testing.T) {
	dir := chtemp(t)
	writeWorkspaceConfig(t, dir)

	if err := os.MkdirAll(filepath.Join(dir, "tests"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	suite := `name: generated
cases:
  - id: seed-mut-abc123
    input: "Variant input"
    expected_output: "Variant answer"
    source: mutation
    review_status: pending
    tier: silver
  - id: manual-1
    input: "Manual input"
    expected_output: "Manual answer"
`
	suitePath := filepath.Join(dir, "tests", "generated.yaml")
	if err := os.WriteFile(suitePath, []byte(suite), 0o644); err != nil {
		t.Fatalf("WriteFile suite: %v", err)
	}

	out, err := execute(t, "review")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !strings.Contains(out, "seed-mut-abc123") || strings.Contains(out, "manual-1") {
		t.Fatalf("review output:\n%s", out)
	}

	out, err = execute(t, "review", "approve", suitePath, "seed-mut-abc123")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !strings.Contains(out, "Marked 1 case(s) approved") {
		t.Fatalf("approve output:\n%s", out)
	}

	out, err = execute(t, "review")
	if err != nil {
		t.Fatalf("review after approve: %v", err)
	}
	if !strings.Contains(out, "No cases pending review") {
		t.Fatalf("review output:\n%s", out)
	}

	if _, err := execute(t, "review", "reject", suitePath, "no-such-id"); err == nil {
		t.Fatal("expected reject of unknown id to fail")
	}
}

func TestReviewApproveAll(t *testing.T) {
	dir := chtemp(t)
	writeWorkspaceConfig(t, dir)

	if err := os.MkdirAll(filepath.Join(dir, "tests"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	suite := `name: generated
cases:
  - id: m1
    input: "one"
    expected_output: "a"
    review_status: pending
  - id: m2
    input: "two"
    expected_output: "b"
    review_status: pending
`
	suitePath := filepath.Join(dir, "tests", "generated.yaml")
	if err := os.WriteFile(suitePath, []byte(suite), 0o644); err != nil {
		t.Fatalf("WriteFile suite: %v", err)
	}

	out, err := execute(t, "review", "approve", suitePath, "--all")
	if err != nil {
		t.Fatalf("approve --all: %v", err)
	}
	if !strings.Contains(out, "Marked 2 case(s) approved") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestReportFromFile(t *testing.T) {
	dir := chtemp(t)
	writeWorkspaceConfig(t, dir)

	rep := `{"total":2,"passed":1,"failed":1,"errors":0,"pass_rate":0.5,"release_blocked":false,
"results":[{"case_id":"a","status":"passed","input":"x","weighted_score":1,"passed":true},
{"case_id":"b","status":"failed","input":"y","weighted_score":0.4,"passed":false,"fail_reason":"weighted score 0.40 below threshold 0.70"}]}`
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, []byte(rep), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := execute(t, "report", "--file", path)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out, "50.0%") || !strings.Contains(out, "weighted score 0.40 below threshold 0.70") {
		t.Fatalf("report output:\n%s", out)
	}

	out, err = execute(t, "report", "--file", path, "--json")
	if err != nil {
		t.Fatalf("report --json: %v", err)
	}
	if !strings.Contains(out, `"pass_rate": 0.5`) {
		t.Fatalf("json output:\n%s", out)
	}
}

func TestRootCmd_Wiring(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	want := map[string]bool{
		"init": false, "eval": false, "run": false, "mutate": false,
		"import": false, "review": false, "gate-check": false,
		"report": false, "history": false, "serve": false,
	}
	for _, c := range root.Commands() {
		name := strings.Fields(c.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestBuildAgent_Selection(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWorkspaceConfig(t, dir)
	// loaded indirectly to exercise command/url selection
	cfgPath := filepath.Join(dir, "agentevo.yaml")

	root := newRootCmd()
	root.SetArgs([]string{"--config", cfgPath, "eval"})
	// eval fails later (no provider key configured or no cases), but
	// config loading and agent construction must not be the failure.
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	if err == nil {
		t.Skip("environment provides a working provider")
	}
	if strings.Contains(err.Error(), "agent.command") {
		t.Fatalf("agent construction failed: %v", err)
	}
}
