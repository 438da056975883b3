package store

import (
	"context"
	"testing"
	"time"

	"github.com/stellarlinkco/agent-evo/internal/config"
	"github.com/stellarlinkco/agent-evo/internal/evaluator"
)

func memStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleReport(passed, failed int, started time.Time) *evaluator.EvalReport {
	total := passed + failed
	r := &evaluator.EvalReport{
		Total:      total,
		Passed:     passed,
		Failed:     failed,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
	if total > 0 {
		r.PassRate = float64(passed) / float64(total)
	}
	for i := 0; i < failed; i++ {
		r.Results = append(r.Results, evaluator.CaseResult{
			CaseID: "failing", Status: evaluator.StatusFailed, FailReason: "nope",
		})
	}
	return r
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()
	st := memStore(t)
	ctx := context.Background()

	report := sampleReport(8, 2, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	report.ReleaseBlocked = true
	report.Optimization = &evaluator.OptimizationResult{Success: true, Iterations: 2}

	if err := st.SaveRun(ctx, "run-1", report); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	rec, err := st.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Total != 10 || rec.Passed != 8 || rec.PassRate != 0.8 {
		t.Errorf("rec = %+v", rec)
	}
	if !rec.ReleaseBlocked || !rec.Optimized {
		t.Errorf("flags = %+v", rec)
	}
	if rec.Report == nil || len(rec.Report.Results) != 2 {
		t.Errorf("report = %+v", rec.Report)
	}
	if !rec.StartedAt.Equal(report.StartedAt) {
		t.Errorf("StartedAt = %v", rec.StartedAt)
	}
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()
	st := memStore(t)
	if _, err := st.GetRun(context.Background(), "missing"); err == nil {
		t.Fatal("expected error")
	}
}

func TestListRunsNewestFirstWithFilter(t *testing.T) {
	t.Parallel()
	st := memStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		if err := st.SaveRun(ctx, id, sampleReport(1, 0, base.AddDate(0, 0, i))); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := st.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "r3" || runs[2].ID != "r1" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Report != nil {
		t.Error("listing should not load full reports")
	}

	recent, err := st.ListRuns(ctx, RunFilter{Since: base.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("recent = %+v", recent)
	}

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "r3" {
		t.Errorf("limited = %+v", limited)
	}
}

func TestSaveRunValidation(t *testing.T) {
	t.Parallel()
	st := memStore(t)
	ctx := context.Background()

	if err := st.SaveRun(ctx, "", sampleReport(1, 0, time.Now())); err == nil {
		t.Error("expected error for empty id")
	}
	if err := st.SaveRun(ctx, "x", nil); err == nil {
		t.Error("expected error for nil report")
	}
}

func TestOpenMemory(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Storage.Type = "memory"
	st, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	if err := st.SaveRun(context.Background(), "r", sampleReport(1, 0, time.Now().UTC())); err != nil {
		t.Errorf("SaveRun: %v", err)
	}
}

func TestOpenUnsupportedType(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Storage.Type = "postgres"
	if _, err := Open(cfg); err == nil {
		t.Fatal("expected error")
	}
}
