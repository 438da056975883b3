package evaluator

import (
	"time"

	"github.com/stellarlinkco/agent-evo/internal/factor"
)

// CaseStatus is the terminal state of one evaluated case.
type CaseStatus string

const (
	StatusPassed  CaseStatus = "passed"
	StatusFailed  CaseStatus = "failed"
	StatusError   CaseStatus = "error"
	StatusSkipped CaseStatus = "skipped"
)

// CaseResult is the immutable outcome of one executed and scored case.
type CaseResult struct {
	CaseID   string     `json:"case_id"`
	CaseName string     `json:"case_name,omitempty"`
	Status   CaseStatus `json:"status"`

	Input    string `json:"input"`
	Output   string `json:"output,omitempty"`
	Expected string `json:"expected,omitempty"`

	FactorScores  []factor.Result `json:"factor_scores,omitempty"`
	WeightedScore float64         `json:"weighted_score"`
	Passed        bool            `json:"passed"`
	FailReason    string          `json:"fail_reason,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`

	Tags            []string  `json:"tags,omitempty"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// TagStats aggregates results for one tag. Threshold and MeetsThreshold
// are set only when a policy is configured for the tag.
type TagStats struct {
	Total          int     `json:"total"`
	Passed         int     `json:"passed"`
	Failed         int     `json:"failed"`
	PassRate       float64 `json:"pass_rate"`
	Threshold      float64 `json:"threshold,omitempty"`
	MeetsThreshold *bool   `json:"meets_threshold,omitempty"`
}

// FactorSummary aggregates one factor id across all cases in a run.
type FactorSummary struct {
	ActivatedCount int     `json:"activated_count"`
	AvgScore       float64 `json:"avg_score"`
	FailCount      int     `json:"fail_count"`
	FatalFailCount int     `json:"fatal_fail_count"`
}

// AggregatedDiagnosis is the cross-case failure analysis produced by a
// single LLM call over all failure attributions.
type AggregatedDiagnosis struct {
	CommonPatterns         []string            `json:"common_patterns"`
	IssuesByTag            map[string][]string `json:"issues_by_tag,omitempty"`
	FixPriorities          []string            `json:"fix_priorities,omitempty"`
	SuggestedPromptChanges []string            `json:"suggested_prompt_changes,omitempty"`
	AutoFixableRatio       float64             `json:"auto_fixable_ratio,omitempty"`
}

// OptimizationResult records one prompt optimization attempt.
type OptimizationResult struct {
	Success            bool     `json:"success"`
	Iterations         int      `json:"iterations"`
	OriginalPrompt     string   `json:"original_prompt,omitempty"`
	OptimizedPrompt    string   `json:"optimized_prompt,omitempty"`
	RegressionPassRate float64  `json:"regression_pass_rate,omitempty"`
	ErrorMessage       string   `json:"error_message,omitempty"`
	FixedCases         []string `json:"fixed_cases,omitempty"`
}

// EvalReport is the run-level aggregate over all case results.
type EvalReport struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errors  int `json:"errors"`
	Skipped int `json:"skipped"`

	PassRate float64 `json:"pass_rate"`

	Results       []CaseResult             `json:"results"`
	StatsByTag    map[string]TagStats      `json:"stats_by_tag,omitempty"`
	FactorSummary map[string]FactorSummary `json:"factor_summary,omitempty"`

	ReleaseBlocked bool                `json:"release_blocked"`
	BlockingTags   []string            `json:"blocking_tags,omitempty"`
	FailuresByTag  map[string][]string `json:"failures_by_tag,omitempty"`

	Diagnosis    *AggregatedDiagnosis `json:"aggregated_diagnosis,omitempty"`
	Optimization *OptimizationResult  `json:"optimization,omitempty"`

	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// FailedResults returns the failed and errored case results.
func (r *EvalReport) FailedResults() []CaseResult {
	var out []CaseResult
	for _, cr := range r.Results {
		if cr.Status == StatusFailed || cr.Status == StatusError {
			out = append(out, cr)
		}
	}
	return out
}
