// Package report renders evaluation reports for the terminal and
// serializes them to JSON for downstream consumers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/stellarlinkco/agent-evo/internal/evaluator"
)

// Printer writes human-readable summaries in the configured language.
type Printer struct {
	Out      io.Writer
	Language string // "en" or "zh"
	NoColor  bool
}

func NewPrinter(out io.Writer, language string) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if language != "zh" {
		language = "en"
	}
	return &Printer{Out: out, Language: language}
}

type strings2 struct{ en, zh string }

func (p *Printer) t(s strings2) string {
	if p.Language == "zh" {
		return s.zh
	}
	return s.en
}

var (
	msgSummary      = strings2{"Evaluation Summary", "评测摘要"}
	msgTotal        = strings2{"Total", "总数"}
	msgPassed       = strings2{"Passed", "通过"}
	msgFailed       = strings2{"Failed", "失败"}
	msgErrors       = strings2{"Errors", "错误"}
	msgPassRate     = strings2{"Pass rate", "通过率"}
	msgByTag        = strings2{"By tag", "按标签"}
	msgByFactor     = strings2{"By factor", "按评分维度"}
	msgBlocked      = strings2{"RELEASE BLOCKED by tags", "发布被以下标签阻断"}
	msgFailures     = strings2{"Failures", "失败用例"}
	msgDiagnosis    = strings2{"Aggregated Diagnosis", "聚合诊断"}
	msgPatterns     = strings2{"Common patterns", "共性问题"}
	msgPriorities   = strings2{"Fix priorities", "修复优先级"}
	msgSuggestions  = strings2{"Suggested prompt changes", "建议的提示词修改"}
	msgOptimization = strings2{"Optimization", "优化"}
	msgOptSuccess   = strings2{"succeeded", "成功"}
	msgOptFailed    = strings2{"failed", "失败"}
	msgIterations   = strings2{"iterations", "迭代次数"}
	msgRegression   = strings2{"regression pass rate", "回归通过率"}
	msgFixedCases   = strings2{"fixed cases", "修复用例"}
)

func (p *Printer) sprint(c *color.Color, format string, args ...any) string {
	if p.NoColor {
		return fmt.Sprintf(format, args...)
	}
	return c.Sprintf(format, args...)
}

// PrintReport renders totals, per-tag stats, per-factor stats, the
// failure list, and release gating.
func (p *Printer) PrintReport(r *evaluator.EvalReport) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	bold := color.New(color.Bold)

	fmt.Fprintf(p.Out, "\n%s\n", p.sprint(bold, "== %s ==", p.t(msgSummary)))
	fmt.Fprintf(p.Out, "%s: %d  %s: %s  %s: %s  %s: %s\n",
		p.t(msgTotal), r.Total,
		p.t(msgPassed), p.sprint(green, "%d", r.Passed),
		p.t(msgFailed), p.sprint(red, "%d", r.Failed),
		p.t(msgErrors), p.sprint(yellow, "%d", r.Errors))
	fmt.Fprintf(p.Out, "%s: %s\n", p.t(msgPassRate), p.rateString(r.PassRate, 1.0))

	if len(r.StatsByTag) > 0 {
		fmt.Fprintf(p.Out, "\n%s:\n", p.t(msgByTag))
		for _, tag := range sortedKeys(r.StatsByTag) {
			stats := r.StatsByTag[tag]
			line := fmt.Sprintf("  %-16s %d/%d  %s", tag, stats.Passed, stats.Total,
				p.rateString(stats.PassRate, 1.0))
			if stats.MeetsThreshold != nil {
				mark := p.sprint(green, "ok (>= %.0f%%)", stats.Threshold*100)
				if !*stats.MeetsThreshold {
					mark = p.sprint(red, "below %.0f%%", stats.Threshold*100)
				}
				line += "  " + mark
			}
			fmt.Fprintln(p.Out, line)
		}
	}

	if len(r.FactorSummary) > 0 {
		fmt.Fprintf(p.Out, "\n%s:\n", p.t(msgByFactor))
		for _, id := range sortedKeys(r.FactorSummary) {
			s := r.FactorSummary[id]
			fmt.Fprintf(p.Out, "  %-16s n=%d  avg=%.2f  fails=%d", id, s.ActivatedCount, s.AvgScore, s.FailCount)
			if s.FatalFailCount > 0 {
				fmt.Fprintf(p.Out, "  %s", p.sprint(red, "fatal=%d", s.FatalFailCount))
			}
			fmt.Fprintln(p.Out)
		}
	}

	failures := r.FailedResults()
	if len(failures) > 0 {
		fmt.Fprintf(p.Out, "\n%s:\n", p.t(msgFailures))
		for _, cr := range failures {
			reason := cr.FailReason
			if cr.Status == evaluator.StatusError {
				reason = cr.ErrorMessage
			}
			fmt.Fprintf(p.Out, "  %s %s: %s\n", p.sprint(red, "✗"), cr.CaseID, reason)
		}
	}

	if r.ReleaseBlocked {
		fmt.Fprintf(p.Out, "\n%s\n", p.sprint(red, "%s: %s", p.t(msgBlocked), strings.Join(r.BlockingTags, ", ")))
	}
}

// PrintDiagnosis renders a Phase B diagnosis, used both in normal runs
// and dry runs.
func (p *Printer) PrintDiagnosis(d *evaluator.AggregatedDiagnosis) {
	if d == nil {
		return
	}
	bold := color.New(color.Bold)
	fmt.Fprintf(p.Out, "\n%s\n", p.sprint(bold, "== %s ==", p.t(msgDiagnosis)))
	p.printList(p.t(msgPatterns), d.CommonPatterns)
	p.printList(p.t(msgPriorities), d.FixPriorities)
	p.printList(p.t(msgSuggestions), d.SuggestedPromptChanges)
	if d.AutoFixableRatio > 0 {
		fmt.Fprintf(p.Out, "auto-fixable: %.0f%%\n", d.AutoFixableRatio*100)
	}
}

func (p *Printer) PrintOptimization(o *evaluator.OptimizationResult) {
	if o == nil {
		return
	}
	bold := color.New(color.Bold)
	verdict := p.sprint(color.New(color.FgGreen), "%s", p.t(msgOptSuccess))
	if !o.Success {
		verdict = p.sprint(color.New(color.FgRed), "%s", p.t(msgOptFailed))
	}
	fmt.Fprintf(p.Out, "\n%s %s (%s: %d", p.sprint(bold, "== %s ==", p.t(msgOptimization)), verdict, p.t(msgIterations), o.Iterations)
	if o.RegressionPassRate > 0 {
		fmt.Fprintf(p.Out, ", %s: %.1f%%", p.t(msgRegression), o.RegressionPassRate*100)
	}
	fmt.Fprint(p.Out, ")\n")
	if len(o.FixedCases) > 0 {
		fmt.Fprintf(p.Out, "%s: %s\n", p.t(msgFixedCases), strings.Join(o.FixedCases, ", "))
	}
	if o.ErrorMessage != "" {
		fmt.Fprintf(p.Out, "%s\n", o.ErrorMessage)
	}
}

func (p *Printer) printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(p.Out, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(p.Out, "  - %s\n", item)
	}
}

func (p *Printer) rateString(rate, goal float64) string {
	c := color.New(color.FgGreen)
	if rate < goal {
		c = color.New(color.FgYellow)
	}
	if rate < 0.5 {
		c = color.New(color.FgRed)
	}
	return p.sprint(c, "%.1f%%", rate*100)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SaveJSON writes the full report to path, creating parent directories.
func SaveJSON(r *evaluator.EvalReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("report: write %q: %w", path, err)
	}
	return nil
}
