package ci

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/stellarlinkco/agent-evo/internal/evaluator"
)

// PublishGate emits the release gate verdict for a finished run: step
// outputs for downstream workflow jobs, one error annotation per
// blocking tag, and a markdown job summary.
func (r *Reporter) PublishGate(rep *evaluator.EvalReport) error {
	r.SetOutput("total", strconv.Itoa(rep.Total))
	r.SetOutput("pass_rate", fmt.Sprintf("%.4f", rep.PassRate))
	r.SetOutput("release_blocked", strconv.FormatBool(rep.ReleaseBlocked))
	r.SetOutput("blocking_tags", strings.Join(rep.BlockingTags, ","))

	for _, tag := range rep.BlockingTags {
		stats := rep.StatsByTag[tag]
		r.Annotate("error", fmt.Sprintf(
			"release gate: tag %q pass rate %.1f%% is below required %.1f%% (%d/%d passed)",
			tag, stats.PassRate*100, stats.Threshold*100, stats.Passed, stats.Total))
	}

	return r.JobSummary(GateSummary(rep))
}

// GateSummary renders the gate verdict as job-summary markdown.
func GateSummary(rep *evaluator.EvalReport) string {
	var b strings.Builder

	if rep.ReleaseBlocked {
		b.WriteString("## :no_entry: Release blocked\n\n")
	} else {
		b.WriteString("## :white_check_mark: Release gate passed\n\n")
	}
	fmt.Fprintf(&b, "%d/%d cases passed (%.1f%%)", rep.Passed, rep.Total, rep.PassRate*100)
	if rep.Errors > 0 {
		fmt.Fprintf(&b, ", %d execution errors", rep.Errors)
	}
	b.WriteString("\n")

	if len(rep.StatsByTag) == 0 {
		return b.String()
	}

	b.WriteString("\n| Tag | Passed | Pass rate | Required | Gate |\n")
	b.WriteString("|-----|--------|-----------|----------|------|\n")

	tags := make([]string, 0, len(rep.StatsByTag))
	for tag := range rep.StatsByTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		stats := rep.StatsByTag[tag]
		required, gate := "-", "-"
		if stats.MeetsThreshold != nil {
			required = fmt.Sprintf("%.1f%%", stats.Threshold*100)
			if *stats.MeetsThreshold {
				gate = "ok"
			} else {
				gate = "**blocked**"
			}
		}
		fmt.Fprintf(&b, "| %s | %d/%d | %.1f%% | %s | %s |\n",
			tag, stats.Passed, stats.Total, stats.PassRate*100, required, gate)
	}
	return b.String()
}
