// Package ci publishes release gate results as GitHub Actions outputs,
// annotations, and job summaries.
package ci

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Detect returns true if running in GitHub Actions.
func Detect() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GITHUB_ACTIONS")), "true")
}

// Reporter emits GitHub Actions workflow commands.
type Reporter struct {
	// Out receives workflow commands. Defaults to os.Stdout.
	Out io.Writer
}

func (r *Reporter) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stdout
}

// SetOutput sets a step output variable. When GITHUB_OUTPUT points at a
// file the heredoc form is appended there, otherwise the legacy
// set-output command is written to Out.
func (r *Reporter) SetOutput(name, value string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if path := strings.TrimSpace(os.Getenv("GITHUB_OUTPUT")); path != "" {
		_ = appendCommandFile(path, fmt.Sprintf("%s<<EOF\n%s\nEOF\n", name, value))
		return
	}
	fmt.Fprintf(r.out(), "::set-output name=%s::%s\n", name, escapeCommandValue(value))
}

// Annotate adds an annotation (error, warning, notice) to the workflow log.
func (r *Reporter) Annotate(level, message string) {
	lvl := strings.ToLower(strings.TrimSpace(level))
	switch lvl {
	case "error", "warning", "notice":
	default:
		lvl = "notice"
	}
	fmt.Fprintf(r.out(), "::%s::%s\n", lvl, escapeCommandValue(message))
}

// Group runs fn inside a collapsible log group.
func (r *Reporter) Group(name string, fn func()) {
	fmt.Fprintf(r.out(), "::group::%s\n", escapeCommandValue(name))
	fn()
	fmt.Fprintln(r.out(), "::endgroup::")
}

// JobSummary appends markdown to the job summary when
// GITHUB_STEP_SUMMARY is set, and is a no-op otherwise.
func (r *Reporter) JobSummary(markdown string) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_STEP_SUMMARY"))
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if !strings.HasSuffix(markdown, "\n") {
		markdown += "\n"
	}
	return appendCommandFile(path, markdown)
}

func appendCommandFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

func escapeCommandValue(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}
