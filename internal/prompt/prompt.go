// Package prompt resolves the LLM prompt templates used by the
// harness. Built-in templates can be overridden by dropping a markdown
// file with the template's name into the prompts directory.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Library resolves prompt templates against an override directory.
type Library struct {
	Dir string
}

func NewLibrary(dir string) *Library {
	return &Library{Dir: dir}
}

// Override returns the user-supplied template for name, looking for
// <dir>/<name>.md. The second return is false when no override exists.
func (l *Library) Override(name string) (string, bool) {
	if l == nil || l.Dir == "" || strings.TrimSpace(name) == "" {
		return "", false
	}
	b, err := os.ReadFile(filepath.Join(l.Dir, name+".md"))
	if err != nil || len(strings.TrimSpace(string(b))) == 0 {
		return "", false
	}
	return string(b), true
}

// Resolve returns the override for name when present, else fallback.
func (l *Library) Resolve(name, fallback string) string {
	if s, ok := l.Override(name); ok {
		return s
	}
	return fallback
}

var varPattern = regexp.MustCompile(`\{\{([A-Z][A-Z0-9_]*)\}\}`)

// Render substitutes {{VAR_NAME}} placeholders. Unknown placeholders
// are left as-is so a malformed override degrades visibly instead of
// silently dropping content.
func Render(template string, vars map[string]any) string {
	return varPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(m, "{{"), "}}")
		if v, ok := vars[name]; ok {
			return fmt.Sprintf("%v", v)
		}
		return m
	})
}
