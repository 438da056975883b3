package testcase

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

var validOperators = map[string]bool{
	"":         true, // defaults to eq
	"eq":       true,
	"neq":      true,
	"in":       true,
	"contains": true,
	"exists":   true,
	"regex":    true,
}

// LoadFile reads one suite file. A file may hold either a full suite
// document or a bare list of cases.
func LoadFile(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testcase: read %s: %w", path, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil || len(suite.Cases) == 0 {
		var cases []TestCase
		if lerr := yaml.Unmarshal(data, &cases); lerr == nil && len(cases) > 0 {
			suite = TestSuite{Name: baseName(path), Cases: cases}
		} else if err != nil {
			return nil, fmt.Errorf("testcase: parse %s: %w", path, err)
		}
	}
	if suite.Name == "" {
		suite.Name = baseName(path)
	}

	applySuiteTier(data, &suite)
	for i := range suite.Cases {
		suite.Cases[i].Normalize()
	}

	if err := Validate(suite.Cases); err != nil {
		return nil, fmt.Errorf("testcase: %s: %w", path, err)
	}
	return &suite, nil
}

// applySuiteTier re-reads raw case tiers so a suite-level tier can fill in
// cases that omitted their own.
func applySuiteTier(data []byte, suite *TestSuite) {
	if suite.Tier == "" {
		return
	}
	var raw struct {
		Cases []struct {
			Tier Tier `yaml:"tier"`
		} `yaml:"cases"`
	}
	if yaml.Unmarshal(data, &raw) != nil || len(raw.Cases) != len(suite.Cases) {
		return
	}
	for i := range suite.Cases {
		if raw.Cases[i].Tier == "" {
			suite.Cases[i].Tier = suite.Tier
		}
	}
}

func baseName(path string) string {
	b := filepath.Base(path)
	return b[:len(b)-len(filepath.Ext(b))]
}

// LoadGlob loads every suite matching the pattern, sorted by path.
func LoadGlob(pattern string) ([]*TestSuite, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("testcase: glob %s: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("testcase: no files match %s", pattern)
	}
	sort.Strings(paths)

	suites := make([]*TestSuite, 0, len(paths))
	seen := map[string]string{}
	for _, p := range paths {
		s, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		for _, c := range s.Cases {
			if prev, ok := seen[c.ID]; ok {
				return nil, fmt.Errorf("testcase: duplicate case id %q in %s (first seen in %s)", c.ID, p, prev)
			}
			seen[c.ID] = p
		}
		suites = append(suites, s)
	}
	return suites, nil
}

// Filter keeps cases that carry at least one of the tags (when tags is
// non-empty) and match the tier (when tier is set). Rejected cases are
// always excluded from evaluation runs.
func Filter(cases []TestCase, tags []string, tier Tier) []TestCase {
	out := make([]TestCase, 0, len(cases))
	for _, c := range cases {
		if c.ReviewStatus == ReviewRejected {
			continue
		}
		if tier != "" && c.Tier != tier {
			continue
		}
		if len(tags) > 0 {
			matched := false
			for _, t := range tags {
				if c.HasTag(t) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// Flatten concatenates all suite cases preserving order.
func Flatten(suites []*TestSuite) []TestCase {
	var out []TestCase
	for _, s := range suites {
		out = append(out, s.Cases...)
	}
	return out
}

// Validate checks structural invariants across a case set.
func Validate(cases []TestCase) error {
	seen := map[string]bool{}
	for i := range cases {
		c := &cases[i]
		if c.ID == "" {
			return fmt.Errorf("case %d (%q): missing id", i, c.Name)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate case id %q", c.ID)
		}
		seen[c.ID] = true
		if c.Input.Query == "" {
			return fmt.Errorf("case %s: missing input query", c.ID)
		}
		if c.ExpectedOutput != c.Expected.Output {
			return fmt.Errorf("case %s: expected_output and expected.output diverge", c.ID)
		}
		switch c.Source {
		case SourceManual, SourceMutation, SourceProduction:
		default:
			return fmt.Errorf("case %s: unknown source %q", c.ID, c.Source)
		}
		switch c.Tier {
		case TierGold, TierSilver:
		default:
			return fmt.Errorf("case %s: unknown tier %q", c.ID, c.Tier)
		}
		for _, a := range c.Expected.PathAssertions {
			if a.Path == "" {
				return fmt.Errorf("case %s: path assertion missing path", c.ID)
			}
			if !validOperators[a.Operator] {
				return fmt.Errorf("case %s: unknown path operator %q", c.ID, a.Operator)
			}
		}
	}
	return nil
}
