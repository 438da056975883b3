package factor

import (
	"fmt"
	"strings"

	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

// runChecks evaluates the case's deterministic criteria, grouped by the
// dimension they belong to.
func (f *CoreJudgeFactor) runChecks(c *testcase.TestCase, output string) map[string][]check {
	expected := &c.Expected
	checks := make(map[string][]check)

	// content
	var content []check
	if len(expected.Contains) > 0 {
		found := 0
		var missing []string
		for _, kw := range expected.Contains {
			if strings.Contains(output, kw) {
				found++
			} else {
				missing = append(missing, kw)
			}
		}
		score := float64(found) / float64(len(expected.Contains))
		reason := ""
		if len(missing) > 0 {
			reason = fmt.Sprintf("missing keywords: %v", missing)
		}
		content = append(content, check{name: "contains", score: score, reason: reason})
	}
	if len(expected.NotContains) > 0 {
		var violations []string
		for _, kw := range expected.NotContains {
			if strings.Contains(output, kw) {
				violations = append(violations, kw)
			}
		}
		score, reason := 1.0, ""
		if len(violations) > 0 {
			score = 0.0
			reason = fmt.Sprintf("contains forbidden terms: %v", violations)
		}
		content = append(content, check{name: "not_contains", score: score, reason: reason})
	}
	if len(content) > 0 {
		checks["content"] = content
	}

	// structure
	raw, parsed, jsonOK := extractJSON(output)

	var structure []check
	schema, schemaErr := f.resolveSchema(expected)
	if schemaErr != nil {
		structure = append(structure, check{name: "json_schema", score: 0.0, reason: schemaErr.Error()})
	} else if schema != nil && jsonOK {
		score, reason := 1.0, ""
		if err := validateJSONSchema(parsed, schema, "$"); err != nil {
			score = 0.0
			reason = err.Error()
		}
		structure = append(structure, check{name: "json_schema", score: score, reason: reason})
	}
	if expected.ExactJSON != nil {
		if !jsonOK {
			structure = append(structure, check{name: "exact_json", score: 0.0, reason: "output is not valid JSON"})
		} else {
			score, reason := 1.0, ""
			if !jsonEqual(parsed, expected.ExactJSON) {
				score = 0.0
				reason = "JSON does not match exactly"
			}
			structure = append(structure, check{name: "exact_json", score: score, reason: reason})
		}
	}
	if len(expected.PathAssertions) > 0 && jsonOK {
		for _, a := range expected.PathAssertions {
			ok, reason := checkPathAssertion(raw, a)
			score := 0.0
			if ok {
				score = 1.0
			}
			structure = append(structure, check{
				name:   "jsonpath:" + a.Path,
				score:  score,
				reason: reason,
			})
		}
	}
	if len(structure) > 0 {
		checks["structure"] = structure
	}

	// behavior
	behavior := checkToolCalls(expected, parsed, jsonOK)
	if len(behavior) > 0 {
		checks["behavior"] = behavior
	}

	return checks
}
