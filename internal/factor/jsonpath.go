package factor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

// checkPathAssertion evaluates one assertion against the raw JSON output.
// Paths use the familiar $.a.b[0] form and are translated to gjson syntax.
func checkPathAssertion(rawJSON string, a testcase.PathAssertion) (bool, string) {
	res := gjson.Get(rawJSON, toGJSONPath(a.Path))

	op := a.Operator
	if op == "" {
		op = "eq"
	}

	if op == "exists" {
		if res.Exists() {
			return true, ""
		}
		return false, fmt.Sprintf("path %s does not exist", a.Path)
	}

	if !res.Exists() {
		return false, fmt.Sprintf("no value at path %s", a.Path)
	}

	actual := res.Value()
	switch op {
	case "eq":
		if jsonEqual(actual, a.Value) {
			return true, ""
		}
	case "neq":
		if !jsonEqual(actual, a.Value) {
			return true, ""
		}
	case "in":
		options, ok := a.Value.([]any)
		if !ok {
			return false, fmt.Sprintf("path %s: in operator needs a list value", a.Path)
		}
		for _, opt := range options {
			if jsonEqual(actual, opt) {
				return true, ""
			}
		}
	case "contains":
		if strings.Contains(res.String(), fmt.Sprint(a.Value)) {
			return true, ""
		}
	case "regex":
		re, err := regexp.Compile(fmt.Sprint(a.Value))
		if err != nil {
			return false, fmt.Sprintf("path %s: invalid regex: %v", a.Path, err)
		}
		if re.MatchString(res.String()) {
			return true, ""
		}
	default:
		return false, fmt.Sprintf("unsupported operator: %s", op)
	}

	return false, fmt.Sprintf("expected %s %v, got %v", op, a.Value, actual)
}

// toGJSONPath converts $.a.b[0].c to gjson's a.b.0.c form.
func toGJSONPath(path string) string {
	p := strings.TrimSpace(path)
	p = strings.TrimPrefix(p, "$")
	p = strings.TrimPrefix(p, ".")
	p = strings.ReplaceAll(p, "[", ".")
	p = strings.ReplaceAll(p, "]", "")
	return p
}
