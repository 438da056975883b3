package factor

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

// reportedToolCall is a tool invocation the agent reported in its output.
type reportedToolCall struct {
	Name   string
	Params map[string]any
}

// checkToolCalls verifies required tool calls and call-chain constraints
// against the tool_calls array in the agent's JSON output. Agents that do
// not report tool calls are not penalized: without evidence the checks
// stay silent and the LLM behavior verdict stands alone.
func checkToolCalls(expected *testcase.ExpectedCriteria, parsed any, jsonOK bool) []check {
	if len(expected.RequiredToolCalls) == 0 && expected.ToolCallConstraints == nil {
		return nil
	}

	calls, reported := extractToolCalls(parsed, jsonOK)
	if !reported {
		return nil
	}

	var checks []check

	if len(expected.RequiredToolCalls) > 0 {
		matched := 0
		used := make([]bool, len(calls))
		var missing []string
		for _, want := range expected.RequiredToolCalls {
			idx, reason := findToolCall(calls, used, want)
			if idx < 0 {
				missing = append(missing, fmt.Sprintf("%s (%s)", want.ToolName, reason))
				continue
			}
			used[idx] = true
			matched++
		}
		score := float64(matched) / float64(len(expected.RequiredToolCalls))
		reason := ""
		if len(missing) > 0 {
			reason = "missing tool calls: " + strings.Join(missing, ", ")
		}
		checks = append(checks, check{name: "required_tool_calls", score: score, reason: reason})
	}

	if c := expected.ToolCallConstraints; c != nil {
		checks = append(checks, checkConstraints(calls, c)...)
	}

	return checks
}

func checkConstraints(calls []reportedToolCall, c *testcase.ToolCallConstraints) []check {
	var out []check

	if len(c.ForbiddenTools) > 0 {
		var hit []string
		for _, call := range calls {
			for _, forbidden := range c.ForbiddenTools {
				if call.Name == forbidden {
					hit = append(hit, forbidden)
				}
			}
		}
		score, reason := 1.0, ""
		if len(hit) > 0 {
			score = 0.0
			reason = fmt.Sprintf("forbidden tools called: %v", hit)
		}
		out = append(out, check{name: "forbidden_tools", score: score, reason: reason})
	}

	if c.MaxCalls > 0 {
		score, reason := 1.0, ""
		if len(calls) > c.MaxCalls {
			score = 0.0
			reason = fmt.Sprintf("%d tool calls exceed limit %d", len(calls), c.MaxCalls)
		}
		out = append(out, check{name: "max_calls", score: score, reason: reason})
	}

	if len(c.RequiredSequence) > 0 {
		ok := matchSequence(calls, c.RequiredSequence, c.Ordered)
		score, reason := 1.0, ""
		if !ok {
			score = 0.0
			if c.Ordered {
				reason = fmt.Sprintf("tool calls do not follow sequence %v", c.RequiredSequence)
			} else {
				reason = fmt.Sprintf("tool calls missing from %v", c.RequiredSequence)
			}
		}
		out = append(out, check{name: "required_sequence", score: score, reason: reason})
	}

	return out
}

// matchSequence checks the required names appear, in order when ordered is
// set (as a subsequence of the actual chain).
func matchSequence(calls []reportedToolCall, seq []string, ordered bool) bool {
	if !ordered {
		for _, name := range seq {
			found := false
			for _, call := range calls {
				if call.Name == name {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}

	i := 0
	for _, call := range calls {
		if i < len(seq) && call.Name == seq[i] {
			i++
		}
	}
	return i == len(seq)
}

func findToolCall(calls []reportedToolCall, used []bool, want testcase.ToolCallAssertion) (int, string) {
	name := strings.TrimSpace(want.ToolName)
	if name == "" {
		return -1, "missing tool name"
	}

	firstMismatch := ""
	for i, call := range calls {
		if used[i] || call.Name != name {
			continue
		}
		ok, reason := paramsSubsetMatch(call.Params, want.RequiredParams)
		if ok {
			return i, ""
		}
		if firstMismatch == "" {
			firstMismatch = reason
		}
	}
	if firstMismatch != "" {
		return -1, firstMismatch
	}
	return -1, "not called"
}

func paramsSubsetMatch(got map[string]any, want map[string]any) (bool, string) {
	if len(want) == 0 {
		return true, ""
	}
	if got == nil {
		return false, "missing params"
	}
	for k, wantV := range want {
		gotV, ok := got[k]
		if !ok {
			return false, fmt.Sprintf("missing param %q", k)
		}
		if ok, reason := matchParamValue(gotV, wantV, fmt.Sprintf("param %q", k)); !ok {
			return false, reason
		}
	}
	return true, ""
}

func matchParamValue(got any, want any, path string) (bool, string) {
	if want == nil {
		if got == nil {
			return true, ""
		}
		return false, fmt.Sprintf("%s: got=%v want=nil", path, got)
	}

	if w, ok := want.(string); ok && strings.HasPrefix(w, "regex:") {
		pattern := strings.TrimPrefix(w, "regex:")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Sprintf("%s: invalid regex %q: %v", path, pattern, err)
		}
		s, ok := got.(string)
		if !ok {
			return false, fmt.Sprintf("%s: expected string to match regex %q, got %T", path, pattern, got)
		}
		if !re.MatchString(s) {
			return false, fmt.Sprintf("%s: regex %q did not match %q", path, pattern, s)
		}
		return true, ""
	}

	if gf, ok := toFloat64(got); ok {
		if wf, ok := toFloat64(want); ok {
			if gf == wf {
				return true, ""
			}
			return false, fmt.Sprintf("%s: got=%v want=%v", path, got, want)
		}
	}

	if wmap, ok := want.(map[string]any); ok {
		gmap, ok := got.(map[string]any)
		if !ok {
			return false, fmt.Sprintf("%s: expected object, got %T", path, got)
		}
		for k, wv := range wmap {
			gv, ok := gmap[k]
			if !ok {
				return false, fmt.Sprintf("%s.%s: missing", path, k)
			}
			if ok, reason := matchParamValue(gv, wv, path+"."+k); !ok {
				return false, reason
			}
		}
		return true, ""
	}

	if reflect.DeepEqual(got, want) || jsonEqual(got, want) {
		return true, ""
	}
	return false, fmt.Sprintf("%s: got=%v want=%v", path, got, want)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// extractToolCalls pulls the tool_calls array from the parsed output. The
// second return is false when the output carries no such array at all.
func extractToolCalls(parsed any, jsonOK bool) ([]reportedToolCall, bool) {
	if !jsonOK {
		return nil, false
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, false
	}
	rawCalls, ok := obj["tool_calls"].([]any)
	if !ok {
		return nil, false
	}

	out := make([]reportedToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		m, ok := rc.(map[string]any)
		if !ok {
			continue
		}
		call := reportedToolCall{}
		for _, key := range []string{"tool_name", "tool", "name"} {
			if s, ok := m[key].(string); ok && s != "" {
				call.Name = s
				break
			}
		}
		for _, key := range []string{"params", "arguments", "input"} {
			if p, ok := m[key].(map[string]any); ok {
				call.Params = p
				break
			}
		}
		if call.Name != "" {
			out = append(out, call)
		}
	}
	return out, true
}
