package factor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")

// extractJSON parses the agent output as JSON, falling back to the first
// fenced code block when the raw text does not parse.
func extractJSON(output string) (raw string, value any, ok bool) {
	s := strings.TrimSpace(output)
	if json.Unmarshal([]byte(s), &value) == nil {
		return s, value, true
	}
	if m := fencedJSONRe.FindStringSubmatch(output); m != nil {
		inner := strings.TrimSpace(m[1])
		if json.Unmarshal([]byte(inner), &value) == nil {
			return inner, value, true
		}
	}
	return "", nil, false
}

// jsonEqual compares two values after JSON round-tripping, so numeric types
// from YAML and JSON decoding compare by value.
func jsonEqual(a, b any) bool {
	an, err := jsonNormalize(a)
	if err != nil {
		return false
	}
	bn, err := jsonNormalize(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(an, bn)
}

func jsonNormalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveSchema returns the inline schema or loads schema_file, which may be
// JSON or YAML. Inline wins when both are set.
func (f *CoreJudgeFactor) resolveSchema(expected *testcase.ExpectedCriteria) (map[string]any, error) {
	if len(expected.JSONSchema) > 0 {
		return expected.JSONSchema, nil
	}
	if expected.SchemaFile == "" {
		return nil, nil
	}

	path := expected.SchemaFile
	if !filepath.IsAbs(path) && f.BaseDir != "" {
		path = filepath.Join(f.BaseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema file: %v", err)
	}

	var schema map[string]any
	if jerr := json.Unmarshal(data, &schema); jerr != nil {
		if yerr := yaml.Unmarshal(data, &schema); yerr != nil {
			return nil, fmt.Errorf("schema file %s: not valid JSON or YAML", expected.SchemaFile)
		}
	}
	return schema, nil
}
