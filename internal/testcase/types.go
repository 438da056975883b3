package testcase

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Tier classifies the provenance rigor of a test case.
type Tier string

const (
	TierGold   Tier = "gold"   // manually vetted
	TierSilver Tier = "silver" // AI generated, spot-checked
)

// Source records where a test case came from.
type Source string

const (
	SourceManual     Source = "manual"
	SourceMutation   Source = "mutation"
	SourceProduction Source = "production"
)

// ReviewStatus tracks the review workflow state of a case.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// PathAssertion checks one value inside the parsed JSON output.
// Operators: eq, neq, in, contains, exists, regex.
type PathAssertion struct {
	Path     string `yaml:"path" json:"path"`
	Operator string `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value    any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// ToolCallAssertion describes a tool call the agent must have made.
type ToolCallAssertion struct {
	ToolName       string         `yaml:"tool_name" json:"tool_name"`
	RequiredParams map[string]any `yaml:"required_params,omitempty" json:"required_params,omitempty"`
}

// ToolCallConstraints bounds the shape of the agent's tool-call chain.
type ToolCallConstraints struct {
	Ordered          bool     `yaml:"ordered,omitempty" json:"ordered,omitempty"`
	RequiredSequence []string `yaml:"required_sequence,omitempty" json:"required_sequence,omitempty"`
	ForbiddenTools   []string `yaml:"forbidden_tools,omitempty" json:"forbidden_tools,omitempty"`
	MaxCalls         int      `yaml:"max_calls,omitempty" json:"max_calls,omitempty"`
}

// ExpectedCriteria bundles the ideal answer with optional deterministic
// overlay checks. Authors usually only set Output; everything else layers
// precise validation on top of the LLM judgment. When no field is set at
// all, evaluation degrades to a permissive pass.
type ExpectedCriteria struct {
	// Ideal answer, the primary judged artifact.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// Structure overlays.
	JSONSchema     map[string]any  `yaml:"json_schema,omitempty" json:"json_schema,omitempty"`
	SchemaFile     string          `yaml:"schema_file,omitempty" json:"schema_file,omitempty"`
	ExactJSON      map[string]any  `yaml:"exact_json,omitempty" json:"exact_json,omitempty"`
	PathAssertions []PathAssertion `yaml:"json_path_assertions,omitempty" json:"json_path_assertions,omitempty"`

	// Behavior overlays.
	Behavior            string               `yaml:"behavior,omitempty" json:"behavior,omitempty"`
	BehaviorHint        string               `yaml:"behavior_hint,omitempty" json:"behavior_hint,omitempty"`
	RequiredToolCalls   []ToolCallAssertion  `yaml:"required_tool_calls,omitempty" json:"required_tool_calls,omitempty"`
	ToolCallConstraints *ToolCallConstraints `yaml:"tool_call_constraints,omitempty" json:"tool_call_constraints,omitempty"`

	// Content overlays.
	Contains         []string `yaml:"contains,omitempty" json:"contains,omitempty"`
	NotContains      []string `yaml:"not_contains,omitempty" json:"not_contains,omitempty"`
	SemanticCriteria []string `yaml:"semantic_criteria,omitempty" json:"semantic_criteria,omitempty"`

	// Custom validator name, resolved from the validator registry.
	Validator string `yaml:"validator,omitempty" json:"validator,omitempty"`
}

// Empty reports whether no criteria at all were configured.
func (e *ExpectedCriteria) Empty() bool {
	if e == nil {
		return true
	}
	return e.Output == "" &&
		len(e.JSONSchema) == 0 &&
		e.SchemaFile == "" &&
		e.ExactJSON == nil &&
		len(e.PathAssertions) == 0 &&
		e.Behavior == "" &&
		len(e.RequiredToolCalls) == 0 &&
		e.ToolCallConstraints == nil &&
		len(e.Contains) == 0 &&
		len(e.NotContains) == 0 &&
		len(e.SemanticCriteria) == 0 &&
		e.Validator == ""
}

// Input is either a plain query string or a structured query with context.
type Input struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context,omitempty"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (in *Input) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("input: nil node")
	}
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&in.Query)
	}

	var aux struct {
		Query   string         `yaml:"query"`
		Context map[string]any `yaml:"context"`
	}
	if err := value.Decode(&aux); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	in.Query = aux.Query
	in.Context = aux.Context
	return nil
}

// MarshalYAML writes the scalar form when there is no context.
func (in Input) MarshalYAML() (any, error) {
	if len(in.Context) == 0 {
		return in.Query, nil
	}
	return map[string]any{"query": in.Query, "context": in.Context}, nil
}

// TestCase is a single evaluation scenario. Authors give an input and an
// ideal answer; the harness judges the rest.
type TestCase struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`

	Input Input `yaml:"input" json:"input"`

	// ExpectedOutput mirrors Expected.Output; whichever is set populates
	// the other on load.
	ExpectedOutput string           `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`
	Expected       ExpectedCriteria `yaml:"expected,omitempty" json:"expected,omitempty"`

	Tags       []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	JudgeHints string   `yaml:"judge_hints,omitempty" json:"judge_hints,omitempty"`

	Source           Source       `yaml:"source,omitempty" json:"source,omitempty"`
	ParentID         string       `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`
	MutationStrategy string       `yaml:"mutation_strategy,omitempty" json:"mutation_strategy,omitempty"`
	ReviewStatus     ReviewStatus `yaml:"review_status,omitempty" json:"review_status,omitempty"`
	Tier             Tier         `yaml:"tier,omitempty" json:"tier,omitempty"`

	// Original failing response for production imports.
	BadOutput string `yaml:"bad_output,omitempty" json:"bad_output,omitempty"`
}

// Normalize applies defaults and the expected-output sync invariant.
// It is idempotent.
func (c *TestCase) Normalize() {
	if c == nil {
		return
	}
	if c.Source == "" {
		c.Source = SourceManual
	}
	if c.ReviewStatus == "" {
		c.ReviewStatus = ReviewApproved
	}
	if c.Tier == "" {
		c.Tier = TierGold
	}
	if c.ExpectedOutput != "" && c.Expected.Output == "" {
		c.Expected.Output = c.ExpectedOutput
	} else if c.Expected.Output != "" && c.ExpectedOutput == "" {
		c.ExpectedOutput = c.Expected.Output
	}
}

// HasTag reports whether the case carries the given tag.
func (c *TestCase) HasTag(tag string) bool {
	if c == nil {
		return false
	}
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TestSuite groups cases in one YAML file.
type TestSuite struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Context     map[string]any `yaml:"context,omitempty" json:"context,omitempty"`
	Tier        Tier           `yaml:"tier,omitempty" json:"tier,omitempty"`
	Cases       []TestCase     `yaml:"cases" json:"cases"`
}
