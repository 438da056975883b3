package factor

import (
	"context"

	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

// Result is the scored outcome of one factor dimension.
type Result struct {
	Factor  string         `json:"factor"`
	Score   float64        `json:"score"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Factor produces zero or more dimension results for a case.
type Factor interface {
	ID() string

	// Triggered reports whether the case's criteria activate this factor.
	Triggered(c *testcase.TestCase) bool

	Evaluate(ctx context.Context, c *testcase.TestCase, output string) ([]Result, error)
}

// A check is one deterministic verification layered onto a dimension.
type check struct {
	name   string
	score  float64
	reason string
}
