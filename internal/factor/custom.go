package factor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

// ValidatorResult is what a custom validator reports for one case.
type ValidatorResult struct {
	Score   float64
	Reason  string
	Details map[string]any
}

// Validator is a user-supplied check over the agent output.
type Validator func(query, output string, expected *testcase.ExpectedCriteria) (*ValidatorResult, error)

// Validators maps registered validator names to functions.
type Validators struct {
	mu    sync.RWMutex
	funcs map[string]Validator
}

func NewValidators() *Validators {
	return &Validators{funcs: make(map[string]Validator)}
}

func (v *Validators) Register(name string, fn Validator) {
	if v == nil || fn == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.funcs == nil {
		v.funcs = make(map[string]Validator)
	}
	v.funcs[name] = fn
}

func (v *Validators) Get(name string) (Validator, bool) {
	if v == nil {
		return nil, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	fn, ok := v.funcs[strings.TrimSpace(name)]
	return fn, ok
}

// CustomFactor runs a registered validator named by the case. Validator
// failures score zero rather than erroring out of the evaluation.
type CustomFactor struct {
	Registry *Validators
}

func (f *CustomFactor) ID() string {
	return "custom"
}

func (f *CustomFactor) Triggered(c *testcase.TestCase) bool {
	return c != nil && c.Expected.Validator != ""
}

func (f *CustomFactor) Evaluate(ctx context.Context, c *testcase.TestCase, output string) ([]Result, error) {
	if c == nil {
		return nil, fmt.Errorf("factor: nil case")
	}
	name := strings.TrimSpace(c.Expected.Validator)
	if name == "" {
		return []Result{{Factor: "custom", Score: 1.0, Reason: "no custom validation"}}, nil
	}

	fn, ok := f.Registry.Get(name)
	if !ok {
		return []Result{{
			Factor: "custom",
			Score:  0.0,
			Reason: fmt.Sprintf("validator error: %q not registered", name),
		}}, nil
	}

	res, err := fn(c.Input.Query, output, &c.Expected)
	if err != nil {
		return []Result{{
			Factor: "custom",
			Score:  0.0,
			Reason: fmt.Sprintf("validator error: %v", err),
		}}, nil
	}
	if res == nil {
		return []Result{{Factor: "custom", Score: 1.0}}, nil
	}

	reason := res.Reason
	if reason == "" && res.Score < 1.0 {
		reason = "custom validation failed"
	}
	return []Result{{
		Factor:  "custom",
		Score:   res.Score,
		Reason:  reason,
		Details: res.Details,
	}}, nil
}
