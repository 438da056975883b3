// Package generator executes test cases against the agent under
// evaluation, fanning out over a bounded worker pool.
package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stellarlinkco/agent-evo/internal/adapter"
	"github.com/stellarlinkco/agent-evo/internal/testcase"
)

const defaultConcurrency = 5

// Result pairs a case with the agent's raw output or execution error.
type Result struct {
	Case            testcase.TestCase
	Output          string
	Error           string
	ExecutionTimeMs int64
}

// Generator drives the agent adapter over a case set.
type Generator struct {
	agent adapter.Agent

	// Timeout bounds a single agent invocation. Zero means no limit.
	Timeout time.Duration

	sem chan struct{}
}

// New creates a Generator with the given concurrency limit (<=0 uses the
// default of 5).
func New(agent adapter.Agent, concurrency int) *Generator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Generator{
		agent: agent,
		sem:   make(chan struct{}, concurrency),
	}
}

// RunCase executes one case. Agent errors are captured in the Result, not
// returned: a crashing agent is an evaluation outcome.
func (g *Generator) RunCase(ctx context.Context, c *testcase.TestCase) (*Result, error) {
	if g == nil || g.agent == nil {
		return nil, errors.New("generator: nil agent")
	}
	if ctx == nil {
		return nil, errors.New("generator: nil context")
	}
	if c == nil {
		return nil, errors.New("generator: nil test case")
	}

	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()

	out := &Result{Case: *c}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	start := time.Now()
	output, err := g.invoke(ctx, c)
	out.ExecutionTimeMs = time.Since(start).Milliseconds()
	out.Output = output
	if err != nil {
		out.Error = err.Error()
	}
	return out, nil
}

// invoke shields the batch from a misbehaving agent: a panic inside the
// adapter becomes an agent error for this case only.
func (g *Generator) invoke(ctx context.Context, c *testcase.TestCase) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panic: %v", r)
		}
	}()
	return g.agent.Invoke(ctx, c.Input.Query, c.Input.Context)
}

// RunAll executes every case concurrently, preserving input order in the
// returned slice.
func (g *Generator) RunAll(ctx context.Context, cases []testcase.TestCase) ([]Result, error) {
	if g == nil || g.agent == nil {
		return nil, errors.New("generator: nil agent")
	}
	if ctx == nil {
		return nil, errors.New("generator: nil context")
	}

	results := make([]Result, len(cases))

	var wg sync.WaitGroup
caseLoop:
	for i := range cases {
		select {
		case <-ctx.Done():
			err := ctx.Err()
			for j := i; j < len(cases); j++ {
				results[j] = Result{Case: cases[j], Error: err.Error()}
			}
			break caseLoop
		default:
		}

		idx := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			c := cases[idx]
			res, err := g.RunCase(ctx, &c)
			if err != nil {
				results[idx] = Result{Case: c, Error: err.Error()}
				return
			}
			results[idx] = *res
		}()
	}
	wg.Wait()

	return results, nil
}

func (g *Generator) acquire(ctx context.Context) error {
	if g.sem == nil {
		return errors.New("generator: nil semaphore")
	}
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Generator) release() {
	<-g.sem
}
