// Package adapter connects the harness to the agent under evaluation.
// An adapter knows how to invoke the agent and where its instruction
// prompt lives so the optimizer can rewrite it.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Agent is the surface the harness needs from an agent under test.
type Agent interface {
	// Invoke runs one query through the agent and returns its raw output.
	Invoke(ctx context.Context, input string, contextData map[string]any) (string, error)

	// PromptFile returns the path of the agent's instruction file, or ""
	// when the agent does not expose one.
	PromptFile() string

	// UpdatePrompt replaces the agent's instructions.
	UpdatePrompt(content string) error
}

// InvokeFunc adapts a plain function into an Agent.
type InvokeFunc func(ctx context.Context, input string, contextData map[string]any) (string, error)

// FuncAdapter wraps an in-process agent entry point.
type FuncAdapter struct {
	Func InvokeFunc
	Path string // instruction file, optional
}

func (a *FuncAdapter) Invoke(ctx context.Context, input string, contextData map[string]any) (string, error) {
	if a == nil || a.Func == nil {
		return "", errors.New("adapter: nil func")
	}
	return a.Func(ctx, input, contextData)
}

func (a *FuncAdapter) PromptFile() string {
	if a == nil {
		return ""
	}
	return a.Path
}

func (a *FuncAdapter) UpdatePrompt(content string) error {
	return writePromptFile(a.PromptFile(), content)
}

func writePromptFile(path, content string) error {
	if path == "" {
		return errors.New("adapter: no prompt file configured")
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("adapter: write prompt: %w", err)
	}
	return nil
}

// ReadPrompt loads the agent's current instructions.
func ReadPrompt(a Agent) (string, error) {
	if a == nil {
		return "", errors.New("adapter: nil agent")
	}
	path := a.PromptFile()
	if path == "" {
		return "", errors.New("adapter: no prompt file configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("adapter: read prompt: %w", err)
	}
	return string(data), nil
}
