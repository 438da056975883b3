package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandAdapter shells out to an agent CLI. The query is written to stdin
// as a JSON document {"input": ..., "context": ...} and stdout is the
// agent's answer.
type CommandAdapter struct {
	Command []string
	Path    string // instruction file, optional
	Env     []string
}

func (a *CommandAdapter) Invoke(ctx context.Context, input string, contextData map[string]any) (string, error) {
	if a == nil || len(a.Command) == 0 {
		return "", errors.New("adapter: empty command")
	}

	payload, err := json.Marshal(map[string]any{
		"input":   input,
		"context": contextData,
	})
	if err != nil {
		return "", fmt.Errorf("adapter: encode input: %w", err)
	}

	cmd := exec.CommandContext(ctx, a.Command[0], a.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	if len(a.Env) > 0 {
		cmd.Env = append(cmd.Environ(), a.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("adapter: %s: %s", a.Command[0], msg)
		}
		return "", fmt.Errorf("adapter: %s: %w", a.Command[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (a *CommandAdapter) PromptFile() string {
	if a == nil {
		return ""
	}
	return a.Path
}

func (a *CommandAdapter) UpdatePrompt(content string) error {
	return writePromptFile(a.PromptFile(), content)
}
