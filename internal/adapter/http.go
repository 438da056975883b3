package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPAdapter posts queries to an agent HTTP endpoint. The request body is
// {"input": ..., "context": ...}; the response is either plain text or a
// JSON object whose "output" field carries the answer.
type HTTPAdapter struct {
	URL     string
	Headers map[string]string
	Path    string // instruction file, optional
	Client  *http.Client
}

func (a *HTTPAdapter) Invoke(ctx context.Context, input string, contextData map[string]any) (string, error) {
	if a == nil || strings.TrimSpace(a.URL) == "" {
		return "", errors.New("adapter: missing url")
	}

	payload, err := json.Marshal(map[string]any{
		"input":   input,
		"context": contextData,
	})
	if err != nil {
		return "", fmt.Errorf("adapter: encode input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("adapter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("adapter: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("adapter: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("adapter: agent returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out struct {
		Output string `json:"output"`
	}
	if json.Unmarshal(body, &out) == nil && out.Output != "" {
		return out.Output, nil
	}
	return strings.TrimSpace(string(body)), nil
}

func (a *HTTPAdapter) PromptFile() string {
	if a == nil {
		return ""
	}
	return a.Path
}

func (a *HTTPAdapter) UpdatePrompt(content string) error {
	return writePromptFile(a.PromptFile(), content)
}
