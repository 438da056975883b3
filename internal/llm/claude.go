package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/stellarlinkco/agent-evo/internal/claude"
)

type ClaudeProvider struct {
	client *claude.Client
}

func NewClaudeProvider(apiKey string, baseURL string, model string) *ClaudeProvider {
	opts := make([]claude.Option, 0, 2)
	if v := strings.TrimSpace(baseURL); v != "" {
		opts = append(opts, claude.WithBaseURL(v))
	}
	if v := strings.TrimSpace(model); v != "" {
		opts = append(opts, claude.WithModel(v))
	}
	return &ClaudeProvider{
		client: claude.NewClient(strings.TrimSpace(apiKey), opts...),
	}
}

func (p *ClaudeProvider) Name() string {
	return "claude"
}

func (p *ClaudeProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("llm: claude: nil client")
	}
	if req == nil {
		return nil, errors.New("llm: claude: nil request")
	}

	msgs := make([]claude.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			role = "user"
		}
		msgs = append(msgs, claude.Message{Role: role, Content: m.Content})
	}

	system := req.System
	// The messages API has no JSON response mode; lean on the prompt.
	if req.JSONResponse {
		const jsonHint = "Respond with a single JSON object and nothing else."
		if system == "" {
			system = jsonHint
		} else if !strings.Contains(system, jsonHint) {
			system = system + "\n\n" + jsonHint
		}
	}

	resp, err := p.client.Complete(ctx, &claude.Request{
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		System:      system,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return fromClaudeResponse(resp), nil
}

func fromClaudeResponse(resp *claude.Response) *Response {
	if resp == nil {
		return nil
	}

	out := &Response{
		StopReason: resp.StopReason,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	for _, b := range resp.Content {
		if b.Type == "text" {
			out.Content = append(out.Content, ContentBlock{Type: "text", Text: b.Text})
		}
	}
	return out
}
