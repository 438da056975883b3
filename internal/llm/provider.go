package llm

import "context"

// Provider is a text-completion backend. The harness uses completions for
// judging, aggregation, prompt optimization, mutation, and import refinement;
// agent execution goes through adapters, not providers.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	System      string
	MaxTokens   int
	Temperature float64

	// JSONResponse asks the backend for a JSON object response where the
	// API supports it. Callers still run ParseJSON on the result.
	JSONResponse bool
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ContentBlock struct {
	Type string `json:"type"` // "text"
	Text string `json:"text,omitempty"`
}

type Response struct {
	Content    []ContentBlock
	Usage      Usage
	StopReason string
}
