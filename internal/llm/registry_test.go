package llm

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/stellarlinkco/agent-evo/internal/config"
)

type fakeProvider string

func (p fakeProvider) Name() string { return string(p) }
func (p fakeProvider) Complete(context.Context, *Request) (*Response, error) {
	return &Response{}, nil
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	var nilReg *Registry
	nilReg.Register(fakeProvider("claude"))
	if _, ok := nilReg.Get("claude"); ok {
		t.Fatalf("nil registry: unexpected hit")
	}

	r := &Registry{}
	r.Register(nil)
	r.Register(fakeProvider("  "))
	if names := r.Names(); names != nil {
		t.Fatalf("Names after no-op registers = %v", names)
	}

	r.Register(fakeProvider("Claude"))
	r.Register(fakeProvider("openai"))

	if _, ok := r.Get("CLAUDE"); !ok {
		t.Fatalf("Get is not case-insensitive")
	}
	if _, ok := r.Get("anthropic"); !ok {
		t.Fatalf("Get(anthropic) should alias claude")
	}
	if _, ok := r.Get(""); ok {
		t.Fatalf("Get(empty): unexpected hit")
	}
	if got, want := r.Names(), []string{"claude", "openai"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
}

func TestRegistryDefault(t *testing.T) {
	t.Parallel()

	r := &Registry{}
	r.Register(fakeProvider("openai"))

	// A lone provider wins even when the requested name does not match.
	p, err := r.Default("claude")
	if err != nil {
		t.Fatalf("Default(lone provider): %v", err)
	}
	if p.Name() != "openai" {
		t.Fatalf("Default = %q, want openai", p.Name())
	}

	r.Register(fakeProvider("claude"))
	p, err = r.Default("")
	if err != nil {
		t.Fatalf("Default(empty name): %v", err)
	}
	if p.Name() != "claude" {
		t.Fatalf("Default(empty name) = %q, want claude", p.Name())
	}

	_, err = r.Default("gemini")
	if err == nil || !strings.Contains(err.Error(), "available: claude, openai") {
		t.Fatalf("Default(unknown): err = %v", err)
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistryFromConfig(nil); err == nil {
		t.Fatalf("nil config: expected error")
	}

	_, err := NewRegistryFromConfig(&config.Config{
		LLM: config.LLMConfig{
			Providers: map[string]config.ProviderConfig{"gemini": {APIKey: "k"}},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("unknown provider: err = %v", err)
	}

	reg, err := NewRegistryFromConfig(&config.Config{
		LLM: config.LLMConfig{
			Providers: map[string]config.ProviderConfig{
				"  ":        {},
				"Anthropic": {APIKey: "k1"},
				"openai":    {APIKey: "k2", BaseURL: "http://example.test/v1", Model: "gpt-4o"},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}
	if got, want := reg.Names(), []string{"claude", "openai"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
}

func TestDefaultProviderFromConfig(t *testing.T) {
	t.Parallel()

	if _, err := DefaultProviderFromConfig(nil); err == nil {
		t.Fatalf("nil config: expected error")
	}

	p, err := DefaultProviderFromConfig(&config.Config{
		LLM: config.LLMConfig{
			DefaultProvider: "openai",
			Providers: map[string]config.ProviderConfig{
				"openai": {APIKey: "k1"},
				"claude": {APIKey: "k2"},
			},
		},
	})
	if err != nil {
		t.Fatalf("DefaultProviderFromConfig: %v", err)
	}
	if p.Name() != "openai" {
		t.Fatalf("provider = %q, want openai", p.Name())
	}

	_, err = DefaultProviderFromConfig(&config.Config{
		LLM: config.LLMConfig{DefaultProvider: "claude"},
	})
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("no providers: err = %v", err)
	}
}
