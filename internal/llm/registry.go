package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stellarlinkco/agent-evo/internal/config"
)

// Registry resolves completion providers by name. Lookup is
// case-insensitive and "anthropic" is accepted as an alias for "claude".
type Registry struct {
	byName map[string]Provider
}

func canonicalName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "anthropic" {
		return "claude"
	}
	return name
}

func (r *Registry) Register(p Provider) {
	if r == nil || p == nil {
		return
	}
	name := canonicalName(p.Name())
	if name == "" {
		return
	}
	if r.byName == nil {
		r.byName = make(map[string]Provider)
	}
	r.byName[name] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil || len(r.byName) == 0 {
		return nil, false
	}
	name = canonicalName(name)
	if name == "" {
		return nil, false
	}
	p, ok := r.byName[name]
	return p, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	if r == nil || len(r.byName) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default resolves the provider to use when callers do not pick one
// explicitly. An empty name means "claude"; when exactly one provider
// is registered it wins regardless of the requested name.
func (r *Registry) Default(name string) (Provider, error) {
	name = canonicalName(name)
	if name == "" {
		name = "claude"
	}
	if p, ok := r.Get(name); ok {
		return p, nil
	}
	if r != nil && len(r.byName) == 1 {
		for _, p := range r.byName {
			return p, nil
		}
	}
	return nil, fmt.Errorf("llm: default provider %q not configured (available: %s)", name, strings.Join(r.Names(), ", "))
}

func buildProvider(name string, pcfg config.ProviderConfig) (Provider, error) {
	switch canonicalName(name) {
	case "":
		return nil, nil
	case "claude":
		return NewClaudeProvider(pcfg.APIKey, pcfg.BaseURL, pcfg.Model), nil
	case "openai":
		return NewOpenAIProvider(pcfg.APIKey, pcfg.BaseURL, pcfg.Model), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
}

func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("llm: nil config")
	}

	r := &Registry{}
	for name, pcfg := range cfg.LLM.Providers {
		p, err := buildProvider(name, pcfg)
		if err != nil {
			return nil, err
		}
		if p != nil {
			r.Register(p)
		}
	}
	return r, nil
}

// DefaultProviderFromConfig builds the provider set from cfg and picks
// cfg.LLM.DefaultProvider, falling back per Registry.Default.
func DefaultProviderFromConfig(cfg *config.Config) (Provider, error) {
	reg, err := NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return reg.Default(cfg.LLM.DefaultProvider)
}
