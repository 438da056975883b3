package main

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"time"

	"github.com/stellarlinkco/agent-evo/internal/adapter"
	"github.com/stellarlinkco/agent-evo/internal/config"
	"github.com/stellarlinkco/agent-evo/internal/evaluator"
	"github.com/stellarlinkco/agent-evo/internal/factor"
	"github.com/stellarlinkco/agent-evo/internal/generator"
	"github.com/stellarlinkco/agent-evo/internal/llm"
)

var defaultProviderFromConfig = llm.DefaultProviderFromConfig

func buildAgent(cfg *config.Config) (adapter.Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("agentevo: missing config")
	}
	switch {
	case len(cfg.Agent.Command) > 0:
		return &adapter.CommandAdapter{
			Command: cfg.Agent.Command,
			Path:    cfg.Agent.PromptFile,
		}, nil
	case cfg.Agent.URL != "":
		return &adapter.HTTPAdapter{
			URL:  cfg.Agent.URL,
			Path: cfg.Agent.PromptFile,
		}, nil
	default:
		return nil, fmt.Errorf("agentevo: configure either agent.command or agent.url")
	}
}

func buildFactors(cfg *config.Config, provider llm.Provider) []factor.Factor {
	baseDir := filepath.Dir(cfg.TestCases)
	return []factor.Factor{
		&factor.CoreJudgeFactor{Provider: provider, BaseDir: baseDir},
		&factor.CustomFactor{Registry: factor.NewValidators()},
	}
}

type harness struct {
	agent adapter.Agent
	gen   *generator.Generator
	eval  *evaluator.Evaluator
}

func buildHarness(cfg *config.Config, provider llm.Provider) (*harness, error) {
	agent, err := buildAgent(cfg)
	if err != nil {
		return nil, err
	}
	gen := generator.New(agent, cfg.Concurrency)
	gen.Timeout = time.Duration(cfg.Agent.TimeoutSeconds) * time.Second
	return &harness{
		agent: agent,
		gen:   gen,
		eval:  evaluator.New(cfg, buildFactors(cfg, provider)...),
	}, nil
}

func newRunID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("run_%s_%x", time.Now().UTC().Format("20060102T150405Z"), buf), nil
}
