package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "agentevo.yaml"

// Config is the full harness configuration.
type Config struct {
	Version string `yaml:"version,omitempty"`

	Agent     AgentConfig `yaml:"agent"`
	TestCases string      `yaml:"test_cases,omitempty"` // glob pattern

	LLM          LLMConfig           `yaml:"llm"`
	Judge        JudgeConfig         `yaml:"judge"`
	Optimization OptimizationConfig  `yaml:"optimization"`
	Git          GitConfig           `yaml:"git"`
	Mutation     MutationConfig      `yaml:"mutation"`
	Import       ImportConfig        `yaml:"import"`
	TagPolicies  map[string]TagPolicy `yaml:"tag_policies,omitempty"`

	// Report output language: "en" or "zh".
	Language string `yaml:"language,omitempty"`

	Concurrency int           `yaml:"concurrency,omitempty"`
	Storage     StorageConfig `yaml:"storage"`
	Server      ServerConfig  `yaml:"server"`
}

// AgentConfig describes how to reach the agent under test. Exactly one of
// Command or URL should be set.
type AgentConfig struct {
	Command    []string `yaml:"command,omitempty"`
	URL        string   `yaml:"url,omitempty"`
	PromptFile string   `yaml:"prompt_file"`

	// TimeoutSeconds bounds a single agent invocation.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// FactorConfig sets the weight and fatality of one evaluation factor.
type FactorConfig struct {
	Weight float64 `yaml:"weight"`
	Fatal  bool    `yaml:"fatal,omitempty"`
}

type JudgeConfig struct {
	PassThreshold float64                 `yaml:"pass_threshold,omitempty"`
	Factors       map[string]FactorConfig `yaml:"factors,omitempty"`
}

// TagPolicy sets per-tag gating rules.
type TagPolicy struct {
	PassThreshold      float64 `yaml:"pass_threshold,omitempty"`
	FailFast           bool    `yaml:"fail_fast,omitempty"`
	RequiredForRelease bool    `yaml:"required_for_release,omitempty"`
	Description        string  `yaml:"description,omitempty"`
}

type OptimizationConfig struct {
	MaxIterations       int     `yaml:"max_iterations,omitempty"`
	RunRegression       *bool   `yaml:"run_regression,omitempty"`
	RegressionThreshold float64 `yaml:"regression_threshold,omitempty"`
}

// Regression reports whether regression runs are enabled (default true).
func (o OptimizationConfig) Regression() bool {
	return o.RunRegression == nil || *o.RunRegression
}

type GitConfig struct {
	Enabled        *bool  `yaml:"enabled,omitempty"`
	AutoCommit     bool   `yaml:"auto_commit,omitempty"`
	CreatePR       *bool  `yaml:"create_pr,omitempty"`
	PRBaseBranch   string `yaml:"pr_base_branch,omitempty"`
	PRBranchPrefix string `yaml:"pr_branch_prefix,omitempty"`
	Remote         string `yaml:"remote,omitempty"`
}

func (g GitConfig) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

func (g GitConfig) PRCreation() bool {
	return g.CreatePR == nil || *g.CreatePR
}

type MutationConfig struct {
	CountPerCase   int      `yaml:"count_per_case,omitempty"`
	AutoReview     *bool    `yaml:"auto_review,omitempty"`
	BusinessDocs   string   `yaml:"business_docs,omitempty"`
	HintDirections []string `yaml:"hint_directions,omitempty"`
}

func (m MutationConfig) Review() bool {
	return m.AutoReview == nil || *m.AutoReview
}

type ImportConfig struct {
	DefaultFormat   string   `yaml:"default_format,omitempty"`
	AutoRefine      *bool    `yaml:"auto_refine,omitempty"`
	AutoDeduplicate *bool    `yaml:"auto_deduplicate,omitempty"`
	DefaultTier     string   `yaml:"default_tier,omitempty"`
	DefaultTags     []string `yaml:"default_tags,omitempty"`

	// ColumnMapping renames CSV columns to the canonical record fields.
	ColumnMapping map[string]string `yaml:"column_mapping,omitempty"`
}

func (i ImportConfig) Refine() bool {
	return i.AutoRefine == nil || *i.AutoRefine
}

func (i ImportConfig) Deduplicate() bool {
	return i.AutoDeduplicate == nil || *i.AutoDeduplicate
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path
}

type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// DefaultFactors is the factor weighting used when judge.factors is not
// configured. Custom validators are fatal by default: a failing
// hand-written check should veto the case outright.
func DefaultFactors() map[string]FactorConfig {
	return map[string]FactorConfig{
		"content":   {Weight: 1.0},
		"behavior":  {Weight: 0.8},
		"structure": {Weight: 0.5},
		"custom":    {Weight: 1.0, Fatal: true},
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.TestCases == "" {
		cfg.TestCases = "./tests/*.yaml"
	}
	if cfg.Agent.TimeoutSeconds <= 0 {
		cfg.Agent.TimeoutSeconds = 120
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]ProviderConfig)
	}
	if strings.TrimSpace(cfg.LLM.DefaultProvider) == "" {
		cfg.LLM.DefaultProvider = "claude"
	}
	if cfg.Judge.PassThreshold <= 0 {
		cfg.Judge.PassThreshold = 0.7
	}
	if len(cfg.Judge.Factors) == 0 {
		cfg.Judge.Factors = DefaultFactors()
	}
	if cfg.Optimization.MaxIterations <= 0 {
		cfg.Optimization.MaxIterations = 3
	}
	if cfg.Optimization.RegressionThreshold <= 0 {
		cfg.Optimization.RegressionThreshold = 0.95
	}
	if cfg.Git.PRBaseBranch == "" {
		cfg.Git.PRBaseBranch = "main"
	}
	if cfg.Git.PRBranchPrefix == "" {
		cfg.Git.PRBranchPrefix = "agent-evo/optimize"
	}
	if cfg.Git.Remote == "" {
		cfg.Git.Remote = "origin"
	}
	if cfg.Mutation.CountPerCase <= 0 {
		cfg.Mutation.CountPerCase = 3
	}
	if cfg.Import.DefaultFormat == "" {
		cfg.Import.DefaultFormat = "jsonl"
	}
	if cfg.Import.DefaultTier == "" {
		cfg.Import.DefaultTier = "silver"
	}
	if cfg.Import.DefaultTags == nil {
		cfg.Import.DefaultTags = []string{"regression"}
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = ".agentevo/history.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		return os.Getenv(name)
	})
}

// Load reads and validates a config file, applying defaults and
// environment overrides for provider credentials.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	cfg.applyDefaults()

	for name, p := range cfg.LLM.Providers {
		p.APIKey = expandEnv(p.APIKey)
		p.BaseURL = expandEnv(p.BaseURL)
		cfg.LLM.Providers[name] = p
	}

	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		p := cfg.LLM.Providers["claude"]
		if p.APIKey == "" {
			p.APIKey = v
			cfg.LLM.Providers["claude"] = p
		}
	} else if v := strings.TrimSpace(os.Getenv("ANTHROPIC_AUTH_TOKEN")); v != "" {
		p := cfg.LLM.Providers["claude"]
		if p.APIKey == "" {
			p.APIKey = v
			cfg.LLM.Providers["claude"] = p
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		p := cfg.LLM.Providers["openai"]
		if p.APIKey == "" {
			p.APIKey = v
			cfg.LLM.Providers["openai"] = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if len(cfg.Agent.Command) > 0 && strings.TrimSpace(cfg.Agent.URL) != "" {
		return fmt.Errorf("config: agent.command and agent.url are mutually exclusive")
	}
	if cfg.Judge.PassThreshold < 0 || cfg.Judge.PassThreshold > 1 {
		return fmt.Errorf("config: judge.pass_threshold must be within [0,1]")
	}
	for name, p := range cfg.TagPolicies {
		if p.PassThreshold < 0 || p.PassThreshold > 1 {
			return fmt.Errorf("config: tag_policies.%s.pass_threshold must be within [0,1]", name)
		}
	}
	switch cfg.Language {
	case "en", "zh":
	default:
		return fmt.Errorf("config: language must be en or zh, got %q", cfg.Language)
	}
	return nil
}

// PolicyThreshold returns the pass threshold for a tag policy, applying
// the documented default of 0.7.
func (p TagPolicy) Threshold() float64 {
	if p.PassThreshold <= 0 {
		return 0.7
	}
	return p.PassThreshold
}
