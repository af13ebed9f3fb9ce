// Package config loads agent configuration from YAML with defaults applied
// for every zero value and environment variables expanded in the file body.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Agent         AgentConfig         `yaml:"agent"`
	Model         ModelConfig         `yaml:"model"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Collaboration CollaborationConfig `yaml:"collaboration"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
	Directory     DirectoryConfig     `yaml:"directory"`
}

type AgentConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
}

type ModelConfig struct {
	Provider    string  `yaml:"provider"` // "anthropic", "openai", "mock"
	Name        string  `yaml:"name"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type OrchestratorConfig struct {
	MaxTurns          int           `yaml:"max_turns"`
	MaxParallel       int           `yaml:"max_parallel"`
	InvocationTimeout time.Duration `yaml:"invocation_timeout"`
}

type CollaborationConfig struct {
	MaxDepth int           `yaml:"max_depth"`
	Deadline time.Duration `yaml:"deadline"`
	MaxPeers int           `yaml:"max_peers"`
}

type ResilienceConfig struct {
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	RecoveryWindow   time.Duration `yaml:"recovery_window"`
}

type DirectoryConfig struct {
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
	SqlitePath     string        `yaml:"sqlite_path"` // empty: in-memory store
}

func defaults() Config {
	return Config{
		Agent: AgentConfig{
			ID:       "agent",
			Endpoint: "http://localhost:8080",
		},
		Model: ModelConfig{
			Provider:  "mock",
			MaxTokens: 4096,
		},
		Orchestrator: OrchestratorConfig{
			MaxTurns:          10,
			MaxParallel:       4,
			InvocationTimeout: 30 * time.Second,
		},
		Collaboration: CollaborationConfig{
			MaxDepth: 3,
			Deadline: 60 * time.Second,
			MaxPeers: 3,
		},
		Resilience: ResilienceConfig{
			MaxRetries:       3,
			BaseDelay:        time.Second,
			MaxDelay:         30 * time.Second,
			BreakerThreshold: 5,
			RecoveryWindow:   60 * time.Second,
		},
		Directory: DirectoryConfig{
			SweepInterval:  30 * time.Second,
			SilenceTimeout: 120 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return &cfg, nil
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// yaml zeroes out fields present-but-empty; re-apply defaults for those.
	fill(&cfg)

	return &cfg, nil
}

func fill(cfg *Config) {
	def := defaults()
	if cfg.Agent.ID == "" {
		cfg.Agent.ID = def.Agent.ID
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = def.Model.Provider
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = def.Model.MaxTokens
	}
	if cfg.Orchestrator.MaxTurns == 0 {
		cfg.Orchestrator.MaxTurns = def.Orchestrator.MaxTurns
	}
	if cfg.Orchestrator.MaxParallel == 0 {
		cfg.Orchestrator.MaxParallel = def.Orchestrator.MaxParallel
	}
	if cfg.Orchestrator.InvocationTimeout == 0 {
		cfg.Orchestrator.InvocationTimeout = def.Orchestrator.InvocationTimeout
	}
	if cfg.Collaboration.MaxDepth == 0 {
		cfg.Collaboration.MaxDepth = def.Collaboration.MaxDepth
	}
	if cfg.Collaboration.Deadline == 0 {
		cfg.Collaboration.Deadline = def.Collaboration.Deadline
	}
	if cfg.Collaboration.MaxPeers == 0 {
		cfg.Collaboration.MaxPeers = def.Collaboration.MaxPeers
	}
	if cfg.Resilience.MaxRetries == 0 {
		cfg.Resilience.MaxRetries = def.Resilience.MaxRetries
	}
	if cfg.Resilience.BaseDelay == 0 {
		cfg.Resilience.BaseDelay = def.Resilience.BaseDelay
	}
	if cfg.Resilience.MaxDelay == 0 {
		cfg.Resilience.MaxDelay = def.Resilience.MaxDelay
	}
	if cfg.Resilience.BreakerThreshold == 0 {
		cfg.Resilience.BreakerThreshold = def.Resilience.BreakerThreshold
	}
	if cfg.Resilience.RecoveryWindow == 0 {
		cfg.Resilience.RecoveryWindow = def.Resilience.RecoveryWindow
	}
	if cfg.Directory.SweepInterval == 0 {
		cfg.Directory.SweepInterval = def.Directory.SweepInterval
	}
	if cfg.Directory.SilenceTimeout == 0 {
		cfg.Directory.SilenceTimeout = def.Directory.SilenceTimeout
	}
}
