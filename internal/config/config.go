package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "RESOLUTION_CONFIG_YAML"

//go:embed resolution.yaml
var defaultConfigYAML []byte

type Resolution struct {
	AutoAcceptThreshold      float64 `yaml:"auto_accept_threshold"`
	MatchThreshold           float64 `yaml:"match_threshold"`
	FuzzyThreshold           float64 `yaml:"fuzzy_threshold"`
	SweepThreshold           float64 `yaml:"sweep_threshold"`
	NaicsRuleEnabled         bool    `yaml:"naics_rule_enabled"`
	NaicsSimilarityThreshold float64 `yaml:"naics_similarity_threshold"`
	SweepWorkers             int     `yaml:"sweep_workers"`
}

type Graph struct {
	PolicyMinScore float64 `yaml:"policy_min_score"`
}

type Config struct {
	Resolution Resolution `yaml:"resolution"`
	Graph      Graph      `yaml:"graph"`
}

var (
	loadOnce sync.Once
	loaded   *Config
	loadErr  error
)

// Load parses the embedded defaults, then applies an override file named by
// RESOLUTION_CONFIG_YAML when set. The result is cached for the process.
func Load() (*Config, error) {
	loadOnce.Do(func() {
		cfg := &Config{}
		if err := yaml.Unmarshal(defaultConfigYAML, cfg); err != nil {
			loadErr = fmt.Errorf("config: parse embedded defaults: %w", err)
			return
		}
		if path := strings.TrimSpace(os.Getenv(configPathEnv)); path != "" {
			raw, err := os.ReadFile(path)
			if err != nil {
				loadErr = fmt.Errorf("config: read %s: %w", path, err)
				return
			}
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				loadErr = fmt.Errorf("config: parse %s: %w", path, err)
				return
			}
		}
		if err := cfg.validate(); err != nil {
			loadErr = err
			return
		}
		loaded = cfg
	})
	return loaded, loadErr
}

// Default returns the embedded configuration without consulting the
// environment. Used by tests and as a fallback for library callers.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultConfigYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

func (c *Config) validate() error {
	r := c.Resolution
	if r.MatchThreshold <= 0 || r.MatchThreshold > 1 {
		return fmt.Errorf("config: match_threshold out of range: %v", r.MatchThreshold)
	}
	if r.AutoAcceptThreshold < r.MatchThreshold {
		return fmt.Errorf("config: auto_accept_threshold below match_threshold")
	}
	if r.SweepThreshold < 0 || r.SweepThreshold > 100 {
		return fmt.Errorf("config: sweep_threshold out of range: %v", r.SweepThreshold)
	}
	if r.SweepWorkers < 1 {
		c.Resolution.SweepWorkers = 1
	}
	if c.Graph.PolicyMinScore < 0 || c.Graph.PolicyMinScore > 1 {
		return fmt.Errorf("config: policy_min_score out of range: %v", c.Graph.PolicyMinScore)
	}
	return nil
}
