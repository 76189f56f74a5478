// Package config loads and validates the optional pip-warden config file.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/VikingOwl91/pip-warden/internal/trust"
)

var ruleNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// PipConfig describes the delegate binary and how strictly to trust it.
type PipConfig struct {
	Command      string   `yaml:"command"`
	AllowedPaths []string `yaml:"allowed_paths,omitempty"`
	PinnedSHA256 string   `yaml:"pinned_sha256,omitempty"`
	EnvAllowlist []string `yaml:"env_allowlist,omitempty"`
}

// ScratchConfig controls where batch scratch areas live.
type ScratchConfig struct {
	Dir       string `yaml:"dir,omitempty"`
	MinFreeMB int    `yaml:"min_free_mb,omitempty"`
}

// ConfineConfig controls Landlock confinement of download invocations.
type ConfineConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Required        bool     `yaml:"required,omitempty"`
	ExtraWritePaths []string `yaml:"extra_write_paths,omitempty"`
}

type PolicyRule struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Effect     string `yaml:"effect"`
}

type PolicyConfig struct {
	Default string       `yaml:"default"`
	Rules   []PolicyRule `yaml:"rules,omitempty"`
}

type Config struct {
	Pip       PipConfig     `yaml:"pip,omitempty"`
	Scratch   ScratchConfig `yaml:"scratch,omitempty"`
	Confine   ConfineConfig `yaml:"confine,omitempty"`
	Policy    PolicyConfig  `yaml:"policy,omitempty"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format,omitempty"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	// Validate cannot fail on a zero config; it only fills defaults.
	_ = cfg.Validate()
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Pip.Command == "" {
		c.Pip.Command = "pip"
	}

	if c.Pip.PinnedSHA256 != "" {
		if _, _, err := trust.ParsePin(c.Pip.PinnedSHA256); err != nil {
			return fmt.Errorf("pip pinned_sha256: %w", err)
		}
	}

	if c.Scratch.MinFreeMB < 0 {
		return fmt.Errorf("scratch min_free_mb must not be negative, got %d", c.Scratch.MinFreeMB)
	}

	if err := c.validatePolicy(); err != nil {
		return err
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'text' or 'json', got %q", c.LogFormat)
	}

	return nil
}

func (c *Config) validatePolicy() error {
	if c.Policy.Default == "" {
		c.Policy.Default = "allow"
	}
	if c.Policy.Default != "allow" && c.Policy.Default != "deny" {
		return fmt.Errorf("policy default must be 'allow' or 'deny', got %q", c.Policy.Default)
	}

	seen := make(map[string]bool)
	for i, rule := range c.Policy.Rules {
		if !ruleNamePattern.MatchString(rule.Name) {
			return fmt.Errorf("rule %d: name %q must match [a-zA-Z0-9_-]+", i, rule.Name)
		}
		if rule.Effect != "allow" && rule.Effect != "deny" {
			return fmt.Errorf("rule %d (%q): effect must be 'allow' or 'deny', got %q", i, rule.Name, rule.Effect)
		}
		if seen[rule.Name] {
			return fmt.Errorf("rule %d: duplicate rule name %q", i, rule.Name)
		}
		seen[rule.Name] = true
	}

	return validateCELExpressions(c.Policy.Rules)
}

func validateCELExpressions(rules []PolicyRule) error {
	if len(rules) == 0 {
		return nil
	}

	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("specifier", cel.StringType),
		cel.Variable("pinned", cel.BoolType),
		cel.Variable("file", cel.StringType),
	)
	if err != nil {
		return fmt.Errorf("creating CEL environment: %w", err)
	}

	for _, rule := range rules {
		_, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("rule %q: invalid CEL expression: %w", rule.Name, issues.Err())
		}
	}

	return nil
}
