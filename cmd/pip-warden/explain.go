package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/VikingOwl91/pip-warden/internal/config"
	"github.com/VikingOwl91/pip-warden/internal/confine"
	"github.com/VikingOwl91/pip-warden/internal/pip"
	"github.com/VikingOwl91/pip-warden/internal/trust"
)

type explainOutput struct {
	Version   string          `json:"version"`
	Commit    string          `json:"commit,omitempty"`
	BuildDate string          `json:"build_date,omitempty"`
	Delegate  explainDelegate `json:"delegate"`
	Scratch   explainScratch  `json:"scratch"`
	Confine   explainConfine  `json:"confine"`
	Policy    explainPolicy   `json:"policy"`
	LogLevel  string          `json:"log_level"`
	LogFormat string          `json:"log_format"`
}

type explainDelegate struct {
	Command        string   `json:"command"`
	ResolvedPath   string   `json:"resolved_path,omitempty"`
	ResolveError   string   `json:"resolve_error,omitempty"`
	AllowedPaths   []string `json:"allowed_paths,omitempty"`
	PinnedSHA256   string   `json:"pinned_sha256,omitempty"`
	ComputedSHA256 string   `json:"computed_sha256,omitempty"`
}

type explainScratch struct {
	Dir       string `json:"dir"`
	MinFreeMB int    `json:"min_free_mb,omitempty"`
}

type explainConfine struct {
	Enabled         bool     `json:"enabled"`
	Required        bool     `json:"required,omitempty"`
	Landlock        bool     `json:"landlock"`
	LandlockABI     int      `json:"landlock_abi,omitempty"`
	WritePaths      []string `json:"write_paths,omitempty"`
	ExtraWritePaths []string `json:"extra_write_paths,omitempty"`
	EnvAllowlist    []string `json:"env_allowlist,omitempty"`
}

type explainPolicy struct {
	Default string        `json:"default"`
	Rules   []explainRule `json:"rules,omitempty"`
}

type explainRule struct {
	Name       string `json:"name"`
	Effect     string `json:"effect"`
	Expression string `json:"expression"`
}

// runExplain prints the effective configuration as JSON, with the runtime
// facts (resolved delegate path, its current digest, kernel Landlock
// support) filled in next to the configured intent.
func runExplain(cfg *config.Config) int {
	out := explainOutput{
		Version:   version,
		Commit:    commit,
		BuildDate: date,
		Delegate: explainDelegate{
			Command:      cfg.Pip.Command,
			AllowedPaths: cfg.Pip.AllowedPaths,
			PinnedSHA256: cfg.Pip.PinnedSHA256,
		},
		Scratch: explainScratch{
			Dir:       cfg.Scratch.Dir,
			MinFreeMB: cfg.Scratch.MinFreeMB,
		},
		LogLevel:  cfg.LogLevel,
		LogFormat: cfg.LogFormat,
	}
	if out.Scratch.Dir == "" {
		out.Scratch.Dir = os.TempDir()
	}

	if resolved, err := pip.ResolveBinary(cfg.Pip.Command); err != nil {
		out.Delegate.ResolveError = err.Error()
	} else {
		out.Delegate.ResolvedPath = resolved
		if digest, err := trust.PinnedFileDigest(resolved); err == nil {
			out.Delegate.ComputedSHA256 = digest
		}
	}

	caps := confine.Probe()
	out.Confine = explainConfine{
		Enabled:         cfg.Confine.Enabled,
		Required:        cfg.Confine.Required,
		Landlock:        caps.Landlock,
		LandlockABI:     caps.LandlockABI,
		ExtraWritePaths: cfg.Confine.ExtraWritePaths,
		EnvAllowlist:    cfg.Pip.EnvAllowlist,
	}
	if cfg.Confine.Enabled && caps.Landlock {
		out.Confine.WritePaths = writePaths(cfg)
	}

	out.Policy = explainPolicy{Default: cfg.Policy.Default}
	for _, rule := range cfg.Policy.Rules {
		out.Policy.Rules = append(out.Policy.Rules, explainRule{
			Name:       rule.Name,
			Effect:     rule.Effect,
			Expression: rule.Expression,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "pip-warden: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
