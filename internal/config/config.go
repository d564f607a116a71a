// Package config loads the guardrail configuration from YAML, with built-in
// defaults when no file is present. The execution mode may also be set via
// the SYSGUARD_ENV environment variable, which takes precedence over the
// file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode is the execution mode controlling enforcement strictness.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeStaging     Mode = "staging"
	ModeDevelopment Mode = "development"
)

const (
	DefaultConfigDir  = ".sysguard"
	DefaultConfigFile = "guardrails.yaml"
	DefaultLogFile    = "audit.jsonl"
	DefaultStateFile  = "state.db"
)

type Config struct {
	Mode Mode `yaml:"mode"`

	RateLimiting struct {
		RequestsPerMinute int `yaml:"requests_per_minute"`
		WindowSeconds     int `yaml:"window_seconds"`
	} `yaml:"rate_limiting"`

	Security struct {
		BlockedPatterns   []PatternRule `yaml:"blocked_patterns"`
		SensitivePatterns []PatternRule `yaml:"sensitive_patterns"`
	} `yaml:"security"`

	HostValidation struct {
		HostAwareTools []string `yaml:"host_aware_tools"`
	} `yaml:"host_validation"`

	Thresholds struct {
		DiskWarningPercent   float64 `yaml:"disk_warning_percent"`
		MemoryWarningPercent float64 `yaml:"memory_warning_percent"`
	} `yaml:"thresholds"`

	Judge struct {
		// Enabled overrides the mode-derived default when set.
		Enabled             *bool   `yaml:"enabled"`
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		TimeoutSeconds      int     `yaml:"timeout_seconds"`
	} `yaml:"judge"`

	Tools struct {
		ReadOnlyPrefixes []string `yaml:"read_only_prefixes"`
	} `yaml:"tools"`

	Audit struct {
		LogPath string `yaml:"log_path"`
	} `yaml:"audit"`

	State struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"state"`
}

// PatternRule is one configured regex with an optional operator note.
type PatternRule struct {
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description,omitempty"`
}

// Load reads the config at path, falling back to defaults when the file does
// not exist. An empty path means ~/.sysguard/guardrails.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.fillZeroes()
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{Mode: ModeProduction}
	cfg.RateLimiting.RequestsPerMinute = 10
	cfg.RateLimiting.WindowSeconds = 60
	cfg.Thresholds.DiskWarningPercent = 90
	cfg.Thresholds.MemoryWarningPercent = 90
	cfg.Judge.ConfidenceThreshold = 0.7
	cfg.Judge.TimeoutSeconds = 15
	cfg.Tools.ReadOnlyPrefixes = []string{"get_", "list_", "read_", "show_", "describe_"}
	cfg.HostValidation.HostAwareTools = []string{
		"run_command",
		"get_disk_usage",
		"get_memory_information",
		"get_system_logs",
		"restart_service",
	}
	cfg.Security.BlockedPatterns = []PatternRule{
		{Pattern: `rm\s+-rf\s+/`, Description: "destructive remove at root"},
		{Pattern: `mkfs\.`, Description: "filesystem format"},
		{Pattern: `dd\s+.*of=/dev/`, Description: "raw block device write"},
		{Pattern: `:\(\)\{.*\};:`, Description: "fork bomb"},
		{Pattern: `\b(shutdown|poweroff|halt)\b`, Description: "host shutdown"},
	}
	cfg.Security.SensitivePatterns = []PatternRule{
		{Pattern: `\b(passwd|useradd|userdel)\b`, Description: "account management"},
		{Pattern: `\b(iptables|firewalld?)\b`, Description: "firewall changes"},
		{Pattern: `systemctl\s+(stop|disable)`, Description: "service shutdown"},
	}
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	switch Mode(os.Getenv("SYSGUARD_ENV")) {
	case ModeProduction:
		c.Mode = ModeProduction
	case ModeStaging:
		c.Mode = ModeStaging
	case ModeDevelopment:
		c.Mode = ModeDevelopment
	}
}

// fillZeroes restores defaults for fields the file left unset.
func (c *Config) fillZeroes() {
	d := Default()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.RateLimiting.RequestsPerMinute <= 0 {
		c.RateLimiting.RequestsPerMinute = d.RateLimiting.RequestsPerMinute
	}
	if c.RateLimiting.WindowSeconds <= 0 {
		c.RateLimiting.WindowSeconds = d.RateLimiting.WindowSeconds
	}
	if c.Thresholds.DiskWarningPercent <= 0 {
		c.Thresholds.DiskWarningPercent = d.Thresholds.DiskWarningPercent
	}
	if c.Thresholds.MemoryWarningPercent <= 0 {
		c.Thresholds.MemoryWarningPercent = d.Thresholds.MemoryWarningPercent
	}
	if c.Judge.ConfidenceThreshold <= 0 {
		c.Judge.ConfidenceThreshold = d.Judge.ConfidenceThreshold
	}
	if c.Judge.TimeoutSeconds <= 0 {
		c.Judge.TimeoutSeconds = d.Judge.TimeoutSeconds
	}
	if len(c.Tools.ReadOnlyPrefixes) == 0 {
		c.Tools.ReadOnlyPrefixes = d.Tools.ReadOnlyPrefixes
	}
}

// Production reports whether blocking policies are enforced rather than
// only logged.
func (c *Config) Production() bool { return c.Mode == ModeProduction }

// JudgeEnabled reports whether LLM-judge escalation should run. Explicit
// config wins; otherwise the judge runs in production and staging only.
func (c *Config) JudgeEnabled() bool {
	if c.Judge.Enabled != nil {
		return *c.Judge.Enabled
	}
	return c.Mode == ModeProduction || c.Mode == ModeStaging
}

// JudgeTimeout returns the per-call judge deadline.
func (c *Config) JudgeTimeout() time.Duration {
	return time.Duration(c.Judge.TimeoutSeconds) * time.Second
}

// RateWindow returns the limiter window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimiting.WindowSeconds) * time.Second
}

// BlockedPatternStrings flattens the blocked rules to raw regexes.
func (c *Config) BlockedPatternStrings() []string {
	return patternStrings(c.Security.BlockedPatterns)
}

// SensitivePatternStrings flattens the sensitive rules to raw regexes.
func (c *Config) SensitivePatternStrings() []string {
	return patternStrings(c.Security.SensitivePatterns)
}

func patternStrings(rules []PatternRule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if r.Pattern != "" {
			out = append(out, r.Pattern)
		}
	}
	return out
}

// LogPath resolves the audit log location, defaulting under ~/.sysguard.
func (c *Config) LogPath() (string, error) {
	return c.resolvePath(c.Audit.LogPath, DefaultLogFile)
}

// StateDBPath resolves the state database location.
func (c *Config) StateDBPath() (string, error) {
	return c.resolvePath(c.State.DBPath, DefaultStateFile)
}

func (c *Config) resolvePath(configured, fallback string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, DefaultConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, fallback), nil
}
