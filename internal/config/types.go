// Package config loads toolbelt settings from layered JSON files and the
// environment.
package config

import (
	"fmt"
	"time"
)

// RunnerConfig holds the task runner defaults. Workflow files may
// override them per run.
type RunnerConfig struct {
	Concurrent       bool   `json:"concurrent"`
	ExitOnError      bool   `json:"exit_on_error"`
	CollectErrors    string `json:"collect_errors"` // "minimal" or "full"
	ConcurrencyLimit int    `json:"concurrency_limit"`
	ForceColor       bool   `json:"force_color"`
	ForceTTY         bool   `json:"force_tty"`
}

// DebugConfig controls the developer trace.
type DebugConfig struct {
	Namespaces string `json:"namespaces,omitempty"` // comma-separated, e.g. "toolbelt:scheduler:*"
	All        bool   `json:"all"`
	Depth      int    `json:"depth"` // dump depth for traced objects
}

// ExecutorConfig defines how commands are run.
type ExecutorConfig struct {
	Shell   string            `json:"shell"`
	WorkDir string            `json:"work_dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"` // added to the inherited environment
}

// RetryConfig is the default retry policy for tasks that do not set one.
type RetryConfig struct {
	Attempts        int    `json:"attempts"`
	InitialInterval string `json:"initial_interval"` // Go duration, e.g. "500ms"
}

// BreakerConfig configures the per-program circuit breaker.
type BreakerConfig struct {
	Enabled bool   `json:"enabled"`
	Trips   uint32 `json:"trips"`   // consecutive failures that open the breaker
	Timeout string `json:"timeout"` // Go duration the breaker stays open
}

// HistoryConfig controls run history recording.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"` // empty means the XDG data location
}

// ToolbeltConfig is the top-level configuration.
type ToolbeltConfig struct {
	Runner   RunnerConfig   `json:"runner"`
	Debug    DebugConfig    `json:"debug"`
	Executor ExecutorConfig `json:"executor"`
	Retry    RetryConfig    `json:"retry"`
	Breaker  BreakerConfig  `json:"breaker"`
	History  HistoryConfig  `json:"history"`
	// Vars seed the shared context of every run.
	Vars map[string]string `json:"vars,omitempty"`
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, s)
	}
	return d, nil
}

// Interval parses InitialInterval. An empty value is zero.
func (r RetryConfig) Interval() (time.Duration, error) {
	return parseDuration("retry.initial_interval", r.InitialInterval)
}

// OpenTimeout parses Timeout. An empty value is zero.
func (b BreakerConfig) OpenTimeout() (time.Duration, error) {
	return parseDuration("breaker.timeout", b.Timeout)
}

// Validate reports the first invalid setting.
func (c *ToolbeltConfig) Validate() error {
	switch c.Runner.CollectErrors {
	case "minimal", "full":
	default:
		return fmt.Errorf("invalid runner.collect_errors %q: want \"minimal\" or \"full\"", c.Runner.CollectErrors)
	}
	if c.Runner.ConcurrencyLimit < 1 {
		return fmt.Errorf("invalid runner.concurrency_limit %d: must be at least 1", c.Runner.ConcurrencyLimit)
	}
	if c.Debug.Depth < 1 {
		return fmt.Errorf("invalid debug.depth %d: must be at least 1", c.Debug.Depth)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("invalid retry.attempts %d: must be at least 1", c.Retry.Attempts)
	}
	if _, err := c.Retry.Interval(); err != nil {
		return err
	}
	if _, err := c.Breaker.OpenTimeout(); err != nil {
		return err
	}
	return nil
}
