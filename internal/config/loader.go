package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
)

// Environment variables read by ApplyEnv.
const (
	EnvDebug       = "TOOLBELT_DEBUG"       // debug namespaces; "*" enables all
	EnvDebugDepth  = "TOOLBELT_DEBUG_DEPTH" // dump depth
	EnvHistory     = "TOOLBELT_HISTORY"     // boolean
	EnvConcurrency = "TOOLBELT_CONCURRENCY" // concurrency limit
)

// ProjectDir is the per-project configuration directory.
const ProjectDir = ".toolbelt"

// GlobalPath returns the user-wide config file location under the XDG
// config home.
func GlobalPath() string {
	return filepath.Join(xdg.ConfigHome, "toolbelt", "config.json")
}

// ProjectPath returns the project config file location, relative to the
// working directory.
func ProjectPath() string {
	return filepath.Join(ProjectDir, "config.json")
}

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*ToolbeltConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from the conventional paths, then the
// project .env file, then the environment.
func LoadDefault() (*ToolbeltConfig, error) {
	return LoadWithEnv(GlobalPath(), ProjectPath(), ".env")
}

// LoadWithEnv merges the config files like Load, loads envFile into the
// process environment, then applies the TOOLBELT_* overrides and
// validates the result. A missing envFile is not an error.
func LoadWithEnv(globalPath, projectPath, envFile string) (*ToolbeltConfig, error) {
	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}

	// Variables already set in the environment win over the file.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the TOOLBELT_* variables found by lookup.
func ApplyEnv(cfg *ToolbeltConfig, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDebug); ok {
		v = strings.TrimSpace(v)
		if v == "*" {
			cfg.Debug.All = true
		} else {
			cfg.Debug.Namespaces = v
		}
	}

	if v, ok := lookup(EnvDebugDepth); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 {
			return fmt.Errorf("invalid %s %q: want a positive integer", EnvDebugDepth, v)
		}
		cfg.Debug.Depth = n
	}

	if v, ok := lookup(EnvHistory); ok {
		on, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHistory, v, err)
		}
		cfg.History.Enabled = on
	}

	if v, ok := lookup(EnvConcurrency); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 {
			return fmt.Errorf("invalid %s %q: want a positive integer", EnvConcurrency, v)
		}
		cfg.Runner.ConcurrencyLimit = n
	}

	return nil
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Keys absent from the file keep their current value; map entries are
// merged by key. Missing files are silently skipped.
func mergeConfigFile(base *ToolbeltConfig, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
