package config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *ToolbeltConfig {
	return &ToolbeltConfig{
		Runner: RunnerConfig{
			Concurrent:       false,
			ExitOnError:      true,
			CollectErrors:    "minimal",
			ConcurrencyLimit: 4,
			ForceColor:       true,
			ForceTTY:         true,
		},
		Debug: DebugConfig{
			Depth: 2,
		},
		Executor: ExecutorConfig{
			Shell: "sh",
			Env:   map[string]string{},
		},
		Retry: RetryConfig{
			Attempts:        1,
			InitialInterval: "500ms",
		},
		Breaker: BreakerConfig{
			Enabled: false,
			Trips:   5,
			Timeout: "30s",
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Vars: map[string]string{},
	}
}
