package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/pushgate/internal/dispatch"
	"github.com/vietddude/pushgate/internal/sweeper"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Transport.Provider == "" {
		cfg.Transport.Provider = "fcm"
	}

	defaults := dispatch.DefaultConfig()
	if cfg.Dispatch.MaxBatchSize == 0 {
		cfg.Dispatch.MaxBatchSize = defaults.MaxBatchSize
	}
	if cfg.Dispatch.MaxInFlight == 0 {
		cfg.Dispatch.MaxInFlight = defaults.MaxInFlight
	}
	if cfg.Dispatch.Retry.MaxAttempts == 0 {
		cfg.Dispatch.Retry = defaults.Retry
	}

	sweepDefaults := sweeper.DefaultConfig()
	if cfg.Sweeper.Interval == 0 {
		cfg.Sweeper.Interval = sweepDefaults.Interval
	}
	if cfg.Sweeper.StaleAfter == 0 {
		cfg.Sweeper.StaleAfter = sweepDefaults.StaleAfter
	}

	return &cfg, nil
}
