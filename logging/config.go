package logging

import (
	"os"
	"strconv"
	"strings"
)

// Environment types
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds logger configuration
type Config struct {
	Level       string `json:"level"`       // debug, info, warn, error
	Format      string `json:"format"`      // text, json
	AddSource   bool   `json:"add_source"`  // whether to add source code information
	Environment string `json:"environment"` // dev, prod, test

	// Optional rotating file output. When FilePath is set, log lines are
	// mirrored to the file via lumberjack in addition to stdout.
	FilePath       string `json:"file_path"`
	FileMaxSizeMB  int    `json:"file_max_size_mb"`
	FileMaxBackups int    `json:"file_max_backups"`
	FileMaxAgeDays int    `json:"file_max_age_days"`
}

// Default configuration
var DefaultConfig = Config{
	Level:          "info",
	Format:         "json",
	AddSource:      true,
	Environment:    "dev",
	FileMaxSizeMB:  20,
	FileMaxBackups: 3,
	FileMaxAgeDays: 14,
}

// GetConfigFromEnv creates a logger configuration based on environment variables
func GetConfigFromEnv() Config {
	config := DefaultConfig

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = strings.ToLower(level)
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Format = strings.ToLower(format)
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Environment = strings.ToLower(env)
	}

	if addSource := os.Getenv("LOG_ADD_SOURCE"); addSource != "" {
		config.AddSource = strings.ToLower(addSource) == "true"
	}

	if path := os.Getenv("LOG_FILE"); path != "" {
		config.FilePath = path
	}

	if size := os.Getenv("LOG_FILE_MAX_SIZE_MB"); size != "" {
		if n, err := strconv.Atoi(size); err == nil && n > 0 {
			config.FileMaxSizeMB = n
		}
	}

	// Environment-specific defaults
	switch config.Environment {
	case EnvProduction:
		// Production: JSON format, no source info for performance
		if config.Format == "" {
			config.Format = "json"
		}
		config.AddSource = false

	case EnvTest:
		// Test: text format for readability, debug level
		if config.Format == "" {
			config.Format = "text"
		}
		if config.Level == "" {
			config.Level = "debug"
		}
	}

	return config
}
