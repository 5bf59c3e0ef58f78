// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoaderOptions configures the configuration loader
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config)
	ConfigDir string
	// Environment overrides automatic environment detection
	Environment string
	// SkipEnvSubstitution disables environment variable substitution
	SkipEnvSubstitution bool
	// SkipValidation disables configuration validation
	SkipValidation bool
}

// DefaultLoaderOptions returns default loader options
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigDir:           "config",
		Environment:         "",
		SkipEnvSubstitution: false,
		SkipValidation:      false,
	}
}

// Load loads configuration with automatic environment detection
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	envConfigPath := filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env))
	cfg, err := loadConfigFile(envConfigPath)
	if err != nil {
		defaultConfigPath := filepath.Join(options.ConfigDir, "default.yaml")
		cfg, err = loadConfigFile(defaultConfigPath)
		if err != nil {
			configPath := filepath.Join(options.ConfigDir, "config.yaml")
			cfg, err = loadConfigFile(configPath)
			if err != nil {
				cfg = &Config{}
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}

	setDefaults(cfg)

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}

	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		errs := ValidateConfiguration(cfg)
		for _, e := range errs {
			if e.Level == "error" {
				return nil, fmt.Errorf("configuration validation failed: %s - %s", e.Field, e.Message)
			}
		}
	}

	return cfg, nil
}

// loadConfigFile loads a single config file
func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides overrides config with environment variables.
// KBS_DB_TYPE selects the policy-store dialect (postgres, mysql, sqlite,
// memory); the remaining KBS_DB_* variables configure the chosen dialect.
func applyEnvironmentOverrides(cfg *Config) {
	if cfg.DB != nil {
		if v := os.Getenv("KBS_DB_TYPE"); v != "" {
			cfg.DB.Type = v
		}
		if v := os.Getenv("KBS_DB_HOST"); v != "" {
			cfg.DB.Host = v
		}
		if v := os.Getenv("KBS_DB_PORT"); v != "" {
			cfg.DB.Port = getEnvInt("KBS_DB_PORT", cfg.DB.Port)
		}
		if v := os.Getenv("KBS_DB_USER"); v != "" {
			cfg.DB.User = v
		}
		if v := os.Getenv("KBS_DB_PW"); v != "" {
			cfg.DB.Password = v
		}
		if v := os.Getenv("KBS_DB_PASSWORD"); v != "" {
			cfg.DB.Password = v
		}
		if v := os.Getenv("KBS_DB"); v != "" {
			cfg.DB.Name = v
		}
		if v := os.Getenv("KBS_DB_NAME"); v != "" {
			cfg.DB.Name = v
		}
		if v := os.Getenv("KBS_DB_PATH"); v != "" {
			cfg.DB.Path = v
		}
	}

	if cfg.Server != nil {
		if v := os.Getenv("KBS_LISTEN_ADDR"); v != "" {
			cfg.Server.ListenAddr = v
		}
		cfg.Server.Port = getEnvInt("KBS_LISTEN_PORT", cfg.Server.Port)
	}

	if cfg.Logging != nil {
		if v := os.Getenv("KBS_LOG_LEVEL"); v != "" {
			cfg.Logging.Level = v
		}
		if v := os.Getenv("KBS_LOG_FORMAT"); v != "" {
			cfg.Logging.Format = v
		}
	}

	if cfg.Metrics != nil {
		cfg.Metrics.Enabled = getEnvBool("KBS_METRICS_ENABLED", cfg.Metrics.Enabled)
	}
}

// LoadForEnvironment loads configuration for a specific environment
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{
		ConfigDir:   "config",
		Environment: environment,
	})
}

// MustLoad loads configuration or panics on error
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}

// ValidationIssue describes a single configuration validation finding.
type ValidationIssue struct {
	Field   string
	Message string
	// Level is "error" or "warning". Only "error" issues fail Load.
	Level string
}

var validDBTypes = map[string]bool{
	"postgres": true,
	"mysql":    true,
	"sqlite":   true,
	"memory":   true,
}

// ValidateConfiguration checks cfg for inconsistencies and returns every
// issue found. Callers decide whether warnings are fatal.
func ValidateConfiguration(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.DB == nil || !validDBTypes[cfg.DB.Type] {
		issues = append(issues, ValidationIssue{
			Field:   "db.type",
			Message: "must be one of postgres, mysql, sqlite, memory",
			Level:   "error",
		})
		return issues
	}

	switch cfg.DB.Type {
	case "postgres", "mysql":
		if cfg.DB.Host == "" {
			issues = append(issues, ValidationIssue{Field: "db.host", Message: "host is required", Level: "error"})
		}
		if cfg.DB.Name == "" {
			issues = append(issues, ValidationIssue{Field: "db.name", Message: "database name is required", Level: "error"})
		}
	case "sqlite":
		if cfg.DB.Path == "" {
			issues = append(issues, ValidationIssue{Field: "db.path", Message: "path is required", Level: "error"})
		}
	}

	if cfg.Server != nil && (cfg.Server.Port <= 0 || cfg.Server.Port > 65535) {
		issues = append(issues, ValidationIssue{Field: "server.port", Message: "port must be between 1 and 65535", Level: "error"})
	}

	return issues
}
