// Package config – loader.go loads YAML configuration with .env files
// and ${VAR} environment expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} or $VAR_NAME in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadFromFile reads and parses a YAML configuration file.
// Loads .env files first and expands environment variables in the YAML.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg, err := Parse([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveEnvOverrides(cfg)
	return cfg, nil
}

// Parse parses YAML bytes into a Config, overlaid on defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// Save writes a Config as YAML with owner-only permissions.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindFile searches for config files in standard locations.
func FindFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"mietek.yaml",
		"mietek.yml",
		"configs/config.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Resolve loads config from an explicit path, a discovered file, or
// falls back to defaults plus environment overrides.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	if found := FindFile(); found != "" {
		return LoadFromFile(found)
	}
	loadEnvFiles()
	cfg := Default()
	resolveEnvOverrides(cfg)
	return cfg, nil
}

// ---------- Internal ----------

func loadEnvFiles() {
	// godotenv.Load does NOT overwrite existing env vars.
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} and $VAR references with environment values.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		// Leave placeholder intact if the variable is not set.
		return match
	})
}

// resolveEnvOverrides fills empty config values from well-known env vars.
func resolveEnvOverrides(cfg *Config) {
	if cfg.OwnerJID == "" {
		cfg.OwnerJID = os.Getenv("OWNER_JID")
	}
	if v := os.Getenv("OWNER_NAME"); v != "" && cfg.OwnerName == Default().OwnerName {
		cfg.OwnerName = v
	}
	if v := os.Getenv("BOT_NAME"); v != "" && cfg.BotName == Default().BotName {
		cfg.BotName = v
	}
	if v := os.Getenv("BOT_LANG"); v != "" && cfg.Language == Default().Language {
		cfg.Language = v
	}
}
