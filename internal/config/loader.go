package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BLOCKBRIDGE_"

// envOverrides are applied after the YAML file. Empty values leave the file's value in place.
type envOverrides struct {
	LogLevel    string        `env:"LOG_LEVEL"`
	LogFormat   string        `env:"LOG_FORMAT"`
	ClickWindow time.Duration `env:"CLICK_WINDOW"`
	BackendKind string        `env:"BACKEND_KIND"`
	BackendURL  string        `env:"BACKEND_URL"`
	APIEnabled  *bool         `env:"API_ENABLED"`
	APIListen   string        `env:"API_LISTEN"`
	APIKey      string        `env:"API_KEY"`
	AuditPath   string        `env:"AUDIT_PATH"`
	LockPath    string        `env:"LOCK_PATH"`
}

// Load reads, parses, overrides and validates the configuration file at configPath.
// A directory is accepted if it contains config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Defaults(), applies environment overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover finds a config file by checking standard locations.
// Priority order: $BLOCKBRIDGE_CONFIG, ~/.config/blockbridge/config.yaml, /etc/blockbridge/config.yaml, ./config.yaml
func Discover() (string, error) {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	candidates := []string{}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "blockbridge", "config.yaml"))
	}
	candidates = append(candidates, "/etc/blockbridge/config.yaml", "./config.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: $%sCONFIG, %s)", EnvPrefix, strings.Join(candidates, ", "))
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env overrides: %w", err)
	}

	if o.LogLevel != "" {
		cfg.Service.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Service.LogFormat = o.LogFormat
	}
	if o.ClickWindow > 0 {
		cfg.Bridge.ClickWindow = o.ClickWindow
	}
	if o.BackendKind != "" {
		cfg.Backend.Kind = o.BackendKind
	}
	if o.BackendURL != "" {
		cfg.Backend.URL = o.BackendURL
	}
	if o.APIEnabled != nil {
		cfg.API.Enabled = *o.APIEnabled
	}
	if o.APIListen != "" {
		cfg.API.Listen = o.APIListen
	}
	if o.APIKey != "" {
		cfg.API.Auth.APIKey = o.APIKey
	}
	if o.AuditPath != "" {
		cfg.Audit.Path = o.AuditPath
	}
	if o.LockPath != "" {
		cfg.Lock.Path = o.LockPath
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment values, leaving unknown placeholders intact.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place so validation can name the missing variable.
		return match
	})
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}
