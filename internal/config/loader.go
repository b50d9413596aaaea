package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names a config file to load instead of searching.
const EnvConfigPath = "REPOBRAIN_CONFIG"

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a configuration from the given YAML file path, then
// applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	cfg.Path = path

	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads $REPOBRAIN_CONFIG if set, otherwise the first of
// ./repobrain.yaml and ~/.repobrain/config.yaml that exists. With no file it
// returns the built-in defaults.
func LoadDefault() (*Config, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return Load(p)
	}

	candidates := []string{"repobrain.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".repobrain", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	b := &cfg.Brain
	if b.ProjectRoot == "" {
		b.ProjectRoot = "."
	}
	if b.ControlDir == "" {
		b.ControlDir = ".repo-brain"
	}
	if b.Interpreter == "" {
		b.Interpreter = "bash"
	}
	if b.Timeout == "" {
		b.Timeout = "10m"
	}
	if b.Env == nil {
		b.Env = map[string]string{}
	}
	if _, ok := b.Env["JQ_BIN"]; !ok {
		b.Env["JQ_BIN"] = "jq"
	}
	if b.Logs.Dir == "" {
		b.Logs.Dir = "autopsy"
	}
	if b.Logs.Pattern == "" {
		b.Logs.Pattern = "*"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "2.2.0"
	}

	if cfg.Advisor.Backend == "" {
		cfg.Advisor.Backend = "disabled"
	}
	if cfg.Advisor.Timeout == "" {
		cfg.Advisor.Timeout = "30s"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// applyEnv applies PORT, then API_PORT, over server.port.
func applyEnv(cfg *Config) error {
	for _, key := range []string{"PORT", "API_PORT"} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q: not a port number", key, v)
		}
		cfg.Server.Port = port
		return nil
	}
	return nil
}

// BrainTimeout returns brain.timeout as a duration. Call after Validate.
func (c *Config) BrainTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Brain.Timeout)
	return d
}

// AdvisorTimeout returns advisor.timeout as a duration. Call after Validate.
func (c *Config) AdvisorTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Advisor.Timeout)
	return d
}

// ControlDirPath returns the control dir resolved against the project root.
func (c *Config) ControlDirPath() string {
	if filepath.IsAbs(c.Brain.ControlDir) {
		return c.Brain.ControlDir
	}
	return filepath.Join(c.Brain.ProjectRoot, c.Brain.ControlDir)
}
