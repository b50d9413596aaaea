package config

// Config is the top-level configuration parsed from repobrain.yaml.
type Config struct {
	Brain    BrainConfig    `yaml:"brain"`
	Server   ServerConfig   `yaml:"server"`
	History  HistoryConfig  `yaml:"history"`
	Advisor  AdvisorConfig  `yaml:"advisor"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`

	// Path is the file the config was loaded from; empty for built-in defaults.
	Path string `yaml:"-"`
}

// BrainConfig locates and runs the pipeline scripts.
type BrainConfig struct {
	ProjectRoot   string            `yaml:"project_root"`
	ControlDir    string            `yaml:"control_dir"` // relative to project_root unless absolute
	Interpreter   string            `yaml:"interpreter"`
	Timeout       string            `yaml:"timeout"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Env           map[string]string `yaml:"env"`
	Logs          LogsConfig        `yaml:"logs"`
}

// LogsConfig locates autopsy logs inside the control dir.
type LogsConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Version string `yaml:"version"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled"`
	DSN     string `yaml:"dsn"` // empty: ~/.repobrain/history.db; postgres:// URLs use postgres
}

// IsEnabled reports whether history is on. It defaults to true.
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// AdvisorConfig selects the text-generation backend.
type AdvisorConfig struct {
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// ScheduleConfig holds cron specs for unattended work.
type ScheduleConfig struct {
	Scan string `yaml:"scan"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
