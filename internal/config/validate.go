package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/robfig/cron/v3"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	recognizedBackends = map[string]bool{"disabled": true, "ollama": true, "openai": true}
	recognizedLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	recognizedFormats  = map[string]bool{"json": true, "console": true}
)

// Validate checks a Config for errors. It returns all validation errors found
// (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	b := cfg.Brain
	if b.Interpreter == "" {
		add("brain.interpreter", "is required")
	}
	validateDuration("brain.timeout", b.Timeout, &errs)
	if b.MaxConcurrent < 0 {
		add("brain.max_concurrent", "must be >= 0, got %d", b.MaxConcurrent)
	}
	for k := range b.Env {
		if k == "" || strings.ContainsAny(k, "= \t\n") {
			add("brain.env", "invalid variable name %q", k)
		}
	}
	if strings.Contains(b.Logs.Dir, "..") {
		add("brain.logs.dir", "must stay inside the control dir")
	}
	if !doublestar.ValidatePattern(b.Logs.Pattern) {
		add("brain.logs.pattern", "invalid glob %q", b.Logs.Pattern)
	}

	if p := cfg.Server.Port; p < 1 || p > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", p)
	}

	if !recognizedBackends[cfg.Advisor.Backend] {
		add("advisor.backend", "unknown backend %q (valid: disabled, ollama, openai)", cfg.Advisor.Backend)
	}
	validateDuration("advisor.timeout", cfg.Advisor.Timeout, &errs)

	if spec := cfg.Schedule.Scan; spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			add("schedule.scan", "invalid cron spec %q: %v", spec, err)
		}
	}

	if !recognizedLevels[cfg.Log.Level] {
		add("log.level", "unknown level %q", cfg.Log.Level)
	}
	if !recognizedFormats[cfg.Log.Format] {
		add("log.format", "unknown format %q (valid: json, console)", cfg.Log.Format)
	}

	return errs
}

func validateDuration(field, value string, errs *[]ValidationError) {
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
		return
	}
	if d <= 0 {
		*errs = append(*errs, ValidationError{Field: field, Message: "must be positive"})
	}
}
