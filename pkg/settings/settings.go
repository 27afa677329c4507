// Package settings handles loading user configuration from
// ~/.crewgen/settings.yaml and CREWGEN_* environment overrides.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ai8future/chassis-go/v5/config"
	"gopkg.in/yaml.v3"
)

const (
	ConfigDirName  = ".crewgen"
	ConfigFileName = "settings.yaml"
	RunsDirName    = "runs"
)

// Built-in defaults, used when neither the settings file nor the
// environment sets a value.
const (
	DefaultBackend   = "gemini"
	DefaultCooldown  = 15 * time.Second
	DefaultOutputDir = "./crewgen-output"
)

// Settings holds the user configuration shared by crewgen and crewmigrate.
// Empty model fields mean "use the backend's default".
type Settings struct {
	Backend         string `yaml:"backend,omitempty"`          // gemini or claude
	Model           string `yaml:"model,omitempty"`            // Primary model
	FallbackModel   string `yaml:"fallback_model,omitempty"`   // Model retried on quota failure
	CooldownSeconds *int   `yaml:"cooldown_seconds,omitempty"` // Delay between phases, in seconds
	OutputDir       string `yaml:"output_dir,omitempty"`       // Default scaffold output directory (supports ~)
	LogLevel        string `yaml:"log_level,omitempty"`        // debug, info, warn, error

	// cooldown is the resolved delay. The file sets whole seconds;
	// CREWGEN_COOLDOWN may carry any duration.
	cooldown *time.Duration

	// Warnings collects non-fatal problems found while loading
	Warnings []string `yaml:"-"`
}

// EnvOverrides allows environment variables to override settings.yaml values.
// All fields are optional (required:"false"); only non-empty values apply.
// Merge order: defaults < settings.yaml < env vars < CLI flags.
type EnvOverrides struct {
	Backend       string `env:"CREWGEN_BACKEND" required:"false"`
	Model         string `env:"CREWGEN_MODEL" required:"false"`
	FallbackModel string `env:"CREWGEN_FALLBACK_MODEL" required:"false"`
	Cooldown      string `env:"CREWGEN_COOLDOWN" required:"false"`
	OutputDir     string `env:"CREWGEN_OUTPUT_DIR" required:"false"`
	LogLevel      string `env:"CREWGEN_LOG_LEVEL" required:"false"`
}

// GetConfigDir returns the path to the config directory (~/.crewgen)
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME") // fallback for legacy systems
	}
	return filepath.Join(home, ConfigDirName)
}

// expandTilde expands ~ to the user's home directory
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
		if home == "" {
			return path
		}
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// ParseCooldown accepts a Go duration ("20s", "1m") or a bare number of
// seconds. Negative values are rejected.
func ParseCooldown(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var d time.Duration
	if n, err := strconv.Atoi(s); err == nil {
		d = time.Duration(n) * time.Second
	} else {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return 0, fmt.Errorf("invalid cooldown %q: want seconds or a duration like 20s", s)
		}
		d = parsed
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid cooldown %q: must not be negative", s)
	}
	return d, nil
}

// Cooldown returns the configured delay between phases.
func (s *Settings) Cooldown() time.Duration {
	if s.cooldown == nil {
		return DefaultCooldown
	}
	return *s.cooldown
}

// GetDefaultSettings returns settings with built-in defaults
func GetDefaultSettings() *Settings {
	d := DefaultCooldown
	return &Settings{
		Backend:   DefaultBackend,
		OutputDir: DefaultOutputDir,
		cooldown:  &d,
	}
}

// LoadFile reads settings from path. A missing file is not an error and
// yields nil settings.
func LoadFile(path string) (*Settings, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat settings file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if s.CooldownSeconds != nil && *s.CooldownSeconds < 0 {
		return nil, fmt.Errorf("%s: cooldown_seconds must not be negative", path)
	}
	if s.CooldownSeconds != nil {
		d := time.Duration(*s.CooldownSeconds) * time.Second
		s.cooldown = &d
	}

	// Warn if settings file is world-writable (security risk)
	if mode := info.Mode().Perm(); mode&0002 != 0 {
		s.Warnings = append(s.Warnings,
			fmt.Sprintf("settings file %s is world-writable (mode %o). Run: chmod 600 %s", path, mode, path))
	}
	s.OutputDir = expandTilde(s.OutputDir)
	return &s, nil
}

// Load merges built-in defaults, the settings file in dir (the config
// directory, normally ~/.crewgen) and CREWGEN_* environment overrides.
func Load(dir string) (*Settings, error) {
	merged := GetDefaultSettings()

	file, err := LoadFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return nil, err
	}
	if file != nil {
		merged.merge(file)
	}

	if err := applyEnvOverrides(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// merge copies every value set in o over s
func (s *Settings) merge(o *Settings) {
	if o.Backend != "" {
		s.Backend = o.Backend
	}
	if o.Model != "" {
		s.Model = o.Model
	}
	if o.FallbackModel != "" {
		s.FallbackModel = o.FallbackModel
	}
	if o.cooldown != nil {
		d := *o.cooldown
		s.cooldown = &d
	}
	if o.OutputDir != "" {
		s.OutputDir = o.OutputDir
	}
	if o.LogLevel != "" {
		s.LogLevel = o.LogLevel
	}
	s.Warnings = append(s.Warnings, o.Warnings...)
}

// applyEnvOverrides loads environment variable overrides and merges them into settings.
func applyEnvOverrides(s *Settings) error {
	env := config.MustLoad[EnvOverrides]()

	o := &Settings{
		Backend:       env.Backend,
		Model:         env.Model,
		FallbackModel: env.FallbackModel,
		OutputDir:     expandTilde(env.OutputDir),
		LogLevel:      env.LogLevel,
	}
	if env.Cooldown != "" {
		d, err := ParseCooldown(env.Cooldown)
		if err != nil {
			return fmt.Errorf("CREWGEN_COOLDOWN: %w", err)
		}
		o.cooldown = &d
	}
	s.merge(o)
	return nil
}
