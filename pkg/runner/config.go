package runner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"crewgen/pkg/display"
)

// Skip flag names understood by the pipelines.
const (
	SkipTests  = "tests"
	SkipReview = "review"
)

// MaxDisplayTaskLen bounds the task shown in the banner, in runes.
const MaxDisplayTaskLen = 50

// Config holds the run configuration. It is built once from settings,
// environment and flags and not modified while phases execute.
type Config struct {
	Backend       string          // Tool name (gemini, claude)
	Model         string          // Primary model
	FallbackModel string          // Model retried on quota failure; empty disables retry
	Cooldown      time.Duration   // Delay between executed phases
	Skip          map[string]bool // Skip flags (tests, review)
	DryRun        bool            // Report actions without executing or writing
	Stream        bool            // Use stream mode for text phases
	WorkDir       string          // Working directory of the external program
	Verbose       bool            // Debug logging
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		Skip: make(map[string]bool),
	}
}

// Skipped reports whether the named skip flag is set.
func (c *Config) Skipped(flag string) bool {
	return flag != "" && c.Skip[flag]
}

// ModeFor returns the effective mode of a phase declared with mode m.
// --stream upgrades text phases; json phases keep their buffered response.
func (c *Config) ModeFor(m Mode) Mode {
	if c.Stream && m == ModeText {
		return ModeStream
	}
	return m
}

// WithWorkDir returns a copy of c whose external program runs in dir.
func (c *Config) WithWorkDir(dir string) *Config {
	cp := *c
	cp.WorkDir = dir
	return &cp
}

// Validate checks invariants that flag parsing cannot express.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative: %s", c.Cooldown)
	}
	return nil
}

// SkipList returns the active skip flags in sorted order.
func (c *Config) SkipList() []string {
	var names []string
	for name, on := range c.Skip {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// TruncateTask shortens a task description for single-line display.
func TruncateTask(task string) string {
	task = strings.Join(strings.Fields(task), " ")
	return display.Truncate(task, MaxDisplayTaskLen)
}
