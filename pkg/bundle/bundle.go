package bundle

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Input kinds
const (
	KindText   = "text"   // free-form string
	KindDir    = "dir"    // directory that must already exist
	KindOutDir = "outdir" // directory created before the first phase
)

// Phase modes
const (
	ModeText   = "text"
	ModeJSON   = "json"
	ModeStream = "stream"
)

// Bundle is an ordered pipeline of phases run against one external CLI.
type Bundle struct {
	Name        string  `yaml:"name"`
	Title       string  `yaml:"title,omitempty"`
	Description string  `yaml:"description"`
	WorkDir     string  `yaml:"workdir,omitempty"` // template, e.g. ${inputs.output_dir}
	Inputs      []Input `yaml:"inputs,omitempty"`
	Phases      []Phase `yaml:"phases"`
	SourcePath  string  `yaml:"-"` // Path to bundle file (not serialized)
}

type Input struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind,omitempty"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description,omitempty"`
	Default     string `yaml:"default,omitempty"`
}

type Phase struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Mode        string `yaml:"mode,omitempty"`      // text, json, stream
	Prompt      string `yaml:"prompt"`              // template
	Sink        string `yaml:"sink,omitempty"`      // file in the workdir; empty displays the response
	SkipFlag    string `yaml:"skip_flag,omitempty"` // phase omitted when this skip flag is set
}

// Input returns the named input definition.
func (b *Bundle) Input(name string) (Input, bool) {
	for _, in := range b.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}

// DisplayTitle returns the banner title.
func (b *Bundle) DisplayTitle() string {
	if b.Title != "" {
		return b.Title
	}
	return strings.ToUpper(b.Name)
}

// Validate checks structural rules a bundle file must follow.
func (b *Bundle) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("bundle has no name")
	}
	if len(b.Phases) == 0 {
		return fmt.Errorf("bundle %s: no phases", b.Name)
	}

	inputs := make(map[string]bool)
	for _, in := range b.Inputs {
		if in.Name == "" {
			return fmt.Errorf("bundle %s: input without name", b.Name)
		}
		if inputs[in.Name] {
			return fmt.Errorf("bundle %s: duplicate input %q", b.Name, in.Name)
		}
		inputs[in.Name] = true
		switch in.Kind {
		case "", KindText, KindDir, KindOutDir:
		default:
			return fmt.Errorf("bundle %s: input %s: unknown kind %q", b.Name, in.Name, in.Kind)
		}
	}

	phases := make(map[string]bool)
	for i, p := range b.Phases {
		if p.Name == "" {
			return fmt.Errorf("bundle %s: phase %d has no name", b.Name, i+1)
		}
		if phases[p.Name] {
			return fmt.Errorf("bundle %s: duplicate phase %q", b.Name, p.Name)
		}
		phases[p.Name] = true
		if strings.TrimSpace(p.Prompt) == "" {
			return fmt.Errorf("bundle %s: phase %s has an empty prompt", b.Name, p.Name)
		}
		switch p.Mode {
		case "", ModeText, ModeJSON, ModeStream:
		default:
			return fmt.Errorf("bundle %s: phase %s: unknown mode %q", b.Name, p.Name, p.Mode)
		}
		if p.Sink != "" && (filepath.Base(p.Sink) != p.Sink || p.Sink == "." || p.Sink == "..") {
			return fmt.Errorf("bundle %s: phase %s: sink must be a file name, got %q", b.Name, p.Name, p.Sink)
		}
	}
	return nil
}
