// Package bundle provides loading of pipeline bundles: YAML-defined phase
// sequences with inputs and prompt templates. Built-in bundles are embedded;
// a file of the same name in the user bundle directory overrides them.
package bundle

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinBundles embed.FS

// UserDir returns the directory searched for user bundles
// (~/.crewgen/pipelines). It is a variable so tests can redirect it.
var UserDir = func() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, ".crewgen", "pipelines")
}

// validBundleNamePattern matches alphanumeric, hyphens, underscores only
var validBundleNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// validateBundleName checks if a bundle name is safe to use in file paths
func validateBundleName(name string) error {
	if name == "" {
		return fmt.Errorf("invalid bundle name: empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("invalid bundle name: too long (max 100 chars)")
	}
	if !validBundleNamePattern.MatchString(name) {
		return fmt.Errorf("invalid bundle name: must contain only alphanumeric, hyphens, underscores")
	}
	return nil
}

// Load returns the named bundle, preferring a user override.
func Load(name string) (*Bundle, error) {
	// Validate bundle name to prevent path traversal
	if err := validateBundleName(name); err != nil {
		return nil, err
	}

	userPath := filepath.Join(UserDir(), name+".yaml")
	if data, err := os.ReadFile(userPath); err == nil {
		b, err := parse(data, name)
		if err != nil {
			return nil, err
		}
		b.SourcePath = userPath
		return b, nil
	}

	data, err := builtinBundles.ReadFile("builtin/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("bundle not found: %s", name)
	}
	b, err := parse(data, name)
	if err != nil {
		return nil, fmt.Errorf("builtin %w", err)
	}
	b.SourcePath = "builtin/" + name + ".yaml"
	return b, nil
}

func parse(data []byte, name string) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("bundle %s: invalid yaml: %w", name, err)
	}
	if b.Name == "" {
		b.Name = name
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// List returns the names of all builtin and user bundles, sorted and unique.
func List() ([]string, error) {
	seen := make(map[string]bool)

	entries, err := builtinBundles.ReadDir("builtin")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".yaml" {
			seen[strings.TrimSuffix(e.Name(), ".yaml")] = true
		}
	}

	if entries, err := os.ReadDir(UserDir()); err == nil {
		for _, e := range entries {
			name := strings.TrimSuffix(e.Name(), ".yaml")
			if filepath.Ext(e.Name()) == ".yaml" && validateBundleName(name) == nil {
				seen[name] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
