// Package claude provides the Claude Code CLI backend.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"crewgen/pkg/runner"
)

// Compile-time interface satisfaction check
var _ runner.Tool = (*Tool)(nil)

// Tool implements runner.Tool for the claude CLI
type Tool struct {
	binary string
}

// New creates a new Claude tool
func New() *Tool {
	return &Tool{binary: "claude"}
}

// WithBinary returns a copy that executes the given binary path.
func (t *Tool) WithBinary(path string) *Tool {
	return &Tool{binary: path}
}

func (t *Tool) Name() string {
	return "claude"
}

func (t *Tool) BinaryName() string {
	return t.binary
}

func (t *Tool) ValidModels() []string {
	return []string{"sonnet", "opus", "haiku"}
}

func (t *Tool) DefaultModel() string {
	return "sonnet"
}

func (t *Tool) FallbackModel() string {
	return "haiku"
}

// BuildCommand constructs the exec.Cmd for one request
func (t *Tool) BuildCommand(ctx context.Context, req runner.Request) *exec.Cmd {
	args := []string{
		"-p", req.Prompt,
		"--dangerously-skip-permissions",
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}

	switch req.Mode {
	case runner.ModeJSON:
		args = append(args, "--output-format", "json")
	case runner.ModeStream:
		// stream-json requires --verbose
		args = append(args, "--output-format", "stream-json", "--verbose")
	default:
		args = append(args, "--output-format", "text")
	}

	cmd := exec.CommandContext(ctx, t.binary, args...)

	// Claude has no -C flag
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}
	return cmd
}

type jsonResult struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

// ParseJSONResponse extracts "result" from claude's json output
func (t *Tool) ParseJSONResponse(data []byte) (string, error) {
	var res jsonResult
	if err := json.Unmarshal(data, &res); err != nil {
		return "", fmt.Errorf("invalid claude json output: %w", err)
	}
	if res.IsError {
		msg := strings.TrimSpace(res.Result)
		if msg == "" {
			msg = "claude reported an error (" + res.Subtype + ")"
		}
		return "", errors.New(msg)
	}
	return res.Result, nil
}

func (t *Tool) SecurityWarning() []string {
	return []string{
		"Phases run Claude Code with --dangerously-skip-permissions,",
		"which disables all permission prompts.",
	}
}
