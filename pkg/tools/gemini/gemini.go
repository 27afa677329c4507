// Package gemini provides the Gemini CLI backend.
package gemini

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

// Tool implements runner.Tool for the gemini CLI
type Tool struct {
	binary string
}

// New creates a new Gemini tool
func New() *Tool {
	return &Tool{binary: "gemini"}
}

// WithBinary returns a copy that executes the given binary path.
func (t *Tool) WithBinary(path string) *Tool {
	return &Tool{binary: path}
}

// Name returns the backend's name
func (t *Tool) Name() string {
	return "gemini"
}

// BinaryName returns the CLI binary name
func (t *Tool) BinaryName() string {
	return t.binary
}

// ValidModels returns the list of known model names
func (t *Tool) ValidModels() []string {
	return []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-3-pro-preview", "gemini-3-flash-preview"}
}

// DefaultModel returns the default model name
func (t *Tool) DefaultModel() string {
	return "gemini-2.5-pro"
}

// FallbackModel returns the model used after a quota failure
func (t *Tool) FallbackModel() string {
	return "gemini-2.5-flash"
}

// outputFormat maps a mode to gemini's --output-format value
func outputFormat(m runner.Mode) string {
	switch m {
	case runner.ModeJSON:
		return "json"
	case runner.ModeStream:
		return "stream-json"
	default:
		return "text"
	}
}

// BuildCommand constructs the exec.Cmd for one request
func (t *Tool) BuildCommand(ctx context.Context, req runner.Request) *exec.Cmd {
	args := []string{
		"-p", req.Prompt,
		"--output-format", outputFormat(req.Mode),
		"--yolo",
	}

	// Always pass model explicitly; the gemini CLI's own default may differ from ours
	if req.Model != "" {
		args = append(args, "-m", req.Model)
	}

	cmd := exec.CommandContext(ctx, t.binary, args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}
	return cmd
}

type jsonResponse struct {
	Response string `json:"response"`
	Error    *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ParseJSONResponse extracts the "response" field of gemini's json output
func (t *Tool) ParseJSONResponse(data []byte) (string, error) {
	var resp jsonResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("invalid gemini json output: %w", err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", errors.New(strings.TrimSpace(resp.Error.Message))
	}
	return resp.Response, nil
}

// SecurityWarning returns the security warning text
func (t *Tool) SecurityWarning() []string {
	return []string{
		"Phases run the Gemini CLI with --yolo mode,",
		"which auto-approves all tool operations.",
	}
}
