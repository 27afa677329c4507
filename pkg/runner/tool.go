// Package runner defines the run configuration shared by both pipelines and
// the Tool abstraction each external AI CLI backend implements.
package runner

import (
	"context"
	"os/exec"
)

// Mode selects how an external call's response is consumed.
type Mode string

const (
	ModeText   Mode = "text"   // raw stdout is the response
	ModeJSON   Mode = "json"   // one JSON document, response field extracted
	ModeStream Mode = "stream" // line-delimited typed events
)

// ParseMode converts a pipeline mode string, defaulting to text.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeJSON:
		return ModeJSON
	case ModeStream:
		return ModeStream
	default:
		return ModeText
	}
}

// Request is one call to the external program.
type Request struct {
	Prompt  string
	Model   string
	Mode    Mode
	WorkDir string
}

// Tool defines the interface that each AI CLI (gemini, claude) must implement.
type Tool interface {
	// Name returns the backend's name as used by --backend
	Name() string

	// BinaryName returns the CLI binary name to execute
	BinaryName() string

	// ValidModels returns the list of known model names for this tool
	ValidModels() []string

	// DefaultModel returns the model used when none is configured
	DefaultModel() string

	// FallbackModel returns the model retried after a quota failure
	FallbackModel() string

	// BuildCommand constructs the exec.Cmd for one request
	BuildCommand(ctx context.Context, req Request) *exec.Cmd

	// ParseJSONResponse extracts the response text from json-mode output
	ParseJSONResponse(data []byte) (string, error)

	// SecurityWarning returns the warning shown before phases run
	SecurityWarning() []string
}
