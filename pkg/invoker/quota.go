package invoker

import (
	"fmt"
	"regexp"
	"strings"

	"crewgen/pkg/display"
)

// quotaPattern matches the ways gemini and claude report exhausted quota or
// rate limiting on stderr, in json errors, and in stream error events.
var quotaPattern = regexp.MustCompile(`(?i)(quota|resource_exhausted|rate[ _-]?limit|too many requests|\b429\b)`)

// IsQuotaError reports whether failure output indicates a quota or rate limit.
func IsQuotaError(text string) bool {
	return quotaPattern.MatchString(text)
}

// QuotaError is a failed call whose output matched the quota pattern.
type QuotaError struct {
	Model  string
	Detail string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exhausted for model %s: %s", e.Model, e.Detail)
}

// ExecError is any other failed call.
type ExecError struct {
	Model    string
	ExitCode int
	Detail   string
	Err      error
}

func (e *ExecError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s failed: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("%s failed: %v: %s", e.Model, e.Err, e.Detail)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// classify wraps a failed call's error, choosing QuotaError when any of the
// captured texts matches the quota pattern.
func classify(model string, exitCode int, err error, texts ...string) error {
	detail := summarize(texts...)
	for _, t := range texts {
		if IsQuotaError(t) {
			return &QuotaError{Model: model, Detail: detail}
		}
	}
	return &ExecError{Model: model, ExitCode: exitCode, Detail: detail, Err: err}
}

// summarize returns the last non-empty line across texts, truncated.
func summarize(texts ...string) string {
	var last string
	for _, t := range texts {
		for _, line := range strings.Split(t, "\n") {
			if l := strings.TrimSpace(line); l != "" {
				last = l
			}
		}
	}
	return display.Truncate(last, 200)
}
