// Package envelope carries the outcome of one external invocation from the
// invoker back to the phase runner.
package envelope

import "time"

type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusFallback Status = "fallback" // succeeded on the fallback model
	StatusSkipped  Status = "skipped"
)

// Succeeded reports whether the status counts as a completed phase.
func (s Status) Succeeded() bool {
	return s == StatusSuccess || s == StatusFallback
}

type Envelope struct {
	Status    Status     `json:"status"`
	Output    string     `json:"output,omitempty"`
	Model     string     `json:"model,omitempty"`
	OutputRef string     `json:"output_ref,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Metrics   *Metrics   `json:"metrics,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Metrics struct {
	Tool       string `json:"tool"`
	DurationMs int64  `json:"duration_ms"`
	Attempts   int    `json:"attempts"`
}

// Error codes attached to failed envelopes.
const (
	CodeExecFailed  = "EXEC_FAILED"
	CodeQuota       = "QUOTA_EXCEEDED"
	CodeStartFailed = "START_FAILED"
	CodeWriteFailed = "WRITE_FAILED"
	CodeCancelled   = "CANCELLED"
)

// ErrorMessage returns the failure message, or "" for envelopes without one.
func (e *Envelope) ErrorMessage() string {
	if e == nil || e.Error == nil {
		return ""
	}
	return e.Error.Message
}

// Builder pattern
type Builder struct {
	env *Envelope
}

func New() *Builder {
	return &Builder{env: &Envelope{}}
}

func (b *Builder) metrics() *Metrics {
	if b.env.Metrics == nil {
		b.env.Metrics = &Metrics{}
	}
	return b.env.Metrics
}

func (b *Builder) WithTool(name string) *Builder {
	b.metrics().Tool = name
	return b
}

func (b *Builder) Success() *Builder {
	b.env.Status = StatusSuccess
	b.env.Error = nil
	return b
}

// Fallback marks the envelope as a success obtained with the fallback model.
func (b *Builder) Fallback() *Builder {
	b.env.Status = StatusFallback
	b.env.Error = nil
	return b
}

func (b *Builder) Skipped() *Builder {
	b.env.Status = StatusSkipped
	return b
}

func (b *Builder) Failure(code, message string) *Builder {
	b.env.Status = StatusFailure
	b.env.Error = &ErrorInfo{Code: code, Message: message}
	return b
}

func (b *Builder) WithOutput(text string) *Builder {
	b.env.Output = text
	return b
}

func (b *Builder) WithModel(model string) *Builder {
	b.env.Model = model
	return b
}

func (b *Builder) WithOutputRef(path string) *Builder {
	b.env.OutputRef = path
	return b
}

func (b *Builder) WithDuration(d time.Duration) *Builder {
	b.metrics().DurationMs = d.Milliseconds()
	return b
}

func (b *Builder) WithAttempts(n int) *Builder {
	b.metrics().Attempts = n
	return b
}

func (b *Builder) Build() *Envelope {
	return b.env
}
