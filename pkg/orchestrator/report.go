package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"crewgen/pkg/envelope"
)

// Entry is the outcome of one executed phase.
type Entry struct {
	Phase     string          `json:"phase"`
	Status    envelope.Status `json:"status"`
	Model     string          `json:"model,omitempty"`
	Duration  time.Duration   `json:"duration"`
	OutputRef string          `json:"output_ref,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Report is the ordered record of a run. Skipped phases do not appear.
type Report struct {
	Bundle   string        `json:"bundle"`
	JobID    string        `json:"job_id"`
	WorkDir  string        `json:"workdir"`
	DryRun   bool          `json:"dry_run"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Entries  []Entry       `json:"entries"`
}

// GenerateJobID creates YYYYMMDD-HHMMSS-{first uuid group}
func GenerateJobID() string {
	return time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// Names returns the phase names in execution order.
func (r *Report) Names() []string {
	names := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		names[i] = e.Phase
	}
	return names
}

// Entry returns the entry for the named phase.
func (r *Report) Entry(phase string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Phase == phase {
			return e, true
		}
	}
	return Entry{}, false
}

// Succeeded counts entries that completed, including fallback successes.
func (r *Report) Succeeded() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status.Succeeded() {
			n++
		}
	}
	return n
}

// Failed counts failed entries.
func (r *Report) Failed() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == envelope.StatusFailure {
			n++
		}
	}
	return n
}
