// Package runlog writes a plain-text .runlog file describing a finished run.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"crewgen/pkg/display"
	"crewgen/pkg/orchestrator"
)

// Record is everything a run log describes.
type Record struct {
	Command       string // crewgen or crewmigrate
	Backend       string
	Model         string
	FallbackModel string
	Inputs        map[string]string
	Report        *orchestrator.Report
}

// Path returns the run log location for a job inside dir.
func Path(dir, jobID string) string {
	return filepath.Join(dir, jobID+".runlog")
}

// Write renders rec into dir/{job id}.runlog and returns the path. Dry runs
// are never logged.
func Write(dir string, rec Record) (string, error) {
	if rec.Report == nil {
		return "", fmt.Errorf("runlog: no report")
	}
	if rec.Report.DryRun {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create runlog directory: %w", err)
	}

	path := Path(dir, rec.Report.JobID)
	if err := os.WriteFile(path, []byte(Render(rec)), 0644); err != nil {
		return "", fmt.Errorf("could not write runlog: %w", err)
	}
	return path, nil
}

// Render formats rec as the run log body.
func Render(rec Record) string {
	r := rec.Report
	ended := r.Started.Add(r.Duration)

	var lines []string
	lines = append(lines, fmt.Sprintf("Command:   %s", rec.Command))
	lines = append(lines, fmt.Sprintf("Job:       %s", r.JobID))
	lines = append(lines, fmt.Sprintf("Pipeline:  %s", r.Bundle))
	lines = append(lines, fmt.Sprintf("Backend:   %s", rec.Backend))
	lines = append(lines, fmt.Sprintf("Model:     %s", rec.Model))
	if rec.FallbackModel != "" {
		lines = append(lines, fmt.Sprintf("Fallback:  %s", rec.FallbackModel))
	}
	if r.WorkDir != "" {
		lines = append(lines, fmt.Sprintf("Workdir:   %s", r.WorkDir))
	}
	lines = append(lines, fmt.Sprintf("Started:   %s", r.Started.Format("2006-01-02 15:04:05")))
	lines = append(lines, fmt.Sprintf("Ended:     %s", ended.Format("2006-01-02 15:04:05")))
	lines = append(lines, fmt.Sprintf("Duration:  %s", display.FormatDuration(r.Duration)))

	if len(rec.Inputs) > 0 {
		lines = append(lines, "", "--- Inputs ---")
		names := make([]string, 0, len(rec.Inputs))
		for name := range rec.Inputs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			lines = append(lines, fmt.Sprintf("%s: %s", name, oneLine(rec.Inputs[name])))
		}
	}

	lines = append(lines, "", "--- Phases ---")
	for _, e := range r.Entries {
		line := fmt.Sprintf("%-16s %-8s %-8s", e.Phase, e.Status, display.FormatDuration(e.Duration))
		if e.Model != "" {
			line += " " + e.Model
		}
		if e.OutputRef != "" {
			line += " -> " + e.OutputRef
		}
		lines = append(lines, strings.TrimRight(line, " "))
		if e.Error != "" {
			lines = append(lines, "  error: "+oneLine(e.Error))
		}
	}
	lines = append(lines, "", fmt.Sprintf("Result:    %d/%d succeeded", r.Succeeded(), len(r.Entries)))

	return strings.Join(lines, "\n") + "\n"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
