package runlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewgen/pkg/envelope"
	"crewgen/pkg/orchestrator"
)

func sampleRecord(dryRun bool) Record {
	return Record{
		Command:       "crewgen",
		Backend:       "gemini",
		Model:         "gemini-2.5-pro",
		FallbackModel: "gemini-2.5-flash",
		Inputs:        map[string]string{"output_dir": "/tmp/out", "description": "a todo\napp"},
		Report: &orchestrator.Report{
			Bundle:   "scaffold",
			JobID:    "20261015-101500-abcd1234",
			WorkDir:  "/tmp/out",
			DryRun:   dryRun,
			Started:  time.Date(2026, 10, 15, 10, 15, 0, 0, time.Local),
			Duration: 95 * time.Second,
			Entries: []orchestrator.Entry{
				{Phase: "Architect", Status: envelope.StatusFallback, Model: "gemini-2.5-flash", Duration: 40 * time.Second, OutputRef: "/tmp/out/ARCHITECTURE.md"},
				{Phase: "Developer", Status: envelope.StatusFailure, Model: "gemini-2.5-pro", Duration: 55 * time.Second, Error: "exit status 1"},
			},
		},
	}
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")

	path, err := Write(dir, sampleRecord(false))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20261015-101500-abcd1234.runlog"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "Job:       20261015-101500-abcd1234\n")
	assert.Contains(t, content, "Pipeline:  scaffold\n")
	assert.Contains(t, content, "Fallback:  gemini-2.5-flash\n")
	assert.Contains(t, content, "Started:   2026-10-15 10:15:00\n")
	assert.Contains(t, content, "Ended:     2026-10-15 10:16:35\n")
	assert.Contains(t, content, "Duration:  1m 35s\n")
	assert.Contains(t, content, "description: a todo app\n")
	assert.Contains(t, content, "Architect        fallback 40s      gemini-2.5-flash -> /tmp/out/ARCHITECTURE.md\n")
	assert.Contains(t, content, "  error: exit status 1\n")
	assert.Contains(t, content, "Result:    1/2 succeeded\n")

	// inputs are sorted
	assert.Less(t, strings.Index(content, "description:"), strings.Index(content, "output_dir:"))
}

func TestWrite_DryRunSkipped(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")

	path, err := Write(dir, sampleRecord(true))
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.NoDirExists(t, dir)
}

func TestWrite_NoReport(t *testing.T) {
	_, err := Write(t.TempDir(), Record{})
	assert.Error(t, err)
}
