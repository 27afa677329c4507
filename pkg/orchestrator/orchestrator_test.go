package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crewgen/pkg/bundle"
	"crewgen/pkg/display"
	"crewgen/pkg/envelope"
	"crewgen/pkg/invoker"
	"crewgen/pkg/runner"
	"crewgen/pkg/tools/gemini"
)

type call struct {
	Prompt string
	Mode   runner.Mode
}

// fakeInvoker answers each call from a queue of responses, repeating the last.
type fakeInvoker struct {
	mu        sync.Mutex
	calls     []call
	responses []*envelope.Envelope
	err       error
}

func (f *fakeInvoker) Invoke(ctx context.Context, prompt string, mode runner.Mode) (*envelope.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Prompt: prompt, Mode: mode})
	if f.err != nil {
		return envelope.New().Failure(envelope.CodeCancelled, f.err.Error()).Build(), f.err
	}
	if len(f.responses) == 0 {
		return envelope.New().Success().WithModel("m").WithOutput("out").Build(), nil
	}
	env := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	copied := *env
	return &copied, nil
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func success(output string) *envelope.Envelope {
	return envelope.New().Success().WithModel("gemini-2.5-pro").WithOutput(output).Build()
}

func testBundle() *bundle.Bundle {
	return &bundle.Bundle{
		Name:    "scaffold",
		WorkDir: "${inputs.output_dir}",
		Inputs: []bundle.Input{
			{Name: "description", Kind: bundle.KindText, Required: true},
			{Name: "output_dir", Kind: bundle.KindOutDir, Required: true, Default: "./crewgen-output"},
		},
		Phases: []bundle.Phase{
			{Name: "Architect", Mode: "json", Sink: "ARCHITECTURE.md", Prompt: "design ${inputs.description}"},
			{Name: "Developer", Mode: "text", Prompt: "build from ${phases.Architect.output}"},
			{Name: "Tester", Mode: "text", SkipFlag: runner.SkipTests, Prompt: "test"},
			{Name: "Reviewer", Mode: "text", SkipFlag: runner.SkipReview, Prompt: "review"},
		},
	}
}

func newTestOrchestrator(cfg *runner.Config, inv Invoker) (*Orchestrator, *sleepRecorder, *bytes.Buffer) {
	var buf bytes.Buffer
	o := New(cfg, inv, display.New(&buf), zap.NewNop())
	rec := &sleepRecorder{}
	o.Sleep = rec.Sleep
	o.JobID = "20260101-000000-abcdef12"
	return o, rec, &buf
}

func testConfig() *runner.Config {
	cfg := runner.NewConfig()
	cfg.Model = "gemini-2.5-pro"
	cfg.FallbackModel = "gemini-2.5-flash"
	cfg.Cooldown = 15 * time.Second
	return cfg
}

func TestRun_AllPhases(t *testing.T) {
	out := filepath.Join(t.TempDir(), "proj")
	inv := &fakeInvoker{responses: []*envelope.Envelope{success("# Arch"), success("built")}}
	o, rec, _ := newTestOrchestrator(testConfig(), inv)

	report, err := o.Run(context.Background(), testBundle(), map[string]string{
		"description": "a todo app",
		"output_dir":  out,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Architect", "Developer", "Tester", "Reviewer"}, report.Names())
	assert.Equal(t, 4, report.Succeeded())
	assert.Equal(t, 0, report.Failed())
	assert.Equal(t, out, report.WorkDir)

	// cooldown between executed phases only
	assert.Equal(t, []time.Duration{15 * time.Second, 15 * time.Second, 15 * time.Second}, rec.delays)

	require.Len(t, inv.calls, 4)
	assert.Equal(t, "design a todo app", inv.calls[0].Prompt)
	assert.Equal(t, runner.ModeJSON, inv.calls[0].Mode)
	assert.Equal(t, "build from # Arch", inv.calls[1].Prompt)

	data, err := os.ReadFile(filepath.Join(out, "ARCHITECTURE.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Arch", string(data))

	arch, ok := report.Entry("Architect")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(out, "ARCHITECTURE.md"), arch.OutputRef)
	assert.Equal(t, "gemini-2.5-pro", arch.Model)
}

func TestRun_SkipTests(t *testing.T) {
	cfg := testConfig()
	cfg.Skip[runner.SkipTests] = true
	inv := &fakeInvoker{}
	o, rec, buf := newTestOrchestrator(cfg, inv)

	report, err := o.Run(context.Background(), testBundle(), map[string]string{
		"description": "x",
		"output_dir":  t.TempDir(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Architect", "Developer", "Reviewer"}, report.Names())
	_, ok := report.Entry("Tester")
	assert.False(t, ok)
	assert.Len(t, rec.delays, 2)
	assert.Contains(t, buf.String(), "[3/3] Reviewer...")
}

func TestRun_DryRunSkipTestsAndReview(t *testing.T) {
	out := filepath.Join(t.TempDir(), "never-created")
	cfg := testConfig()
	cfg.DryRun = true
	cfg.Skip[runner.SkipTests] = true
	cfg.Skip[runner.SkipReview] = true

	tool := gemini.New()
	var buf bytes.Buffer
	printer := display.New(&buf)
	inv := invoker.New(tool, cfg, printer, zap.NewNop())
	o := New(cfg, inv, printer, zap.NewNop())
	rec := &sleepRecorder{}
	o.Sleep = rec.Sleep

	report, err := o.Run(context.Background(), testBundle(), map[string]string{
		"description": "a todo app",
		"output_dir":  out,
	})
	require.NoError(t, err)

	require.Equal(t, []string{"Architect", "Developer"}, report.Names())
	for _, e := range report.Entries {
		assert.Equal(t, envelope.StatusSuccess, e.Status, e.Phase)
		assert.Empty(t, e.OutputRef, e.Phase)
	}
	assert.True(t, report.DryRun)
	assert.Empty(t, rec.delays)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "dry run must not create the output directory")
	assert.Contains(t, buf.String(), "[dry-run] would execute: gemini")
	assert.Contains(t, buf.String(), "[dry-run] would write "+filepath.Join(out, "ARCHITECTURE.md"))
}

func TestRun_MissingRequiredInput(t *testing.T) {
	inv := &fakeInvoker{}
	o, _, _ := newTestOrchestrator(testConfig(), inv)

	_, err := o.Run(context.Background(), testBundle(), map[string]string{"description": "   "})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, inv.calls)
}

func TestRun_MissingDirectory(t *testing.T) {
	b := &bundle.Bundle{
		Name:    "migrate",
		WorkDir: "${inputs.target_dir}",
		Inputs: []bundle.Input{
			{Name: "source_dir", Kind: bundle.KindDir, Required: true},
			{Name: "target_dir", Kind: bundle.KindDir, Required: true},
		},
		Phases: []bundle.Phase{{Name: "Migrate", Prompt: "go"}},
	}
	inv := &fakeInvoker{}
	o, _, _ := newTestOrchestrator(testConfig(), inv)

	_, err := o.Run(context.Background(), b, map[string]string{
		"source_dir": t.TempDir(),
		"target_dir": filepath.Join(t.TempDir(), "missing"),
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, "target_dir")
	assert.Empty(t, inv.calls)
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	failed := envelope.New().WithModel("gemini-2.5-pro").Failure(envelope.CodeExecFailed, "exit status 1").Build()
	inv := &fakeInvoker{responses: []*envelope.Envelope{failed, success("dev")}}
	o, _, buf := newTestOrchestrator(testConfig(), inv)

	report, err := o.Run(context.Background(), testBundle(), map[string]string{
		"description": "x",
		"output_dir":  t.TempDir(),
	})
	require.NoError(t, err)

	require.Len(t, report.Entries, 4)
	assert.Equal(t, envelope.StatusFailure, report.Entries[0].Status)
	assert.Equal(t, "exit status 1", report.Entries[0].Error)
	assert.Empty(t, report.Entries[0].OutputRef)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 3, report.Succeeded())

	// the failed phase contributes an empty output
	assert.Equal(t, "build from ", inv.calls[1].Prompt)
	assert.Contains(t, buf.String(), "1 failed")
}

func TestRun_FallbackStatusRecorded(t *testing.T) {
	fb := envelope.New().Fallback().WithModel("gemini-2.5-flash").WithOutput("# Arch").Build()
	inv := &fakeInvoker{responses: []*envelope.Envelope{fb, success("x")}}
	o, _, _ := newTestOrchestrator(testConfig(), inv)

	report, err := o.Run(context.Background(), testBundle(), map[string]string{
		"description": "x",
		"output_dir":  t.TempDir(),
	})
	require.NoError(t, err)

	arch, _ := report.Entry("Architect")
	assert.Equal(t, envelope.StatusFallback, arch.Status)
	assert.Equal(t, "gemini-2.5-flash", arch.Model)
	assert.NotEmpty(t, arch.OutputRef)
	assert.Equal(t, 4, report.Succeeded())
}

func TestRun_SinkWriteFailure(t *testing.T) {
	out := t.TempDir()
	// a directory where the sink file should go makes the write fail
	require.NoError(t, os.Mkdir(filepath.Join(out, "ARCHITECTURE.md"), 0755))

	inv := &fakeInvoker{}
	o, _, _ := newTestOrchestrator(testConfig(), inv)

	report, err := o.Run(context.Background(), testBundle(), map[string]string{
		"description": "x",
		"output_dir":  out,
	})
	require.NoError(t, err)

	arch, _ := report.Entry("Architect")
	assert.Equal(t, envelope.StatusFailure, arch.Status)
	assert.Empty(t, arch.OutputRef)
	assert.NotEmpty(t, arch.Error)
}

func TestRun_StreamUpgradesTextPhases(t *testing.T) {
	cfg := testConfig()
	cfg.Stream = true
	inv := &fakeInvoker{}
	o, _, _ := newTestOrchestrator(cfg, inv)

	_, err := o.Run(context.Background(), testBundle(), map[string]string{
		"description": "x",
		"output_dir":  t.TempDir(),
	})
	require.NoError(t, err)

	require.Len(t, inv.calls, 4)
	assert.Equal(t, runner.ModeJSON, inv.calls[0].Mode)
	for _, c := range inv.calls[1:] {
		assert.Equal(t, runner.ModeStream, c.Mode)
	}
}

func TestRun_CancelledDuringCooldown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inv := &fakeInvoker{}
	o, _, _ := newTestOrchestrator(testConfig(), inv)
	o.Sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	report, err := o.Run(ctx, testBundle(), map[string]string{
		"description": "x",
		"output_dir":  t.TempDir(),
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"Architect"}, report.Names())
	assert.Len(t, inv.calls, 1)
}

func TestRun_CancelledDuringInvoke(t *testing.T) {
	inv := &fakeInvoker{err: context.Canceled}
	o, _, _ := newTestOrchestrator(testConfig(), inv)

	report, err := o.Run(context.Background(), testBundle(), map[string]string{
		"description": "x",
		"output_dir":  t.TempDir(),
	})
	require.True(t, errors.Is(err, context.Canceled))
	require.Len(t, report.Entries, 1)
	assert.Equal(t, envelope.StatusFailure, report.Entries[0].Status)
}

func TestRun_CreatesOutputDirWithoutTouchingConfig(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "proj")
	cfg := testConfig()
	o, _, _ := newTestOrchestrator(cfg, &fakeInvoker{})

	_, err := o.Run(context.Background(), testBundle(), map[string]string{
		"description": "x",
		"output_dir":  out,
	})
	require.NoError(t, err)
	assert.Empty(t, cfg.WorkDir)
	assert.DirExists(t, out)
}

func TestPrepareInputs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	b := &bundle.Bundle{Inputs: []bundle.Input{
		{Name: "src", Kind: bundle.KindDir, Required: true},
		{Name: "lang", Default: "auto-detect"},
		{Name: "note"},
	}}

	t.Run("defaults and absolute paths", func(t *testing.T) {
		got, err := PrepareInputs(b, map[string]string{"src": dir, "extra": "kept"})
		require.NoError(t, err)
		assert.Equal(t, dir, got["src"])
		assert.Equal(t, "auto-detect", got["lang"])
		assert.Equal(t, "", got["note"])
		assert.Equal(t, "kept", got["extra"])
	})

	t.Run("file is not a directory", func(t *testing.T) {
		_, err := PrepareInputs(b, map[string]string{"src": file})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.ErrorContains(t, err, "not a directory")
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := PrepareInputs(b, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestResolveWorkDir(t *testing.T) {
	b := &bundle.Bundle{WorkDir: "${inputs.target_dir}"}
	assert.Equal(t, "/tmp/t", ResolveWorkDir(b, map[string]string{"target_dir": "/tmp/t"}))
	assert.Equal(t, "", ResolveWorkDir(&bundle.Bundle{}, nil))
}

func TestReport(t *testing.T) {
	r := &Report{Entries: []Entry{
		{Phase: "A", Status: envelope.StatusSuccess},
		{Phase: "B", Status: envelope.StatusFallback},
		{Phase: "C", Status: envelope.StatusFailure},
	}}
	assert.Equal(t, []string{"A", "B", "C"}, r.Names())
	assert.Equal(t, 2, r.Succeeded())
	assert.Equal(t, 1, r.Failed())
	_, ok := r.Entry("D")
	assert.False(t, ok)

	id := GenerateJobID()
	assert.Regexp(t, `^\d{8}-\d{6}-[0-9a-f]{8}$`, id)
}
