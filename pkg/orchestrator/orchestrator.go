// Package orchestrator runs a pipeline bundle phase by phase against one
// external AI CLI, threading each phase's output into later prompts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"crewgen/pkg/bundle"
	"crewgen/pkg/display"
	"crewgen/pkg/envelope"
	"crewgen/pkg/runner"
)

// ErrInvalidInput marks input problems detected before any phase runs.
var ErrInvalidInput = errors.New("invalid input")

// Invoker executes one prompt against the configured external program.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, mode runner.Mode) (*envelope.Envelope, error)
}

type Orchestrator struct {
	cfg     *runner.Config
	invoker Invoker
	printer *display.Printer
	logger  *zap.Logger

	// Sleep waits out the cooldown between phases
	Sleep runner.SleepFunc
	// JobID overrides the generated job id when set
	JobID string
}

func New(cfg *runner.Config, inv Invoker, printer *display.Printer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		invoker: inv,
		printer: printer,
		logger:  logger,
		Sleep:   runner.Sleep,
	}
}

// PrepareInputs applies defaults and checks every declared input. Directory
// inputs must exist; directory and output inputs become absolute paths.
// Inputs the bundle does not declare are passed through unchanged.
func PrepareInputs(b *bundle.Bundle, raw map[string]string) (map[string]string, error) {
	inputs := make(map[string]string, len(raw)+len(b.Inputs))
	for k, v := range raw {
		inputs[k] = v
	}

	for _, in := range b.Inputs {
		v := strings.TrimSpace(inputs[in.Name])
		if v == "" {
			v = in.Default
		}
		if v == "" {
			if in.Required {
				return nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, in.Name)
			}
			inputs[in.Name] = ""
			continue
		}

		switch in.Kind {
		case bundle.KindDir:
			info, err := os.Stat(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: directory %s does not exist", ErrInvalidInput, in.Name, v)
			}
			if !info.IsDir() {
				return nil, fmt.Errorf("%w: %s: %s is not a directory", ErrInvalidInput, in.Name, v)
			}
			fallthrough
		case bundle.KindOutDir:
			abs, err := filepath.Abs(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, in.Name, err)
			}
			v = abs
		}
		inputs[in.Name] = v
	}
	return inputs, nil
}

// ResolveWorkDir expands the bundle's workdir template. An empty template
// means the current directory.
func ResolveWorkDir(b *bundle.Bundle, inputs map[string]string) string {
	if b.WorkDir == "" {
		return ""
	}
	return NewContext(inputs).Resolve(b.WorkDir)
}

func (o *Orchestrator) skipped(p bundle.Phase) bool {
	return o.cfg.Skipped(p.SkipFlag)
}

// Run validates the inputs and executes every phase not excluded by a skip
// flag, in declaration order. A failed phase is recorded and the run
// continues; a cancelled context stops it. The returned error is non-nil
// only for input problems, setup failures and cancellation.
func (o *Orchestrator) Run(ctx context.Context, b *bundle.Bundle, raw map[string]string) (*Report, error) {
	inputs, err := PrepareInputs(b, raw)
	if err != nil {
		return nil, err
	}

	workDir := ResolveWorkDir(b, inputs)
	if !o.cfg.DryRun {
		for _, in := range b.Inputs {
			if in.Kind != bundle.KindOutDir || inputs[in.Name] == "" {
				continue
			}
			if err := os.MkdirAll(inputs[in.Name], 0755); err != nil {
				return nil, fmt.Errorf("create %s: %w", in.Name, err)
			}
		}
	}
	jobID := o.JobID
	if jobID == "" {
		jobID = GenerateJobID()
	}
	report := &Report{
		Bundle:  b.Name,
		JobID:   jobID,
		WorkDir: workDir,
		DryRun:  o.cfg.DryRun,
		Started: time.Now(),
	}

	progress := newProgressDisplay(o.printer, b, o.skipped, jobID, workDir, o.cfg.DryRun)
	progress.header()

	o.logger.Info("run started",
		zap.String("bundle", b.Name),
		zap.String("job", jobID),
		zap.String("workdir", workDir),
		zap.Bool("dry_run", o.cfg.DryRun))

	pctx := NewContext(inputs)
	executed := 0

	for i, phase := range b.Phases {
		if o.skipped(phase) {
			o.logger.Debug("phase skipped", zap.String("phase", phase.Name), zap.String("flag", phase.SkipFlag))
			continue
		}

		if executed > 0 && !o.cfg.DryRun {
			progress.cooldown(o.cfg.Cooldown)
			if err := o.Sleep(ctx, o.cfg.Cooldown); err != nil {
				return o.finish(report, progress), err
			}
		}
		executed++

		progress.start(i, phase.Description)
		entry, env, err := o.runPhase(ctx, phase, pctx, workDir)
		pctx.SetResult(phase.Name, env)
		report.Entries = append(report.Entries, entry)
		progress.complete(i, entry)

		if err != nil {
			o.logger.Warn("run cancelled", zap.String("phase", phase.Name), zap.Error(err))
			return o.finish(report, progress), err
		}
		if ctx.Err() != nil {
			return o.finish(report, progress), ctx.Err()
		}
	}

	return o.finish(report, progress), nil
}

func (o *Orchestrator) finish(r *Report, progress *progressDisplay) *Report {
	r.Duration = time.Since(r.Started)
	progress.summary(r)
	o.logger.Info("run finished",
		zap.String("job", r.JobID),
		zap.Int("succeeded", r.Succeeded()),
		zap.Int("failed", r.Failed()),
		zap.Duration("duration", r.Duration))
	return r
}

// runPhase invokes one phase and persists or displays its response.
func (o *Orchestrator) runPhase(ctx context.Context, phase bundle.Phase, pctx *Context, workDir string) (Entry, *envelope.Envelope, error) {
	start := time.Now()
	prompt := pctx.Resolve(phase.Prompt)
	mode := o.cfg.ModeFor(runner.ParseMode(phase.Mode))

	o.logger.Debug("phase started",
		zap.String("phase", phase.Name),
		zap.String("mode", string(mode)),
		zap.Int("prompt_len", len(prompt)))

	env, err := o.invoker.Invoke(ctx, prompt, mode)
	if env == nil {
		env = envelope.New().Failure(envelope.CodeCancelled, errorText(err)).Build()
	}

	if env.Status.Succeeded() {
		switch {
		case o.cfg.DryRun:
			if phase.Sink != "" {
				path := filepath.Join(workDir, phase.Sink)
				o.printer.Printf("  %s\n", o.printer.Dim("[dry-run] would write "+path))
			}
			o.printer.Printf("  %s\n", o.printer.Dim(env.Output))
		case phase.Sink != "":
			path := filepath.Join(workDir, phase.Sink)
			if werr := os.WriteFile(path, []byte(env.Output), 0644); werr != nil {
				o.logger.Error("write phase output", zap.String("path", path), zap.Error(werr))
				env = envelope.New().
					WithModel(env.Model).
					WithOutput(env.Output).
					Failure(envelope.CodeWriteFailed, werr.Error()).
					Build()
			} else {
				env.OutputRef = path
			}
		case mode != runner.ModeStream:
			o.printer.Markdown(env.Output)
		}
	}

	entry := Entry{
		Phase:     phase.Name,
		Status:    env.Status,
		Model:     env.Model,
		Duration:  time.Since(start),
		OutputRef: env.OutputRef,
		Error:     env.ErrorMessage(),
	}
	o.logger.Info("phase finished",
		zap.String("phase", phase.Name),
		zap.String("status", string(env.Status)),
		zap.String("model", env.Model),
		zap.Duration("duration", entry.Duration))
	return entry, env, err
}

func errorText(err error) string {
	if err == nil {
		return "no response"
	}
	return err.Error()
}
