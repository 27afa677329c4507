// Package cli implements the crewgen and crewmigrate commands. Each entry
// point parses its arguments, runs the matching pipeline and returns a
// Result; the mains only print and exit.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crewgen/pkg/bundle"
	"crewgen/pkg/display"
	"crewgen/pkg/invoker"
	"crewgen/pkg/lock"
	"crewgen/pkg/logging"
	"crewgen/pkg/orchestrator"
	"crewgen/pkg/runlog"
	"crewgen/pkg/runner"
	"crewgen/pkg/settings"
	"crewgen/pkg/tools/claude"
	"crewgen/pkg/tools/gemini"
)

// ExitInterrupted is returned when the run is cancelled by a signal.
const ExitInterrupted = 130

// LocksDirName holds per-workdir lock files inside the config directory.
const LocksDirName = "locks"

// Result is the outcome of one command invocation.
type Result struct {
	ExitCode int
	Report   *orchestrator.Report
	Err      error
}

// Options holds the process environment of a command. Zero values select
// the real stdout, stderr, config directory and backends.
type Options struct {
	Stdout    io.Writer
	Stderr    io.Writer
	ConfigDir string           // settings and run logs, default ~/.crewgen
	Tool      runner.Tool      // replaces backend selection when set
	Sleep     runner.SleepFunc // cooldown and fallback waits
}

func (o Options) withDefaults() Options {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.ConfigDir == "" {
		o.ConfigDir = settings.GetConfigDir()
	}
	if o.Sleep == nil {
		o.Sleep = runner.Sleep
	}
	return o
}

// usageError marks argument problems that print usage and exit 1.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// toolFor returns the backend registered under name.
func toolFor(name string) (runner.Tool, error) {
	switch strings.ToLower(name) {
	case "gemini":
		return gemini.New(), nil
	case "claude":
		return claude.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want gemini or claude)", name)
	}
}

// commonFlags are the flags both commands accept.
type commonFlags struct {
	model         string
	fallbackModel string
	backend       string
	cooldown      string
	dryRun        bool
	stream        bool
	verbose       bool
	listPipelines bool
}

func (f *commonFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.model, "model", "m", "", "model name (default: the backend's primary model)")
	fs.StringVar(&f.fallbackModel, "fallback-model", "", "model retried once on a quota error; empty disables the retry")
	fs.StringVar(&f.backend, "backend", "", "AI CLI to drive: gemini or claude")
	fs.StringVar(&f.cooldown, "cooldown", "", "seconds to wait between phases")
	fs.BoolVar(&f.dryRun, "dry-run", false, "show what would run without executing anything")
	fs.BoolVar(&f.stream, "stream", false, "stream live events for text phases")
	fs.BoolVar(&f.verbose, "verbose", false, "debug logging on stderr")
	fs.BoolVar(&f.listPipelines, "list-pipelines", false, "list builtin and user pipelines, then exit")
}

// listPipelines prints every pipeline Load can resolve, with its phases and
// the file it comes from. User copies shadow builtins of the same name.
func listPipelines(p *display.Printer) error {
	names, err := bundle.List()
	if err != nil {
		return &runError{err: fmt.Errorf("list pipelines: %w", err)}
	}
	p.Println(p.Bold("Pipelines:"))
	for _, name := range names {
		b, err := bundle.Load(name)
		if err != nil {
			p.Printf("  %-12s %s\n", name, p.Red(err.Error()))
			continue
		}
		phases := make([]string, len(b.Phases))
		for i, ph := range b.Phases {
			phases[i] = ph.Name
		}
		p.Printf("  %-12s %s\n", name, b.Description)
		p.Printf("  %-12s %s\n", "", p.Dim(strings.Join(phases, " → ")+"  ("+b.SourcePath+")"))
	}
	return nil
}

// job is one resolved pipeline run.
type job struct {
	command string
	bundle  string
	fields  []display.Field
	inputs  map[string]string
	skip    map[string]bool
}

// app carries the resolved configuration of one command invocation.
type app struct {
	opts     Options
	settings *settings.Settings
	flags    *commonFlags
	cmd      *cobra.Command
	printer  *display.Printer
}

// buildConfig merges settings and flags into the run configuration.
func (a *app) buildConfig() (*runner.Config, runner.Tool, error) {
	s := a.settings
	f := a.flags

	tool := a.opts.Tool
	if tool == nil {
		backend := s.Backend
		if f.backend != "" {
			backend = f.backend
		}
		var err error
		if tool, err = toolFor(backend); err != nil {
			return nil, nil, err
		}
	}

	cfg := runner.NewConfig()
	cfg.Backend = tool.Name()
	cfg.DryRun = f.dryRun
	cfg.Stream = f.stream
	cfg.Verbose = f.verbose

	cfg.Model = tool.DefaultModel()
	if s.Model != "" {
		cfg.Model = s.Model
	}
	if f.model != "" {
		cfg.Model = f.model
	}

	cfg.FallbackModel = tool.FallbackModel()
	if s.FallbackModel != "" {
		cfg.FallbackModel = s.FallbackModel
	}
	if a.cmd.Flags().Changed("fallback-model") {
		cfg.FallbackModel = f.fallbackModel
	}

	cfg.Cooldown = s.Cooldown()
	if a.cmd.Flags().Changed("cooldown") {
		d, err := settings.ParseCooldown(f.cooldown)
		if err != nil {
			return nil, nil, err
		}
		cfg.Cooldown = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, tool, nil
}

// runJob resolves the configuration and runs j. Errors come back either as
// usage problems or wrapped as run failures.
func (a *app) runJob(ctx context.Context, j job, res *Result) error {
	cfg, tool, err := a.buildConfig()
	if err != nil {
		return &runError{err: fmt.Errorf("invalid configuration: %w", err)}
	}
	for name, on := range j.skip {
		cfg.Skip[name] = on
	}
	if err := a.run(ctx, cfg, tool, j, res); err != nil {
		var ue *usageError
		if errors.As(err, &ue) {
			return err
		}
		return &runError{err: err}
	}
	return nil
}

// run executes a resolved job and fills res.
func (a *app) run(ctx context.Context, cfg *runner.Config, tool runner.Tool, j job, res *Result) error {
	level := logging.Resolve(cfg.Verbose, a.settings.LogLevel)
	logger, err := logging.New(level, a.opts.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range a.settings.Warnings {
		logger.Warn(w)
	}
	if err := runner.ValidateModel(tool, cfg.Model); err != nil {
		logger.Warn("model not in the known list", zap.Error(err))
	}

	b, err := bundle.Load(j.bundle)
	if err != nil {
		return err
	}
	logger.Debug("bundle loaded", zap.String("name", b.Name), zap.String("source", b.SourcePath))

	inputs, err := orchestrator.PrepareInputs(b, j.inputs)
	if err != nil {
		return &usageError{err: err}
	}

	p := a.printer
	fields := append([]display.Field{
		{Label: "Backend", Value: tool.Name()},
		{Label: "Model", Value: cfg.Model},
	}, j.fields...)
	if cfg.FallbackModel != "" && cfg.FallbackModel != cfg.Model {
		fields = append(fields, display.Field{Label: "Fallback", Value: cfg.FallbackModel})
	}
	if skips := cfg.SkipList(); len(skips) > 0 {
		fields = append(fields, display.Field{Label: "Skipping", Value: strings.Join(skips, ", ")})
	}
	if cfg.DryRun {
		fields = append(fields, display.Field{Label: "Mode", Value: p.Yellow("dry run")})
	} else if cfg.Stream {
		fields = append(fields, display.Field{Label: "Mode", Value: "stream"})
	}
	p.Banner(b.DisplayTitle(), fields)
	p.Warning(tool.SecurityWarning())

	workDir := orchestrator.ResolveWorkDir(b, inputs)
	if workDir != "" {
		cfg = cfg.WithWorkDir(workDir)
	}
	if workDir != "" && !cfg.DryRun {
		l, err := lock.Acquire(ctx, filepath.Join(a.opts.ConfigDir, LocksDirName), workDir,
			fmt.Sprintf("%s (pid %d)", j.command, os.Getpid()),
			lock.Options{OnWait: func(holder string, waited time.Duration) {
				p.Println(p.Dim(fmt.Sprintf("  Waiting for %s to finish with %s... %s",
					holder, workDir, display.FormatDuration(waited))))
			}})
		if err != nil {
			if ctx.Err() != nil {
				res.ExitCode = ExitInterrupted
				res.Err = fmt.Errorf("interrupted: %w", err)
				return nil
			}
			return err
		}
		defer l.Release()
		logger.Debug("workdir locked", zap.String("workdir", workDir), zap.String("lock", l.Path()))
	}

	inv := invoker.New(tool, cfg, p, logger)
	inv.Sleep = a.opts.Sleep

	o := orchestrator.New(cfg, inv, p, logger)
	o.Sleep = a.opts.Sleep

	report, err := o.Run(ctx, b, inputs)
	res.Report = report
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidInput) {
			return &usageError{err: err}
		}
		if ctx.Err() != nil {
			res.ExitCode = ExitInterrupted
			res.Err = fmt.Errorf("interrupted: %w", err)
			return nil
		}
		return err
	}

	logPath, err := runlog.Write(filepath.Join(a.opts.ConfigDir, settings.RunsDirName), runlog.Record{
		Command:       j.command,
		Backend:       tool.Name(),
		Model:         cfg.Model,
		FallbackModel: cfg.FallbackModel,
		Inputs:        inputs,
		Report:        report,
	})
	if err != nil {
		logger.Warn("run log not written", zap.Error(err))
	}

	summary := []display.Field{
		{Label: "Job", Value: report.JobID},
		{Label: "Completed", Value: fmt.Sprintf("%d/%d phases", report.Succeeded(), len(report.Entries))},
	}
	if report.WorkDir != "" {
		summary = append(summary, display.Field{Label: "Output", Value: report.WorkDir})
	}
	if logPath != "" {
		summary = append(summary, display.Field{Label: "Run log", Value: logPath})
	}
	title := "RUN COMPLETE"
	if report.Failed() > 0 {
		title = "RUN FINISHED WITH FAILURES"
	}
	p.Section(title, summary)
	return nil
}

// execute runs cmd over args and turns its outcome into a Result.
func execute(ctx context.Context, cmd *cobra.Command, args []string, groups []runner.FlagAliases, opts Options, res *Result) Result {
	fail := func(err error, usage bool) Result {
		fmt.Fprintf(opts.Stderr, "Error: %v\n", err)
		if usage {
			fmt.Fprintln(opts.Stderr)
			fmt.Fprint(opts.Stderr, cmd.UsageString())
		}
		return Result{ExitCode: 1, Report: res.Report, Err: err}
	}

	if err := runner.CheckDuplicateFlags(args, groups); err != nil {
		return fail(err, true)
	}

	if args == nil {
		args = []string{} // cobra falls back to os.Args on nil
	}
	cmd.SetArgs(args)
	cmd.SetOut(opts.Stdout)
	cmd.SetErr(opts.Stderr)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	if err := cmd.ExecuteContext(ctx); err != nil {
		return fail(err, !isRunError(err))
	}
	return *res
}

// runError wraps failures that happen after the arguments were accepted.
type runError struct {
	err error
}

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

func isRunError(err error) bool {
	var re *runError
	return errors.As(err, &re)
}

// newCommand builds the shared cobra command skeleton.
func newCommand(use, short, long string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		Version: runner.Version,
	}
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	cmd.Flags().SortFlags = false
	return cmd
}

// loadApp loads settings and prepares the printer for a parsed command.
func loadApp(cmd *cobra.Command, flags *commonFlags, opts Options) (*app, error) {
	s, err := settings.Load(opts.ConfigDir)
	if err != nil {
		return nil, &runError{err: fmt.Errorf("invalid configuration: %w", err)}
	}
	return &app{
		opts:     opts,
		settings: s,
		flags:    flags,
		cmd:      cmd,
		printer:  display.New(opts.Stdout),
	}, nil
}
