// Package invoker runs one prompt through the external AI CLI, handling the
// three response modes, dry-run, and the single fallback-model retry after a
// quota failure.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crewgen/pkg/display"
	"crewgen/pkg/envelope"
	"crewgen/pkg/runner"
	"crewgen/pkg/stream"
)

// DefaultFallbackDelay is the wait before retrying on the fallback model.
const DefaultFallbackDelay = 5 * time.Second

// Invoker executes prompts against one Tool with a fixed run configuration.
type Invoker struct {
	tool    runner.Tool
	cfg     *runner.Config
	printer *display.Printer
	logger  *zap.Logger

	// Sleep waits before the fallback retry.
	Sleep runner.SleepFunc
	// FallbackDelay is how long Sleep is asked to wait.
	FallbackDelay time.Duration
}

// New creates an Invoker. A nil logger discards diagnostics.
func New(tool runner.Tool, cfg *runner.Config, printer *display.Printer, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		tool:          tool,
		cfg:           cfg,
		printer:       printer,
		logger:        logger,
		Sleep:         runner.Sleep,
		FallbackDelay: DefaultFallbackDelay,
	}
}

// attempt is the outcome of one process execution.
type attempt struct {
	output string
	err    error
}

// Invoke sends prompt in the given mode and returns the invocation result.
// Call failures are reported in the envelope; the error return is non-nil
// only when ctx was cancelled.
func (iv *Invoker) Invoke(ctx context.Context, prompt string, mode runner.Mode) (*envelope.Envelope, error) {
	start := time.Now()
	model := iv.cfg.Model
	b := envelope.New().WithTool(iv.tool.Name()).WithModel(model)

	if iv.cfg.DryRun {
		return b.Success().
			WithOutput(iv.DryRunMarker(prompt, mode)).
			WithAttempts(0).
			Build(), nil
	}

	res := iv.run(ctx, model, prompt, mode)
	if res.err == nil {
		return b.Success().WithOutput(res.output).WithAttempts(1).WithDuration(time.Since(start)).Build(), nil
	}
	if ctx.Err() != nil {
		return b.Failure(envelope.CodeCancelled, ctx.Err().Error()).WithAttempts(1).WithDuration(time.Since(start)).Build(), ctx.Err()
	}

	var qe *QuotaError
	fallback := iv.cfg.FallbackModel
	if !errors.As(res.err, &qe) || fallback == "" || fallback == model {
		return b.Failure(failureCode(res.err), res.err.Error()).
			WithOutput(res.output).
			WithAttempts(1).
			WithDuration(time.Since(start)).
			Build(), nil
	}

	iv.logger.Warn("quota exhausted, retrying on fallback model",
		zap.String("model", model),
		zap.String("fallback", fallback),
		zap.Duration("delay", iv.FallbackDelay),
		zap.String("detail", qe.Detail))
	if iv.printer != nil {
		iv.printer.Println(iv.printer.Yellow(fmt.Sprintf("  %s quota exhausted on %s, retrying with %s in %s",
			display.IconFallback, model, fallback, display.FormatDuration(iv.FallbackDelay))))
	}

	if err := iv.Sleep(ctx, iv.FallbackDelay); err != nil {
		return b.Failure(envelope.CodeCancelled, err.Error()).WithAttempts(1).WithDuration(time.Since(start)).Build(), err
	}

	res = iv.run(ctx, fallback, prompt, mode)
	b.WithModel(fallback).WithAttempts(2)
	if res.err == nil {
		return b.Fallback().WithOutput(res.output).WithDuration(time.Since(start)).Build(), nil
	}
	if ctx.Err() != nil {
		return b.Failure(envelope.CodeCancelled, ctx.Err().Error()).WithDuration(time.Since(start)).Build(), ctx.Err()
	}
	return b.Failure(failureCode(res.err), res.err.Error()).
		WithOutput(res.output).
		WithDuration(time.Since(start)).
		Build(), nil
}

func failureCode(err error) string {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return envelope.CodeQuota
	}
	var ee *ExecError
	if errors.As(err, &ee) && ee.ExitCode < 0 {
		return envelope.CodeStartFailed
	}
	return envelope.CodeExecFailed
}

// DryRunMarker describes the command that would run, without the prompt body.
func (iv *Invoker) DryRunMarker(prompt string, mode runner.Mode) string {
	cmd := iv.tool.BuildCommand(context.Background(), runner.Request{
		Prompt:  prompt,
		Model:   iv.cfg.Model,
		Mode:    mode,
		WorkDir: iv.cfg.WorkDir,
	})
	args := make([]string, 0, len(cmd.Args))
	args = append(args, iv.tool.BinaryName())
	for _, a := range cmd.Args[1:] {
		if a == prompt {
			a = fmt.Sprintf("<prompt: %d chars>", len(prompt))
		}
		args = append(args, a)
	}
	return "[dry-run] would execute: " + strings.Join(args, " ")
}

func (iv *Invoker) run(ctx context.Context, model, prompt string, mode runner.Mode) attempt {
	req := runner.Request{Prompt: prompt, Model: model, Mode: mode, WorkDir: iv.cfg.WorkDir}
	cmd := iv.tool.BuildCommand(ctx, req)
	iv.logger.Debug("invoking",
		zap.String("tool", iv.tool.Name()),
		zap.String("model", model),
		zap.String("mode", string(mode)),
		zap.String("dir", cmd.Dir),
		zap.Int("prompt_chars", len(prompt)))

	if mode == runner.ModeStream {
		return iv.runStream(cmd, model)
	}
	return iv.runBuffered(cmd, model, mode)
}

func (iv *Invoker) runBuffered(cmd *exec.Cmd, model string, mode runner.Mode) attempt {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	code := exitCode(runErr)
	out := stdout.String()
	errText := stderr.String()
	if errText != "" {
		iv.logger.Debug("stderr", zap.String("model", model), zap.String("text", summarize(errText)))
	}

	var reported string
	if mode == runner.ModeJSON {
		text, err := iv.tool.ParseJSONResponse(stdout.Bytes())
		switch {
		case err == nil:
			out = text
		case json.Valid(bytes.TrimSpace(stdout.Bytes())):
			// Valid JSON carrying an error field
			reported = err.Error()
			if runErr == nil {
				runErr, code = err, 0
			}
		default:
			iv.logger.Debug("json response not parseable, using raw output", zap.Error(err))
		}
	}

	if runErr != nil {
		return attempt{output: out, err: classify(model, code, runErr, out, errText, reported)}
	}
	return attempt{output: out}
}

func (iv *Invoker) runStream(cmd *exec.Cmd, model string) attempt {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return attempt{err: classify(model, -1, err)}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return attempt{err: classify(model, -1, err)}
	}
	if err := cmd.Start(); err != nil {
		return attempt{err: classify(model, -1, err)}
	}

	printer := iv.printer
	if printer == nil {
		printer = display.New(io.Discard)
	}
	parser := stream.NewParser(printer, iv.logger)
	var stderr bytes.Buffer

	var g errgroup.Group
	g.Go(func() error {
		err := parser.ProcessReader(stdout)
		if err != nil {
			// keep the child from blocking on a full pipe
			_, _ = io.Copy(io.Discard, stdout)
		}
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderr, stderrPipe)
		return err
	})
	if err := g.Wait(); err != nil {
		iv.logger.Warn("stream read error", zap.Error(err))
	}

	waitErr := cmd.Wait()
	iv.logger.Debug("stream finished",
		zap.String("model", model),
		zap.Int("dropped_lines", parser.Dropped),
		zap.Any("events", parser.Counts))

	if waitErr != nil {
		return attempt{
			output: parser.Output(),
			err:    classify(model, exitCode(waitErr), waitErr, stderr.String(), parser.LastError),
		}
	}
	return attempt{output: parser.Output()}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
