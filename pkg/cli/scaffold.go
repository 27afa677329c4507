package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"crewgen/pkg/display"
	"crewgen/pkg/runner"
)

const scaffoldLong = `Generate a project from a description by driving an AI CLI through four
phases: Architect designs it (ARCHITECTURE.md), Developer implements it,
Tester writes and runs tests, Reviewer fixes and reports.

Failed phases are reported and the run continues. Settings are read from
~/.crewgen/settings.yaml and CREWGEN_* environment variables; flags win.`

// Scaffold runs the crewgen command over args.
func Scaffold(ctx context.Context, args []string, opts Options) Result {
	opts = opts.withDefaults()
	var (
		res        Result
		flags      commonFlags
		skipTests  bool
		skipReview bool
	)

	cmd := newCommand("crewgen [flags] <project description> [output-directory]",
		"Scaffold a project with an AI CLI", scaffoldLong)
	cmd.Example = `  crewgen "a CLI todo app in Go with SQLite storage" ./todo
  crewgen --skip-tests --skip-review --dry-run "a markdown blog engine"`
	flags.register(cmd)
	cmd.Flags().BoolVar(&skipTests, "skip-tests", false, "skip the Tester phase")
	cmd.Flags().BoolVar(&skipReview, "skip-review", false, "skip the Reviewer phase")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if flags.listPipelines {
			return listPipelines(display.New(opts.Stdout))
		}
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			return usagef("project description required")
		}
		if len(args) > 2 {
			return usagef("too many arguments; quote the project description")
		}

		a, err := loadApp(cmd, &flags, opts)
		if err != nil {
			return err
		}

		description := strings.TrimSpace(args[0])
		outputDir := a.settings.OutputDir
		if len(args) == 2 {
			outputDir = args[1]
		}

		return a.runJob(cmd.Context(), job{
			command: "crewgen",
			bundle:  "scaffold",
			fields: []display.Field{
				{Label: "Project", Value: runner.TruncateTask(description)},
				{Label: "Output", Value: outputDir},
			},
			inputs: map[string]string{
				"description": description,
				"output_dir":  outputDir,
			},
			skip: map[string]bool{
				runner.SkipTests:  skipTests,
				runner.SkipReview: skipReview,
			},
		}, &res)
	}

	return execute(ctx, cmd, args, runner.ScaffoldFlagGroups(), opts, &res)
}
