package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"crewgen/pkg/display"
	"crewgen/pkg/runner"
)

const migrateLong = `Migrate a test suite from one framework or language to another by driving
an AI CLI through three phases: analyze the source tests, analyze the target
project, then write the migrated tests into the target directory along with
MIGRATION_REPORT.md.

Framework and language values are free-form; leave them out to let the
analysis phases detect them.`

// Migrate runs the crewmigrate command over args.
func Migrate(ctx context.Context, args []string, opts Options) Result {
	opts = opts.withDefaults()
	var (
		res   Result
		flags commonFlags
		mf    struct {
			sourceFramework string
			targetFramework string
			sourceLang      string
			targetLang      string
		}
	)

	cmd := newCommand("crewmigrate [flags] <source-dir> <target-dir>",
		"Migrate tests between frameworks with an AI CLI", migrateLong)
	cmd.Example = `  crewmigrate --source-framework jest --target-framework vitest ./old ./new
  crewmigrate --source-lang python --target-lang go --dry-run ./py-svc ./go-svc`
	flags.register(cmd)
	cmd.Flags().StringVar(&mf.sourceFramework, "source-framework", "", "test framework of the source (default: auto-detect)")
	cmd.Flags().StringVar(&mf.targetFramework, "target-framework", "", "test framework to migrate to (default: auto-detect)")
	cmd.Flags().StringVar(&mf.sourceLang, "source-lang", "", "language of the source (default: auto-detect)")
	cmd.Flags().StringVar(&mf.targetLang, "target-lang", "", "language of the target (default: auto-detect)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if flags.listPipelines {
			return listPipelines(display.New(opts.Stdout))
		}
		if len(args) < 2 || strings.TrimSpace(args[0]) == "" || strings.TrimSpace(args[1]) == "" {
			return usagef("source and target directories required")
		}
		if len(args) > 2 {
			return usagef("too many arguments")
		}

		a, err := loadApp(cmd, &flags, opts)
		if err != nil {
			return err
		}

		from := describe(mf.sourceFramework, mf.sourceLang)
		to := describe(mf.targetFramework, mf.targetLang)
		return a.runJob(cmd.Context(), job{
			command: "crewmigrate",
			bundle:  "migrate",
			fields: []display.Field{
				{Label: "Source", Value: args[0]},
				{Label: "Target", Value: args[1]},
				{Label: "Migration", Value: from + " → " + to},
			},
			inputs: map[string]string{
				"source_dir":       args[0],
				"target_dir":       args[1],
				"source_framework": mf.sourceFramework,
				"target_framework": mf.targetFramework,
				"source_lang":      mf.sourceLang,
				"target_lang":      mf.targetLang,
			},
		}, &res)
	}

	return execute(ctx, cmd, args, runner.MigrateFlagGroups(), opts, &res)
}

// describe renders a framework/language pair for the banner.
func describe(framework, lang string) string {
	var parts []string
	if framework != "" {
		parts = append(parts, framework)
	}
	if lang != "" {
		parts = append(parts, "("+lang+")")
	}
	if len(parts) == 0 {
		return "auto-detect"
	}
	return strings.Join(parts, " ")
}
