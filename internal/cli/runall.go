package cli

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fpt/go-trackeval/internal/config"
	"github.com/fpt/go-trackeval/internal/report"
	"github.com/fpt/go-trackeval/internal/scenario"
)

// entryRunner runs one scenario of a batch. Injected so batch orchestration
// is testable without spawning agents.
type entryRunner func(ctx context.Context, entry scenario.Entry, settings *config.Settings) report.RunOutcome

func newRunAllCommand(opts *rootOptions) *cobra.Command {
	flags := &providerFlags{}
	var path string
	var parallel int
	var failFast bool

	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run an agent against every scenario under a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := opts.loadSettings()
			if err != nil {
				return err
			}

			if path == "" {
				path = settings.Scenarios.Path
			}

			suite, err := scenario.LoadSuite(path)
			if err != nil {
				return err
			}
			applySuite(settings, suite)
			flags.apply(settings)

			if suite.Parallel > 0 && parallel == 0 {
				parallel = suite.Parallel
			}
			if parallel < 1 {
				parallel = 1
			}
			if suite.FailFast {
				failFast = true
			}

			if err := config.ValidateSettings(settings); err != nil {
				return err
			}

			entries, err := scenario.List(path)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return errors.Errorf("no scenarios found in %s", path)
			}

			reporter, err := opts.reporter()
			if err != nil {
				return err
			}

			var outcomes []report.RunOutcome
			if parallel == 1 {
				outcomes = runSequential(cmd.Context(), entries, settings, reporter, failFast, runEntry)
			} else {
				outcomes = runParallel(cmd.Context(), entries, settings, reporter, parallel, failFast, runEntry)
			}

			if err := reporter.Summary(outcomes); err != nil {
				return err
			}

			for _, o := range outcomes {
				if !o.Passed {
					return ErrRunFailed
				}
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&path, "path", "", "scenarios directory (settings default if empty)")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "number of scenarios to run concurrently")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first failing scenario")

	return cmd
}

// applySuite folds suite.yaml defaults into settings. Flags are applied after
// and win over both.
func applySuite(settings *config.Settings, suite *scenario.Suite) {
	if suite.Provider != "" {
		settings.Provider.Name = suite.Provider
	}
	if suite.Model != "" {
		settings.Provider.Model = suite.Model
	}
	if suite.MaxTurns > 0 {
		settings.Harness.MaxTurns = suite.MaxTurns
	}
	if suite.MinScore > 0 {
		settings.Harness.MinScore = suite.MinScore
	}
}

func runSequential(ctx context.Context, entries []scenario.Entry, settings *config.Settings, reporter *report.Reporter, failFast bool, run entryRunner) []report.RunOutcome {
	var outcomes []report.RunOutcome

	for _, entry := range entries {
		reporter.RunStart(entry.Scenario.Meta.Name)

		outcome := run(ctx, entry, settings)
		reporter.RunOutcomeLine(outcome)
		outcomes = append(outcomes, outcome)

		if failFast && !outcome.Passed {
			break
		}
	}
	return outcomes
}

// runParallel runs scenarios on a bounded worker pool. Output lines appear in
// scenario order once every run finishes. With fail-fast, in-flight runs
// complete and keep their scores; entries that have not started yet are
// skipped once any run fails.
func runParallel(ctx context.Context, entries []scenario.Entry, settings *config.Settings, reporter *report.Reporter, parallel int, failFast bool, run entryRunner) []report.RunOutcome {
	outcomes := make([]report.RunOutcome, len(entries))
	sem := make(chan struct{}, parallel)
	var failed atomic.Bool
	var wg sync.WaitGroup

	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry scenario.Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if failFast && failed.Load() {
				outcomes[i] = report.RunOutcome{
					Scenario: entry.Scenario.Meta.Name,
					Error:    "skipped: an earlier scenario failed",
				}
				return
			}

			outcomes[i] = run(ctx, entry, settings)
			if !outcomes[i].Passed {
				failed.Store(true)
			}
		}(i, entry)
	}
	wg.Wait()

	for i, entry := range entries {
		reporter.RunStart(entry.Scenario.Meta.Name)
		reporter.RunOutcomeLine(outcomes[i])
	}
	return outcomes
}

// runEntry runs one scenario and folds the result, or the error, into a
// summary row. Batch runs keep going past transport failures.
func runEntry(ctx context.Context, entry scenario.Entry, settings *config.Settings) report.RunOutcome {
	evalResult, sessionResult, err := runScenario(ctx, entry.Dir, settings, false)
	if err != nil {
		return report.RunOutcome{
			Scenario: entry.Scenario.Meta.Name,
			Error:    err.Error(),
		}
	}

	return report.RunOutcome{
		Scenario:     evalResult.ScenarioName,
		Passed:       evalResult.Success,
		Score:        evalResult.Score,
		ScorePercent: evalResult.ScorePercent,
		TotalCalls:   evalResult.TotalCalls,
		TurnsUsed:    sessionResult.TurnsUsed,
	}
}
