package cli

import (
	"github.com/spf13/cobra"

	"github.com/fpt/go-trackeval/internal/config"
)

// providerFlags are the per-run overrides shared by run and run-all.
type providerFlags struct {
	provider string
	model    string
	trackBin string
	maxTurns int
	minScore int
	strict   bool
}

func (f *providerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "agent provider (anthropic, openai, claude-code, or copilot)")
	cmd.Flags().StringVar(&f.model, "model", "", "model name (provider default if empty)")
	cmd.Flags().StringVar(&f.trackBin, "track-bin", "", "path to the track binary for subprocess providers")
	cmd.Flags().IntVar(&f.maxTurns, "max-turns", 0, "maximum agent turns")
	cmd.Flags().IntVar(&f.minScore, "min-score", 0, "minimum passing score")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "require every expected outcome to pass")
}

// apply folds flag overrides into loaded settings. Flags win over the file.
func (f *providerFlags) apply(settings *config.Settings) {
	if f.provider != "" {
		settings.Provider.Name = f.provider
	}
	if f.model != "" {
		settings.Provider.Model = f.model
	}
	if f.trackBin != "" {
		settings.Provider.TrackBin = f.trackBin
	}
	if f.maxTurns > 0 {
		settings.Harness.MaxTurns = f.maxTurns
	}
	if f.minScore > 0 {
		settings.Harness.MinScore = f.minScore
	}
	if f.strict {
		settings.Harness.Strict = true
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	flags := &providerFlags{}

	cmd := &cobra.Command{
		Use:   "run <scenario-dir>",
		Short: "Run an agent against one scenario and score it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := opts.loadSettings()
			if err != nil {
				return err
			}
			flags.apply(settings)

			if err := config.ValidateSettings(settings); err != nil {
				return err
			}

			reporter, err := opts.reporter()
			if err != nil {
				return err
			}

			evalResult, sessionResult, err := runScenario(cmd.Context(), args[0], settings, opts.verbose)
			if err != nil {
				return err
			}

			if err := reporter.Evaluation(evalResult, sessionResult); err != nil {
				return err
			}

			if !evalResult.Success {
				return ErrRunFailed
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
